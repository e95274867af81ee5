package snapshot

import (
	"os"
	"strings"

	"github.com/curioushi/ftm/internal/tracelog"
)

// GCReport summarizes one orphan-collection pass.
type GCReport struct {
	Scanned        int
	OrphansRemoved int
	BytesFreed     int64
}

// CollectOrphans walks the fan-out object tree and removes every snapshot
// whose checksum is absent from live, the set of checksums the history
// Index still references. This catches objects left behind by a crash
// between Publish and the corresponding history append.
func (s *Store) CollectOrphans(live map[string]struct{}) (GCReport, error) {
	var report GCReport

	topLevels, err := s.fs.ReadDir(objectsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return report, nil
		}
		return report, err
	}

	for _, top := range topLevels {
		if !top.IsDir() || top.Name() == ".tmp" {
			continue
		}
		topPath := objectsDir + "/" + top.Name()

		subLevels, err := s.fs.ReadDir(topPath)
		if err != nil {
			return report, err
		}

		for _, sub := range subLevels {
			if !sub.IsDir() {
				continue
			}
			subPath := topPath + "/" + sub.Name()

			files, err := s.fs.ReadDir(subPath)
			if err != nil {
				return report, err
			}

			for _, f := range files {
				if f.IsDir() {
					continue
				}
				checksum := f.Name()
				if !isChecksumName(checksum) {
					continue
				}
				report.Scanned++

				if !strings.HasPrefix(checksum, top.Name()+sub.Name()) {
					continue
				}
				if _, ok := live[checksum]; ok {
					continue
				}

				path := subPath + "/" + checksum
				if err := s.fs.Remove(path); err != nil && !os.IsNotExist(err) {
					return report, err
				}
				report.OrphansRemoved++
				report.BytesFreed += f.Size()
			}
		}
	}

	if report.OrphansRemoved > 0 {
		tracelog.Cleaner.Printf("gc: removed %d orphan snapshots, freed %d bytes", report.OrphansRemoved, report.BytesFreed)
	}
	return report, nil
}

// isChecksumName reports whether name is a 64-char lowercase hex string.
// Anything else found inside the fan-out tree is not one of our objects
// and is left alone.
func isChecksumName(name string) bool {
	if len(name) != 64 {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
