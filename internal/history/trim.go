package history

import "github.com/curioushi/ftm/internal/tracelog"

// SnapshotDeleter removes the on-disk snapshot named by checksum and
// reports how many bytes it freed. Implemented by snapshot.Store; declared
// here (rather than imported) so history has no dependency on the
// snapshot package.
type SnapshotDeleter interface {
	Delete(checksum string) (bytesFreed int64, err error)
}

// TrimReport summarizes one Trim pass.
type TrimReport struct {
	EntriesTrimmed int
	BytesFreed     int64
}

// Trim enforces maxHistory and maxQuota by evicting the oldest entries
// until both hold (or the sequence is empty), then deletes the on-disk
// snapshot for every checksum left with zero references. Ties between
// entries are broken by position: oldest goes first.
func (idx *Index) Trim(maxHistory int, maxQuota int64, deleter SnapshotDeleter) (TrimReport, error) {
	refcount := make(map[string]int)
	size := make(map[string]int64)
	var total int64

	for _, e := range idx.Entries {
		if e.Checksum == "" {
			continue
		}
		refcount[e.Checksum]++
		if _, seen := size[e.Checksum]; !seen {
			size[e.Checksum] = e.Size
			total += e.Size
		}
	}

	trimmed := 0
	for len(idx.Entries) > maxHistory || total > maxQuota {
		if len(idx.Entries) == 0 {
			break
		}
		oldest := idx.Entries[0]
		idx.Entries = idx.Entries[1:]
		trimmed++

		if oldest.Checksum == "" {
			continue
		}
		refcount[oldest.Checksum]--
		if refcount[oldest.Checksum] == 0 {
			total -= size[oldest.Checksum]
		}
	}

	if trimmed > 0 {
		idx.rebuildView()
	}

	var bytesFreed int64
	for checksum, n := range refcount {
		if n > 0 {
			continue
		}
		freed, err := deleter.Delete(checksum)
		if err != nil {
			return TrimReport{}, err
		}
		bytesFreed += freed
	}

	report := TrimReport{EntriesTrimmed: trimmed, BytesFreed: bytesFreed}
	if trimmed > 0 {
		tracelog.Cleaner.Printf("trim: removed %d entries, freed %d bytes", trimmed, bytesFreed)
	}
	return report, nil
}
