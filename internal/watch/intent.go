package watch

// IntentKind tags the two shapes of mutation intent the watcher produces.
type IntentKind int

const (
	// Snapshot means: re-stage and record the file at Path.
	Snapshot IntentKind = iota
	// DeletePrefix means: mark every tracked file at or under Path as
	// deleted.
	DeletePrefix
)

// Intent is one coalesced unit of work the watcher hands to the engine.
// Path is always relative to the watched root, forward-slash separated.
type Intent struct {
	Kind IntentKind
	Path string
}

// coalesce dedupes one drained batch: keep only the last Snapshot per
// distinct path, and drop any DeletePrefix that is a strict descendant of
// another DeletePrefix in the same batch (the shorter prefix already
// covers it). Each surviving intent sits at the position of its last
// occurrence, so a delete and a later re-creation of the same path are
// applied in the order they happened.
func coalesce(batch []Intent) []Intent {
	last := make(map[Intent]int, len(batch))
	var deletePrefixes []string

	for i, in := range batch {
		last[in] = i
		if in.Kind == DeletePrefix {
			deletePrefixes = append(deletePrefixes, in.Path)
		}
	}
	kept := make(map[string]struct{})
	for _, p := range dedupePrefixes(deletePrefixes) {
		kept[p] = struct{}{}
	}

	out := make([]Intent, 0, len(last))
	for i, in := range batch {
		if _, ok := kept[in.Path]; last[in] == i && (in.Kind == Snapshot || ok) {
			out = append(out, in)
		}
	}
	return out
}

// dedupePrefixes removes exact duplicates and any path that is a strict
// descendant (by "/"-prefix) of another path in the set.
func dedupePrefixes(paths []string) []string {
	unique := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		unique[p] = struct{}{}
	}

	var out []string
	for p := range unique {
		dominated := false
		for q := range unique {
			if p == q {
				continue
			}
			if p == q || hasPathPrefix(p, q) {
				dominated = true
				break
			}
		}
		if !dominated {
			out = append(out, p)
		}
	}
	return out
}

func hasPathPrefix(p, prefix string) bool {
	if len(p) <= len(prefix) {
		return false
	}
	return p[:len(prefix)] == prefix && p[len(prefix)] == '/'
}
