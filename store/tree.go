package store

import (
	"encoding/json"
	"sort"
)

// normalize converts v to its JSON tree form, fills in server timestamps and
// drops empty objects, which do not exist in the store.
func normalize(v any, nowMillis int64) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return resolve(out, float64(nowMillis)), nil
}

func resolve(v any, now float64) any {
	switch t := v.(type) {
	case map[string]any:
		if isServerTimestamp(t) {
			return now
		}
		for k, child := range t {
			child = resolve(child, now)
			if child == nil {
				delete(t, k)
				continue
			}
			t[k] = child
		}
		if len(t) == 0 {
			return nil
		}
		return t
	case []any:
		for i := range t {
			t[i] = resolve(t[i], now)
		}
		return t
	default:
		return v
	}
}

func getAt(node any, segs []string) any {
	for _, s := range segs {
		m, ok := node.(map[string]any)
		if !ok {
			return nil
		}
		node = m[s]
	}
	return node
}

// setAt writes v below node and returns the new node. Objects left empty by
// a removal are removed too.
func setAt(node any, segs []string, v any) any {
	if len(segs) == 0 {
		return v
	}
	m, ok := node.(map[string]any)
	if !ok {
		if v == nil {
			return node
		}
		m = map[string]any{}
	}
	child := setAt(m[segs[0]], segs[1:], v)
	if child == nil {
		delete(m, segs[0])
	} else {
		m[segs[0]] = child
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

// transactAt runs fn on the value at rel below root and stores the result
// there. full is the whole path, used as the snapshot key.
func transactAt(root any, rel, full []string, nowMillis int64, fn func(Snapshot) (any, error)) (any, error) {
	cur, err := snapshotOf(full, getAt(root, rel))
	if err != nil {
		return root, err
	}
	v, err := fn(cur)
	if err != nil {
		return root, err
	}
	nv, err := normalize(v, nowMillis)
	if err != nil {
		return root, err
	}
	return setAt(root, rel, nv), nil
}

// overlaps reports whether a write at one path can change the value at the
// other.
func overlaps(a, b []string) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func queryEqual(node any, segs []string, child string, value any, limit int) ([]Snapshot, error) {
	want, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	m, ok := node.(map[string]any)
	if !ok {
		return nil, nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []Snapshot
	for _, k := range keys {
		if limit > 0 && len(out) >= limit {
			break
		}
		c, ok := m[k].(map[string]any)
		if !ok {
			continue
		}
		got, err := json.Marshal(c[child])
		if err != nil {
			return nil, err
		}
		if string(got) != string(want) {
			continue
		}
		snap, err := snapshotOf(append(append([]string{}, segs...), k), c)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

func applyUpdate(root any, segs []string, fields map[string]any, nowMillis int64) (any, error) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	// Validate everything before touching root so a bad field leaves the
	// document unchanged.
	rels := make([][]string, len(keys))
	vals := make([]any, len(keys))
	for i, k := range keys {
		rel, err := splitPath(k)
		if err != nil {
			return root, err
		}
		v, err := normalize(fields[k], nowMillis)
		if err != nil {
			return root, err
		}
		rels[i], vals[i] = rel, v
	}
	for i := range keys {
		root = setAt(root, append(append([]string{}, segs...), rels[i]...), vals[i])
	}
	return root, nil
}
