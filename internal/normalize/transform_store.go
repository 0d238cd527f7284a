package normalize

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// TransformStore is the process-local, mutex-guarded, crash-safe
// WordTransformationMap persistence described in spec.md §5 and §9:
// a single dedicated store exposing merge/lookup instead of the
// ad hoc read-modify-write the original implementation inlined into
// every normalization call.
type TransformStore struct {
	mu   sync.Mutex
	path string
}

// NewTransformStore binds a store to a JSON file path. The file is
// created lazily on first Merge.
func NewTransformStore(path string) *TransformStore {
	return &TransformStore{path: path}
}

// Merge unions delta into the on-disk map, never overwriting existing
// surface forms, then atomically persists the result (write-temp-then-
// rename under the process-local mutex, per spec.md §5).
func (s *TransformStore) Merge(delta map[string][]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.readLocked()
	if err != nil {
		return err
	}
	for k, values := range delta {
		for _, v := range values {
			existing[k] = appendUnique(existing[k], v)
		}
	}
	return s.writeLocked(existing)
}

// Lookup returns the surface forms recorded for a stem, if any.
func (s *TransformStore) Lookup(stem string) ([]string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, err := s.readLocked()
	if err != nil {
		return nil, false
	}
	forms, ok := existing[stem]
	return forms, ok
}

// All returns the entire on-disk map, for rollup consumption (C8).
func (s *TransformStore) All() (map[string][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked()
}

func (s *TransformStore) readLocked() (map[string][]string, error) {
	b, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string][]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	var m map[string][]string
	if len(b) == 0 {
		return map[string][]string{}, nil
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string][]string{}
	}
	return m, nil
}

func (s *TransformStore) writeLocked(m map[string][]string) error {
	dir := filepath.Dir(s.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, s.path)
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

// SelectSurfaceForm picks one presentable form from a stem's recorded
// surface forms: prefer a form with an internal uppercase letter and
// no period, else the first seen form (spec.md §4.6 Rationale).
func SelectSurfaceForm(forms []string) string {
	for _, f := range forms {
		if hasInternalUpper(f) && !strings.Contains(f, ".") {
			return f
		}
	}
	if len(forms) > 0 {
		return forms[0]
	}
	return ""
}

func hasInternalUpper(s string) bool {
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			return true
		}
	}
	return false
}
