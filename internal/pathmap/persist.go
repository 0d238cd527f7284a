package pathmap

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
)

// jsonPathMap mirrors TitlePathMap with codes as sorted slices, the
// on-disk shape of title_path_map.json (spec.md §6).
type jsonPathMap map[string]map[string][]string

// SaveTitlePathMap writes path to disk via write-temp-then-rename
// (spec.md §5's crash-safety requirement for shared JSON state).
func SaveTitlePathMap(path string, m TitlePathMap) error {
	out := make(jsonPathMap, len(m))
	for title, byType := range m {
		key := strconv.Itoa(title)
		out[key] = make(map[string][]string, len(byType))
		for typ, codes := range byType {
			list := make([]string, 0, len(codes))
			for c := range codes {
				list = append(list, c)
			}
			sort.Strings(list)
			out[key][typ] = list
		}
	}
	return writeJSONAtomic(path, out)
}

// LoadTitlePathMap reads a title_path_map.json written by SaveTitlePathMap.
func LoadTitlePathMap(path string) (TitlePathMap, error) {
	var raw jsonPathMap
	if err := readJSON(path, &raw); err != nil {
		return nil, err
	}
	m := make(TitlePathMap, len(raw))
	for key, byType := range raw {
		title, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		m[title] = make(map[string]map[string]struct{}, len(byType))
		for typ, codes := range byType {
			set := make(map[string]struct{}, len(codes))
			for _, c := range codes {
				set[c] = struct{}{}
			}
			m[title][typ] = set
		}
	}
	return m, nil
}

// jsonAgencyMap mirrors TitleAgencyMap for title_agency_map.json.
type jsonAgencyMap map[string]map[string]map[string][]AgencyInfo

// SaveTitleAgencyMap writes owners to disk via write-temp-then-rename.
func SaveTitleAgencyMap(path string, m TitleAgencyMap) error {
	out := make(jsonAgencyMap, len(m))
	for title, byType := range m {
		key := strconv.Itoa(title)
		out[key] = byType
	}
	return writeJSONAtomic(path, out)
}

// LoadTitleAgencyMap reads a title_agency_map.json written by SaveTitleAgencyMap.
func LoadTitleAgencyMap(path string) (TitleAgencyMap, error) {
	var raw jsonAgencyMap
	if err := readJSON(path, &raw); err != nil {
		return nil, err
	}
	m := make(TitleAgencyMap, len(raw))
	for key, byType := range raw {
		title, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		m[title] = byType
	}
	return m, nil
}

func writeJSONAtomic(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
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
	if err := enc.Encode(v); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

func readJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("pathmap: read %s: %w", path, err)
	}
	return json.Unmarshal(b, v)
}
