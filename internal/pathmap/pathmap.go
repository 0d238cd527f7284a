// Package pathmap builds the TitlePathMap and TitleAgencyMap derived
// from every agency's DocumentReferences (spec.md §4.4).
package pathmap

import (
	"strings"
	"unicode"

	"ecfr-wordfreq/internal/ecfrclient"
)

// TitlePathMap is title_number -> subdivision_type -> set of codes.
type TitlePathMap map[int]map[string]map[string]struct{}

// AgencyInfo identifies the agency owning a subdivision.
type AgencyInfo struct {
	ID          string
	ShortName   string
	DisplayName string
}

// TitleAgencyMap is title_number -> subdivision_type -> code -> owning agencies.
type TitleAgencyMap map[int]map[string]map[string][]AgencyInfo

// Build flattens the agency tree and derives both maps in one pass, as
// a pure function of its input (spec.md §4.4).
func Build(agencies []ecfrclient.Agency) (TitlePathMap, TitleAgencyMap) {
	paths := make(TitlePathMap)
	owners := make(TitleAgencyMap)

	for _, root := range agencies {
		walk(root, paths, owners)
	}
	return paths, owners
}

func walk(a ecfrclient.Agency, paths TitlePathMap, owners TitleAgencyMap) {
	info := AgencyInfo{
		ID:          a.Slug,
		ShortName:   shortName(a),
		DisplayName: a.DisplayName,
	}

	for _, ref := range a.CFRReferences {
		if len(ref.Fields) == 0 {
			continue
		}
		if paths[ref.Title] == nil {
			paths[ref.Title] = make(map[string]map[string]struct{})
		}
		if owners[ref.Title] == nil {
			owners[ref.Title] = make(map[string]map[string][]AgencyInfo)
		}

		for typ, code := range ref.Fields {
			if paths[ref.Title][typ] == nil {
				paths[ref.Title][typ] = make(map[string]struct{})
			}
			paths[ref.Title][typ][code] = struct{}{}

			if owners[ref.Title][typ] == nil {
				owners[ref.Title][typ] = make(map[string][]AgencyInfo)
			}
			if !containsAgency(owners[ref.Title][typ][code], info) {
				owners[ref.Title][typ][code] = append(owners[ref.Title][typ][code], info)
			}
		}
	}

	for _, child := range a.Children {
		walk(child, paths, owners)
	}
}

func containsAgency(list []AgencyInfo, info AgencyInfo) bool {
	for _, a := range list {
		if a.ID == info.ID {
			return true
		}
	}
	return false
}

// shortName returns the agency's short_name, or a fallback derived
// from the initials of its capitalized display-name words when no
// short_name is set (original_source's misc/pack.py fallback).
func shortName(a ecfrclient.Agency) string {
	if a.ShortName != "" {
		return a.ShortName
	}
	var b strings.Builder
	for _, word := range strings.Fields(a.DisplayName) {
		r := []rune(word)
		if len(r) > 0 && unicode.IsUpper(r[0]) {
			b.WriteRune(r[0])
		}
	}
	return b.String()
}
