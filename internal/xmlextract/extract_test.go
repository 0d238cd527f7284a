package xmlextract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func sel(typ string, codes ...string) Selector {
	set := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	return Selector{typ: set}
}

func TestExtract_RoundTrip(t *testing.T) {
	xmlDoc := `<ROOT><DIV TYPE="chapter" N="III">Alpha <EM>Beta</EM></DIV></ROOT>`
	got, err := Extract(strings.NewReader(xmlDoc), sel("chapter", "III"))
	require.NoError(t, err)
	require.Equal(t, map[string]map[string]string{
		"chapter": {"III": "Alpha Beta"},
	}, got)
}

func TestExtract_EmptySelectorScenario(t *testing.T) {
	xmlDoc := `<ROOT><DIV TYPE="CHAPTER" N="I">hi</DIV></ROOT>`
	got, err := Extract(strings.NewReader(xmlDoc), sel("chapter", "II"))
	require.NoError(t, err)
	require.Equal(t, map[string]map[string]string{"chapter": {}}, got)
}

func TestExtract_TypeCaseInsensitiveNExact(t *testing.T) {
	xmlDoc := `<ROOT><DIV TYPE="Chapter" N="iii">nope</DIV><DIV TYPE="CHAPTER" N="III">yes</DIV></ROOT>`
	got, err := Extract(strings.NewReader(xmlDoc), sel("chapter", "III"))
	require.NoError(t, err)
	require.Equal(t, "yes", got["chapter"]["III"])
	require.NotContains(t, got["chapter"], "iii")
}

func TestExtract_NestedMatchesIndependent(t *testing.T) {
	xmlDoc := `<ROOT><DIV TYPE="chapter" N="I">outer <DIV TYPE="part" N="1">inner</DIV> tail</DIV></ROOT>`
	got, err := Extract(strings.NewReader(xmlDoc), Selector{
		"chapter": {"I": struct{}{}},
		"part":    {"1": struct{}{}},
	})
	require.NoError(t, err)
	require.Equal(t, "outer inner tail", got["chapter"]["I"])
	require.Equal(t, "inner", got["part"]["1"])
}

func TestExtract_MalformedXML(t *testing.T) {
	_, err := Extract(strings.NewReader(`<ROOT><DIV>`), sel("chapter", "I"))
	require.Error(t, err)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
}
