package tile_test

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/eak1mov/go-libsfd/tile"
	"github.com/google/go-cmp/cmp"
)

func TestParamsRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		name   string
		params tile.Params
	}{
		{"zero detail", tile.Params{Kind: tile.KindStrings, Gzip: true, Lat: 10, Lon: 5}},
		{"small coords", tile.Params{ServerPrefix: 9, Gzip: true, Kind: tile.KindStrings, Importance: 3, Lang: tile.LangGerman, Lat: -7, Lon: 100, Detail: 2}},
		{"wide coords", tile.Params{ServerPrefix: 31, Kind: tile.KindStrings, Importance: 17, Lang: tile.LangFinnish, Lat: -16000, Lon: 12345, Detail: 15, Layer: 4}},
		{"big language", tile.Params{Kind: tile.KindStrings, Lang: 200, Lat: 1, Lon: 1, Detail: 1}},
		{"route layer", tile.Params{Kind: tile.KindStrings, Layer: tile.LayerRoute, Lat: 3, Lon: 4, Detail: 5, Route: tile.RouteID{ID: 0xdeadbeef, CreationTime: 42}, HasRoute: true}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			key := tc.params.String()
			if !tile.IsMapKey(key) {
				t.Fatalf("IsMapKey(%q) = false", key)
			}
			got, err := tile.ParseParams(key)
			if err != nil {
				t.Fatalf("ParseParams(%q) failed: %v", key, err)
			}
			if diff := cmp.Diff(tc.params, got); diff != "" {
				t.Errorf("params mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParamsDataHasNoLanguage(t *testing.T) {
	p := tile.Params{Gzip: true, Layer: tile.LayerPOI, Lat: 100, Lon: -100, Detail: 3, Importance: 2}
	english := p
	english.Lang = tile.LangEnglish
	french := p
	french.Lang = tile.LangFrench

	if english.String() != french.String() {
		t.Errorf("data keys differ by language: %q != %q", english.String(), french.String())
	}
	if !strings.HasPrefix(english.String(), "G") {
		t.Errorf("data key %q does not start with G", english.String())
	}

	got, err := tile.ParseParams(english.String())
	if err != nil {
		t.Fatalf("ParseParams failed: %v", err)
	}
	want := p
	want.Lang = tile.LangSwedish
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("params mismatch (-want +got):\n%s", diff)
	}
}

func TestParamsKeyAlphabet(t *testing.T) {
	p := tile.Params{Kind: tile.KindStrings, Lat: 1234, Lon: -4321, Detail: 7, Importance: 9}
	key := p.String()
	const alphabet = "!()*+-<>@ABCDEFGHIJKLMNOPQRSTUVWXYZ[]^abcdefghijklmnopqrstuvwxyz"
	if key[0] != 'T' {
		t.Errorf("strings key %q does not start with T", key)
	}
	for _, c := range key[1:] {
		if !strings.ContainsRune(alphabet, c) {
			t.Errorf("key %q has character %q outside the code alphabet", key, c)
		}
	}
}

func TestParseParamsInvalid(t *testing.T) {
	valid := tile.Params{Kind: tile.KindData, Lat: 300, Lon: 300, Detail: 4}.String()
	for _, key := range []string{
		"",
		"G",
		"X" + valid[1:],
		"Dfoo",
		valid[:len(valid)-1] + "~",
		valid[:3],
	} {
		_, err := tile.ParseParams(key)
		if !errors.Is(err, tile.ErrInvalidParams) {
			t.Errorf("ParseParams(%q) error = %v, want ErrInvalidParams", key, err)
		}
	}
}

func TestIsMapKey(t *testing.T) {
	for key, want := range map[string]bool{
		"":        false,
		"G":       true,
		"Tabc":    true,
		"DXXX":    false,
		"gfoo":    false,
		"tmfd.de": false,
	} {
		if got := tile.IsMapKey(key); got != want {
			t.Errorf("IsMapKey(%q) = %v, want %v", key, got, want)
		}
	}
}

func TestCompare(t *testing.T) {
	base := tile.Params{Lat: 1, Lon: 1, Detail: 1}
	withRoute := base
	withRoute.HasRoute = true
	withRoute.Route = tile.RouteID{ID: 1}
	laterRoute := withRoute
	laterRoute.Route.ID = 2

	ordered := []tile.Params{
		{Lat: 0, Lon: 9, Detail: 9},
		{Lat: 1, Lon: 0},
		base,
		withRoute,
		laterRoute,
		{Lat: 1, Lon: 1, ServerPrefix: 1},
		{Lat: 1, Lon: 1, ServerPrefix: 1, Gzip: true},
		{Lat: 1, Lon: 1, ServerPrefix: 1, Gzip: true, Layer: 1},
		{Lat: 1, Lon: 1, ServerPrefix: 1, Gzip: true, Layer: 1, Kind: tile.KindStrings},
		{Lat: 1, Lon: 1, ServerPrefix: 1, Gzip: true, Layer: 1, Kind: tile.KindStrings, Importance: 1},
		{Lat: 1, Lon: 1, ServerPrefix: 1, Gzip: true, Layer: 1, Kind: tile.KindStrings, Importance: 1, Lang: 1},
		{Lat: 2},
	}

	shuffled := slices.Clone(ordered)
	slices.Reverse(shuffled)
	slices.SortFunc(shuffled, tile.Compare)
	if diff := cmp.Diff(ordered, shuffled); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}

	for i := 1; i < len(ordered); i++ {
		if !ordered[i-1].Less(ordered[i]) {
			t.Errorf("%d: %+v not less than %+v", i, ordered[i-1], ordered[i])
		}
		if ordered[i].Less(ordered[i-1]) {
			t.Errorf("%d: %+v less than %+v", i, ordered[i], ordered[i-1])
		}
	}
}
