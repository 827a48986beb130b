package sfd_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/eak1mov/go-libsfd/internal"
	"github.com/eak1mov/go-libsfd/sfd"
	"github.com/eak1mov/go-libsfd/sfd/spec"
	"github.com/eak1mov/go-libsfd/tile"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestFileRoundTrip(t *testing.T) {
	for _, version := range []uint8{0, 1} {
		for _, debug := range []bool{false, true} {
			t.Run(fmt.Sprintf("v%d/debug=%v", version, debug), func(t *testing.T) {
				t.Parallel()
				f := gridFile(t, "europe", debug, internal.Grid{Layer: 0, Detail: 3, Lat0: -1, Lat1: 1, Lon0: 4, Lon1: 5, Imp0: 0, Imp1: 2})

				data, err := f.Save(version)
				require.NoError(t, err)
				require.Equal(t, int(f.Header.FileSize), len(data))

				got, err := sfd.Load(data)
				require.NoError(t, err)
				require.Equal(t, version, got.Header.Version)
				require.Equal(t, f.Header.Name, got.Header.Name)
				require.Equal(t, f.Header.Collections, got.Header.Collections)
				require.Equal(t, f.HeaderStrings, got.HeaderStrings)
				if diff := cmp.Diff(f.HeaderMaps, got.HeaderMaps); diff != "" {
					t.Errorf("header maps mismatch (-want +got):\n%s", diff)
				}
				if diff := cmp.Diff(f.Maps, got.Maps); diff != "" {
					t.Errorf("maps mismatch (-want +got):\n%s", diff)
				}

				again, err := got.Save(version)
				require.NoError(t, err)
				require.Equal(t, data, again)
			})
		}
	}
}

func TestFileChecksumDedup(t *testing.T) {
	f := gridFile(t, "dup", false, internal.Grid{Layer: 0, Detail: 1, Lat0: 0, Lat1: 1, Lon0: 0, Lon1: 1})
	for i := range f.Maps {
		f.Maps[i] = sfd.NewMapBuff("", f.Maps[0].Data)
	}
	f.Maps[3] = sfd.NewMapBuff("", append([]byte(nil), f.Maps[0].Data...))

	v0, err := f.Save(0)
	require.NoError(t, err)
	v1, err := f.Save(1)
	require.NoError(t, err)
	require.Less(t, len(v1), len(v0))

	for _, data := range [][]byte{v0, v1} {
		got, err := sfd.Load(data)
		require.NoError(t, err)
		require.Len(t, got.Maps, 4)
		for _, m := range got.Maps {
			require.Equal(t, f.Maps[0].Data, m.Data)
		}
	}
}

func TestFileGridScenario(t *testing.T) {
	f := gridFile(t, "grid", false, internal.Grid{Layer: 0, Detail: 2, Lat0: 10, Lat1: 11, Lon0: 5, Lon1: 6})
	data, err := f.Save(0)
	require.NoError(t, err)

	coll := &f.Header.Collections[0]
	var offsets []uint32
	for _, pos := range [][2]int32{{10, 5}, {10, 6}, {11, 5}, {11, 6}} {
		off, ok := coll.CellOffset(tile.Params{Detail: 2, Lat: pos[0], Lon: pos[1]})
		require.True(t, ok)
		offsets = append(offsets, off)
	}
	for i := 1; i < len(offsets); i++ {
		require.Less(t, offsets[i-1], offsets[i])
	}

	r, err := sfd.NewReader(data, sfd.WithGzip(true))
	require.NoError(t, err)
	var got []string
	for p, payload := range tile.IterTiles(r) {
		got = append(got, fmt.Sprintf("%d,%d,%v=%s", p.Lat, p.Lon, p.Kind, payload))
	}

	var want []string
	for _, pos := range [][2]int32{{10, 5}, {10, 6}, {11, 5}, {11, 6}} {
		for _, kind := range []tile.Kind{tile.KindData, tile.KindStrings} {
			p := base
			p.Detail, p.Lat, p.Lon, p.Kind = 2, pos[0], pos[1], kind
			want = append(want, fmt.Sprintf("%d,%d,%v=%s", pos[0], pos[1], kind, payload("grid", p)))
		}
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("tiles mismatch (-want +got):\n%s", diff)
	}
}

func TestFileSaveErrors(t *testing.T) {
	g := internal.Grid{Layer: 0, Detail: 1, Lat0: 0, Lat1: 0, Lon0: 0, Lon1: 1}

	f := gridFile(t, "x", false, g)
	f.Maps[1] = sfd.MapBuff{}
	_, err := f.Save(0)
	require.ErrorIs(t, err, spec.ErrContractViolation)

	f = gridFile(t, "x", false, g)
	f.Maps = f.Maps[:1]
	_, err = f.Save(0)
	require.ErrorIs(t, err, spec.ErrContractViolation)

	f = gridFile(t, "x", false, g)
	f.HeaderStrings[0], f.HeaderStrings[1] = f.HeaderStrings[1], f.HeaderStrings[0]
	_, err = f.Save(0)
	require.ErrorIs(t, err, spec.ErrContractViolation)

	f = gridFile(t, "x", false, g)
	_, err = f.Save(spec.MaxVersion + 1)
	require.ErrorIs(t, err, spec.ErrUnsupportedVersion)
}

func TestFileTakeAssign(t *testing.T) {
	f := gridFile(t, "a", false, internal.Grid{Layer: 0, Detail: 1, Lat0: 0, Lat1: 1, Lon0: 0, Lon1: 0})
	want, err := f.Save(0)
	require.NoError(t, err)

	taken := f.Take()
	require.Empty(t, f.Maps)
	require.Empty(t, f.HeaderStrings)
	require.Equal(t, 0, f.Header.Cells())

	dst := sfd.New("", false)
	dst.Assign(taken)
	require.Empty(t, taken.Maps)

	got, err := dst.Save(0)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestFileWriteLoad(t *testing.T) {
	f := gridFile(t, "disk", false, internal.Grid{Layer: 2, Detail: 4, Lat0: 0, Lat1: 0, Lon0: 0, Lon1: 2, Imp0: 1, Imp1: 1})
	path := filepath.Join(t.TempDir(), "out.sfd")
	require.NoError(t, f.WriteFile(path, 1))

	got, err := sfd.LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, "disk", got.Header.Name)
	if diff := cmp.Diff(f.Maps, got.Maps); diff != "" {
		t.Errorf("maps mismatch (-want +got):\n%s", diff)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	_, err = sfd.LoadFile(filepath.Join(t.TempDir(), "missing.sfd"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
