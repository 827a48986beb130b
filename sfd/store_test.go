package sfd_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/eak1mov/go-libsfd/dbstore"
	"github.com/eak1mov/go-libsfd/dirstore"
	"github.com/eak1mov/go-libsfd/internal"
	"github.com/eak1mov/go-libsfd/sfd"
	"github.com/eak1mov/go-libsfd/tile"
	"github.com/google/go-cmp/cmp"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

type store interface {
	tile.Fetcher
	tile.Visitor
	tile.KeyVisitor
}

func writeStore(t *testing.T, w tile.Writer, bufs map[string][]byte) {
	t.Helper()
	for key, data := range bufs {
		require.NoError(t, w.WriteBuffer(key, data))
	}
	require.NoError(t, w.Finalize())
}

func TestBuildFromStore(t *testing.T) {
	bufs := internal.GridBuffers(base, buildOthers, buildGrids...)

	for _, tc := range []struct {
		name string
		open func(t *testing.T, bufs map[string][]byte) store
	}{
		{"sqlite", func(t *testing.T, bufs map[string][]byte) store {
			path := filepath.Join(t.TempDir(), "buffers.db")
			w, err := dbstore.NewWriter(path)
			require.NoError(t, err)
			writeStore(t, w, bufs)
			require.NoError(t, w.Close())
			r, err := dbstore.NewReader(path)
			require.NoError(t, err)
			t.Cleanup(func() { r.Close() })
			return r
		}},
		{"dir", func(t *testing.T, bufs map[string][]byte) store {
			pattern := filepath.Join(t.TempDir(), "{initial}", "{key}")
			w, err := dirstore.NewWriter(pattern)
			require.NoError(t, err)
			writeStore(t, w, bufs)
			r, err := dirstore.NewReader(pattern)
			require.NoError(t, err)
			return r
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			src := tc.open(t, bufs)

			var keys []string
			require.NoError(t, src.VisitKeys(func(key string) error {
				keys = append(keys, key)
				return nil
			}))
			b := newBuilder(t, keys, sfd.WithName(tc.name))
			require.NoError(t, sfd.Build(context.Background(), b, src, 7, nil))
			res, err := b.Result()
			require.NoError(t, err)
			t.Cleanup(func() { res.Close() })

			if diff := cmp.Diff(gridPayloads(bufs), readAll(t, res.Bytes())); diff != "" {
				t.Errorf("payload mismatch (-want +got):\n%s", diff)
			}

			// Unpacking the result gives back the store contents.
			r, err := sfd.NewReader(res.Bytes(), sfd.WithGzip(true))
			require.NoError(t, err)
			got := map[string]string{}
			for key, data := range tile.IterBuffers(r) {
				got[key] = string(data)
			}
			want := map[string]string{}
			for key, data := range bufs {
				want[key] = string(data)
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("buffers mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
