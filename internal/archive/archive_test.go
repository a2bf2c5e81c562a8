package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func zipBytes(t *testing.T, files map[string][]byte, order ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range order {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(files[name])
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func writeFile(t *testing.T, p string, data []byte) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, data, 0o644))
	return p
}

type visit struct {
	entry string
	body  string
	err   bool
}

func walkAll(t *testing.T, src Source) []visit {
	t.Helper()
	var out []visit
	err := src.Walk(func(entry string, r io.Reader, err error) error {
		v := visit{entry: entry, err: err != nil}
		if r != nil {
			b, rerr := io.ReadAll(r)
			require.NoError(t, rerr)
			v.body = string(b)
		}
		out = append(out, v)
		return nil
	})
	require.NoError(t, err)
	return out
}

func TestOpen_Zip(t *testing.T) {
	t.Parallel()

	t.Run("Should walk direct and nested entries in order", func(t *testing.T) {
		t.Parallel()
		inner := zipBytes(t, map[string][]byte{"ipa010315.xml": []byte("<a/>")}, "ipa010315.xml")
		dtds := zipBytes(t, map[string][]byte{"x.dtd": []byte("dtd")}, "x.dtd")
		outer := zipBytes(t, map[string][]byte{
			"README.txt":        []byte("readme"),
			"ipa010315.ZIP":     inner,
			"DTDS.ZIP":          dtds,
			"doc/ipg020101.xml": []byte("<b/>"),
		}, "README.txt", "ipa010315.ZIP", "DTDS.ZIP", "doc/ipg020101.xml")
		p := writeFile(t, filepath.Join(t.TempDir(), "set.zip"), outer)

		src, err := Open(p)
		require.NoError(t, err)
		defer src.Close()
		assert.Equal(t, []visit{
			{entry: "README.txt", body: "readme"},
			{entry: "ipa010315.xml", body: "<a/>"},
			{entry: "doc/ipg020101.xml", body: "<b/>"},
		}, walkAll(t, src))
	})

	t.Run("Should report a corrupt nested zip through the walk function", func(t *testing.T) {
		t.Parallel()
		outer := zipBytes(t, map[string][]byte{
			"bad.zip": []byte("not a zip"),
			"ok.xml":  []byte("<ok/>"),
		}, "bad.zip", "ok.xml")
		p := writeFile(t, filepath.Join(t.TempDir(), "set.zip"), outer)

		src, err := Open(p)
		require.NoError(t, err)
		defer src.Close()
		assert.Equal(t, []visit{
			{entry: "bad.zip", err: true},
			{entry: "ok.xml", body: "<ok/>"},
		}, walkAll(t, src))
	})

	t.Run("Should refuse an unreadable zip as corrupt", func(t *testing.T) {
		t.Parallel()
		p := writeFile(t, filepath.Join(t.TempDir(), "pa030501.zip"), []byte("PK\x03\x04garbage"))
		_, err := Open(p)
		require.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("Should refuse unknown files", func(t *testing.T) {
		t.Parallel()
		p := writeFile(t, filepath.Join(t.TempDir(), "notes.bin"), []byte("hello"))
		_, err := Open(p)
		require.ErrorIs(t, err, ErrUnknownArchive)
	})
}

func TestOpen_Tar(t *testing.T) {
	t.Parallel()

	t.Run("Should stream a gzipped tarball with a nested zip", func(t *testing.T) {
		t.Parallel()
		inner := zipBytes(t, map[string][]byte{"in.xml": []byte("<in/>")}, "in.xml")
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		tw := tar.NewWriter(gz)
		add := func(name string, data []byte) {
			require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(data)), Typeflag: tar.TypeReg}))
			_, err := tw.Write(data)
			require.NoError(t, err)
		}
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: "dir/", Mode: 0o755, Typeflag: tar.TypeDir}))
		add("dir/a.txt", []byte("PATN\n"))
		add("dir/week.zip", inner)
		require.NoError(t, tw.Close())
		require.NoError(t, gz.Close())
		p := writeFile(t, filepath.Join(t.TempDir(), "1976.tgz"), buf.Bytes())

		src, err := Open(p)
		require.NoError(t, err)
		defer src.Close()
		assert.Equal(t, []visit{
			{entry: "dir/a.txt", body: "PATN\n"},
			{entry: "in.xml", body: "<in/>"},
		}, walkAll(t, src))
	})
}

func TestFind(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "2001", "pg010102.zip"), []byte("PK"))
	writeFile(t, filepath.Join(root, "2001", "notes.txt"), []byte("x"))
	writeFile(t, filepath.Join(root, "1985", "pftaps19850101.ZIP"), []byte("PK"))
	writeFile(t, filepath.Join(root, "1985", "download"), []byte("PK\x03\x04"))
	writeFile(t, filepath.Join(root, "other", "set.tar.gz"), []byte{0x1f, 0x8b})

	t.Run("Should find archives by extension and content", func(t *testing.T) {
		t.Parallel()
		got, err := Find(root, FindOptions{})
		require.NoError(t, err)
		assert.Equal(t, []string{
			filepath.Join(root, "1985", "download"),
			filepath.Join(root, "1985", "pftaps19850101.ZIP"),
			filepath.Join(root, "2001", "pg010102.zip"),
			filepath.Join(root, "other", "set.tar.gz"),
		}, got)
	})

	t.Run("Should skip small extensionless files", func(t *testing.T) {
		t.Parallel()
		got, err := Find(root, FindOptions{MinSniffSize: 1 << 20})
		require.NoError(t, err)
		assert.NotContains(t, got, filepath.Join(root, "1985", "download"))
	})

	t.Run("Should filter by year directory suffix", func(t *testing.T) {
		t.Parallel()
		got, err := Find(root, FindOptions{Years: []string{"2001"}})
		require.NoError(t, err)
		assert.Equal(t, []string{filepath.Join(root, "2001", "pg010102.zip")}, got)
	})

	t.Run("Should fail on a missing root", func(t *testing.T) {
		t.Parallel()
		_, err := Find(filepath.Join(root, "missing"), FindOptions{})
		require.Error(t, err)
	})
}

func TestLedger(t *testing.T) {
	t.Parallel()

	t.Run("Should persist marked archives across opens", func(t *testing.T) {
		t.Parallel()
		p := filepath.Join(t.TempDir(), "state", "processed.txt")
		l, err := OpenLedger(p)
		require.NoError(t, err)
		assert.Zero(t, l.Len())
		require.NoError(t, l.Mark("/data/a.zip"))
		require.NoError(t, l.Mark("/data/a.zip"))
		require.NoError(t, l.Mark("/data/b.zip"))

		again, err := OpenLedger(p)
		require.NoError(t, err)
		assert.Equal(t, 2, again.Len())
		assert.True(t, again.Done("/data/a.zip"))
		assert.False(t, again.Done("/data/c.zip"))
	})
}

func TestExclusions(t *testing.T) {
	t.Parallel()

	t.Run("Should match base names ignoring case", func(t *testing.T) {
		t.Parallel()
		e := NewExclusions(DefaultExcluded...)
		assert.True(t, e.Has("/bulk/2003/PA030501.ZIP"))
		assert.False(t, e.Has("/bulk/2003/pa030508.zip"))
	})

	t.Run("Should merge a file with comments", func(t *testing.T) {
		t.Parallel()
		p := writeFile(t, filepath.Join(t.TempDir(), "skip.txt"), []byte("# broken sets\nipg050104.zip  # truncated\n\n"))
		e, err := LoadExclusions(p, "pa030501.zip")
		require.NoError(t, err)
		assert.Equal(t, []string{"ipg050104.zip", "pa030501.zip"}, e.Names())
	})

	t.Run("Should treat a nil set as empty", func(t *testing.T) {
		t.Parallel()
		var e *Exclusions
		assert.False(t, e.Has("x.zip"))
	})
}
