package segment

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"patent-biblio/internal/profile"
)

func builtin(t *testing.T, f profile.Format) *profile.Profile {
	t.Helper()
	reg, err := profile.Builtin()
	require.NoError(t, err)
	p, err := reg.Lookup(f)
	require.NoError(t, err)
	return p
}

func collect(t *testing.T, r io.Reader, p *profile.Profile) []string {
	t.Helper()
	sc := New(r, p)
	var out []string
	for sc.Next() {
		seg := sc.Segment()
		assert.Equal(t, len(out), seg.Index)
		out = append(out, string(seg.Data))
	}
	require.NoError(t, sc.Err())
	return out
}

const sgmlDoctype = `<!DOCTYPE PATDOC PUBLIC "-//USPTO//DTD ST.32 US PATENT GRANT V2.4 2000-09-20//EN" [` + "\n"

func TestSegmenter_SGML(t *testing.T) {
	t.Parallel()
	p := builtin(t, profile.SGML)

	t.Run("Should split on each doctype marker", func(t *testing.T) {
		t.Parallel()
		in := sgmlDoctype +
			"<!ENTITY US06167569-20010102-00001 SYSTEM \"x.TIF\" NDATA TIF>\n" +
			"]>\n" +
			"<PATDOC DTD=\"2.4\">\n" +
			"<B110><DNUM><PDAT>1</PDAT></DNUM></B110>\n" +
			"</PATDOC>\n" +
			sgmlDoctype +
			"]>\n" +
			"<PATDOC>\n" +
			"<B110><DNUM><PDAT>2</PDAT></DNUM></B110>\n" +
			"</PATDOC>\n"
		segs := collect(t, strings.NewReader(in), p)
		require.Len(t, segs, 2)
		assert.True(t, strings.HasPrefix(segs[0], "<!DOCTYPE PATDOC"))
		assert.Contains(t, segs[0], "<PDAT>1</PDAT>")
		assert.Contains(t, segs[0], "NDATA TIF>")
		assert.Contains(t, segs[1], "<PATDOC>")
		assert.Contains(t, segs[1], "<PDAT>2</PDAT>")
	})

	t.Run("Should strip artifacts from every line, prologue included", func(t *testing.T) {
		t.Parallel()
		in := sgmlDoctype +
			"<!-- <B597US>in prologue -->\n" +
			"<PATDOC><CITED-BY-EXAMINER>\n" +
			"<B561><CITED-BY-EXAMINER><PCIT></PCIT></B561><B597US>\n" +
			"</PATDOC>\n"
		segs := collect(t, strings.NewReader(in), p)
		require.Len(t, segs, 1)
		assert.True(t, strings.HasPrefix(segs[0], "<!DOCTYPE PATDOC"))
		assert.Contains(t, segs[0], "<!-- in prologue -->\n<PATDOC>\n")
		assert.Contains(t, segs[0], "<B561><PCIT></PCIT></B561>\n")
		assert.NotContains(t, segs[0], "CITED-BY-EXAMINER")
		assert.NotContains(t, segs[0], "B597US")
	})

	t.Run("Should transcode Latin-1 to UTF-8", func(t *testing.T) {
		t.Parallel()
		in := sgmlDoctype + "<PATDOC>\n<NAM>M\xfcller</NAM>\n</PATDOC>\n"
		segs := collect(t, strings.NewReader(in), p)
		require.Len(t, segs, 1)
		assert.Contains(t, segs[0], "Müller")
	})
}

func TestSegmenter_APS(t *testing.T) {
	t.Parallel()
	p := builtin(t, profile.APS)

	t.Run("Should drop the preamble and split on PATN lines", func(t *testing.T) {
		t.Parallel()
		in := "HHHHHT APS1 ISSUE 850101\n" +
			"PATN\nWKU  045902001\nAPN  1\n" +
			"PATN\nAPN  2\n"
		segs := collect(t, strings.NewReader(in), p)
		require.Len(t, segs, 2)
		assert.Equal(t, "PATN\nWKU  045902001\nAPN  1\n", segs[0])
		assert.Equal(t, "PATN\nAPN  2\n", segs[1])
	})

	t.Run("Should accept PATN with trailing whitespace", func(t *testing.T) {
		t.Parallel()
		segs := collect(t, strings.NewReader("PATN \r\nAPN  1\r\nPATN\r\nAPN  2"), p)
		require.Len(t, segs, 2)
		assert.Equal(t, "PATN\r\nAPN  2", segs[1])
	})

	t.Run("Should yield one empty segment for an empty stream", func(t *testing.T) {
		t.Parallel()
		segs := collect(t, strings.NewReader(""), p)
		require.Len(t, segs, 1)
		assert.Empty(t, segs[0])
	})
}

func TestSegmenter_XML(t *testing.T) {
	t.Parallel()
	p := builtin(t, profile.XMLGrant)

	t.Run("Should move the tail of a declaration line to the previous document", func(t *testing.T) {
		t.Parallel()
		in := `<?xml version="1.0" encoding="UTF-8"?>` + "\n" +
			"<PATDOC><B110>1</B110>\n" +
			`</PATDOC><?xml version="1.0" encoding="UTF-8"?>` + "\n" +
			"<PATDOC><B110>2</B110></PATDOC>\n"
		segs := collect(t, strings.NewReader(in), p)
		require.Len(t, segs, 2)
		assert.Equal(t, `<?xml version="1.0" encoding="UTF-8"?>`+"\n<PATDOC><B110>1</B110>\n</PATDOC>\n", segs[0])
		assert.Equal(t, `<?xml version="1.0" encoding="UTF-8"?>`+"\n<PATDOC><B110>2</B110></PATDOC>\n", segs[1])
	})

	t.Run("Should recognize the declaration without encoding", func(t *testing.T) {
		t.Parallel()
		in := `<?xml version="1.0"?>` + "\n<a/>\n" + `<?xml version="1.0"?>` + "\n<b/>\n"
		segs := collect(t, strings.NewReader(in), p)
		require.Len(t, segs, 2)
		assert.Contains(t, segs[1], "<b/>")
	})

	t.Run("Should yield each segment unchanged when it is segmented again", func(t *testing.T) {
		t.Parallel()
		in := `<?xml version="1.0" encoding="UTF-8"?>` + "\n" +
			"<PATDOC><B110>1</B110>\n" +
			`</PATDOC><?xml version="1.0" encoding="UTF-8"?>` + "\n" +
			"<PATDOC>\n<B110>2</B110>\n</PATDOC>\n" +
			`<?xml version="1.0"?>` + "\n" +
			"<PATDOC><B110>3</B110></PATDOC>"
		segs := collect(t, strings.NewReader(in), p)
		require.Len(t, segs, 3)
		for i, seg := range segs {
			again := collect(t, strings.NewReader(seg), p)
			require.Len(t, again, 1, "segment %d", i)
			assert.Equal(t, seg, again[0], "segment %d", i)
			assert.Equal(t, 1, strings.Count(again[0], "<?xml"), "segment %d", i)
		}
	})

	t.Run("Should produce N segments for N documents", func(t *testing.T) {
		t.Parallel()
		var b strings.Builder
		for range 25 {
			b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n<doc/>\n")
		}
		segs := collect(t, strings.NewReader(b.String()), p)
		assert.Len(t, segs, 25)
	})
}

type failingReader struct{ n int }

func (f *failingReader) Read(b []byte) (int, error) {
	if f.n == 0 {
		f.n++
		return copy(b, "PATN\nAPN  1\n"), nil
	}
	return 0, errors.New("disk gone")
}

func TestSegmenter_ReadError(t *testing.T) {
	t.Parallel()

	t.Run("Should surface read errors through Err", func(t *testing.T) {
		t.Parallel()
		sc := New(&failingReader{}, builtin(t, profile.APS))
		for sc.Next() {
		}
		require.Error(t, sc.Err())
		assert.Contains(t, sc.Err().Error(), "disk gone")
	})
}

func TestSegment_Blank(t *testing.T) {
	t.Parallel()
	assert.True(t, Segment{Data: []byte(" \n\t")}.Blank())
	assert.False(t, Segment{Data: []byte("PATN")}.Blank())
}
