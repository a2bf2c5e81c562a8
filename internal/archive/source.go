package archive

import (
	"archive/tar"
	"archive/zip"
	"bufio"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
)

var (
	// ErrCorrupt marks an archive whose directory or stream header cannot be
	// read at all. Such archives are skipped, never fatal to a run.
	ErrCorrupt = errors.New("corrupt archive")
	// ErrUnknownArchive marks a file that is neither ZIP nor TAR.
	ErrUnknownArchive = errors.New("unknown archive type")
)

// WalkFunc receives every entry of an archive in stored order. If the entry
// could not be opened, r is nil and err says why; returning nil continues
// with the next entry. Any error returned stops the walk.
type WalkFunc func(entry string, r io.Reader, err error) error

// Source is an opened archive.
type Source interface {
	Walk(fn WalkFunc) error
	Close() error
}

// Open detects the archive type by extension or content and opens it.
func Open(p string) (Source, error) {
	lower := strings.ToLower(p)
	switch {
	case strings.HasSuffix(lower, ".zip") || sniffZip(p):
		r, err := zip.OpenReader(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path.Base(p), err)
		}
		return &zipSource{rc: r, r: &r.Reader}, nil
	case strings.Contains(lower, ".tar") || strings.HasSuffix(lower, ".tgz") || sniffTar(p):
		return openTar(p)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownArchive, path.Base(p))
}

// skipNested reports whether a nested archive only carries DTDs or entity
// files.
func skipNested(name string) bool {
	return strings.Contains(name, "DTDS") || strings.Contains(name, "ENTITIES")
}

func isZipName(name string) bool {
	return strings.HasSuffix(strings.ToUpper(name), ".ZIP")
}

type zipSource struct {
	rc *zip.ReadCloser
	r  *zip.Reader
}

func (s *zipSource) Close() error { return s.rc.Close() }

func (s *zipSource) Walk(fn WalkFunc) error {
	return walkZip(s.r, fn)
}

// walkZip visits the entries of a ZIP, descending into nested ZIPs held in
// memory (the 2001-2010 bulk sets wrap each weekly file this way).
func walkZip(zr *zip.Reader, fn WalkFunc) error {
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if isZipName(f.Name) {
			if skipNested(f.Name) {
				continue
			}
			if err := walkNested(f.Name, f.Open, fn); err != nil {
				return err
			}
			continue
		}
		if err := visitZipFile(f, fn); err != nil {
			return err
		}
	}
	return nil
}

func visitZipFile(f *zip.File, fn WalkFunc) error {
	rc, err := f.Open()
	if err != nil {
		return fn(f.Name, nil, err)
	}
	defer rc.Close()
	return fn(f.Name, rc, nil)
}

func walkNested(name string, open func() (io.ReadCloser, error), fn WalkFunc) error {
	rc, err := open()
	if err != nil {
		return fn(name, nil, err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return fn(name, nil, fmt.Errorf("read nested zip: %w", err))
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fn(name, nil, fmt.Errorf("%w: nested %s: %v", ErrCorrupt, name, err))
	}
	return walkZip(zr, fn)
}

type tarSource struct {
	f  *os.File
	gz *gzip.Reader
	tr *tar.Reader
}

func openTar(p string) (*tarSource, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	br := bufio.NewReader(f)
	s := &tarSource{f: f}
	var r io.Reader = br
	if magic, _ := br.Peek(2); bytes.Equal(magic, gzipMagic) {
		gz, err := gzip.NewReader(br)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path.Base(p), err)
		}
		s.gz = gz
		r = gz
	}
	s.tr = tar.NewReader(r)
	return s, nil
}

func (s *tarSource) Close() error {
	if s.gz != nil {
		s.gz.Close()
	}
	return s.f.Close()
}

func (s *tarSource) Walk(fn WalkFunc) error {
	first := true
	for {
		header, err := s.tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if first {
				return fmt.Errorf("%w: %v", ErrCorrupt, err)
			}
			return fmt.Errorf("tar stream: %w", err)
		}
		first = false
		if !header.FileInfo().Mode().IsRegular() {
			continue
		}
		if isZipName(header.Name) {
			if skipNested(header.Name) {
				continue
			}
			open := func() (io.ReadCloser, error) { return io.NopCloser(s.tr), nil }
			if err := walkNested(header.Name, open, fn); err != nil {
				return err
			}
			continue
		}
		if err := fn(header.Name, s.tr, nil); err != nil {
			return err
		}
	}
}
