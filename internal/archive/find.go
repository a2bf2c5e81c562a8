// Package archive locates bulk-data archives on disk and streams the
// container entries inside them.
package archive

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// sniffZip returns true if the file starts with a ZIP signature.
func sniffZip(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	buf := make([]byte, 4)
	if _, err := io.ReadFull(f, buf); err != nil {
		return false
	}
	// PK\x03\x04, or PK\x05\x06 for an empty archive
	return buf[0] == 'P' && buf[1] == 'K'
}

// sniffTar returns true if the file carries the ustar magic, or is gzip
// compressed (a tarball is the only gzip payload found in the bulk sets).
func sniffTar(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	head := make([]byte, 262)
	n, _ := io.ReadFull(f, head)
	head = head[:n]
	if bytes.HasPrefix(head, gzipMagic) {
		return true
	}
	// TAR header is 512 bytes; magic at offset 257 of length 5 = "ustar"
	return n >= 262 && string(head[257:262]) == "ustar"
}

var gzipMagic = []byte{0x1f, 0x8b}

func hasArchiveExt(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range []string{".zip", ".tar", ".tgz", ".tar.gz"} {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func isCandidateArchive(path string, d fs.DirEntry, minSize int64) bool {
	if d.IsDir() {
		return false
	}
	name := d.Name()
	if hasArchiveExt(name) {
		return true
	}
	// Extensionless downloads are kept if they are big enough and sniff as
	// an archive.
	if filepath.Ext(name) == "" {
		if info, err := d.Info(); err == nil && info.Size() >= minSize {
			return sniffZip(path) || sniffTar(path)
		}
	}
	return false
}

// FindOptions narrows archive discovery.
type FindOptions struct {
	// Years keeps only archives whose parent directory name ends with one of
	// the listed values. Empty means every year.
	Years []string
	// MinSniffSize is the smallest extensionless file worth sniffing.
	MinSniffSize int64
}

// Find walks root and returns candidate archives sorted by path.
func Find(root string, opts FindOptions) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("archive root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("archive root %s is not a directory", root)
	}

	var archives []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// unreadable subtrees are skipped, not fatal
			if d != nil && d.IsDir() && path != root {
				return fs.SkipDir
			}
			return nil
		}
		if !isCandidateArchive(path, d, opts.MinSniffSize) {
			return nil
		}
		if !matchesYear(filepath.Base(filepath.Dir(path)), opts.Years) {
			return nil
		}
		archives = append(archives, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	sort.Strings(archives)
	return archives, nil
}

func matchesYear(dir string, years []string) bool {
	if len(years) == 0 {
		return true
	}
	for _, y := range years {
		if y != "" && strings.HasSuffix(dir, y) {
			return true
		}
	}
	return false
}
