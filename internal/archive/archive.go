// Package archive packs a directory tree into a deflate-compressed zip and
// handles the base64 encoding used at the transport boundary.
package archive

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/spf13/afero"
)

// Builder reads and writes archives through a filesystem abstraction.
type Builder struct {
	fs afero.Fs
}

// NewBuilder creates a Builder over fs.
func NewBuilder(fs afero.Fs) *Builder {
	return &Builder{fs: fs}
}

// NewOSBuilder creates a Builder over the host filesystem.
func NewOSBuilder() *Builder {
	return NewBuilder(afero.NewOsFs())
}

// Build zips every regular file under root. Entry names are relative to root
// with forward slashes, written in walk order.
func (b *Builder) Build(root string) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	err := afero.Walk(b.fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return fmt.Errorf("failed to create header for %s: %w", rel, err)
		}
		header.Name = filepath.ToSlash(rel)
		header.Method = zip.Deflate

		w, err := zw.CreateHeader(header)
		if err != nil {
			return fmt.Errorf("failed to add %s: %w", rel, err)
		}

		f, err := b.fs.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		if _, err := io.Copy(w, f); err != nil {
			return fmt.Errorf("failed to write %s: %w", rel, err)
		}
		return nil
	})
	if err != nil {
		zw.Close()
		return nil, fmt.Errorf("archive: failed to walk %s: %w", root, err)
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("archive: failed to finalize zip: %w", err)
	}

	return buf.Bytes(), nil
}

// Extract unpacks a zip produced by Build into dst and returns the entry
// names in archive order. Entries resolving outside dst are rejected.
func (b *Builder) Extract(data []byte, dst string) ([]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("archive: invalid zip: %w", err)
	}

	cleanDst := filepath.Clean(dst)
	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		target := filepath.Join(cleanDst, filepath.FromSlash(f.Name))
		if target != cleanDst && !strings.HasPrefix(target, cleanDst+string(filepath.Separator)) {
			return nil, fmt.Errorf("%w: %s", ErrUnsafePath, f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := b.fs.MkdirAll(target, 0o755); err != nil {
				return nil, err
			}
			continue
		}

		if err := b.extractFile(f, target); err != nil {
			return nil, fmt.Errorf("archive: failed to extract %s: %w", f.Name, err)
		}
		names = append(names, f.Name)
	}

	return names, nil
}

func (b *Builder) extractFile(f *zip.File, target string) error {
	if err := b.fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	mode := f.Mode().Perm()
	if mode == 0 {
		mode = 0o644
	}
	out, err := b.fs.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Encode returns the standard base64 form of data.
func Encode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// Decode reverses Encode.
func Decode(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEncoding, err)
	}
	return data, nil
}
