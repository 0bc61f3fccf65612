// Package unpack extracts verified package archives into per-package
// source directories, idempotently: a completion marker written after a
// successful extraction makes every later unpack of the same package a
// no-op.
package unpack

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/lodepkg/lode/internal/core"
)

// Marker is the file written inside an unpacked tree once extraction has
// fully succeeded. A failed extraction writes no marker, so a retry starts
// over from the archive.
const Marker = ".lode-ok"

// Unpacker extracts gzip-compressed tar archives under a source root, one
// directory per package version.
type Unpacker struct {
	srcDir string
}

// NewUnpacker creates an unpacker rooted at srcDir.
func NewUnpacker(srcDir string) *Unpacker {
	return &Unpacker{srcDir: srcDir}
}

// Dir returns the destination directory for one package: the archive is
// expected to contain exactly one top-level directory named
// <name>-<version>.
func (u *Unpacker) Dir(id core.PackageID) string {
	return filepath.Join(u.srcDir, id.Name+"-"+id.Version)
}

// Unpack extracts the archive into the source root and returns the
// package's directory. Repeated calls are cheap: once the completion
// marker exists the archive is not touched again. Extraction overwrites
// whatever a previous failed attempt left behind.
func (u *Unpacker) Unpack(id core.PackageID, archive string) (string, error) {
	dst := u.Dir(id)
	if _, err := os.Stat(filepath.Join(dst, Marker)); err == nil {
		return dst, nil
	}

	if err := os.MkdirAll(u.srcDir, 0755); err != nil {
		return "", fmt.Errorf("unpacking %s: %w", id, err)
	}
	if err := u.extract(archive); err != nil {
		return "", fmt.Errorf("unpacking %s: %w", id, err)
	}

	if err := os.MkdirAll(dst, 0755); err != nil {
		return "", fmt.Errorf("unpacking %s: %w", id, err)
	}
	marker, err := os.Create(filepath.Join(dst, Marker))
	if err != nil {
		return "", fmt.Errorf("unpacking %s: %w", id, err)
	}
	marker.Close()
	return dst, nil
}

// extract decompresses and unpacks the archive's full contents into the
// source root.
func (u *Unpacker) extract(archive string) error {
	f, err := os.Open(archive)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("decompressing archive: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading archive: %w", err)
		}

		target, err := u.entryPath(header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fs.FileMode(header.Mode))
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			out.Close()
		}
	}
	return nil
}

// entryPath maps an archive entry name to a path under the source root,
// rejecting entries that would escape it.
func (u *Unpacker) entryPath(name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("archive entry %q escapes the source directory", name)
	}
	return filepath.Join(u.srcDir, clean), nil
}
