// Package bundle packs the current GIF artifacts into a single zip archive
// and manages the artifact directory between renders.
package bundle

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"
)

// Result describes a freshly written archive.
type Result struct {
	Path  string   `json:"path"`
	Files []string `json:"files"`
	Bytes int64    `json:"bytes"`
}

// Build walks outputDir recursively and writes every regular file into a
// deflate-compressed zip at archivePath. Entry names are relative to the
// parent of outputDir, so output_gif_0.gif in .../gifs is stored as
// gifs/output_gif_0.gif. Any previous archive is replaced.
func Build(ctx context.Context, outputDir, archivePath string) (*Result, error) {
	if err := ValidateOutputDir(outputDir); err != nil {
		return nil, err
	}
	root := filepath.Dir(filepath.Clean(outputDir))
	absArchive, _ := filepath.Abs(archivePath)

	if err := os.MkdirAll(filepath.Dir(archivePath), 0755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(archivePath), ".bundle-*.zip")
	if err != nil {
		return nil, fmt.Errorf("create archive: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	absTmp, _ := filepath.Abs(tmpPath)

	zw := zip.NewWriter(tmp)
	var files []string

	walkErr := filepath.WalkDir(outputDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		// The archive may live inside outputDir.
		if abs, _ := filepath.Abs(path); abs == absArchive || abs == absTmp {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if err := addFile(zw, path, name, d); err != nil {
			return fmt.Errorf("add %s: %w", name, err)
		}
		files = append(files, name)
		return nil
	})
	if walkErr != nil {
		zw.Close()
		tmp.Close()
		return nil, walkErr
	}

	if err := zw.Close(); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("finalize archive: %w", err)
	}
	size, _ := tmp.Seek(0, io.SeekCurrent)
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}
	if err := os.Rename(tmpPath, archivePath); err != nil {
		return nil, fmt.Errorf("replace archive: %w", err)
	}

	return &Result{Path: archivePath, Files: files, Bytes: size}, nil
}

func addFile(zw *zip.Writer, path, name string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

// Manifest lists the entry names of an archive in stored order.
func Manifest(archivePath string) ([]string, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	return names, nil
}

// ClearDir removes everything inside dir, leaving dir itself in place. A
// missing dir is created.
func ClearDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

// ListArtifacts returns the names of the files directly inside dir in
// natural order, so output_gif_2.gif precedes output_gif_10.gif.
func ListArtifacts(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	sort.SliceStable(names, func(i, j int) bool {
		return naturalLess(names[i], names[j])
	})
	return names, nil
}

// naturalLess compares a and b with digit runs ordered by numeric value.
func naturalLess(a, b string) bool {
	for a != "" && b != "" {
		da, db := isDigit(a[0]), isDigit(b[0])
		switch {
		case da && db:
			na, restA := splitDigits(a)
			nb, restB := splitDigits(b)
			if c := compareNumeric(na, nb); c != 0 {
				return c < 0
			}
			a, b = restA, restB
		case a[0] != b[0]:
			return a[0] < b[0]
		default:
			a, b = a[1:], b[1:]
		}
	}
	return len(a) < len(b)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func splitDigits(s string) (digits, rest string) {
	i := 0
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	return s[:i], s[i:]
}

func compareNumeric(a, b string) int {
	ta, tb := strings.TrimLeft(a, "0"), strings.TrimLeft(b, "0")
	if len(ta) != len(tb) {
		if len(ta) < len(tb) {
			return -1
		}
		return 1
	}
	if c := strings.Compare(ta, tb); c != 0 {
		return c
	}
	return len(a) - len(b)
}

// ValidateOutputDir checks that dir is a clean, existing directory path
// without traversal components.
func ValidateOutputDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return fmt.Errorf("output dir is required")
	}
	for _, part := range strings.Split(filepath.ToSlash(dir), "/") {
		if part == ".." {
			return fmt.Errorf("output dir cannot contain path traversal")
		}
	}
	if filepath.Clean(dir) != dir {
		return fmt.Errorf("output dir must be a clean path")
	}

	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("output dir does not exist")
		}
		return fmt.Errorf("invalid output dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("output dir is not a directory")
	}
	return nil
}
