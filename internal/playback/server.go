// Package playback serves rendered GIFs and the bundle archive over HTTP
// with byte range support.
package playback

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gifscribe/gifscribe-agent/internal/logging"
)

var ErrBadName = errors.New("invalid artifact name")

// Types that are missing from mime's builtin table on minimal systems.
var contentTypes = map[string]string{
	".gif": "image/gif",
	".zip": "application/zip",
}

// Server serves files from a single root directory. Names are plain file
// names; anything that could escape the root is rejected.
type Server struct {
	root   string
	logger *slog.Logger
}

func NewServer(root string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Server{root: root, logger: logging.WithComponent(logger, "playback")}
}

func (s *Server) Root() string {
	return s.root
}

// ServeArtifact serves name from the root directory.
func (s *Server) ServeArtifact(w http.ResponseWriter, r *http.Request, name string) error {
	path, err := s.resolve(name)
	if err != nil {
		http.Error(w, "file not found", http.StatusNotFound)
		return nil
	}
	return s.ServeFile(w, r, path)
}

// ServeAttachment serves an arbitrary file as a download named filename.
func (s *Server) ServeAttachment(w http.ResponseWriter, r *http.Request, path, filename string) error {
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	return s.ServeFile(w, r, path)
}

func (s *Server) ServeFile(w http.ResponseWriter, r *http.Request, filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "file not found", http.StatusNotFound)
			return nil
		}
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	if stat.IsDir() {
		http.Error(w, "file not found", http.StatusNotFound)
		return nil
	}

	size := stat.Size()
	ext := strings.ToLower(filepath.Ext(filePath))
	contentType, ok := contentTypes[ext]
	if !ok {
		contentType = mime.TypeByExtension(ext)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	h := w.Header()
	h.Set("Accept-Ranges", "bytes")
	h.Set("Content-Type", contentType)
	// Renders overwrite the same names, so clients must revalidate.
	h.Set("Cache-Control", "no-cache")
	h.Set("Last-Modified", stat.ModTime().UTC().Format(http.TimeFormat))

	rng, err := ParseRange(r.Header.Get("Range"), size)
	switch {
	case errors.Is(err, ErrUnsatisfiable):
		h.Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		http.Error(w, "Range Not Satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return nil
	case errors.Is(err, ErrInvalidRange):
		// Malformed ranges are ignored and the full body is sent.
		rng = nil
	case err != nil:
		return err
	}

	if rng == nil {
		h.Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			if _, err := io.Copy(w, file); err != nil {
				s.logger.Debug("copy interrupted", "path", logging.SanitizePath(filePath), "error", err)
			}
		}
		return nil
	}

	h.Set("Content-Length", strconv.FormatInt(rng.ContentLength(), 10))
	h.Set("Content-Range", rng.ContentRange(size))
	w.WriteHeader(http.StatusPartialContent)
	if r.Method == http.MethodHead {
		return nil
	}

	if _, err := file.Seek(rng.Start, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek: %w", err)
	}
	if _, err := io.CopyN(w, file, rng.ContentLength()); err != nil {
		s.logger.Debug("copy interrupted", "path", logging.SanitizePath(filePath), "error", err)
	}
	return nil
}

func (s *Server) resolve(name string) (string, error) {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return "", ErrBadName
	}
	return filepath.Join(s.root, name), nil
}
