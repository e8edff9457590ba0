package apihttp

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// handleVideo serves /video?file=<abs path> with single-range support.
func (s *Server) handleVideo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	path, ok := fileParam(w, r)
	if !ok {
		return
	}

	f, size, ok := s.openRegular(w, path)
	if !ok {
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Accept-Ranges", "bytes")

	rangeHeader := r.Header.Get("Range")
	if rangeHeader == "" {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodHead {
			return
		}
		if _, err := io.Copy(w, f); err != nil {
			s.logger.Debug("stream copy interrupted",
				slog.String("filePath", path),
				slog.String("error", err.Error()),
			)
		}
		return
	}

	start, end, err := parseByteRange(rangeHeader, size)
	if errors.Is(err, errInvalidRange) {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid range")
		return
	}
	if errors.Is(err, errRangeNotSatisfiable) {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	length := end - start + 1
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusPartialContent)
		return
	}
	if _, err := f.Seek(start, io.SeekStart); err != nil {
		w.Header().Del("Content-Range")
		w.Header().Del("Content-Length")
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to seek file")
		return
	}
	w.WriteHeader(http.StatusPartialContent)
	if _, err := io.CopyN(w, f, length); err != nil {
		s.logger.Debug("stream range copy interrupted",
			slog.String("filePath", path),
			slog.Int64("start", start),
			slog.Int64("end", end),
			slog.String("error", err.Error()),
		)
	}
}

// handleVTT serves the ".vtt" file next to the given media file.
func (s *Server) handleVTT(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	path, ok := fileParam(w, r)
	if !ok {
		return
	}
	vttPath := subtitleSibling(path)

	f, size, ok := s.openRegular(w, vttPath)
	if !ok {
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "text/vtt; charset=utf-8")
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, f); err != nil {
		s.logger.Debug("subtitle copy interrupted",
			slog.String("filePath", vttPath),
			slog.String("error", err.Error()),
		)
	}
}

func fileParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	path := strings.TrimSpace(r.URL.Query().Get("file"))
	if path == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing file parameter")
		return "", false
	}
	return path, true
}

// openRegular opens path for reading and writes the error response itself
// when it cannot be served.
func (s *Server) openRegular(w http.ResponseWriter, path string) (afero.File, int64, bool) {
	f, err := s.fs.Open(path)
	if err != nil {
		s.writeFileError(w, path, err)
		return nil, 0, false
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		s.writeFileError(w, path, err)
		return nil, 0, false
	}
	if info.IsDir() {
		f.Close()
		s.logger.Warn("requested path is a directory", slog.String("filePath", path))
		writeError(w, http.StatusNotFound, "not_found", "file not found")
		return nil, 0, false
	}
	return f, info.Size(), true
}

func (s *Server) writeFileError(w http.ResponseWriter, path string, err error) {
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("requested file not found", slog.String("filePath", path))
		writeError(w, http.StatusNotFound, "not_found", "file not found")
		return
	}
	s.logger.Error("file open failed",
		slog.String("filePath", path),
		slog.String("error", err.Error()),
	)
	writeError(w, http.StatusInternalServerError, "internal_error", "failed to open file")
}
