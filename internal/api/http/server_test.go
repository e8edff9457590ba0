package apihttp

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/spf13/afero"
)

const videoPath = "/media/Show/episode.mp4"

func newTestServer(t *testing.T, size int) (*Server, []byte) {
	t.Helper()
	fs := afero.NewMemMapFs()
	content := make([]byte, size)
	for i := range content {
		content[i] = byte(i % 251)
	}
	if err := afero.WriteFile(fs, videoPath, content, 0o644); err != nil {
		t.Fatalf("seed video: %v", err)
	}
	if err := afero.WriteFile(fs, "/media/Show/episode.vtt", []byte("WEBVTT\n\n"), 0o644); err != nil {
		t.Fatalf("seed vtt: %v", err)
	}
	return NewServer(WithFs(fs), WithRateLimit(0, 0)), content
}

func videoURL(path string) string {
	return "/video?file=" + url.QueryEscape(path)
}

func TestVideoWithoutRangeServesWholeFile(t *testing.T) {
	server, content := newTestServer(t, 1000)

	req := httptest.NewRequest(http.MethodGet, videoURL(videoPath), nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Length"); got != "1000" {
		t.Fatalf("Content-Length = %q, want 1000", got)
	}
	if got := rec.Header().Get("Content-Type"); got != "video/mp4" {
		t.Fatalf("Content-Type = %q, want video/mp4", got)
	}
	if got := rec.Header().Get("Accept-Ranges"); got != "bytes" {
		t.Fatalf("Accept-Ranges = %q, want bytes", got)
	}
	if rec.Body.Len() != len(content) {
		t.Fatalf("body len = %d, want %d", rec.Body.Len(), len(content))
	}
}

func TestVideoRangeRequests(t *testing.T) {
	server, content := newTestServer(t, 1000)

	tests := []struct {
		name         string
		rangeHeader  string
		status       int
		contentRange string
		start, end   int
	}{
		{"First100", "bytes=0-99", http.StatusPartialContent, "bytes 0-99/1000", 0, 99},
		{"OpenEnded", "bytes=900-", http.StatusPartialContent, "bytes 900-999/1000", 900, 999},
		{"Suffix", "bytes=-10", http.StatusPartialContent, "bytes 990-999/1000", 990, 999},
		{"EndClamped", "bytes=950-5000", http.StatusPartialContent, "bytes 950-999/1000", 950, 999},
		{"StartBeyondEOF", "bytes=1000-", http.StatusRequestedRangeNotSatisfiable, "bytes */1000", 0, -1},
		{"MultiRange", "bytes=0-1,5-6", http.StatusBadRequest, "", 0, -1},
		{"Garbage", "items=0-1", http.StatusBadRequest, "", 0, -1},
		{"Reversed", "bytes=10-5", http.StatusBadRequest, "", 0, -1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, videoURL(videoPath), nil)
			req.Header.Set("Range", tc.rangeHeader)
			rec := httptest.NewRecorder()
			server.ServeHTTP(rec, req)

			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
			if got := rec.Header().Get("Content-Range"); got != tc.contentRange {
				t.Fatalf("Content-Range = %q, want %q", got, tc.contentRange)
			}
			if tc.status != http.StatusPartialContent {
				return
			}
			want := content[tc.start : tc.end+1]
			if got := rec.Header().Get("Content-Length"); got != strconv.Itoa(len(want)) {
				t.Fatalf("Content-Length = %q, want %d", got, len(want))
			}
			if string(rec.Body.Bytes()) != string(want) {
				t.Fatalf("body does not match requested window")
			}
		})
	}
}

func TestVideoMatroskaIsLabelledMP4(t *testing.T) {
	fs := afero.NewMemMapFs()
	path := "/dl/[SubsPlease] Show - 01 (1080p).mkv"
	if err := afero.WriteFile(fs, path, make([]byte, 500), 0o644); err != nil {
		t.Fatalf("seed video: %v", err)
	}
	server := NewServer(WithFs(fs), WithRateLimit(0, 0))

	for _, rangeHeader := range []string{"", "bytes=0-99"} {
		req := httptest.NewRequest(http.MethodGet, videoURL(path), nil)
		if rangeHeader != "" {
			req.Header.Set("Range", rangeHeader)
		}
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK && rec.Code != http.StatusPartialContent {
			t.Fatalf("range %q: status = %d", rangeHeader, rec.Code)
		}
		if got := rec.Header().Get("Content-Type"); got != "video/mp4" {
			t.Fatalf("range %q: Content-Type = %q, want video/mp4", rangeHeader, got)
		}
	}
}

func TestVideoHeadReturnsHeadersOnly(t *testing.T) {
	server, _ := newTestServer(t, 500)

	req := httptest.NewRequest(http.MethodHead, videoURL(videoPath), nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Length"); got != "500" {
		t.Fatalf("Content-Length = %q, want 500", got)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("HEAD body len = %d, want 0", rec.Body.Len())
	}
}

func TestVideoErrors(t *testing.T) {
	server, _ := newTestServer(t, 10)

	tests := []struct {
		name   string
		target string
		method string
		status int
		code   string
	}{
		{"MissingParam", "/video", http.MethodGet, http.StatusBadRequest, "invalid_request"},
		{"MissingFile", videoURL("/media/none.mp4"), http.MethodGet, http.StatusNotFound, "not_found"},
		{"Directory", videoURL("/media/Show"), http.MethodGet, http.StatusNotFound, "not_found"},
		{"WrongMethod", videoURL(videoPath), http.MethodPost, http.StatusMethodNotAllowed, "method_not_allowed"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.target, nil)
			rec := httptest.NewRecorder()
			server.ServeHTTP(rec, req)

			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
			var env errorEnvelope
			if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if env.Error.Code != tc.code {
				t.Fatalf("error code = %q, want %q", env.Error.Code, tc.code)
			}
		})
	}
}

type failingFs struct {
	afero.Fs
}

func (failingFs) Open(name string) (afero.File, error) {
	return nil, &os.PathError{Op: "open", Path: name, Err: errors.New("input/output error")}
}

func TestVideoIOErrorIs500(t *testing.T) {
	server := NewServer(WithFs(failingFs{afero.NewMemMapFs()}), WithRateLimit(0, 0))

	req := httptest.NewRequest(http.MethodGet, videoURL(videoPath), nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestVTTServesSiblingFile(t *testing.T) {
	server, _ := newTestServer(t, 10)

	req := httptest.NewRequest(http.MethodGet, "/vtt?file="+url.QueryEscape(videoPath), nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/vtt") {
		t.Fatalf("Content-Type = %q, want text/vtt", got)
	}
	if rec.Body.String() != "WEBVTT\n\n" {
		t.Fatalf("body = %q", rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/vtt?file="+url.QueryEscape("/media/Other/movie.mkv"), nil)
	rec = httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing subtitle status = %d, want 404", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	server, _ := newTestServer(t, 1)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("body = %s", rec.Body.String())
	}
	if rec.Header().Get(requestIDHeader) == "" {
		t.Fatalf("missing request id header")
	}
}

func TestRateLimitRejectsBurst(t *testing.T) {
	fs := afero.NewMemMapFs()
	_ = afero.WriteFile(fs, videoPath, []byte("x"), 0o644)
	server := NewServer(WithFs(fs), WithRateLimit(1, 1))

	statuses := map[int]int{}
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, videoURL(videoPath), nil)
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, req)
		statuses[rec.Code]++
	}
	if statuses[http.StatusTooManyRequests] == 0 {
		t.Fatalf("expected at least one 429, got %v", statuses)
	}
}
