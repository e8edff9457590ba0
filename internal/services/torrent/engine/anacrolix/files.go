package anacrolix

import (
	"os"
	"path/filepath"
	"strings"
)

var videoExtensions = map[string]bool{
	".mkv": true, ".mp4": true, ".avi": true,
	".m4v": true, ".wmv": true, ".ts": true,
	".mov": true, ".webm": true,
}

type fileCandidate struct {
	path    string // includes the torrent name for multi-file torrents
	display string
	length  int64
}

// pickTarget returns the largest video file, or the largest file when the
// torrent carries no video.
func pickTarget(files []fileCandidate) (fileCandidate, bool) {
	var bestVideo, bestAny fileCandidate
	videoFound, anyFound := false, false
	for _, f := range files {
		if !anyFound || f.length > bestAny.length {
			bestAny, anyFound = f, true
		}
		ext := strings.ToLower(filepath.Ext(f.display))
		if videoExtensions[ext] && (!videoFound || f.length > bestVideo.length) {
			bestVideo, videoFound = f, true
		}
	}
	if videoFound {
		return bestVideo, true
	}
	return bestAny, anyFound
}

// resolveOnDisk prefers the final path and falls back to the ".part" file
// the storage keeps while pieces are incomplete.
func resolveOnDisk(path string) string {
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		return path
	}
	if info, err := os.Stat(path + ".part"); err == nil && !info.IsDir() {
		return path + ".part"
	}
	return path
}
