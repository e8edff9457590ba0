package ports

import (
	"context"

	"torrentbridge/internal/domain"
)

// Engine opens torrent transfers from magnet links.
type Engine interface {
	Open(ctx context.Context, magnetURI, destDir string) (Transfer, error)
	Close() error
}

// Transfer is a single torrent inside the engine.
type Transfer interface {
	InfoHash() string
	// GotInfo is closed once the info dictionary is known.
	GotInfo() <-chan struct{}
	Closed() <-chan struct{}
	// Target returns the file the job delivers. ok is false before metadata.
	Target() (TargetFile, bool)
	Stats() TransferStats
	Pause()
	Resume()
	Drop()
}

// TransferStats are cumulative counters since the transfer was opened.
type TransferStats struct {
	BytesRead    int64
	BytesWritten int64
	Completed    int64
	Length       int64
	Peers        int
}

// TargetFile describes the chosen file on disk.
type TargetFile struct {
	Name   string
	Path   string
	Length int64
	// Root is the top-level path the torrent occupies under the destination.
	Root string
}

// EventSink receives events for the host.
type EventSink interface {
	Emit(ev domain.Event)
}
