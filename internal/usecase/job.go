package usecase

import (
	"context"
	"sync"
	"time"

	"torrentbridge/internal/domain"
	"torrentbridge/internal/domain/ports"
)

type telemetryKind string

const (
	kindDownload telemetryKind = "download"
	kindUpload   telemetryKind = "upload"
	kindProgress telemetryKind = "progress"
)

// telemetryKey identifies one throttle accumulator. The job pointer keeps a
// replaced job's pending totals apart from its successor with the same id.
type telemetryKey struct {
	job  *job
	kind telemetryKind
}

type job struct {
	id        domain.JobID
	magnet    string
	destDir   string
	createdAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu             sync.Mutex
	state          domain.JobState
	transfer       ports.Transfer
	target         ports.TargetFile
	hasTarget      bool
	pauseRequested bool
	completed      bool
	stats          ports.TransferStats
	lastSampleAt   time.Time
	downSpeed      int64
	upSpeed        int64
	baseDownloaded int64
	baseUploaded   int64
	updatedAt      time.Time

	// emitMu orders events of one job: nothing is sent after removal and no
	// progress is sent after torrent-done.
	emitMu      sync.Mutex
	doneEmitted bool
	removed     bool
}

func (j *job) snapshotLocked() domain.JobSnapshot {
	snap := domain.JobSnapshot{
		ID:             j.id,
		State:          j.state,
		Size:           j.stats.Length,
		CompletedBytes: j.stats.Completed,
		Downloaded:     j.baseDownloaded + j.stats.BytesRead,
		Uploaded:       j.baseUploaded + j.stats.BytesWritten,
		DownloadSpeed:  j.downSpeed,
		UploadSpeed:    j.upSpeed,
		Peers:          j.stats.Peers,
		UpdatedAt:      j.updatedAt,
	}
	if j.hasTarget {
		snap.FileName = j.target.Name
		snap.FilePath = j.target.Path
		if snap.Size == 0 {
			snap.Size = j.target.Length
		}
	}
	if j.stats.Length > 0 {
		snap.Progress = float64(j.stats.Completed) / float64(j.stats.Length)
		if snap.Progress > 1 {
			snap.Progress = 1
		}
	}
	if j.completed {
		snap.Progress = 1
	}
	return snap
}

func (j *job) recordLocked() domain.JobRecord {
	snap := j.snapshotLocked()
	return domain.JobRecord{
		ID:             j.id,
		MagnetURI:      j.magnet,
		DestinationDir: j.destDir,
		State:          j.state,
		FileName:       snap.FileName,
		FilePath:       snap.FilePath,
		Size:           snap.Size,
		Downloaded:     snap.Downloaded,
		Uploaded:       snap.Uploaded,
		CreatedAt:      j.createdAt,
		UpdatedAt:      j.updatedAt,
	}
}
