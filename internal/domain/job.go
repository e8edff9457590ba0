package domain

import (
	"errors"
	"time"
)

// JobID is the caller-supplied correlation token of a download.
type JobID string

// JobState is the lifecycle state of a torrent job.
type JobState string

const (
	JobMetadataPending JobState = "metadata_pending" // Magnet added, waiting for the info dictionary.
	JobDownloading     JobState = "downloading"
	JobPaused          JobState = "paused"
	JobSeeding         JobState = "seeding" // Download complete, still uploading.
	JobFailed          JobState = "failed"
)

var ErrInvalidTransition = errors.New("invalid state transition")

var validTransitions = map[JobState][]JobState{
	JobMetadataPending: {JobDownloading, JobPaused, JobFailed},
	JobDownloading:     {JobPaused, JobSeeding, JobFailed},
	JobPaused:          {JobDownloading, JobSeeding, JobFailed},
	JobSeeding:         {JobPaused},
	JobFailed:          {},
}

// CanTransition reports whether a job may move from one state to another.
func CanTransition(from, to JobState) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Active reports whether a job in this state occupies its id.
func (s JobState) Active() bool {
	return s != JobFailed && s != ""
}

// JobSnapshot is a point-in-time view of a job.
type JobSnapshot struct {
	ID             JobID     `json:"callbackId"`
	State          JobState  `json:"state"`
	FileName       string    `json:"fileName"`
	FilePath       string    `json:"filePath"`
	Size           int64     `json:"size"`
	CompletedBytes int64     `json:"completedBytes"`
	Downloaded     int64     `json:"downloaded"`
	Uploaded       int64     `json:"uploaded"`
	DownloadSpeed  int64     `json:"downloadSpeed"`
	UploadSpeed    int64     `json:"uploadSpeed"`
	Progress       float64   `json:"progress"`
	Peers          int       `json:"peers"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// JobRecord is the journaled form of a job, used to restore downloads after
// a restart.
type JobRecord struct {
	ID             JobID     `json:"id"`
	MagnetURI      string    `json:"magnetUri"`
	DestinationDir string    `json:"destinationDir"`
	State          JobState  `json:"state"`
	FileName       string    `json:"fileName"`
	FilePath       string    `json:"filePath"`
	Size           int64     `json:"size"`
	Downloaded     int64     `json:"downloaded"`
	Uploaded       int64     `json:"uploaded"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Validate checks domain invariants for JobRecord.
func (r JobRecord) Validate() error {
	if r.ID == "" {
		return errors.New("job id is required")
	}
	if r.MagnetURI == "" {
		return errors.New("magnet uri is required")
	}
	if r.Size < 0 || r.Downloaded < 0 || r.Uploaded < 0 {
		return errors.New("byte counters must not be negative")
	}
	switch r.State {
	case JobMetadataPending, JobDownloading, JobPaused, JobSeeding, JobFailed:
	case "":
		return errors.New("state is required")
	default:
		return errors.New("invalid state: " + string(r.State))
	}
	return nil
}
