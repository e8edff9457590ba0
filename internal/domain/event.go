package domain

// Event type names as seen by the host process.
const (
	EventTorrentMetadata      = "torrent-metadata"
	EventTorrentProgress      = "torrent-progress"
	EventTorrentDownloadBytes = "torrent-download-bytes"
	EventTorrentUploadBytes   = "torrent-upload-bytes"
	EventTorrentDone          = "torrent-done"
	EventTorrentError         = "torrent-error"
	EventTorrentCancelled     = "torrent-cancelled"
	EventTorrentStatus        = "torrent-status"
	EventServerReady          = "local-webserver-callback"
	EventBase64Image          = "base64-image"
	EventError                = "error"
)

// Torrent error codes carried by TorrentErrorEvent.
const (
	ErrorCodeInvalidMagnet   = "invalid-magnet"
	ErrorCodeMetadataTimeout = "metadata-timeout"
	ErrorCodeDuplicateJob    = "duplicate-job"
	ErrorCodeNoFiles         = "no-files"
	ErrorCodeEngine          = "engine-error"
)

// Event is a message sent from the core to the host.
type Event interface {
	EventType() string
}

type MetadataEvent struct {
	CallbackID JobID  `json:"callbackId"`
	Size       int64  `json:"size"`
	FileName   string `json:"fileName"`
}

func (MetadataEvent) EventType() string { return EventTorrentMetadata }

type ProgressEvent struct {
	CallbackID    JobID   `json:"callbackId"`
	Downloaded    int64   `json:"downloaded"`
	Uploaded      int64   `json:"uploaded"`
	DownloadSpeed int64   `json:"downloadSpeed"`
	UploadSpeed   int64   `json:"uploadSpeed"`
	Progress      float64 `json:"progress"`
}

func (ProgressEvent) EventType() string { return EventTorrentProgress }

type DownloadBytesEvent struct {
	CallbackID JobID `json:"callbackId"`
	Bytes      int64 `json:"bytes"`
}

func (DownloadBytesEvent) EventType() string { return EventTorrentDownloadBytes }

type UploadBytesEvent struct {
	CallbackID JobID `json:"callbackId"`
	Bytes      int64 `json:"bytes"`
}

func (UploadBytesEvent) EventType() string { return EventTorrentUploadBytes }

type DoneEvent struct {
	CallbackID     JobID  `json:"callbackId"`
	SourceFilePath string `json:"sourceFilePath"`
	SourceFileName string `json:"sourceFileName"`
}

func (DoneEvent) EventType() string { return EventTorrentDone }

type TorrentErrorEvent struct {
	CallbackID JobID  `json:"callbackId"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (TorrentErrorEvent) EventType() string { return EventTorrentError }

type CancelledEvent struct {
	CallbackID JobID `json:"callbackId"`
}

func (CancelledEvent) EventType() string { return EventTorrentCancelled }

type StatusEvent struct {
	JobSnapshot
}

func (StatusEvent) EventType() string { return EventTorrentStatus }

type ServerReadyEvent struct {
	CallbackID string `json:"callbackId"`
	URL        string `json:"url"`
}

func (ServerReadyEvent) EventType() string { return EventServerReady }

type Base64ImageEvent struct {
	CallbackID string `json:"callbackId"`
	Data       string `json:"data"`
}

func (Base64ImageEvent) EventType() string { return EventBase64Image }

// AckEvent acknowledges a command that has no other reply; it is sent with
// the command's own type name.
type AckEvent struct {
	Type       string `json:"-"`
	CallbackID string `json:"callbackId"`
}

func (e AckEvent) EventType() string { return e.Type }

type ErrorEvent struct {
	CallbackID string `json:"callbackId,omitempty"`
	Message    string `json:"message"`
}

func (ErrorEvent) EventType() string { return EventError }
