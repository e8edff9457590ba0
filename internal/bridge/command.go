package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Command type names as sent by the host.
const (
	TypeDownloadTorrent = "download-torrent"
	TypePause           = "pause"
	TypeResume          = "resume"
	TypeCancelTorrent   = "cancel-torrent"
	TypeTorrentStatus   = "torrent-status"
	TypeStartServer     = "start-server"
	TypeStopServer      = "stop-server"
	TypeTidyVTT         = "tidy-vtt"
	TypeBase64Image     = "base64-image"
)

var (
	ErrMalformedCommand = errors.New("malformed command")
	ErrUnknownCommand   = errors.New("unknown command type")
	ErrInvalidCommand   = errors.New("invalid command")
)

// Command is one decoded host frame.
type Command interface {
	CommandType() string
	// Callback returns the correlation token replies are sent under.
	Callback() string
	Validate() error
}

type DownloadTorrent struct {
	CallbackID string `json:"callbackId"`
	MagnetURI  string `json:"magnetUri"`
	Location   string `json:"location"`
}

func (DownloadTorrent) CommandType() string { return TypeDownloadTorrent }
func (c DownloadTorrent) Callback() string  { return c.CallbackID }

func (c DownloadTorrent) Validate() error {
	if err := requireCallback(c.CallbackID); err != nil {
		return err
	}
	if strings.TrimSpace(c.Location) == "" {
		return fmt.Errorf("%w: location is required", ErrInvalidCommand)
	}
	return nil
}

type Pause struct {
	CallbackID string `json:"callbackId"`
}

func (Pause) CommandType() string { return TypePause }
func (c Pause) Callback() string  { return c.CallbackID }
func (c Pause) Validate() error   { return requireCallback(c.CallbackID) }

type Resume struct {
	CallbackID string `json:"callbackId"`
}

func (Resume) CommandType() string { return TypeResume }
func (c Resume) Callback() string  { return c.CallbackID }
func (c Resume) Validate() error   { return requireCallback(c.CallbackID) }

type CancelTorrent struct {
	CallbackID  string `json:"callbackId"`
	DeleteFiles bool   `json:"deleteFiles"`
}

func (CancelTorrent) CommandType() string { return TypeCancelTorrent }
func (c CancelTorrent) Callback() string  { return c.CallbackID }
func (c CancelTorrent) Validate() error   { return requireCallback(c.CallbackID) }

type TorrentStatus struct {
	CallbackID string `json:"callbackId"`
}

func (TorrentStatus) CommandType() string { return TypeTorrentStatus }
func (c TorrentStatus) Callback() string  { return c.CallbackID }
func (c TorrentStatus) Validate() error   { return requireCallback(c.CallbackID) }

type StartServer struct {
	CallbackID string `json:"callbackId"`
	Port       int    `json:"port"`
}

func (StartServer) CommandType() string { return TypeStartServer }
func (c StartServer) Callback() string  { return c.CallbackID }

func (c StartServer) Validate() error {
	if err := requireCallback(c.CallbackID); err != nil {
		return err
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidCommand, c.Port)
	}
	return nil
}

type StopServer struct{}

func (StopServer) CommandType() string { return TypeStopServer }
func (StopServer) Callback() string    { return "" }
func (StopServer) Validate() error     { return nil }

type TidyVTT struct {
	CallbackID string `json:"callbackId"`
	FilePath   string `json:"filePath"`
}

func (TidyVTT) CommandType() string { return TypeTidyVTT }
func (c TidyVTT) Callback() string  { return c.CallbackID }

func (c TidyVTT) Validate() error {
	if err := requireCallback(c.CallbackID); err != nil {
		return err
	}
	if strings.TrimSpace(c.FilePath) == "" {
		return fmt.Errorf("%w: filePath is required", ErrInvalidCommand)
	}
	return nil
}

type Base64Image struct {
	CallbackID     string `json:"callbackId"`
	OutputFilePath string `json:"outputFilePath"`
}

func (Base64Image) CommandType() string { return TypeBase64Image }
func (c Base64Image) Callback() string  { return c.CallbackID }

func (c Base64Image) Validate() error {
	if err := requireCallback(c.CallbackID); err != nil {
		return err
	}
	if strings.TrimSpace(c.OutputFilePath) == "" {
		return fmt.Errorf("%w: outputFilePath is required", ErrInvalidCommand)
	}
	return nil
}

func requireCallback(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: callbackId is required", ErrInvalidCommand)
	}
	return nil
}

// DecodeCommand parses a host frame of the form {"type": "...", ...fields}.
// The returned command has not been validated.
func DecodeCommand(data []byte) (Command, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCommand, err)
	}

	switch head.Type {
	case TypeDownloadTorrent:
		return decodeAs[DownloadTorrent](data)
	case TypePause:
		return decodeAs[Pause](data)
	case TypeResume:
		return decodeAs[Resume](data)
	case TypeCancelTorrent:
		return decodeAs[CancelTorrent](data)
	case TypeTorrentStatus:
		return decodeAs[TorrentStatus](data)
	case TypeStartServer:
		return decodeAs[StartServer](data)
	case TypeStopServer:
		return StopServer{}, nil
	case TypeTidyVTT:
		return decodeAs[TidyVTT](data)
	case TypeBase64Image:
		return decodeAs[Base64Image](data)
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformedCommand)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, head.Type)
	}
}

func decodeAs[T Command](data []byte) (Command, error) {
	var cmd T
	if err := json.Unmarshal(data, &cmd); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCommand, err)
	}
	return cmd, nil
}
