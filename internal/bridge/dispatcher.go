package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"torrentbridge/internal/domain"
	"torrentbridge/internal/domain/ports"
	"torrentbridge/internal/metrics"
	"torrentbridge/internal/subtitle"
	"torrentbridge/internal/telemetry"
)

const defaultQueueSize = 64

var ErrDispatcherStopped = errors.New("dispatcher stopped")

// JobService is the torrent session manager as seen by the bridge.
type JobService interface {
	StartDownload(ctx context.Context, id domain.JobID, magnetURI, destDir string) error
	Pause(ctx context.Context, id domain.JobID) error
	Resume(ctx context.Context, id domain.JobID) error
	Cancel(ctx context.Context, id domain.JobID, deleteFiles bool) error
	Status(ctx context.Context, id domain.JobID) (domain.JobSnapshot, error)
}

type StreamServer interface {
	Start(port int) (string, error)
	Stop(ctx context.Context) error
}

type SubtitleTidier interface {
	Execute(ctx context.Context, path string) (subtitle.Stats, error)
}

type ImageEncoder interface {
	Execute(ctx context.Context, path string) (string, error)
}

type DispatcherConfig struct {
	Jobs      JobService
	Stream    StreamServer
	Tidier    SubtitleTidier
	Images    ImageEncoder
	Sink      ports.EventSink
	Logger    *slog.Logger
	QueueSize int
}

// Dispatcher executes host commands one at a time, in arrival order, on a
// single goroutine.
type Dispatcher struct {
	jobs   JobService
	stream StreamServer
	tidier SubtitleTidier
	images ImageEncoder
	sink   ports.EventSink
	logger *slog.Logger
	tracer trace.Tracer

	queue   chan []byte
	stopped chan struct{}
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	size := cfg.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		jobs:    cfg.Jobs,
		stream:  cfg.Stream,
		tidier:  cfg.Tidier,
		images:  cfg.Images,
		sink:    cfg.Sink,
		logger:  logger,
		tracer:  telemetry.Tracer("bridge"),
		queue:   make(chan []byte, size),
		stopped: make(chan struct{}),
	}
}

// Submit queues a raw frame. It blocks while the queue is full.
func (d *Dispatcher) Submit(ctx context.Context, frame []byte) error {
	select {
	case <-d.stopped:
		return ErrDispatcherStopped
	default:
	}
	select {
	case d.queue <- frame:
		return nil
	case <-d.stopped:
		return ErrDispatcherStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes queued frames until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer close(d.stopped)
	for {
		select {
		case <-ctx.Done():
			return nil
		case frame := <-d.queue:
			d.handle(ctx, frame)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, frame []byte) {
	var callbackID string
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error("command handler panic",
				slog.String("callbackId", callbackID),
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())),
			)
			d.emit(domain.ErrorEvent{CallbackID: callbackID, Message: "internal error"})
		}
	}()

	cmd, err := DecodeCommand(frame)
	if err != nil {
		metrics.BridgeCommandsTotal.WithLabelValues("invalid").Inc()
		d.logger.Warn("host command rejected", slog.String("error", err.Error()))
		d.emit(domain.ErrorEvent{Message: err.Error()})
		return
	}
	callbackID = cmd.Callback()
	metrics.BridgeCommandsTotal.WithLabelValues(cmd.CommandType()).Inc()

	ctx, span := d.tracer.Start(ctx, "bridge."+cmd.CommandType(),
		trace.WithAttributes(
			attribute.String("bridge.command", cmd.CommandType()),
			attribute.String("bridge.callback_id", callbackID),
		),
	)
	defer span.End()

	start := time.Now()
	err = cmd.Validate()
	if err == nil {
		err = d.execute(ctx, cmd)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	d.logger.Debug("host command handled",
		slog.String("type", cmd.CommandType()),
		slog.String("callbackId", callbackID),
		slog.Int64("durationMs", time.Since(start).Milliseconds()),
	)
	if err != nil && !errors.Is(err, errReported) {
		d.logger.Warn("host command failed",
			slog.String("type", cmd.CommandType()),
			slog.String("callbackId", callbackID),
			slog.String("error", err.Error()),
		)
		d.emit(domain.ErrorEvent{CallbackID: callbackID, Message: err.Error()})
	}
}

// errReported marks failures the session manager already surfaced as a
// torrent-error event.
var errReported = errors.New("reported")

func (d *Dispatcher) execute(ctx context.Context, cmd Command) error {
	switch c := cmd.(type) {
	case DownloadTorrent:
		err := d.jobs.StartDownload(ctx, domain.JobID(c.CallbackID), c.MagnetURI, c.Location)
		if errors.Is(err, domain.ErrAlreadyExists) {
			return fmt.Errorf("%w: %v", errReported, err)
		}
		return err
	case Pause:
		return d.jobs.Pause(ctx, domain.JobID(c.CallbackID))
	case Resume:
		return d.jobs.Resume(ctx, domain.JobID(c.CallbackID))
	case CancelTorrent:
		return d.jobs.Cancel(ctx, domain.JobID(c.CallbackID), c.DeleteFiles)
	case TorrentStatus:
		snap, err := d.jobs.Status(ctx, domain.JobID(c.CallbackID))
		if err != nil {
			return err
		}
		d.emit(domain.StatusEvent{JobSnapshot: snap})
		return nil
	case StartServer:
		url, err := d.stream.Start(c.Port)
		if err != nil {
			return err
		}
		d.emit(domain.ServerReadyEvent{CallbackID: c.CallbackID, URL: url})
		return nil
	case StopServer:
		return d.stream.Stop(ctx)
	case TidyVTT:
		if _, err := d.tidier.Execute(ctx, c.FilePath); err != nil {
			return err
		}
		d.emit(domain.AckEvent{Type: TypeTidyVTT, CallbackID: c.CallbackID})
		return nil
	case Base64Image:
		data, err := d.images.Execute(ctx, c.OutputFilePath)
		if err != nil {
			return err
		}
		d.emit(domain.Base64ImageEvent{CallbackID: c.CallbackID, Data: data})
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.CommandType())
	}
}

func (d *Dispatcher) emit(ev domain.Event) {
	if d.sink != nil {
		d.sink.Emit(ev)
	}
}
