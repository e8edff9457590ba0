package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"torrentbridge/internal/domain"
	"torrentbridge/internal/domain/ports"
	"torrentbridge/internal/metrics"
	"torrentbridge/internal/throttle"
)

const (
	defaultMetadataTimeout = 10 * time.Minute
	defaultSampleInterval  = 200 * time.Millisecond
	persistTimeout         = 5 * time.Second
)

type ManagerConfig struct {
	Engine ports.Engine
	// Repo is optional; without it jobs are not journaled.
	Repo   ports.JobRepository
	Sink   ports.EventSink
	Fs     afero.Fs
	Logger *slog.Logger

	MetadataTimeout  time.Duration
	SampleInterval   time.Duration
	ProgressInterval time.Duration
	Now              func() time.Time
}

// Manager owns the set of torrent jobs. Each job runs its own goroutine;
// a fault in one job is recovered and never reaches the others.
type Manager struct {
	engine ports.Engine
	repo   ports.JobRepository
	sink   ports.EventSink
	fs     afero.Fs
	logger *slog.Logger
	now    func() time.Time

	metadataTimeout time.Duration
	sampleInterval  time.Duration

	throttle *throttle.Throttler[telemetryKey]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	jobs map[domain.JobID]*job
}

func NewManager(cfg ManagerConfig) *Manager {
	m := &Manager{
		engine:          cfg.Engine,
		repo:            cfg.Repo,
		sink:            cfg.Sink,
		fs:              cfg.Fs,
		logger:          cfg.Logger,
		now:             cfg.Now,
		metadataTimeout: cfg.MetadataTimeout,
		sampleInterval:  cfg.SampleInterval,
		jobs:            make(map[domain.JobID]*job),
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.fs == nil {
		m.fs = afero.NewOsFs()
	}
	if m.metadataTimeout <= 0 {
		m.metadataTimeout = defaultMetadataTimeout
	}
	if m.sampleInterval <= 0 {
		m.sampleInterval = defaultSampleInterval
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.throttle = throttle.New[telemetryKey](cfg.ProgressInterval, m.emitTelemetry,
		throttle.WithLogger[telemetryKey](m.logger))
	return m
}

// StartDownload registers a job and begins resolving its magnet. Failures
// after registration are reported as torrent-error events.
func (m *Manager) StartDownload(ctx context.Context, id domain.JobID, magnetURI, destDir string) error {
	return m.start(domain.JobRecord{
		ID:             id,
		MagnetURI:      strings.TrimSpace(magnetURI),
		DestinationDir: destDir,
		State:          domain.JobMetadataPending,
		CreatedAt:      m.now().UTC(),
	}, false)
}

func (m *Manager) start(rec domain.JobRecord, paused bool) error {
	if rec.ID == "" {
		return fmt.Errorf("%w: callback id is required", ErrInvalidJob)
	}

	m.mu.Lock()
	if existing, ok := m.jobs[rec.ID]; ok {
		existing.mu.Lock()
		active := existing.state.Active()
		existing.mu.Unlock()
		if active {
			m.mu.Unlock()
			m.sinkEmit(domain.TorrentErrorEvent{
				CallbackID: rec.ID,
				Code:       domain.ErrorCodeDuplicateJob,
				Message:    "a job with this callback id is already active",
			})
			return fmt.Errorf("%w: job %s", domain.ErrAlreadyExists, rec.ID)
		}
		m.removeLocked(existing)
	}

	jobCtx, cancel := context.WithCancel(m.ctx)
	j := &job{
		id:             rec.ID,
		magnet:         rec.MagnetURI,
		destDir:        rec.DestinationDir,
		createdAt:      rec.CreatedAt,
		ctx:            jobCtx,
		cancel:         cancel,
		done:           make(chan struct{}),
		state:          domain.JobMetadataPending,
		pauseRequested: paused,
		baseDownloaded: rec.Downloaded,
		baseUploaded:   rec.Uploaded,
		updatedAt:      m.now().UTC(),
	}
	if j.createdAt.IsZero() {
		j.createdAt = j.updatedAt
	}
	m.jobs[rec.ID] = j
	m.refreshActiveLocked()
	m.mu.Unlock()

	metrics.JobTransitionsTotal.WithLabelValues(string(domain.JobMetadataPending)).Inc()
	m.persist(j)
	m.logger.Info("torrent job started",
		slog.String("jobId", string(j.id)),
		slog.String("destDir", j.destDir),
		slog.Bool("paused", paused),
	)

	m.wg.Add(1)
	go m.run(j)
	return nil
}

// Restore re-opens journaled jobs that had not failed. Paused jobs come
// back paused.
func (m *Manager) Restore(ctx context.Context) (int, error) {
	if m.repo == nil {
		return 0, nil
	}
	records, err := m.repo.List(ctx)
	if err != nil {
		return 0, wrapRepo(err)
	}
	restored := 0
	for _, rec := range records {
		if rec.State == domain.JobFailed {
			continue
		}
		if err := rec.Validate(); err != nil {
			m.logger.Warn("skipping invalid job record",
				slog.String("jobId", string(rec.ID)),
				slog.String("error", err.Error()),
			)
			continue
		}
		if err := m.start(rec, rec.State == domain.JobPaused); err != nil {
			m.logger.Warn("job restore failed",
				slog.String("jobId", string(rec.ID)),
				slog.String("error", err.Error()),
			)
			continue
		}
		restored++
	}
	return restored, nil
}

func (m *Manager) run(j *job) {
	defer m.wg.Done()
	defer close(j.done)
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("torrent job panic recovered",
				slog.String("jobId", string(j.id)),
				slog.Any("panic", r),
			)
			m.fail(j, domain.ErrorCodeEngine, fmt.Sprintf("internal error: %v", r))
		}
	}()

	tr, err := m.engine.Open(j.ctx, j.magnet, j.destDir)
	if err != nil {
		if j.ctx.Err() != nil {
			return
		}
		code := domain.ErrorCodeEngine
		switch {
		case errors.Is(err, domain.ErrInvalidMagnet):
			code = domain.ErrorCodeInvalidMagnet
		case errors.Is(err, domain.ErrAlreadyExists):
			code = domain.ErrorCodeDuplicateJob
		}
		m.logger.Warn("torrent open failed",
			slog.String("jobId", string(j.id)),
			slog.String("error", err.Error()),
		)
		m.fail(j, code, wrapEngine(err).Error())
		return
	}

	j.mu.Lock()
	if j.ctx.Err() != nil {
		j.mu.Unlock()
		tr.Drop()
		return
	}
	j.transfer = tr
	j.lastSampleAt = m.now()
	j.mu.Unlock()

	if !m.awaitMetadata(j, tr) {
		return
	}
	m.pump(j, tr)
}

func (m *Manager) awaitMetadata(j *job, tr ports.Transfer) bool {
	timer := time.NewTimer(m.metadataTimeout)
	defer timer.Stop()

	select {
	case <-tr.GotInfo():
	case <-timer.C:
		m.logger.Warn("torrent metadata timeout",
			slog.String("jobId", string(j.id)),
			slog.Duration("timeout", m.metadataTimeout),
		)
		m.fail(j, domain.ErrorCodeMetadataTimeout, fmt.Sprintf("%v: no metadata after %s", domain.ErrMetadataTimeout, m.metadataTimeout))
		return false
	case <-tr.Closed():
		if j.ctx.Err() == nil {
			m.fail(j, domain.ErrorCodeEngine, "torrent closed before metadata")
		}
		return false
	case <-j.ctx.Done():
		return false
	}

	j.mu.Lock()
	pausedEarly := j.pauseRequested
	if pausedEarly {
		tr.Pause()
	}
	j.mu.Unlock()

	target, ok := tr.Target()
	if !ok {
		m.fail(j, domain.ErrorCodeNoFiles, "torrent has no files")
		return false
	}
	stats := tr.Stats()

	j.mu.Lock()
	j.target = target
	j.hasTarget = true
	j.stats.Length = stats.Length
	j.stats.Completed = stats.Completed
	next := domain.JobDownloading
	switch {
	case j.pauseRequested:
		next = domain.JobPaused
		tr.Pause()
	case pausedEarly:
		tr.Resume()
	}
	m.transitionLocked(j, next)
	size := stats.Length
	if size == 0 {
		size = target.Length
	}
	j.mu.Unlock()

	m.emit(j, domain.MetadataEvent{CallbackID: j.id, Size: size, FileName: target.Name})
	m.persist(j)
	m.logger.Info("torrent metadata resolved",
		slog.String("jobId", string(j.id)),
		slog.String("fileName", target.Name),
		slog.Int64("size", size),
	)
	return true
}

func (m *Manager) pump(j *job, tr ports.Transfer) {
	ticker := time.NewTicker(m.sampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-j.ctx.Done():
			return
		case <-tr.Closed():
			if j.ctx.Err() == nil {
				m.fail(j, domain.ErrorCodeEngine, "torrent closed unexpectedly")
			}
			return
		case <-ticker.C:
			m.sample(j, tr)
		}
	}
}

// sample turns the engine's cumulative counters into throttled deltas.
// Zero deltas are never recorded so an idle job stays silent.
func (m *Manager) sample(j *job, tr ports.Transfer) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("torrent sample panic recovered",
				slog.String("jobId", string(j.id)),
				slog.Any("panic", r),
			)
		}
	}()

	stats := tr.Stats()
	now := m.now()

	j.mu.Lock()
	readDelta := stats.BytesRead - j.stats.BytesRead
	writeDelta := stats.BytesWritten - j.stats.BytesWritten
	if readDelta < 0 {
		readDelta = 0
	}
	if writeDelta < 0 {
		writeDelta = 0
	}
	if elapsed := now.Sub(j.lastSampleAt); elapsed > 0 {
		j.downSpeed = int64(float64(readDelta) / elapsed.Seconds())
		j.upSpeed = int64(float64(writeDelta) / elapsed.Seconds())
	}
	j.lastSampleAt = now
	j.stats = stats
	wasCompleted := j.completed
	finished := !wasCompleted && stats.Length > 0 && stats.Completed >= stats.Length
	j.mu.Unlock()

	if readDelta > 0 {
		m.throttle.Record(telemetryKey{j, kindDownload}, readDelta)
	}
	if writeDelta > 0 {
		m.throttle.Record(telemetryKey{j, kindUpload}, writeDelta)
	}
	if !wasCompleted && readDelta+writeDelta > 0 {
		m.throttle.Record(telemetryKey{j, kindProgress}, readDelta+writeDelta)
	}
	if finished {
		m.complete(j, tr)
	}
}

func (m *Manager) complete(j *job, tr ports.Transfer) {
	m.throttle.Flush(telemetryKey{j, kindDownload})
	m.throttle.Flush(telemetryKey{j, kindProgress})

	target, ok := tr.Target()

	j.mu.Lock()
	j.completed = true
	if ok {
		j.target = target
		j.hasTarget = true
	}
	target = j.target
	// A paused job stays paused; Resume moves it to seeding.
	if j.state == domain.JobDownloading {
		m.transitionLocked(j, domain.JobSeeding)
	}
	j.mu.Unlock()

	j.emitMu.Lock()
	if !j.removed {
		m.sinkEmit(domain.DoneEvent{
			CallbackID:     j.id,
			SourceFilePath: target.Path,
			SourceFileName: target.Name,
		})
		j.doneEmitted = true
	}
	j.emitMu.Unlock()

	m.persist(j)
	m.logger.Info("torrent download complete",
		slog.String("jobId", string(j.id)),
		slog.String("filePath", target.Path),
	)
}

// Pause stops transfer for a job. Pausing a paused job is a no-op. A pause
// before metadata is applied once metadata arrives.
func (m *Manager) Pause(ctx context.Context, id domain.JobID) error {
	j, err := m.get(id)
	if err != nil {
		return err
	}

	j.mu.Lock()
	switch j.state {
	case domain.JobPaused:
		j.mu.Unlock()
		return nil
	case domain.JobFailed:
		j.mu.Unlock()
		return fmt.Errorf("%w: job %s has failed", domain.ErrInvalidTransition, id)
	case domain.JobMetadataPending:
		j.pauseRequested = true
		j.mu.Unlock()
		return nil
	}
	tr := j.transfer
	j.pauseRequested = true
	m.transitionLocked(j, domain.JobPaused)
	j.mu.Unlock()

	if tr != nil {
		tr.Pause()
	}
	m.persist(j)
	m.logger.Info("torrent job paused", slog.String("jobId", string(id)))
	return nil
}

// Resume restarts a paused job. Resuming a running job is a no-op.
func (m *Manager) Resume(ctx context.Context, id domain.JobID) error {
	j, err := m.get(id)
	if err != nil {
		return err
	}

	j.mu.Lock()
	switch j.state {
	case domain.JobDownloading, domain.JobSeeding:
		j.mu.Unlock()
		return nil
	case domain.JobFailed:
		j.mu.Unlock()
		return fmt.Errorf("%w: job %s has failed", domain.ErrInvalidTransition, id)
	case domain.JobMetadataPending:
		j.pauseRequested = false
		j.mu.Unlock()
		return nil
	}
	tr := j.transfer
	j.pauseRequested = false
	next := domain.JobDownloading
	if j.completed {
		next = domain.JobSeeding
	}
	m.transitionLocked(j, next)
	j.mu.Unlock()

	if tr != nil {
		tr.Resume()
	}
	m.persist(j)
	m.logger.Info("torrent job resumed", slog.String("jobId", string(id)))
	return nil
}

// Cancel drops the torrent, forgets the job and optionally removes the
// downloaded files.
func (m *Manager) Cancel(ctx context.Context, id domain.JobID, deleteFiles bool) error {
	m.mu.Lock()
	j, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: job %s", domain.ErrNotFound, id)
	}
	m.removeLocked(j)
	m.mu.Unlock()

	select {
	case <-j.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if m.repo != nil {
		pctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		if err := m.repo.Delete(pctx, id); err != nil && !errors.Is(err, domain.ErrNotFound) {
			m.logger.Warn("job journal delete failed",
				slog.String("jobId", string(id)),
				slog.String("error", wrapRepo(err).Error()),
			)
		}
		cancel()
	}

	var removeErr error
	if deleteFiles {
		removeErr = m.removeFiles(j)
	}

	m.sinkEmit(domain.CancelledEvent{CallbackID: id})
	m.logger.Info("torrent job cancelled",
		slog.String("jobId", string(id)),
		slog.Bool("deleteFiles", deleteFiles),
	)
	return removeErr
}

func (m *Manager) removeFiles(j *job) error {
	j.mu.Lock()
	root := j.target.Root
	hasTarget := j.hasTarget
	j.mu.Unlock()
	if !hasTarget || root == "" {
		return nil
	}

	rel, err := filepath.Rel(filepath.Clean(j.destDir), filepath.Clean(root))
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: %s is outside %s", ErrInvalidPath, root, j.destDir)
	}
	// A single-file torrent may still be sitting at its incomplete path.
	for _, p := range []string{root, root + ".part"} {
		if err := m.fs.RemoveAll(p); err != nil {
			return fmt.Errorf("remove downloaded files: %w", err)
		}
	}
	return nil
}

// Status returns a snapshot of the job.
func (m *Manager) Status(ctx context.Context, id domain.JobID) (domain.JobSnapshot, error) {
	j, err := m.get(id)
	if err != nil {
		return domain.JobSnapshot{}, err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.snapshotLocked(), nil
}

// List returns snapshots of every registered job.
func (m *Manager) List() []domain.JobSnapshot {
	m.mu.Lock()
	jobs := make([]*job, 0, len(m.jobs))
	for _, j := range m.jobs {
		jobs = append(jobs, j)
	}
	m.mu.Unlock()

	out := make([]domain.JobSnapshot, 0, len(jobs))
	for _, j := range jobs {
		j.mu.Lock()
		out = append(out, j.snapshotLocked())
		j.mu.Unlock()
	}
	return out
}

// Close stops every job goroutine and pending emission. Transfers are left
// to the engine's own shutdown.
func (m *Manager) Close() {
	m.cancel()
	m.throttle.Stop()
	m.wg.Wait()
}

func (m *Manager) get(id domain.JobID) (*job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: job %s", domain.ErrNotFound, id)
	}
	return j, nil
}

// removeLocked detaches a job. Caller must hold m.mu.
func (m *Manager) removeLocked(j *job) {
	delete(m.jobs, j.id)
	m.refreshActiveLocked()

	j.emitMu.Lock()
	j.removed = true
	j.emitMu.Unlock()

	j.cancel()
	j.mu.Lock()
	tr := j.transfer
	j.mu.Unlock()
	if tr != nil {
		tr.Drop()
	}
	for _, kind := range []telemetryKind{kindDownload, kindUpload, kindProgress} {
		m.throttle.Forget(telemetryKey{j, kind})
	}
}

func (m *Manager) fail(j *job, code, message string) {
	j.mu.Lock()
	if j.state == domain.JobFailed {
		j.mu.Unlock()
		return
	}
	m.transitionLocked(j, domain.JobFailed)
	tr := j.transfer
	j.mu.Unlock()

	if tr != nil {
		tr.Drop()
	}
	for _, kind := range []telemetryKind{kindDownload, kindUpload, kindProgress} {
		m.throttle.Forget(telemetryKey{j, kind})
	}

	m.mu.Lock()
	m.refreshActiveLocked()
	m.mu.Unlock()

	m.emit(j, domain.TorrentErrorEvent{CallbackID: j.id, Code: code, Message: message})
	m.persist(j)
}

// transitionLocked applies a state change if the table allows it. Caller
// must hold j.mu.
func (m *Manager) transitionLocked(j *job, to domain.JobState) bool {
	if j.state == to {
		return true
	}
	if !domain.CanTransition(j.state, to) {
		m.logger.Warn("invalid job transition",
			slog.String("jobId", string(j.id)),
			slog.String("from", string(j.state)),
			slog.String("to", string(to)),
		)
		return false
	}
	j.state = to
	j.updatedAt = m.now().UTC()
	metrics.JobTransitionsTotal.WithLabelValues(string(to)).Inc()
	return true
}

func (m *Manager) refreshActiveLocked() {
	active := 0
	for _, j := range m.jobs {
		j.mu.Lock()
		if j.state.Active() {
			active++
		}
		j.mu.Unlock()
	}
	metrics.ActiveJobs.Set(float64(active))
}

func (m *Manager) refreshSpeeds() {
	m.mu.Lock()
	defer m.mu.Unlock()
	var down, up int64
	peers := 0
	for _, j := range m.jobs {
		j.mu.Lock()
		down += j.downSpeed
		up += j.upSpeed
		peers += j.stats.Peers
		j.mu.Unlock()
	}
	metrics.DownloadSpeedBytes.Set(float64(down))
	metrics.UploadSpeedBytes.Set(float64(up))
	metrics.PeersConnected.Set(float64(peers))
}

func (m *Manager) emitTelemetry(key telemetryKey, total int64) {
	j := key.job
	switch key.kind {
	case kindDownload:
		m.emit(j, domain.DownloadBytesEvent{CallbackID: j.id, Bytes: total})
	case kindUpload:
		m.emit(j, domain.UploadBytesEvent{CallbackID: j.id, Bytes: total})
	case kindProgress:
		j.mu.Lock()
		snap := j.snapshotLocked()
		j.mu.Unlock()
		m.emit(j, domain.ProgressEvent{
			CallbackID:    j.id,
			Downloaded:    snap.Downloaded,
			Uploaded:      snap.Uploaded,
			DownloadSpeed: snap.DownloadSpeed,
			UploadSpeed:   snap.UploadSpeed,
			Progress:      snap.Progress,
		})
		m.refreshSpeeds()
		m.persist(j)
	}
	metrics.ProgressEventsTotal.WithLabelValues(string(key.kind)).Inc()
}

func (m *Manager) emit(j *job, ev domain.Event) {
	j.emitMu.Lock()
	defer j.emitMu.Unlock()
	if j.removed {
		return
	}
	if _, ok := ev.(domain.ProgressEvent); ok && j.doneEmitted {
		return
	}
	m.sinkEmit(ev)
}

func (m *Manager) sinkEmit(ev domain.Event) {
	if m.sink == nil {
		return
	}
	m.sink.Emit(ev)
}

func (m *Manager) persist(j *job) {
	if m.repo == nil {
		return
	}
	j.emitMu.Lock()
	removed := j.removed
	j.emitMu.Unlock()
	if removed {
		return
	}
	j.mu.Lock()
	rec := j.recordLocked()
	j.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := m.repo.Upsert(ctx, rec); err != nil {
		m.logger.Warn("job journal write failed",
			slog.String("jobId", string(j.id)),
			slog.String("error", wrapRepo(err).Error()),
		)
	}
}
