package anacrolix

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	alog "github.com/anacrolix/log"
	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/metainfo"
	"github.com/anacrolix/torrent/storage"

	"torrentbridge/internal/domain"
	"torrentbridge/internal/domain/ports"
)

// defaultMaxConns is the value restored when resuming a hard-paused torrent.
const defaultMaxConns = 35

// addMagnetTimeout caps the time we wait for the client to accept a magnet.
// AddTorrentSpec can block on the client mutex while it is busy.
const addMagnetTimeout = 10 * time.Second

type Config struct {
	// DataDir holds client state; per-transfer payloads go to the
	// destination passed to Open.
	DataDir    string
	ListenPort int
	Seed       bool
	Verbose    bool
	Logger     *slog.Logger
}

type Engine struct {
	client *torrent.Client
	logger *slog.Logger

	mu        sync.Mutex
	transfers map[metainfo.Hash]*Transfer
}

var _ ports.Engine = (*Engine)(nil)

func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	clientConfig := torrent.NewDefaultClientConfig()
	if cfg.DataDir != "" {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		clientConfig.DataDir = cfg.DataDir
	}
	clientConfig.ListenPort = cfg.ListenPort
	clientConfig.Seed = cfg.Seed
	if !cfg.Verbose {
		clientConfig.Logger = alog.Default.FilterLevel(alog.Disabled)
	}

	client, err := torrent.NewClient(clientConfig)
	if err != nil {
		return nil, fmt.Errorf("create torrent client: %w", err)
	}

	return NewWithClient(client, logger), nil
}

func NewWithClient(client *torrent.Client, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		client:    client,
		logger:    logger,
		transfers: make(map[metainfo.Hash]*Transfer),
	}
}

// Open adds the magnet with file storage rooted at destDir. A magnet whose
// info hash is already open yields domain.ErrAlreadyExists.
func (e *Engine) Open(ctx context.Context, magnetURI, destDir string) (ports.Transfer, error) {
	if _, err := metainfo.ParseMagnetUri(magnetURI); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidMagnet, err)
	}
	if e.client == nil {
		return nil, errors.New("torrent client not configured")
	}
	spec, err := torrent.TorrentSpecFromMagnetUri(magnetURI)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidMagnet, err)
	}
	if destDir == "" {
		return nil, errors.New("destination dir is required")
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("create destination dir: %w", err)
	}

	store := storage.NewFile(destDir)
	spec.Storage = store

	type addResult struct {
		t     *torrent.Torrent
		isNew bool
		err   error
	}
	ch := make(chan addResult, 1)
	go func() {
		t, isNew, err := e.client.AddTorrentSpec(spec)
		ch <- addResult{t, isNew, err}
	}()

	// An orphaned add that completes later is dropped.
	abandon := func() {
		go func() {
			if res := <-ch; res.t != nil && res.isNew {
				res.t.Drop()
			}
			_ = store.Close()
		}()
	}

	var t *torrent.Torrent
	select {
	case res := <-ch:
		if res.err != nil {
			_ = store.Close()
			return nil, res.err
		}
		if !res.isNew {
			_ = store.Close()
			return nil, fmt.Errorf("%w: torrent %s", domain.ErrAlreadyExists, res.t.InfoHash().HexString())
		}
		t = res.t
	case <-time.After(addMagnetTimeout):
		abandon()
		return nil, errors.New("torrent client busy, try again later")
	case <-ctx.Done():
		abandon()
		return nil, ctx.Err()
	}

	tr := &Transfer{
		engine:  e,
		torrent: t,
		hash:    t.InfoHash(),
		destDir: destDir,
		store:   store,
	}
	e.mu.Lock()
	e.transfers[tr.hash] = tr
	e.mu.Unlock()

	e.logger.Debug("torrent added",
		slog.String("infoHash", tr.hash.HexString()),
		slog.String("destDir", destDir),
	)
	return tr, nil
}

func (e *Engine) forget(hash metainfo.Hash) {
	e.mu.Lock()
	delete(e.transfers, hash)
	e.mu.Unlock()
}

// Active returns the number of open transfers.
func (e *Engine) Active() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.transfers)
}

func (e *Engine) Close() error {
	e.mu.Lock()
	transfers := make([]*Transfer, 0, len(e.transfers))
	for _, tr := range e.transfers {
		transfers = append(transfers, tr)
	}
	e.mu.Unlock()

	for _, tr := range transfers {
		tr.Drop()
	}
	if e.client == nil {
		return nil
	}
	errList := e.client.Close()
	if len(errList) > 0 {
		return errList[0]
	}
	return nil
}

// hardPauseTorrent prevents all network activity for a torrent by disallowing
// data transfer and setting max connections to 0, which disconnects all peers.
func hardPauseTorrent(t *torrent.Torrent) {
	if t == nil {
		return
	}
	t.DisallowDataDownload()
	t.DisallowDataUpload()
	t.SetMaxEstablishedConns(0)
}

// resumeTorrent re-enables data transfer and peer connections, and starts
// downloading all pieces once metadata is known.
func resumeTorrent(t *torrent.Torrent) {
	if t == nil {
		return
	}
	t.SetMaxEstablishedConns(defaultMaxConns)
	t.AllowDataUpload()
	t.AllowDataDownload()
	if torrentInfoReady(t) {
		t.DownloadAll()
	}
}

func torrentInfoReady(t *torrent.Torrent) bool {
	if t == nil {
		return false
	}
	select {
	case <-t.GotInfo():
		return true
	default:
		return false
	}
}
