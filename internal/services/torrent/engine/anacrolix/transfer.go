package anacrolix

import (
	"path/filepath"
	"sync"

	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/metainfo"
	"github.com/anacrolix/torrent/storage"

	"torrentbridge/internal/domain/ports"
)

var closedSignal = func() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Transfer wraps one torrent. Every accessor recovers from a stale handle
// and reports the zero value instead.
type Transfer struct {
	engine  *Engine
	torrent *torrent.Torrent
	hash    metainfo.Hash
	destDir string
	store   storage.ClientImplCloser

	mu       sync.Mutex
	target   *ports.TargetFile
	started  bool
	paused   bool
	dropOnce sync.Once
}

var _ ports.Transfer = (*Transfer)(nil)

func (tr *Transfer) InfoHash() string {
	return tr.hash.HexString()
}

func (tr *Transfer) GotInfo() <-chan struct{} {
	if tr.torrent == nil {
		return nil
	}
	return tr.torrent.GotInfo()
}

func (tr *Transfer) Closed() <-chan struct{} {
	if tr.torrent == nil {
		return closedSignal
	}
	return tr.torrent.Closed()
}

// Target picks the delivered file once metadata is known and starts the
// download unless the transfer was paused first.
func (tr *Transfer) Target() (target ports.TargetFile, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			target, ok = ports.TargetFile{}, false
		}
	}()
	if !torrentInfoReady(tr.torrent) {
		return ports.TargetFile{}, false
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.target == nil {
		files := tr.torrent.Files()
		candidates := make([]fileCandidate, len(files))
		for i, f := range files {
			candidates[i] = fileCandidate{path: f.Path(), display: f.DisplayPath(), length: f.Length()}
		}
		best, found := pickTarget(candidates)
		if !found {
			return ports.TargetFile{}, false
		}
		tr.target = &ports.TargetFile{
			Name:   filepath.Base(best.display),
			Path:   filepath.Join(tr.destDir, filepath.FromSlash(best.path)),
			Length: best.length,
			Root:   filepath.Join(tr.destDir, tr.torrent.Name()),
		}
	}
	if !tr.started && !tr.paused {
		tr.torrent.DownloadAll()
		tr.started = true
	}

	out := *tr.target
	out.Path = resolveOnDisk(out.Path)
	return out, true
}

func (tr *Transfer) Stats() (out ports.TransferStats) {
	defer func() {
		if r := recover(); r != nil {
			out = ports.TransferStats{}
		}
	}()
	if tr.torrent == nil {
		return ports.TransferStats{}
	}
	stats := tr.torrent.Stats()
	out = ports.TransferStats{
		BytesRead:    stats.BytesReadUsefulData.Int64(),
		BytesWritten: stats.BytesWrittenData.Int64(),
		Peers:        stats.ActivePeers,
	}
	if torrentInfoReady(tr.torrent) {
		out.Length = tr.torrent.Length()
		out.Completed = tr.torrent.BytesCompleted()
	}
	return out
}

func (tr *Transfer) Pause() {
	defer func() { recover() }()
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.paused {
		return
	}
	tr.paused = true
	hardPauseTorrent(tr.torrent)
}

func (tr *Transfer) Resume() {
	defer func() { recover() }()
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if !tr.paused {
		return
	}
	tr.paused = false
	resumeTorrent(tr.torrent)
	if torrentInfoReady(tr.torrent) {
		tr.started = true
	}
}

func (tr *Transfer) Drop() {
	tr.dropOnce.Do(func() {
		defer func() { recover() }()
		if tr.engine != nil {
			tr.engine.forget(tr.hash)
		}
		if tr.torrent != nil {
			tr.torrent.Drop()
		}
		if tr.store != nil {
			_ = tr.store.Close()
		}
	})
}
