package apihttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

const shutdownTimeout = 5 * time.Second

type ListenerState string

const (
	StateNotStarted ListenerState = "not_started"
	StateStarting   ListenerState = "starting"
	StateListening  ListenerState = "listening"
)

// Listener owns the single streaming server of the process. Start is
// idempotent while listening; Stop is safe when not started.
type Listener struct {
	handler http.Handler
	host    string
	logger  *slog.Logger

	mu     sync.Mutex
	state  ListenerState
	srv    *http.Server
	url    string
	doneCh chan struct{}
}

type ListenerOption func(*Listener)

// WithBindHost restricts the listener to one interface. Empty binds all.
func WithBindHost(host string) ListenerOption {
	return func(l *Listener) {
		l.host = host
	}
}

func WithListenerLogger(logger *slog.Logger) ListenerOption {
	return func(l *Listener) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func NewListener(handler http.Handler, opts ...ListenerOption) *Listener {
	l := &Listener{
		handler: handler,
		logger:  slog.Default(),
		state:   StateNotStarted,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Listener) State() ListenerState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// URL returns the base URL while listening.
func (l *Listener) URL() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.url
}

// Start binds port and serves in the background, returning the base URL a
// renderer on the LAN can reach. When already listening it returns the
// current URL and ignores port.
func (l *Listener) Start(port int) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == StateListening {
		return l.url, nil
	}
	if port < 0 || port > 65535 {
		return "", fmt.Errorf("invalid port %d", port)
	}
	l.state = StateStarting

	ln, err := net.Listen("tcp", net.JoinHostPort(l.host, strconv.Itoa(port)))
	if err != nil {
		l.state = StateNotStarted
		return "", fmt.Errorf("bind streaming server: %w", err)
	}
	boundPort := ln.Addr().(*net.TCPAddr).Port

	srv := &http.Server{
		Handler:           l.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	done := make(chan struct{})
	l.srv = srv
	l.doneCh = done
	l.url = "http://" + net.JoinHostPort(advertiseHost(l.host), strconv.Itoa(boundPort))
	l.state = StateListening

	go func() {
		defer close(done)
		err := srv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.logger.Error("streaming server stopped", slog.String("error", err.Error()))
			l.mu.Lock()
			if l.srv == srv {
				l.reset()
			}
			l.mu.Unlock()
		}
	}()

	l.logger.Info("streaming server listening",
		slog.String("addr", ln.Addr().String()),
		slog.String("url", l.url),
	)
	return l.url, nil
}

// Stop shuts the server down, waiting up to five seconds for in-flight
// requests.
func (l *Listener) Stop(ctx context.Context) error {
	l.mu.Lock()
	srv, done := l.srv, l.doneCh
	if srv == nil {
		l.mu.Unlock()
		return nil
	}
	l.reset()
	l.mu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	if err != nil {
		_ = srv.Close()
	}
	<-done
	l.logger.Info("streaming server stopped")
	return err
}

// reset returns to NotStarted. Caller must hold l.mu.
func (l *Listener) reset() {
	l.srv = nil
	l.doneCh = nil
	l.url = ""
	l.state = StateNotStarted
}

// advertiseHost picks the address a LAN renderer should use: the bind host
// when one is set, else the first non-loopback IPv4 address.
func advertiseHost(bindHost string) string {
	if bindHost != "" && bindHost != "0.0.0.0" && bindHost != "::" {
		return bindHost
	}
	addrs, err := net.InterfaceAddrs()
	if err == nil {
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok || ipNet.IP.IsLoopback() {
				continue
			}
			if ip4 := ipNet.IP.To4(); ip4 != nil {
				return ip4.String()
			}
		}
	}
	return "127.0.0.1"
}
