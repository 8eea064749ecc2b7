package util

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"
)

// MonitorServer is a restartable HTTP server with its own mux. The lamp runs
// two of them: the notification listener and the dashboard.
type MonitorServer struct {
	name    string
	port    func() int
	mux     *http.ServeMux
	running *sync.Mutex
	srv     *http.Server
	srvMu   sync.RWMutex // protects srv and addr
	addr    net.Addr
}

// NewMonitorServer builds a server that listens on the port returned by port
// each time it starts, so a config reload followed by Restart moves it.
func NewMonitorServer(name string, port func() int) *MonitorServer {
	var s MonitorServer
	s.name = name
	s.port = port
	s.mux = http.NewServeMux()
	s.running = &sync.Mutex{}
	s.srv = &http.Server{}
	return &s
}

func (s *MonitorServer) Start() error {
	if !s.running.TryLock() {
		return fmt.Errorf("already running")
	}
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port()))
	if err != nil {
		s.running.Unlock()
		return fmt.Errorf("%s server listen: %w", s.name, err)
	}

	newSrv := &http.Server{Handler: s.mux, ReadHeaderTimeout: 10 * time.Second}
	s.srvMu.Lock()
	s.srv = newSrv
	s.addr = ln.Addr()
	s.srvMu.Unlock()

	go func() {
		defer s.running.Unlock()
		if err := newSrv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			Logger.Warn().Msgf("Problem running %s server: %v", s.name, err)
		}
		Logger.Debug().Msgf("%s server shutdown", s.name)
	}()
	Logger.Info().Msgf("%s server listening on %v", s.name, ln.Addr())
	return nil
}

// Addr is the bound address, nil until the first Start.
func (s *MonitorServer) Addr() net.Addr {
	s.srvMu.RLock()
	defer s.srvMu.RUnlock()
	return s.addr
}

// Port is the bound port, useful when configured with port 0.
func (s *MonitorServer) Port() int {
	if tcp, ok := s.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}

func (s *MonitorServer) AddHandler(path string, handler func(http.ResponseWriter, *http.Request)) {
	s.mux.HandleFunc(path, handler)
}

func (s *MonitorServer) AddRawHandler(path string, handler http.Handler) {
	s.mux.Handle(path, handler)
}

func (s *MonitorServer) Handler() http.Handler {
	return s.mux
}

// Stop shuts the server down, waiting for in-flight requests until ctx ends.
func (s *MonitorServer) Stop(ctx context.Context) error {
	if s.running.TryLock() {
		s.running.Unlock()
		return nil
	}
	s.srvMu.RLock()
	currentSrv := s.srv
	s.srvMu.RUnlock()
	if err := currentSrv.Shutdown(ctx); err != nil {
		return fmt.Errorf("%s server shutdown: %w", s.name, err)
	}
	s.running.Lock() // serve goroutine unlocks on exit
	s.running.Unlock()
	return nil
}

func (s *MonitorServer) Restart() {
	Logger.Debug().Msgf("restarting %s server", s.name)
	if err := s.Stop(context.TODO()); err != nil {
		Logger.Error().Msgf("Error shutting down %s server: %v", s.name, err)
	}
	if err := s.Start(); err != nil {
		Logger.Error().Msgf("Error starting %s server: %v", s.name, err)
	}
}
