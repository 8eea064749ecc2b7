package util

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

type shutdownStep struct {
	name string
	fn   func(context.Context) error
}

// Shutdown runs registered teardown steps once, no matter how many of the
// signal handler, the window and the dashboard ask for it.
type Shutdown struct {
	mu      sync.Mutex
	steps   []shutdownStep
	once    sync.Once
	done    chan struct{}
	timeout time.Duration
	reason  string
}

func NewShutdown(timeout time.Duration) *Shutdown {
	return &Shutdown{done: make(chan struct{}), timeout: timeout}
}

// Add registers a step. Steps run in the order they were added.
func (s *Shutdown) Add(name string, fn func(context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, shutdownStep{name, fn})
}

// Trigger runs the teardown on the first call and waits for it; later calls
// wait for the first one to finish.
func (s *Shutdown) Trigger(reason string) {
	s.once.Do(func() {
		s.mu.Lock()
		steps := append([]shutdownStep(nil), s.steps...)
		s.reason = reason
		s.mu.Unlock()

		Logger.Info().Msgf("shutting down (%s)", reason)
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		for _, step := range steps {
			if err := step.fn(ctx); err != nil {
				Logger.Warn().Msgf("shutdown step %s: %v", step.name, err)
			} else {
				Logger.Debug().Msgf("shutdown step %s done", step.name)
			}
		}
		close(s.done)
	})
	<-s.done
}

// Steps lists the registered step names in the order they will run.
func (s *Shutdown) Steps() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.steps))
	for _, step := range s.steps {
		names = append(names, step.name)
	}
	return names
}

func (s *Shutdown) Done() <-chan struct{} {
	return s.done
}

func (s *Shutdown) Reason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// TriggerOnSignal triggers the shutdown on SIGINT or SIGTERM. The returned
// func stops watching.
func (s *Shutdown) TriggerOnSignal() func() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	stop := make(chan struct{})
	go func() {
		select {
		case sig := <-sigs:
			s.Trigger(sig.String())
		case <-stop:
		case <-s.done:
		}
	}()
	return func() {
		signal.Stop(sigs)
		select {
		case <-stop:
		default:
			close(stop)
		}
	}
}
