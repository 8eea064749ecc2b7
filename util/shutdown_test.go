package util

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestShutdownRunsStepsInOrderOnce(t *testing.T) {
	s := NewShutdown(time.Second)
	var order []string
	s.Add("listener", func(context.Context) error { order = append(order, "listener"); return nil })
	s.Add("window", func(context.Context) error { order = append(order, "window"); return errors.New("already closed") })
	s.Add("discovery", func(context.Context) error { order = append(order, "discovery"); return nil })

	s.Trigger("test")
	s.Trigger("again")

	if len(order) != 3 || order[0] != "listener" || order[1] != "window" || order[2] != "discovery" {
		t.Errorf("steps ran as %v", order)
	}
	if s.Reason() != "test" {
		t.Errorf("Reason = %s, expected first trigger's reason", s.Reason())
	}
	select {
	case <-s.Done():
	default:
		t.Error("Done should be closed after Trigger")
	}
}

func TestShutdownConcurrentTriggersUnregisterOnce(t *testing.T) {
	s := NewShutdown(time.Second)
	var unregistered atomic.Int32
	s.Add("discovery", func(context.Context) error {
		unregistered.Add(1)
		time.Sleep(10 * time.Millisecond)
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				s.Trigger("signal")
			} else {
				s.Trigger("window closed")
			}
		}(i)
	}
	wg.Wait()

	if got := unregistered.Load(); got != 1 {
		t.Errorf("discovery unregistered %d times, expected 1", got)
	}
}

func TestShutdownStepsGetDeadline(t *testing.T) {
	s := NewShutdown(50 * time.Millisecond)
	s.Add("slow", func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("step context should carry a deadline")
		}
		return nil
	})
	s.Trigger("test")
}

func TestShutdownSteps(t *testing.T) {
	s := NewShutdown(time.Second)
	s.Add("listener", func(context.Context) error { return nil })
	s.Add("mqtt", func(context.Context) error { return nil })

	steps := s.Steps()
	if len(steps) != 2 || steps[0] != "listener" || steps[1] != "mqtt" {
		t.Errorf("Steps = %v", steps)
	}
}
