package lamp

import (
	"sync"
)

const (
	ColorOn  = "green"
	ColorOff = "red"
)

// Color maps a lamp value to the fill color of the circle.
func Color(on bool) string {
	if on {
		return ColorOn
	}
	return ColorOff
}

// State owns the lamp's single boolean. Writers call Set or Toggle, readers
// either call On or hold a subscription that receives every change.
//
// Each subscription is a single-slot channel: if a second change lands before
// the subscriber reads the first, only the newest value is kept.
type State struct {
	mu          sync.RWMutex
	on          bool
	subscribers map[int]chan bool
	next_id     int
}

func NewState(initial bool) *State {
	return &State{
		on:          initial,
		subscribers: make(map[int]chan bool),
	}
}

func (s *State) On() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.on
}

func (s *State) Color() string {
	return Color(s.On())
}

// Set stores the value and notifies subscribers. It reports whether the value
// actually changed; subscribers are notified either way so a redundant
// notification still refreshes the display.
func (s *State) Set(on bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := s.on != on
	s.on = on
	s.broadcast(on)
	return changed
}

// Toggle flips the value and returns the new one.
func (s *State) Toggle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.on = !s.on
	s.broadcast(s.on)
	return s.on
}

// Subscribe returns a channel delivering state changes and a cancel func that
// closes it. The channel is primed with nothing; call On for the current value.
func (s *State) Subscribe() (<-chan bool, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next_id
	s.next_id++
	ch := make(chan bool, 1)
	s.subscribers[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subscribers, id)
			close(ch)
		})
	}
}

// caller holds s.mu
func (s *State) broadcast(on bool) {
	for _, ch := range s.subscribers {
		offer(ch, on)
	}
}

// offer replaces whatever is waiting in the slot with v.
func offer(ch chan bool, v bool) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
