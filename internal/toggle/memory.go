package toggle

import (
	"context"
	"sync"
)

// MemorySource keeps settings in process and fans changes out to subscribers.
type MemorySource struct {
	mu      sync.Mutex
	current Settings
	subs    map[chan Settings]struct{}
}

func NewMemorySource(initial Settings) *MemorySource {
	return &MemorySource{current: initial, subs: map[chan Settings]struct{}{}}
}

func (s *MemorySource) Load(ctx context.Context) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, nil
}

// Subscribe returns a channel that is closed when ctx ends. Slow subscribers
// only see the latest value.
func (s *MemorySource) Subscribe(ctx context.Context) <-chan Settings {
	ch := make(chan Settings, 1)

	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, ch)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

func (s *MemorySource) Set(settings Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = settings
	for ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- settings
	}
}
