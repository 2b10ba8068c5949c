package testsupport

import (
	"context"
	"sync"

	"github.com/radieske/stream-wager-engine/pkg/contracts/events"
)

// Recorder guarda os eventos publicados para asserções
type Recorder struct {
	mu     sync.Mutex
	events []events.Envelope
}

func (r *Recorder) Publish(_ context.Context, ev events.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Types devolve os tipos publicados, em ordem
func (r *Recorder) Types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

// Last devolve o último evento do tipo, se houver
func (r *Recorder) Last(t events.Type) (events.Envelope, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Type == t {
			return r.events[i], true
		}
	}
	return events.Envelope{}, false
}
