package service

import (
	"sync"

	"ai-tools-server/internal/models"
)

// flightGuard tracks generations currently running per owner and tool kind.
// An owner may run at most one generation of a given kind at a time.
type flightGuard struct {
	mu       sync.Mutex
	inFlight map[string]struct{}
}

func newFlightGuard() *flightGuard {
	return &flightGuard{inFlight: make(map[string]struct{})}
}

// begin reserves a slot for the owner and kind. It returns
// ErrGenerationInFlight when a generation of that kind is already running.
// The caller must release the slot with end.
func (g *flightGuard) begin(ownerID string, kind models.GenerationKind) error {
	key := ownerID + "/" + string(kind)

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.inFlight[key]; exists {
		return models.ErrGenerationInFlight
	}
	g.inFlight[key] = struct{}{}
	return nil
}

func (g *flightGuard) end(ownerID string, kind models.GenerationKind) {
	key := ownerID + "/" + string(kind)

	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inFlight, key)
}
