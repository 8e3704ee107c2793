// Package costs tallies backend spend. Every billed call lands in two
// ledgers: the project document (persisted with state) and a process-wide
// session ledger capped at the most recent calls.
package costs

import (
	"sync"
	"time"

	"github.com/bobarin/muvi/internal/models"
)

// SessionCap bounds the session ledger to the most recent calls.
const SessionCap = 500

// Session is the process-wide ledger. A single instance is created at startup
// and passed to every component that bills calls.
type Session struct {
	mu     sync.Mutex
	ledger models.CostLedger
}

func NewSession() *Session {
	return &Session{}
}

// Track records a billed call on both the session ledger and, when state is
// non-nil, the project's ledger. The caller must hold the project lock when
// passing state.
func (s *Session) Track(state *models.State, model string, cost float64, note string) {
	call := s.TrackCall(model, cost, note)
	if state != nil {
		state.Costs.Add(call)
	}
}

// TrackCall records a billed call on the session ledger only and returns the
// call so a render that isn't holding the project lock can merge it into the
// project ledger at save time.
func (s *Session) TrackCall(model string, cost float64, note string) models.CostCall {
	call := models.CostCall{
		Model: model,
		Cost:  cost,
		TS:    models.NowISO(time.Now()),
		Note:  note,
	}

	s.mu.Lock()
	s.ledger.Add(call)
	if len(s.ledger.Calls) > SessionCap {
		drop := len(s.ledger.Calls) - SessionCap
		dropped := 0.0
		for _, c := range s.ledger.Calls[:drop] {
			dropped += c.Cost
		}
		s.ledger.Calls = append([]models.CostCall(nil), s.ledger.Calls[drop:]...)
		s.ledger.Total -= dropped
	}
	s.mu.Unlock()
	return call
}

// Snapshot returns a copy of the session ledger.
func (s *Session) Snapshot() models.CostLedger {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := models.CostLedger{Total: s.ledger.Total}
	out.Calls = append(out.Calls, s.ledger.Calls...)
	return out
}
