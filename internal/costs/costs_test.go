package costs

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bobarin/muvi/internal/models"
)

func TestTrackUpdatesBothLedgers(t *testing.T) {
	s := NewSession()
	st := &models.State{}

	s.Track(st, "nanobanana", 0.039, "shot_render")
	s.Track(st, "llm_openai", 0.01, "build_sequences")
	s.Track(nil, "flux2", 0.05, "other_project")

	session := s.Snapshot()
	require.Len(t, session.Calls, 3)
	require.InDelta(t, 0.099, session.Total, 0.0001)

	require.Len(t, st.Costs.Calls, 2)
	require.InDelta(t, 0.049, st.Costs.Total, 0.0001)
	require.Equal(t, "shot_render", st.Costs.Calls[0].Note)
}

func TestTotalsMatchSum(t *testing.T) {
	s := NewSession()
	for i := 0; i < 50; i++ {
		s.TrackCall("seedream45", 0.03, "x")
	}
	snap := s.Snapshot()
	sum := 0.0
	for _, c := range snap.Calls {
		sum += c.Cost
	}
	require.InDelta(t, sum, snap.Total, 0.0001)
}

func TestSessionCap(t *testing.T) {
	s := NewSession()
	for i := 0; i < SessionCap+100; i++ {
		s.TrackCall("nanobanana", 0.01, "x")
	}
	snap := s.Snapshot()
	require.Len(t, snap.Calls, SessionCap)
	// Total tracks only the retained calls.
	require.InDelta(t, float64(SessionCap)*0.01, snap.Total, 0.001)
}

func TestPricingDefaultsAndUnknown(t *testing.T) {
	p := NewPricing("")
	require.Greater(t, p.Price("nanobanana"), 0.0)
	require.Zero(t, p.Price("does_not_exist"))

	// Refresh without an endpoint is a no-op.
	p.Refresh()
	require.Greater(t, p.Price("nanobanana"), 0.0)
}
