package jitter

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct{ now time.Time }

func (c *testClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestDetector() (*Detector, *testClock) {
	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	d := NewDetector(logger)
	d.WithClock(func() time.Time { return clock.now })
	return d, clock
}

// beat delivers one heartbeat with a synthetic RTT.
func beat(d *Detector, clock *testClock, id uuid.UUID, rttMillis float64, gameState string) Analysis {
	clock.advance(HeartbeatInterval)
	sent := clock.now.Add(-time.Duration(rttMillis * float64(time.Millisecond)))
	return d.ProcessHeartbeat(id, sent, gameState)
}

func TestDetector_EstablishesBaselineBeforeScoring(t *testing.T) {
	d, clock := newTestDetector()
	id := uuid.New()
	d.Register(id)

	for i := 0; i < baselineSamples-1; i++ {
		a := beat(d, clock, id, 50, "")
		assert.Equal(t, TrendEstablishing, a.Trend)
		assert.Zero(t, a.Score)
	}
	a := beat(d, clock, id, 50, "")
	assert.InDelta(t, 50, a.BaselineRTT, 1)
}

func TestDetector_SpikeAgainstStableBaseline(t *testing.T) {
	d, clock := newTestDetector()
	id := uuid.New()
	d.Register(id)
	for i := 0; i < 15; i++ {
		beat(d, clock, id, 50, "")
	}

	a := beat(d, clock, id, 600, "")
	assert.Equal(t, 1, a.SpikeCount)
	assert.Equal(t, QualityCritical, a.Quality)
	assert.False(t, a.Suspicious, "one spike alone is not suspicious")
	assert.Greater(t, a.Score, 30.0)
}

func TestDetector_ThreeSpikesFlagPlayer(t *testing.T) {
	d, clock := newTestDetector()
	id := uuid.New()
	d.Register(id)
	for i := 0; i < 15; i++ {
		beat(d, clock, id, 50, "")
	}

	beat(d, clock, id, 600, "")
	beat(d, clock, id, 600, "")
	a := beat(d, clock, id, 600, "")
	assert.True(t, a.Suspicious)
	assert.Equal(t, ActionMonitor, a.Action)

	sum := d.PlayerSummary(id)
	require.NotNil(t, sum)
	assert.True(t, sum.Flagged)
}

func TestDetector_CriticalMomentPatternScoresHigh(t *testing.T) {
	d, clock := newTestDetector()
	id := uuid.New()
	d.Register(id)
	for i := 0; i < 15; i++ {
		beat(d, clock, id, 50, "rolling")
	}

	var a Analysis
	for i := 0; i < 5; i++ {
		a = beat(d, clock, id, 700, "match_point")
	}
	assert.True(t, a.Suspicious)
	assert.GreaterOrEqual(t, a.Score, 85.0)
	assert.Equal(t, 1.0, a.CriticalRatio)
}

func TestDetector_QualityBuckets(t *testing.T) {
	assert.Equal(t, QualityExcellent, classifyQuality(49))
	assert.Equal(t, QualityGood, classifyQuality(50))
	assert.Equal(t, QualityFair, classifyQuality(100))
	assert.Equal(t, QualityPoor, classifyQuality(200))
	assert.Equal(t, QualityCritical, classifyQuality(500))
}

func TestDetector_RingBufferWraps(t *testing.T) {
	d, clock := newTestDetector()
	id := uuid.New()
	d.Register(id)
	for i := 0; i < 150; i++ {
		beat(d, clock, id, 50, "")
	}
	sum := d.PlayerSummary(id)
	require.NotNil(t, sum)
	assert.Equal(t, sampleCapacity, sum.SampleCount)
}

func TestDetector_MissedHeartbeatsClassifyGenuine(t *testing.T) {
	d, clock := newTestDetector()
	ids := make([]uuid.UUID, 10)
	for i := range ids {
		ids[i] = uuid.New()
		d.Register(ids[i])
		beat(d, clock, ids[i], 50, "")
	}

	clock.advance(HeartbeatInterval + HeartbeatTolerance + time.Second)
	assert.Nil(t, d.CheckMissedHeartbeat(ids[0]))
	assert.Nil(t, d.CheckMissedHeartbeat(ids[0]))

	a := d.CheckMissedHeartbeat(ids[0])
	require.NotNil(t, a)
	assert.Equal(t, DisconnectGenuine, a.Disconnect)
	assert.Equal(t, ActionApplyGrace, a.Action)
	assert.False(t, a.Suspicious)
}

func TestDetector_SingleCheckAfterDeadConnectionClassifies(t *testing.T) {
	d, clock := newTestDetector()
	ids := make([]uuid.UUID, 10)
	for i := range ids {
		ids[i] = uuid.New()
		d.Register(ids[i])
		beat(d, clock, ids[i], 50, "")
	}

	// A dead socket is only noticed at its read deadline, after several
	// silent intervals. One check there must see every missed beat.
	clock.advance(disconnectAfterMissed*HeartbeatInterval + time.Second)
	a := d.CheckMissedHeartbeat(ids[0])
	require.NotNil(t, a)
	assert.GreaterOrEqual(t, a.Missed, disconnectAfterMissed)
	assert.Equal(t, DisconnectGenuine, a.Disconnect)
}

func TestDetector_LatencyAtSpikeFloorCounts(t *testing.T) {
	d, clock := newTestDetector()
	id := uuid.New()
	d.Register(id)

	// A noisy baseline around 450ms keeps the deviation test quiet so the
	// absolute floor decides alone.
	for i := 0; i < 16; i++ {
		rtt := 430.0
		if i%2 == 1 {
			rtt = 470.0
		}
		a := beat(d, clock, id, rtt, "")
		assert.Zero(t, a.SpikeCount)
	}

	a := beat(d, clock, id, 499, "")
	assert.Zero(t, a.SpikeCount, "just under the floor is not a spike")

	a = beat(d, clock, id, 500, "")
	assert.Equal(t, 1, a.SpikeCount, "the floor itself is a spike")
}

func TestDetector_FlaggedPlayerDisconnectIsLagSwitch(t *testing.T) {
	d, clock := newTestDetector()
	ids := make([]uuid.UUID, 10)
	for i := range ids {
		ids[i] = uuid.New()
		d.Register(ids[i])
	}
	cheat := ids[0]
	for i := 0; i < 15; i++ {
		beat(d, clock, cheat, 50, "")
	}
	for i := 0; i < 3; i++ {
		beat(d, clock, cheat, 700, "final_move")
	}

	clock.advance(HeartbeatInterval + HeartbeatTolerance + time.Second)
	var a *Analysis
	for i := 0; i < disconnectAfterMissed; i++ {
		a = d.CheckMissedHeartbeat(cheat)
	}
	require.NotNil(t, a)
	assert.Equal(t, DisconnectLagSwitch, a.Disconnect)
	assert.Equal(t, ActionFlagForReview, a.Action)
	assert.True(t, a.Suspicious)
}

func TestDetector_MassOutageOverridesSuspicion(t *testing.T) {
	d, clock := newTestDetector()
	ids := make([]uuid.UUID, 5)
	for i := range ids {
		ids[i] = uuid.New()
		d.Register(ids[i])
		beat(d, clock, ids[i], 50, "")
	}

	clock.advance(HeartbeatInterval + HeartbeatTolerance + time.Second)
	var a *Analysis
	for i := 0; i < disconnectAfterMissed; i++ {
		a = d.CheckMissedHeartbeat(ids[0])
	}
	require.NotNil(t, a)
	// One of five players dropping within the window crosses the 20% line.
	assert.Equal(t, DisconnectMassOutage, a.Disconnect)
	assert.Equal(t, ActionPauseOrRollback, a.Action)
	assert.False(t, a.Suspicious)
}
