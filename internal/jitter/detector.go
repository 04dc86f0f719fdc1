// Package jitter watches per-player latency to catch lag switching: players
// who degrade their own connection at decisive moments to dodge a losing
// outcome. A per-player baseline separates genuinely bad connections from
// spikes that cluster around critical game states.
package jitter

import (
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Heartbeat cadence and detection tuning.
const (
	HeartbeatInterval  = 3 * time.Second
	HeartbeatTolerance = 1 * time.Second
	GracePeriod        = 45 * time.Second

	baselineSamples     = 10
	sampleCapacity      = 100
	spikeStdThreshold   = 2.5
	spikeLatencyMillis  = 500.0
	maxSpikesBeforeFlag = 3
	spikeWindow         = 60 * time.Second

	disconnectAfterMissed = 3
	disconnectWindow      = 30 * time.Second
	massDisconnectRatio   = 0.20
)

// Quality buckets a player's connection by RTT.
type Quality string

const (
	QualityExcellent Quality = "excellent"
	QualityGood      Quality = "good"
	QualityFair      Quality = "fair"
	QualityPoor      Quality = "poor"
	QualityCritical  Quality = "critical"
)

// DisconnectKind classifies a detected disconnect.
type DisconnectKind string

const (
	DisconnectGenuine    DisconnectKind = "genuine"
	DisconnectSuspicious DisconnectKind = "suspicious"
	DisconnectLagSwitch  DisconnectKind = "lag_switch"
	DisconnectMassOutage DisconnectKind = "mass_outage"
)

// Trend describes the short-term latency direction.
type Trend string

const (
	TrendStable       Trend = "stable"
	TrendIncreasing   Trend = "increasing"
	TrendDecreasing   Trend = "decreasing"
	TrendEstablishing Trend = "establishing_baseline"
	TrendDisconnected Trend = "disconnected"
)

// Action is the recommended handling for an analysis result.
type Action string

const (
	ActionNone            Action = ""
	ActionMonitor         Action = "monitor"
	ActionApplyGrace      Action = "apply_grace_period"
	ActionMonitorRejoin   Action = "monitor_on_reconnect"
	ActionFlagForReview   Action = "flag_for_review"
	ActionPauseOrRollback Action = "pause_match_or_rollback"
)

// criticalStates are the game states where a latency spike is most suspect.
var criticalStates = map[string]bool{
	"shooting":         true,
	"defending":        true,
	"penalty":          true,
	"match_point":      true,
	"final_move":       true,
	"winning_position": true,
	"losing_position":  true,
}

func isCriticalMoment(gameState string) bool {
	return criticalStates[strings.ToLower(gameState)]
}

type sample struct {
	at        time.Time
	rttMillis float64
	gameState string
}

type profile struct {
	ring  [sampleCapacity]sample
	next  int
	count int

	baselineRTT float64
	baselineStd float64
	currentRTT  float64

	spikeTimes []time.Time
	quality    Quality

	flagged    bool
	flagReason string

	missed        int
	lastHeartbeat time.Time

	criticalSpikes  int
	criticalMoments int
}

func (p *profile) push(s sample) {
	p.ring[p.next] = s
	p.next = (p.next + 1) % sampleCapacity
	if p.count < sampleCapacity {
		p.count++
	}
}

// last returns up to n most recent samples, oldest first.
func (p *profile) last(n int) []sample {
	if n > p.count {
		n = p.count
	}
	out := make([]sample, 0, n)
	for i := n; i > 0; i-- {
		idx := (p.next - i + sampleCapacity*2) % sampleCapacity
		out = append(out, p.ring[idx])
	}
	return out
}

// Analysis is the result of processing one heartbeat or a missed-heartbeat
// check.
type Analysis struct {
	AccountID uuid.UUID `json:"account_id"`
	At        time.Time `json:"at"`

	RTTMillis     float64 `json:"rtt_ms"`
	BaselineRTT   float64 `json:"baseline_rtt_ms"`
	Jitter        float64 `json:"jitter"`
	Score         float64 `json:"jitter_score"`
	Trend         Trend   `json:"latency_trend"`
	Quality       Quality `json:"connection_quality"`
	SpikeCount    int     `json:"spike_count"`
	CriticalRatio float64 `json:"critical_spike_ratio"`

	Suspicious bool           `json:"is_suspicious"`
	Disconnect DisconnectKind `json:"disconnect_type,omitempty"`
	Missed     int            `json:"missed_heartbeats,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Action     Action         `json:"recommended_action,omitempty"`
}

// Detector tracks latency profiles for all connected players.
type Detector struct {
	mu       sync.Mutex
	profiles map[uuid.UUID]*profile
	active   map[uuid.UUID]time.Time

	recentDisconnects []disconnectMark

	logger *slog.Logger
	now    func() time.Time
}

type disconnectMark struct {
	accountID uuid.UUID
	at        time.Time
}

// NewDetector creates an empty detector.
func NewDetector(logger *slog.Logger) *Detector {
	return &Detector{
		profiles: make(map[uuid.UUID]*profile),
		active:   make(map[uuid.UUID]time.Time),
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock overrides the detector clock. Test helper.
func (d *Detector) WithClock(now func() time.Time) *Detector {
	d.now = now
	return d
}

// Register starts monitoring a player.
func (d *Detector) Register(accountID uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.profiles[accountID]; !ok {
		d.profiles[accountID] = &profile{quality: QualityGood, lastHeartbeat: d.now()}
	}
	d.active[accountID] = d.now()
}

// Unregister drops a player's profile.
func (d *Detector) Unregister(accountID uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.profiles, accountID)
	delete(d.active, accountID)
}

// ProcessHeartbeat folds one heartbeat into the player's profile and returns
// the jitter analysis. RTT is approximated from the client send timestamp;
// clock skew between client and server shifts the baseline and the deviation
// equally, so the spike detection is unaffected.
func (d *Detector) ProcessHeartbeat(accountID uuid.UUID, clientSent time.Time, gameState string) Analysis {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	p, ok := d.profiles[accountID]
	if !ok {
		p = &profile{quality: QualityGood}
		d.profiles[accountID] = p
	}

	rtt := float64(now.Sub(clientSent)) / float64(time.Millisecond)
	if rtt < 0 {
		rtt = 0
	}
	p.push(sample{at: now, rttMillis: rtt, gameState: gameState})
	p.currentRTT = rtt
	p.lastHeartbeat = now
	p.missed = 0
	d.active[accountID] = now

	if p.count >= baselineSamples {
		p.updateBaseline()
	}
	return d.analyze(accountID, p, rtt, gameState, now)
}

// updateBaseline recomputes the trimmed mean and stdev over the last 20
// samples, discarding the two lowest and two highest RTTs.
func (p *profile) updateBaseline() {
	recent := p.last(20)
	rtts := make([]float64, len(recent))
	for i, s := range recent {
		rtts[i] = s.rttMillis
	}
	sort.Float64s(rtts)
	if len(rtts) > 4 {
		rtts = rtts[2 : len(rtts)-2]
	}
	p.baselineRTT = mean(rtts)
	p.baselineStd = stdev(rtts, p.baselineRTT)
}

func (d *Detector) analyze(accountID uuid.UUID, p *profile, rtt float64, gameState string, now time.Time) Analysis {
	if p.baselineRTT == 0 {
		return Analysis{
			AccountID: accountID,
			At:        now,
			RTTMillis: rtt,
			Trend:     TrendEstablishing,
			Quality:   classifyQuality(rtt),
		}
	}

	deviation := rtt - p.baselineRTT
	normalized := deviation / (p.baselineStd + 1)

	// A reading sitting exactly on a threshold counts as a spike.
	isSpike := rtt >= spikeLatencyMillis || normalized >= spikeStdThreshold
	critical := isCriticalMoment(gameState)
	if isSpike {
		p.spikeTimes = append(p.spikeTimes, now)
		cutoff := now.Add(-spikeWindow)
		kept := p.spikeTimes[:0]
		for _, ts := range p.spikeTimes {
			if ts.After(cutoff) {
				kept = append(kept, ts)
			}
		}
		p.spikeTimes = kept
		if critical {
			p.criticalSpikes++
		}
	}
	if critical {
		p.criticalMoments++
	}

	score := math.Min(30, math.Abs(normalized)*10)
	score += math.Min(30, float64(len(p.spikeTimes))*5)
	criticalRatio := 0.0
	if p.criticalMoments > 0 {
		criticalRatio = float64(p.criticalSpikes) / float64(p.criticalMoments)
		score += criticalRatio * 40
	}
	score = math.Min(100, score)

	p.quality = classifyQuality(rtt)

	suspicious := false
	reason := ""
	if len(p.spikeTimes) >= maxSpikesBeforeFlag {
		suspicious = true
		reason = "multiple latency spikes"
	}
	if p.criticalMoments >= 5 && criticalRatio > 0.6 {
		suspicious = true
		reason = "spikes cluster at critical moments"
		score = math.Min(100, score+30)
	}
	if suspicious && !p.flagged {
		p.flagged = true
		p.flagReason = reason
		d.logger.Warn("player flagged for lag switching",
			"account_id", accountID, "reason", reason, "score", score)
	}

	action := ActionNone
	if suspicious {
		action = ActionMonitor
	}
	return Analysis{
		AccountID:     accountID,
		At:            now,
		RTTMillis:     rtt,
		BaselineRTT:   p.baselineRTT,
		Jitter:        normalized,
		Score:         score,
		Trend:         p.trend(),
		Quality:       p.quality,
		SpikeCount:    len(p.spikeTimes),
		CriticalRatio: criticalRatio,
		Suspicious:    suspicious,
		Disconnect:    DisconnectGenuine,
		Reason:        reason,
		Action:        action,
	}
}

// CheckMissedHeartbeat counts the heartbeats a player owes. Every full
// interval elapsed since the last beat is a miss, so a single check at
// socket teardown sees the same count as a watchdog polling each interval.
// After three missed beats the disconnect is classified and an analysis
// returned; before that it returns nil.
func (d *Detector) CheckMissedHeartbeat(accountID uuid.UUID) *Analysis {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.profiles[accountID]
	if !ok {
		return nil
	}
	now := d.now()
	elapsed := now.Sub(p.lastHeartbeat)
	if elapsed <= HeartbeatInterval+HeartbeatTolerance {
		return nil
	}
	missed := int(elapsed / HeartbeatInterval)
	if missed <= p.missed {
		missed = p.missed + 1
	}
	p.missed = missed
	if p.missed < disconnectAfterMissed {
		return nil
	}

	kind := d.classifyDisconnect(accountID, p, now)
	analysis := &Analysis{
		AccountID:  accountID,
		At:         now,
		RTTMillis:  math.Inf(1),
		Score:      100,
		Trend:      TrendDisconnected,
		Quality:    QualityCritical,
		Suspicious: kind != DisconnectGenuine && kind != DisconnectMassOutage,
		Disconnect: kind,
		Missed:     p.missed,
		Action:     disconnectAction(kind),
	}
	if kind == DisconnectLagSwitch {
		d.logger.Warn("lag switch disconnect", "account_id", accountID, "missed", p.missed)
	}
	return analysis
}

func (d *Detector) classifyDisconnect(accountID uuid.UUID, p *profile, now time.Time) DisconnectKind {
	d.recentDisconnects = append(d.recentDisconnects, disconnectMark{accountID: accountID, at: now})
	cutoff := now.Add(-disconnectWindow)
	kept := d.recentDisconnects[:0]
	for _, m := range d.recentDisconnects {
		if m.at.After(cutoff) {
			kept = append(kept, m)
		}
	}
	d.recentDisconnects = kept

	if len(d.active) > 0 {
		ratio := float64(len(d.recentDisconnects)) / float64(len(d.active))
		if ratio >= massDisconnectRatio {
			return DisconnectMassOutage
		}
	}
	if p.flagged {
		return DisconnectLagSwitch
	}
	if len(p.spikeTimes) >= 2 {
		return DisconnectSuspicious
	}
	return DisconnectGenuine
}

func disconnectAction(kind DisconnectKind) Action {
	switch kind {
	case DisconnectSuspicious:
		return ActionMonitorRejoin
	case DisconnectLagSwitch:
		return ActionFlagForReview
	case DisconnectMassOutage:
		return ActionPauseOrRollback
	default:
		return ActionApplyGrace
	}
}

// trend compares the mean of the last 10 samples against the 10 before them.
func (p *profile) trend() Trend {
	if p.count < 5 {
		return TrendEstablishing
	}
	all := p.last(20)
	if len(all) <= 10 {
		return TrendEstablishing
	}
	split := len(all) - 10
	olderAvg := meanSamples(all[:split])
	recentAvg := meanSamples(all[split:])

	diff := recentAvg - olderAvg
	threshold := p.baselineStd * 0.5
	switch {
	case math.Abs(diff) < threshold:
		return TrendStable
	case diff > 0:
		return TrendIncreasing
	default:
		return TrendDecreasing
	}
}

func classifyQuality(rtt float64) Quality {
	switch {
	case rtt < 50:
		return QualityExcellent
	case rtt < 100:
		return QualityGood
	case rtt < 200:
		return QualityFair
	case rtt < 500:
		return QualityPoor
	default:
		return QualityCritical
	}
}

// Summary is the operator-facing view of one player's profile.
type Summary struct {
	AccountID     uuid.UUID `json:"account_id"`
	BaselineRTT   float64   `json:"baseline_rtt_ms"`
	CurrentRTT    float64   `json:"current_rtt_ms"`
	Quality       Quality   `json:"connection_quality"`
	Flagged       bool      `json:"is_flagged"`
	FlagReason    string    `json:"flag_reason,omitempty"`
	SpikeCount    int       `json:"spike_count"`
	Missed        int       `json:"missed_heartbeats"`
	SampleCount   int       `json:"samples_collected"`
}

// PlayerSummary returns the current profile snapshot, or nil for unknown
// players.
func (d *Detector) PlayerSummary(accountID uuid.UUID) *Summary {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.profiles[accountID]
	if !ok {
		return nil
	}
	return &Summary{
		AccountID:   accountID,
		BaselineRTT: p.baselineRTT,
		CurrentRTT:  p.currentRTT,
		Quality:     p.quality,
		Flagged:     p.flagged,
		FlagReason:  p.flagReason,
		SpikeCount:  len(p.spikeTimes),
		Missed:      p.missed,
		SampleCount: p.count,
	}
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func meanSamples(ss []sample) float64 {
	if len(ss) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range ss {
		sum += s.rttMillis
	}
	return sum / float64(len(ss))
}

// stdev is the sample standard deviation.
func stdev(xs []float64, avg float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		d := x - avg
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)-1))
}
