package shield

import (
	"github.com/google/uuid"

	"github.com/kompite/arena/internal/domain"
)

// Severity grades a collusion indicator or the overall report.
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// frequentEncounterLimit is how many matches a pair may play together before
// it counts as a collusion indicator.
const frequentEncounterLimit = 10

// Indicator is one collusion signal between two accounts.
type Indicator struct {
	Name     string   `json:"name"`
	Severity Severity `json:"severity"`
}

// CollusionReport is the pairwise assessment used to gate match entry.
type CollusionReport struct {
	Level      Severity    `json:"level"`
	Indicators []Indicator `json:"indicators,omitempty"`
}

// Blocks reports whether the level forbids matching the pair together.
func (r *CollusionReport) Blocks() bool {
	return r.Level == SeverityHigh || r.Level == SeverityCritical
}

// CheckCollusion evaluates the collusion signals between two accounts:
// current shared IP or device, historical IP or device overlap within the
// retention window, and how often the pair met. A high-severity indicator
// combined with three or more indicators escalates to critical.
func (s *Shield) CheckCollusion(a, b uuid.UUID) *CollusionReport {
	now := s.now()
	report := &CollusionReport{Level: SeverityNone}
	add := func(name string, sev Severity) {
		report.Indicators = append(report.Indicators, Indicator{Name: name, Severity: sev})
		if rank(sev) > rank(report.Level) {
			report.Level = sev
		}
	}

	s.store.mu.Lock()
	sameIP := false
	for ip, seenA := range s.store.ipHistory[a] {
		if now.Sub(seenA) > historyTTL {
			continue
		}
		for _, id := range shared(s.store.ipIndex, ip, a, now) {
			if id == b {
				sameIP = true
			}
		}
	}
	sameDevice := false
	for device, seenA := range s.store.deviceHistory[a] {
		if now.Sub(seenA) > historyTTL {
			continue
		}
		for _, id := range shared(s.store.deviceIndex, device, a, now) {
			if id == b {
				sameDevice = true
			}
		}
	}
	ipOverlap := historyOverlap(s.store.ipHistory, a, b, now)
	deviceOverlap := historyOverlap(s.store.deviceHistory, a, b, now)
	met := s.store.encounters[newPairKey(a, b)]
	s.store.mu.Unlock()

	if sameIP {
		add("same_ip", SeverityMedium)
	}
	if sameDevice {
		add("same_device", SeverityHigh)
	}
	if ipOverlap && !sameIP {
		add("ip_history_overlap", SeverityMedium)
	}
	if deviceOverlap && !sameDevice {
		add("device_history_overlap", SeverityHigh)
	}
	if met > frequentEncounterLimit {
		add("frequent_encounters", SeverityMedium)
	}

	if report.Level == SeverityHigh && len(report.Indicators) >= 3 {
		report.Level = SeverityCritical
	}
	return report
}

func rank(s Severity) int {
	switch s {
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	default:
		return 0
	}
}

// VerifyMatchEntry runs the pairwise collusion check over every pair of
// participants and refuses the lobby on any blocking pair.
func (s *Shield) VerifyMatchEntry(participants []uuid.UUID) error {
	for i := 0; i < len(participants); i++ {
		for j := i + 1; j < len(participants); j++ {
			report := s.CheckCollusion(participants[i], participants[j])
			if report.Blocks() {
				s.logger.Warn("match entry refused for collusion risk",
					"a", participants[i], "b", participants[j],
					"level", report.Level, "indicators", len(report.Indicators))
				return domain.ErrCollusionSuspected(string(report.Level))
			}
		}
	}
	return nil
}
