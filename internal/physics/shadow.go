package physics

import (
	"log/slog"
	"sync"
)

// Verdict grades the client/server comparison for one shot.
type Verdict string

const (
	VerdictValid Verdict = "valid"
	VerdictMinor Verdict = "minor_discrepancy"
	VerdictMajor Verdict = "major_discrepancy"
	VerdictFraud Verdict = "fraud_detected"
)

// ClientClaim is what the client reported for the shot.
type ClientClaim struct {
	Outcome Outcome `json:"outcome"`
	Final   *Vec3   `json:"final_position,omitempty"`
}

// Report is the validation outcome for one shot.
type Report struct {
	Verdict       Verdict `json:"verdict"`
	Server        Result  `json:"server_result"`
	Client        Outcome `json:"client_outcome"`
	PositionDelta float64 `json:"position_delta"`
	NeedsReview   bool    `json:"requires_review"`
}

// Validator is the shadow simulation gate: every client shot is rerun server
// side and the divergence graded. The server result is authoritative in all
// cases; the verdict only decides whether a fraud review is opened.
type Validator struct {
	penalty PenaltySimulator
	basket  BasketballSimulator
	logger  *slog.Logger

	mu  sync.Mutex
	log []Report
}

// NewValidator creates a shadow validator.
func NewValidator(logger *slog.Logger) *Validator {
	return &Validator{logger: logger}
}

// ValidatePenalty reruns a penalty kick and grades the client claim.
func (v *Validator) ValidatePenalty(shot Shot, claim ClientClaim, matchID string, shotIndex int) Report {
	server := v.penalty.Simulate(shot)
	server.Seal(matchID, shotIndex)
	return v.compare(server, claim, matchID)
}

// ValidateBasketball reruns a free throw and grades the client claim.
func (v *Validator) ValidateBasketball(shot Shot, claim ClientClaim, matchID string, shotIndex int) Report {
	server := v.basket.Simulate(shot)
	server.Seal(matchID, shotIndex)
	return v.compare(server, claim, matchID)
}

func (v *Validator) compare(server Result, claim ClientClaim, matchID string) Report {
	delta := 0.0
	if claim.Final != nil {
		delta = server.Final.Distance(*claim.Final)
	}

	report := Report{
		Server:        server,
		Client:        claim.Outcome,
		PositionDelta: delta,
	}
	if server.Outcome == claim.Outcome {
		if delta <= PositionTolerance {
			report.Verdict = VerdictValid
		} else {
			report.Verdict = VerdictMinor
		}
	} else {
		report.NeedsReview = true
		if delta > PositionTolerance*3 {
			report.Verdict = VerdictFraud
		} else {
			report.Verdict = VerdictMajor
		}
	}

	v.mu.Lock()
	v.log = append(v.log, report)
	v.mu.Unlock()

	if report.NeedsReview {
		v.logger.Warn("shadow simulation mismatch",
			"match_id", matchID, "verdict", report.Verdict,
			"server_outcome", server.Outcome, "client_outcome", claim.Outcome,
			"position_delta", delta)
	}
	return report
}

// SessionSummary aggregates all validations recorded by this validator.
type SessionSummary struct {
	Total       int `json:"total"`
	Valid       int `json:"valid"`
	Minor       int `json:"minor"`
	Major       int `json:"major"`
	Fraud       int `json:"fraud"`
	NeedsReview int `json:"needs_review"`
}

// Summary returns the running validation tallies.
func (v *Validator) Summary() SessionSummary {
	v.mu.Lock()
	defer v.mu.Unlock()
	var s SessionSummary
	for _, r := range v.log {
		s.Total++
		switch r.Verdict {
		case VerdictValid:
			s.Valid++
		case VerdictMinor:
			s.Minor++
		case VerdictMajor:
			s.Major++
		case VerdictFraud:
			s.Fraud++
		}
		if r.NeedsReview {
			s.NeedsReview++
		}
	}
	return s
}
