// Package physics reruns client-reported shots on the server. The client is
// never trusted: every shot is resimulated from its raw inputs and the two
// outcomes are compared by the shadow validator.
package physics

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
)

// Shared simulation constants. Distances are meters, time is seconds.
const (
	Gravity = 9.81
	dt      = 0.016 // fixed step, 60 Hz

	bounceBall = 0.7

	// PositionTolerance is the accepted client/server divergence in final
	// position before a matching outcome is downgraded.
	PositionTolerance = 5.0
)

// Outcome is the result of a simulated shot.
type Outcome string

const (
	OutcomeGoal  Outcome = "goal"
	OutcomeMiss  Outcome = "miss"
	OutcomeScore Outcome = "score"
)

// Shot is the raw client input for one attempt. Power is normalized 0..1 and
// scaled by each simulator's own maximum speed.
type Shot struct {
	Start Vec3 `json:"start_position"`

	AngleHorizontal float64 `json:"angle_horizontal"` // degrees
	AngleVertical   float64 `json:"angle_vertical"`   // degrees of elevation
	Power           float64 `json:"power"`            // 0..1

	SpinX float64 `json:"spin_x"`
	SpinY float64 `json:"spin_y"`
}

// initialVelocity decomposes angle and power into velocity components.
func (s Shot) initialVelocity(maxPower float64) Vec3 {
	h := s.AngleHorizontal * math.Pi / 180
	v := s.AngleVertical * math.Pi / 180
	speed := s.Power * maxPower
	return Vec3{
		X: speed * math.Cos(v) * math.Sin(h),
		Y: speed * math.Cos(v) * math.Cos(h),
		Z: speed * math.Sin(v),
	}
}

// Result is the server-side outcome of one shot.
type Result struct {
	Final      Vec3    `json:"final_position"`
	Outcome    Outcome `json:"outcome"`
	Trajectory []Vec3  `json:"-"`
	Elapsed    float64 `json:"simulation_time"`
	Hash       string  `json:"result_hash,omitempty"`
}

// Seal computes the audit hash binding this result to its match and shot
// index.
func (r *Result) Seal(matchID string, shotIndex int) {
	data := fmt.Sprintf("%s:%d:%.4f,%.4f,%.4f:%s",
		matchID, shotIndex, r.Final.X, r.Final.Y, r.Final.Z, r.Outcome)
	sum := sha256.Sum256([]byte(data))
	r.Hash = hex.EncodeToString(sum[:])
}
