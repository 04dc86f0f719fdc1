package physics

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func straightPenalty() Shot {
	return Shot{
		Start:           Vec3{X: 0, Y: 0, Z: 0.11},
		AngleHorizontal: 0,
		AngleVertical:   10,
		Power:           0.8,
	}
}

func TestPenaltySimulator_StraightShotScores(t *testing.T) {
	res := PenaltySimulator{}.Simulate(straightPenalty())
	assert.Equal(t, OutcomeGoal, res.Outcome)
	assert.GreaterOrEqual(t, res.Final.Y, penaltyDistance)
	assert.LessOrEqual(t, res.Final.Z, penaltyGoalHeight)
	assert.NotEmpty(t, res.Trajectory)
}

func TestPenaltySimulator_WideShotMisses(t *testing.T) {
	shot := straightPenalty()
	shot.AngleHorizontal = 30
	res := PenaltySimulator{}.Simulate(shot)
	assert.Equal(t, OutcomeMiss, res.Outcome)
	assert.Greater(t, res.Final.X, penaltyGoalWidth/2)
}

func TestPenaltySimulator_OverTheBarMisses(t *testing.T) {
	shot := straightPenalty()
	shot.AngleVertical = 45
	shot.Power = 1.0
	res := PenaltySimulator{}.Simulate(shot)
	assert.Equal(t, OutcomeMiss, res.Outcome)
	assert.Greater(t, res.Final.Z, penaltyGoalHeight)
}

func TestPenaltySimulator_WeakShotNeverArrives(t *testing.T) {
	shot := straightPenalty()
	shot.Power = 0.05
	res := PenaltySimulator{}.Simulate(shot)
	assert.Equal(t, OutcomeMiss, res.Outcome)
	assert.Less(t, res.Final.Y, penaltyDistance)
}

func TestPenaltySimulator_SpinCurvesShot(t *testing.T) {
	shot := straightPenalty()
	plain := PenaltySimulator{}.Simulate(shot)
	shot.SpinX = 20
	curved := PenaltySimulator{}.Simulate(shot)
	assert.Greater(t, curved.Final.X, plain.Final.X)
}

func TestPenaltySimulator_IsDeterministic(t *testing.T) {
	a := PenaltySimulator{}.Simulate(straightPenalty())
	b := PenaltySimulator{}.Simulate(straightPenalty())
	assert.Equal(t, a.Final, b.Final)
	assert.Equal(t, a.Outcome, b.Outcome)

	a.Seal("match-1", 0)
	b.Seal("match-1", 0)
	assert.Equal(t, a.Hash, b.Hash)
	b.Seal("match-1", 1)
	assert.NotEqual(t, a.Hash, b.Hash, "hash binds the shot index")
}

func TestBasketballSimulator_SomeArcScores(t *testing.T) {
	scored := false
	for power := 0.35; power <= 0.75; power += 0.005 {
		for angle := 42.0; angle <= 62.0; angle += 1.0 {
			shot := Shot{
				Start:         Vec3{X: 0, Y: 0, Z: 2.0},
				AngleVertical: angle,
				Power:         power,
			}
			if (BasketballSimulator{}).Simulate(shot).Outcome == OutcomeScore {
				scored = true
			}
		}
	}
	assert.True(t, scored, "a swept free-throw arc must contain scoring shots")
}

func TestBasketballSimulator_AirBallMisses(t *testing.T) {
	shot := Shot{Start: Vec3{Z: 2.0}, AngleVertical: 10, Power: 0.2}
	res := BasketballSimulator{}.Simulate(shot)
	assert.Equal(t, OutcomeMiss, res.Outcome)
}

func newTestValidator() *Validator {
	return NewValidator(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestValidator_MatchingClaimIsValid(t *testing.T) {
	v := newTestValidator()
	server := PenaltySimulator{}.Simulate(straightPenalty())

	report := v.ValidatePenalty(straightPenalty(), ClientClaim{Outcome: server.Outcome, Final: &server.Final}, "m1", 0)
	assert.Equal(t, VerdictValid, report.Verdict)
	assert.False(t, report.NeedsReview)
	assert.InDelta(t, 0, report.PositionDelta, 1e-9)
}

func TestValidator_MatchingOutcomeFarPositionIsMinor(t *testing.T) {
	v := newTestValidator()
	server := PenaltySimulator{}.Simulate(straightPenalty())
	off := Vec3{X: server.Final.X + 6, Y: server.Final.Y, Z: server.Final.Z}

	report := v.ValidatePenalty(straightPenalty(), ClientClaim{Outcome: server.Outcome, Final: &off}, "m1", 0)
	assert.Equal(t, VerdictMinor, report.Verdict)
	assert.False(t, report.NeedsReview)
}

func TestValidator_OutcomeMismatchIsMajor(t *testing.T) {
	v := newTestValidator()

	report := v.ValidatePenalty(straightPenalty(), ClientClaim{Outcome: OutcomeMiss}, "m1", 0)
	assert.Equal(t, VerdictMajor, report.Verdict)
	assert.True(t, report.NeedsReview)
}

func TestValidator_FarMismatchIsFraud(t *testing.T) {
	v := newTestValidator()
	server := PenaltySimulator{}.Simulate(straightPenalty())
	forged := Vec3{X: server.Final.X + 20, Y: server.Final.Y, Z: server.Final.Z}

	report := v.ValidatePenalty(straightPenalty(), ClientClaim{Outcome: OutcomeMiss, Final: &forged}, "m1", 0)
	assert.Equal(t, VerdictFraud, report.Verdict)
	assert.True(t, report.NeedsReview)
}

func TestValidator_SummaryTallies(t *testing.T) {
	v := newTestValidator()
	server := PenaltySimulator{}.Simulate(straightPenalty())

	v.ValidatePenalty(straightPenalty(), ClientClaim{Outcome: server.Outcome, Final: &server.Final}, "m1", 0)
	v.ValidatePenalty(straightPenalty(), ClientClaim{Outcome: OutcomeMiss}, "m1", 1)

	sum := v.Summary()
	assert.Equal(t, 2, sum.Total)
	assert.Equal(t, 1, sum.Valid)
	assert.Equal(t, 1, sum.Major)
	require.Equal(t, 1, sum.NeedsReview)
}
