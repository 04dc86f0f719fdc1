package physics

import "math"

// Penalty kick geometry and limits.
const (
	penaltyGoalWidth  = 7.32
	penaltyGoalHeight = 2.44
	penaltyDistance   = 11.0
	penaltyMaxPower   = 35.0
	penaltyMaxSteps   = 500
	penaltyAirDrag    = 0.01
)

// PenaltySimulator resimulates penalty kicks: gravity, air drag, a simplified
// Magnus force from spin, and ground bounces until the ball crosses the goal
// line or dies.
type PenaltySimulator struct{}

// Simulate runs the full trajectory for one kick.
func (PenaltySimulator) Simulate(shot Shot) Result {
	velocity := shot.initialVelocity(penaltyMaxPower)
	position := shot.Start

	trajectory := []Vec3{position}
	elapsed := 0.0

	for step := 0; step < penaltyMaxSteps; step++ {
		velocity.Z -= Gravity * dt
		velocity.X *= 1 - penaltyAirDrag
		velocity.Y *= 1 - penaltyAirDrag
		if shot.SpinX != 0 {
			velocity.X += shot.SpinX * 0.1 * dt
		}
		if shot.SpinY != 0 {
			velocity.Z += shot.SpinY * 0.05 * dt
		}

		position = position.Add(velocity.Scale(dt))
		elapsed += dt
		trajectory = append(trajectory, position)

		if position.Y >= penaltyDistance {
			break
		}
		if position.Z <= 0 {
			position.Z = 0
			velocity.Z = -velocity.Z * bounceBall
			if math.Abs(velocity.Z) < 0.5 {
				break
			}
		}
	}

	return Result{
		Final:      position,
		Outcome:    evaluatePenalty(position),
		Trajectory: trajectory,
		Elapsed:    elapsed,
	}
}

// evaluatePenalty checks the final position against the goal frame. A shot
// inside the frame on the goal line is a goal; keeper logic is not modeled.
func evaluatePenalty(final Vec3) Outcome {
	if final.Y < penaltyDistance {
		return OutcomeMiss
	}
	if math.Abs(final.X) > penaltyGoalWidth/2 {
		return OutcomeMiss
	}
	if final.Z > penaltyGoalHeight || final.Z < 0 {
		return OutcomeMiss
	}
	return OutcomeGoal
}
