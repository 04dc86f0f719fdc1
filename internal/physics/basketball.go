package physics

import "math"

// Free throw geometry and limits.
const (
	hoopHeight        = 3.05
	hoopRadius        = 0.23
	freeThrowDistance = 4.57
	basketMaxPower    = 15.0
	basketMaxSteps    = 300
	basketAirDrag     = 0.005
)

// BasketballSimulator resimulates free throws. A score requires the ball to
// pass through the hoop cylinder while descending.
type BasketballSimulator struct{}

// Simulate runs the full trajectory for one throw.
func (BasketballSimulator) Simulate(shot Shot) Result {
	velocity := shot.initialVelocity(basketMaxPower)
	position := shot.Start

	trajectory := []Vec3{position}
	elapsed := 0.0

	scored := false

	for step := 0; step < basketMaxSteps; step++ {
		velocity.Z -= Gravity * dt
		velocity.X *= 1 - basketAirDrag
		velocity.Y *= 1 - basketAirDrag
		// Backspin carries the ball slightly, the usual free-throw touch.
		if shot.SpinY < 0 {
			velocity.Z += math.Abs(shot.SpinY) * 0.02 * dt
		}

		prevZ := position.Z
		position = position.Add(velocity.Scale(dt))
		elapsed += dt
		trajectory = append(trajectory, position)

		if position.Y >= freeThrowDistance-0.2 && position.Y <= freeThrowDistance+0.2 {
			lateral := math.Abs(position.X)
			heightDiff := math.Abs(position.Z - hoopHeight)
			if lateral < hoopRadius && heightDiff < 0.15 && prevZ > position.Z {
				scored = true
			}
		}
		if position.Z <= 0 {
			break
		}
		if position.Y > freeThrowDistance+2 {
			break
		}
	}

	outcome := OutcomeMiss
	if scored {
		outcome = OutcomeScore
	}

	return Result{
		Final:      position,
		Outcome:    outcome,
		Trajectory: trajectory,
		Elapsed:    elapsed,
	}
}
