// Package vehicle owns the kinematic state of a simulated vehicle.
//
// Responsibilities: the per-vehicle record (position, speed, lane, limits,
// geometry), construction-time validation, stopping distance, the Intent
// enumeration and the per-vehicle driving Policy.
// Key types: State, Params, Intent, Policy.
//
// Dependency rule: vehicle depends on nothing else in this module.
// Perception, intent selection and integration all build on it.
//
// Lane convention: lane 0 is the rightmost lane. LaneChangeLeft moves a
// vehicle to Lane+1 and LaneChangeRight to Lane-1. A peer whose lane is
// one higher than the subject's is on its left.
//
// Geometry: Position is the rear bumper, measured in metres along the
// direction of travel. The body occupies [Position, Position+Length].
package vehicle
