package vehicle

// Intent is the single action a vehicle commits to for one tick.
type Intent string

const (
	Cruise          Intent = "cruise"            // hold speed and lane
	Accelerate      Intent = "accelerate"        // speed += acceleration·dt
	Decelerate      Intent = "decelerate"        // speed += deceleration·dt, floored at 0
	LaneChangeLeft  Intent = "lane_change_left"  // lane + 1
	LaneChangeRight Intent = "lane_change_right" // lane - 1
)

// Intents lists every valid intent in declaration order.
var Intents = []Intent{Cruise, Accelerate, Decelerate, LaneChangeLeft, LaneChangeRight}

// Valid reports whether i is one of the declared intents.
func (i Intent) Valid() bool {
	switch i {
	case Cruise, Accelerate, Decelerate, LaneChangeLeft, LaneChangeRight:
		return true
	}
	return false
}

// LaneDelta returns the lane index change implied by the intent.
func (i Intent) LaneDelta() int {
	switch i {
	case LaneChangeLeft:
		return 1
	case LaneChangeRight:
		return -1
	default:
		return 0
	}
}

// IsLaneChange reports whether the intent moves the vehicle to another lane.
func (i Intent) IsLaneChange() bool {
	return i == LaneChangeLeft || i == LaneChangeRight
}
