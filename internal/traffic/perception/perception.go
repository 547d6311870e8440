// Package perception classifies the traffic immediately around a vehicle.
//
// Responsibilities: scanning a tick snapshot for peers that overlap the
// subject's braking envelope (ahead) or whose own braking envelope
// reaches the subject (behind), in the subject's lane and the two
// adjacent lanes. A peer counts as ahead when its rear bumper falls
// within [front, front+stopping distance] of the subject.
// Key types: Perception.
//
// Dependency rule: perception depends only on vehicle. It is a pure
// function of its inputs and never mutates the snapshot.
package perception

import "github.com/banshee-data/lanesim/internal/traffic/vehicle"

// Perception is the occupancy classification for one vehicle and one tick.
type Perception struct {
	CarFront bool `json:"car_front"`
	CarLeft  bool `json:"car_left"`
	CarRight bool `json:"car_right"`
}

// Blocked reports whether the given lane-change intent is blocked by a
// peer on that side. Non lane-change intents are never blocked.
func (p Perception) Blocked(in vehicle.Intent) bool {
	switch in {
	case vehicle.LaneChangeLeft:
		return p.CarLeft
	case vehicle.LaneChangeRight:
		return p.CarRight
	default:
		return false
	}
}

// Analyze classifies the peers in snapshot relative to subject. The
// subject itself may appear in snapshot; it is skipped by ID.
func Analyze(subject vehicle.State, snapshot []vehicle.State) Perception {
	var p Perception
	for i := range snapshot {
		peer := &snapshot[i]
		if peer.ID == subject.ID {
			continue
		}

		laneDiff := peer.Lane - subject.Lane
		if laneDiff < -1 || laneDiff > 1 {
			continue
		}

		ahead := ForwardOverlap(subject, *peer)
		switch laneDiff {
		case 0:
			if ahead {
				p.CarFront = true
			}
		case 1:
			if ahead || RearOverlap(subject, *peer) {
				p.CarLeft = true
			}
		case -1:
			if ahead || RearOverlap(subject, *peer) {
				p.CarRight = true
			}
		}

		if p.CarFront && p.CarLeft && p.CarRight {
			break
		}
	}
	return p
}

// ForwardOverlap reports whether peer is at or ahead of subject and its
// rear bumper lies within the subject's front bumper plus stopping
// distance. Lanes are not compared.
func ForwardOverlap(subject, peer vehicle.State) bool {
	if peer.Position < subject.Position {
		return false
	}
	return peer.Position <= subject.Front()+subject.StoppingDistance()
}

// RearOverlap reports whether peer is behind subject and the subject's
// rear bumper lies within the peer's front bumper plus the peer's own
// stopping distance. Lanes are not compared.
func RearOverlap(subject, peer vehicle.State) bool {
	if peer.Position >= subject.Position {
		return false
	}
	return subject.Position <= peer.Front()+peer.StoppingDistance()
}
