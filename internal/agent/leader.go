package agent

import "cityhaul.ai/internal/protocol"

// LeaderCoordinator picks the team's mediator. The rule is deterministic and
// needs no consensus round-trip: the lexicographically smallest drone name
// among the known participants (self included) is the leader, recomputed
// every round as the participant replica grows. All agents converge on the
// same mediator as soon as their participant sets agree.
//
// A nomination broadcast is still emitted the first round an agent computes
// itself as leader, so peers that have not sighted the full team yet learn a
// usable mediator immediately.
type LeaderCoordinator struct {
	announced bool
}

// Resolve updates s.Leader and returns a nomination broadcast to send, if
// any. Only drones take part in the election.
func (c *LeaderCoordinator) Resolve(s *State) []protocol.Percept {
	if s.Role != "drone" {
		return nil
	}

	leader := ""
	for _, name := range sortedKeys(s.Participants) {
		leader = name
		break
	}
	if leader == "" {
		leader = s.Self
	}
	s.Leader = leader

	if leader == s.Self && !c.announced {
		c.announced = true
		return []protocol.Percept{protocol.LeaderPercept()}
	}
	return nil
}
