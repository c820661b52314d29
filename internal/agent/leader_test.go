package agent

import (
	"testing"

	"cityhaul.ai/internal/protocol"
)

func TestLeaderDeterministicLowestName(t *testing.T) {
	s := NewState("A3", "teamA", "drone")
	s.ApplyPercept(protocol.EntityPercept(protocol.EntityInfo{Name: "A1", Team: "teamA", Role: "drone"}))
	s.ApplyPercept(protocol.EntityPercept(protocol.EntityInfo{Name: "A2", Team: "teamA", Role: "drone"}))

	c := &LeaderCoordinator{}
	c.Resolve(s)
	if s.Leader != "A1" {
		t.Fatalf("leader = %q, want A1 (lowest name)", s.Leader)
	}
}

func TestLeaderSelfWhenAlone(t *testing.T) {
	s := NewState("A5", "teamA", "drone")
	c := &LeaderCoordinator{}
	out := c.Resolve(s)
	if s.Leader != "A5" {
		t.Fatalf("leader = %q, want self", s.Leader)
	}
	if len(out) != 1 || out[0].Name != protocol.PerceptLeader {
		t.Fatalf("first self-election must announce, got %v", out)
	}
	// The announcement goes out once.
	if out := c.Resolve(s); len(out) != 0 {
		t.Fatalf("repeat announcement: %v", out)
	}
}

func TestLeaderConvergesAsParticipantsAppear(t *testing.T) {
	s := NewState("A5", "teamA", "drone")
	c := &LeaderCoordinator{}
	c.Resolve(s)
	if s.Leader != "A5" {
		t.Fatalf("alone: leader = %q", s.Leader)
	}

	// A smaller name shows up; the rule re-elects deterministically.
	s.ApplyMessage("A2", protocol.LeaderPercept())
	c.Resolve(s)
	if s.Leader != "A2" {
		t.Fatalf("leader = %q, want A2", s.Leader)
	}
}

func TestLeaderAgreementAcrossTeam(t *testing.T) {
	names := []string{"A1", "A2", "A3"}
	var states []*State
	for _, n := range names {
		s := NewState(n, "teamA", "drone")
		for _, peer := range names {
			s.ApplyPercept(protocol.EntityPercept(protocol.EntityInfo{Name: peer, Team: "teamA", Role: "drone"}))
		}
		states = append(states, s)
	}
	for _, s := range states {
		(&LeaderCoordinator{}).Resolve(s)
		if s.Leader != "A1" {
			t.Fatalf("%s believes leader is %q, want A1", s.Self, s.Leader)
		}
	}
}

func TestTruckDoesNotElect(t *testing.T) {
	s := NewState("T1", "teamA", "truck")
	c := &LeaderCoordinator{}
	if out := c.Resolve(s); out != nil || s.Leader != "" {
		t.Fatalf("trucks must not take part in the election")
	}
}
