package agent

import (
	"sort"

	"cityhaul.ai/internal/protocol"
)

// State is one agent's private, eventually consistent replica of the game.
// It is reconciled only by applying inbound percepts and team messages:
// set-union for claim sets, last-write for scalar facts. Nothing here is
// shared between agents.
type State struct {
	Self string
	Team string
	Role string

	Step   int
	Leader string
	MyJob  string

	Jobs      map[string]protocol.JobInfo
	Storages  map[string]protocol.StorageInfo
	Entities  map[string]protocol.EntityInfo
	Resources map[string]protocol.ResourceNodeInfo

	// Drone peers of the own team, including self once sighted. Input to the
	// deterministic leader rule.
	Participants map[string]bool

	// JobsTaken only ever grows within one game.
	JobsTaken map[string]bool
	// Proposals is a multiset: duplicate proposals of one job signal
	// contention at the mediator.
	Proposals   map[string]int
	Suggestions map[string]bool
}

func NewState(self, team, role string) *State {
	return &State{
		Self:         self,
		Team:         team,
		Role:         role,
		Jobs:         map[string]protocol.JobInfo{},
		Storages:     map[string]protocol.StorageInfo{},
		Entities:     map[string]protocol.EntityInfo{},
		Resources:    map[string]protocol.ResourceNodeInfo{},
		Participants: map[string]bool{self: true},
		JobsTaken:    map[string]bool{},
		Proposals:    map[string]int{},
		Suggestions:  map[string]bool{},
	}
}

// ApplyPercept merges one world fact from the server into the replica.
func (s *State) ApplyPercept(p protocol.Percept) {
	switch p.Name {
	case protocol.PerceptStep:
		s.Step = p.IntParam(0)
	case protocol.PerceptJob:
		j := protocol.DecodeJob(p)
		if j.Name == "" {
			return
		}
		s.Jobs[j.Name] = j
	case protocol.PerceptStorage:
		st := protocol.DecodeStorage(p)
		if st.Name == "" {
			return
		}
		s.Storages[st.Name] = st
	case protocol.PerceptEntity:
		s.applyEntity(protocol.DecodeEntity(p))
	case protocol.PerceptResourceNode:
		s.applyResourceNode(protocol.DecodeResourceNode(p))
	case protocol.PerceptTaken:
		if name := p.StringParam(0); name != "" {
			s.JobsTaken[name] = true
		}
	case protocol.PerceptProposals:
		if name := p.StringParam(0); name != "" {
			s.Proposals[name]++
		}
	case protocol.PerceptSuggestions:
		if name := p.StringParam(0); name != "" {
			s.Suggestions[name] = true
		}
	}
}

// ApplyMessage merges one team broadcast, delivered a round after it was
// sent. The sender identity comes from the transport envelope.
func (s *State) ApplyMessage(from string, p protocol.Percept) {
	switch p.Name {
	case protocol.PerceptLeader:
		// A nomination names its sender. The deterministic rule recomputes
		// the leader from participants each round; recording the sender here
		// both seeds the participant set and bootstraps agents that have not
		// sighted the full team yet.
		s.Participants[from] = true
		if s.Leader == "" {
			s.Leader = from
		}
	case protocol.PerceptTaken:
		if name := p.StringParam(0); name != "" {
			s.JobsTaken[name] = true
		}
	case protocol.PerceptProposals:
		if name := p.StringParam(0); name != "" {
			s.Proposals[name]++
		}
	case protocol.PerceptSuggestions:
		if name := p.StringParam(0); name != "" {
			s.Suggestions[name] = true
		}
	case protocol.PerceptEntity:
		s.applyEntity(protocol.DecodeEntity(p))
	case protocol.PerceptResourceNode:
		s.applyResourceNode(protocol.DecodeResourceNode(p))
	}
}

func (s *State) applyResourceNode(r protocol.ResourceNodeInfo) {
	if r.Name == "" {
		return
	}
	s.Resources[r.Name] = r
}

func (s *State) applyEntity(e protocol.EntityInfo) {
	if e.Name == "" {
		return
	}
	s.Entities[e.Name] = e
	if e.Role == "drone" && (e.Team == "" || e.Team == s.Team) {
		s.Participants[e.Name] = true
	}
}

// pruneClaimed drops already-claimed jobs from proposals and suggestions.
// Runs before every negotiation decision.
func (s *State) pruneClaimed() {
	for name := range s.JobsTaken {
		delete(s.Proposals, name)
		delete(s.Suggestions, name)
	}
}

// availableJobs returns known jobs nobody has claimed, sorted.
func (s *State) availableJobs() []string {
	out := make([]string, 0, len(s.Jobs))
	for name := range s.Jobs {
		if !s.JobsTaken[name] {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
