package agent

import (
	"math/rand"
	"sort"

	"cityhaul.ai/internal/protocol"
)

// Negotiator is the per-agent claiming state machine. It never mutates
// anything outside the local State; coordination happens purely through the
// broadcasts it returns. Ties that must be stable across agents use sorted
// order; picks the protocol leaves free are drawn from the injected seeded
// RNG so games replay deterministically.
type Negotiator struct {
	rng               *rand.Rand
	eligibilityWindow int
}

func NewNegotiator(rng *rand.Rand, eligibilityWindow int) *Negotiator {
	if eligibilityWindow <= 0 {
		eligibilityWindow = 100
	}
	return &Negotiator{rng: rng, eligibilityWindow: eligibilityWindow}
}

// Mediate runs the mediator branch: arbitrate the round's proposals into one
// non-colliding suggestion. Returns the broadcasts to send.
func (n *Negotiator) Mediate(s *State) []protocol.Percept {
	s.pruneClaimed()
	if len(s.Proposals) == 0 {
		return nil
	}

	// Deterministic pick: the smallest proposed job name.
	proposed := sortedKeys(s.Proposals)[0]
	occurrences := s.Proposals[proposed]

	suggestion := proposed
	if occurrences > 1 {
		// Contention: several agents want the same job. Suggest a different
		// one so at most one of them ends up committed to it.
		if alt, ok := n.pickOther(s, proposed); ok {
			suggestion = alt
		}
	}

	s.Suggestions[suggestion] = true
	return []protocol.Percept{protocol.JobNamePercept(protocol.PerceptSuggestions, suggestion)}
}

// pickOther draws a random unclaimed job different from avoid, preferring
// jobs whose remaining window leaves enough time to realistically finish.
func (n *Negotiator) pickOther(s *State, avoid string) (string, bool) {
	eligible := make([]string, 0, len(s.Jobs))
	fallback := make([]string, 0, len(s.Jobs))
	for _, name := range s.availableJobs() {
		if name == avoid {
			continue
		}
		fallback = append(fallback, name)
		if j := s.Jobs[name]; j.EndStep-s.Step > n.eligibilityWindow {
			eligible = append(eligible, name)
		}
	}
	pool := eligible
	if len(pool) == 0 {
		pool = fallback
	}
	if len(pool) == 0 {
		return "", false
	}
	return pool[n.rng.Intn(len(pool))], true
}

// Negotiate runs the member branch for an agent with no committed job:
// propose one available job, and commit to a mediator suggestion when one is
// on the table. Returns the broadcasts to send; s.MyJob is set on commit.
func (n *Negotiator) Negotiate(s *State) []protocol.Percept {
	s.pruneClaimed()
	var out []protocol.Percept

	if available := s.availableJobs(); len(available) > 0 {
		proposed := available[n.rng.Intn(len(available))]
		s.Proposals[proposed]++
		out = append(out, protocol.JobNamePercept(protocol.PerceptProposals, proposed))
	}

	if len(s.Suggestions) > 0 {
		pick := pickSmallest(s.Suggestions)
		// Commit only if the job still exists in the replica; a vanished
		// suggestion is simply dropped.
		if _, ok := s.Jobs[pick]; ok {
			s.MyJob = pick
			s.JobsTaken[pick] = true
			delete(s.Suggestions, pick)
			out = append(out, protocol.JobNamePercept(protocol.PerceptTaken, pick))
		}
	}
	return out
}

func pickSmallest(set map[string]bool) string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names[0]
}
