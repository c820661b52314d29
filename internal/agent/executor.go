package agent

import "cityhaul.ai/internal/protocol"

type execPhase int

const (
	phaseJob execPhase = iota
	phaseStore
	phaseDelivered
)

// Executor carries out a committed job: approach the storage, perform one
// store action per visit, mark the job delivered, then free the agent for
// the next claim. It is deliberately separate from the Negotiator so both
// machines test in isolation.
//
// The position predicate is injected; the simulation decides whether the
// agent actually stands at a facility.
type Executor struct {
	phase execPhase

	// At reports whether the agent is currently at the named storage.
	At func(storage string) bool
}

func NewExecutor(at func(storage string) bool) *Executor {
	return &Executor{At: at}
}

// Step advances the sub-machine one round and returns the round's action.
// A job missing from the replica means it expired or was completed by
// someone else: the commitment is cleared and the agent skips this round.
func (e *Executor) Step(s *State) protocol.Action {
	job, ok := s.Jobs[s.MyJob]
	if !ok {
		// Lost job. Not an error; the round loop retries naturally.
		s.MyJob = ""
		e.phase = phaseJob
		return protocol.Action{Name: protocol.ActionSkip}
	}

	if e.phase == phaseJob {
		if job.Storage == "" {
			return protocol.NoopAction()
		}
		if e.At == nil || !e.At(job.Storage) {
			return protocol.GotoAction(job.Storage)
		}
		e.phase = phaseStore
	}

	if e.phase == phaseStore {
		e.phase = phaseDelivered
		return protocol.Action{Name: protocol.ActionStore, Params: []any{s.MyJob}}
	}

	// phaseDelivered
	e.phase = phaseJob
	s.MyJob = ""
	return protocol.NoopAction()
}
