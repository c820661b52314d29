package world

import (
	"math"

	"cityhaul.ai/internal/protocol"
	"cityhaul.ai/internal/sim/jobs"
)

// applyActions consumes the acts collected since the last barrier: movement
// targets, store deliveries, and team broadcasts (stashed for next round's
// percepts). Returns how many broadcasts were relayed and how many jobs were
// completed.
func (w *World) applyActions(actions []ActionEnvelope) (broadcasts, completions int) {
	for _, env := range actions {
		a, ok := w.agents[env.AgentID]
		if !ok {
			continue
		}

		for _, b := range env.Act.Broadcasts {
			if b.Name == "" {
				continue
			}
			w.relay = append(w.relay, teamBroadcast{Team: a.Team, From: a.ID, Percept: b})
			broadcasts++
		}

		switch env.Act.Action.Name {
		case protocol.ActionGoto:
			target := env.Act.Action.StringTarget()
			if _, ok := w.storages[target]; ok {
				a.TargetStorage = target
			} else {
				w.rejectAction(a.ID, protocol.ErrInvalidTarget, target)
			}
		case protocol.ActionStore:
			if w.handleStore(a, env.Act.Action) {
				completions++
			}
		case protocol.ActionSkip, protocol.ActionContinue, "":
			// No-op actions.
		default:
			w.rejectAction(a.ID, protocol.ErrBadRequest, env.Act.Action.Name)
		}
	}

	w.moveAgents()
	return broadcasts, completions
}

// handleStore executes the physical store: the agent delivers toward the
// named job at the storage it stands at. Reports whether the store completed
// the job.
func (w *World) handleStore(a *Agent, act protocol.Action) bool {
	jobName := act.StringTarget()
	if jobName == "" {
		w.rejectAction(a.ID, protocol.ErrBadRequest, protocol.ActionStore)
		return false
	}
	j := w.registry.Lookup(jobName)
	if j == nil || !j.IsActive() {
		// The job ended or completed between the agent's decision and this
		// barrier.
		w.rejectAction(a.ID, protocol.ErrStale, jobName)
		return false
	}
	st, ok := j.Storage().(*Storage)
	if !ok || !w.atStorage(a, st) {
		w.rejectAction(a.ID, protocol.ErrInvalidTarget, jobName)
		return false
	}

	for _, stack := range j.Required().Stacks() {
		delivered := j.Deliver(stack.Item, stack.Count, a.Team)
		if delivered > 0 {
			w.log.Printf("step %d: %s delivered %dx %s toward %s", w.step, a.ID, delivered, stack.Item, jobName)
		}
	}
	if !j.CheckCompletion(a.Team) {
		return false
	}
	w.scores[a.Team] += j.Reward()
	w.log.Printf("step %d: %s completed by %s (+%d, total %d)", w.step, jobName, a.Team, j.Reward(), w.scores[a.Team])
	w.report(JobEventCompleted, a.Team, j.Data(true, true))
	return true
}

// rejectAction queues an error percept for the sender, delivered with this
// round's percepts.
func (w *World) rejectAction(agentID, code, detail string) {
	w.results[agentID] = append(w.results[agentID], protocol.ErrorPercept(code, detail))
}

// moveAgents advances every traveling agent toward its target storage.
func (w *World) moveAgents() {
	speed := w.cfg.Tune.SpeedDeg
	for _, a := range w.agents {
		if a.TargetStorage == "" {
			continue
		}
		st, ok := w.storages[a.TargetStorage]
		if !ok {
			a.TargetStorage = ""
			continue
		}
		a.Lat = approach(a.Lat, st.Lat, speed)
		a.Lon = approach(a.Lon, st.Lon, speed)
		if w.atStorage(a, st) {
			a.TargetStorage = ""
		}
	}
}

func approach(cur, target, speed float64) float64 {
	d := target - cur
	if math.Abs(d) <= speed {
		return target
	}
	if d > 0 {
		return cur + speed
	}
	return cur - speed
}

func (w *World) atStorage(a *Agent, st *Storage) bool {
	r := w.cfg.Tune.AtRadiusDeg
	return math.Abs(a.Lat-st.Lat) <= r && math.Abs(a.Lon-st.Lon) <= r
}

// jobInfo converts a ledger snapshot into its percept form.
func jobInfo(d jobs.Data) protocol.JobInfo {
	reqs := make([]protocol.ItemAmount, 0, len(d.Requirements))
	for _, s := range d.Requirements {
		reqs = append(reqs, protocol.ItemAmount{Item: s.Item, Amount: s.Count})
	}
	return protocol.JobInfo{
		Name:         d.Name,
		Storage:      d.Storage,
		BeginStep:    d.BeginStep,
		EndStep:      d.EndStep,
		Reward:       d.Reward,
		Requirements: reqs,
	}
}
