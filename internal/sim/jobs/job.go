package jobs

import (
	"fmt"

	"cityhaul.ai/internal/sim/items"
)

// PosterSystem marks jobs generated by the simulation itself rather than
// posted by a team.
const PosterSystem = "system"

type Status string

const (
	StatusFuture    Status = "FUTURE"
	StatusAuction   Status = "AUCTION"
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusEnded     Status = "ENDED"
)

// validTransitions is the explicit status table. Transitions are monotonic:
// FUTURE -> (AUCTION ->) ACTIVE -> COMPLETED | ENDED. Nothing reverses.
var validTransitions = map[Status]map[Status]bool{
	StatusFuture:  {StatusAuction: true, StatusActive: true},
	StatusAuction: {StatusActive: true, StatusEnded: true},
	StatusActive:  {StatusCompleted: true, StatusEnded: true},
}

// DeliveredSink receives item credit on behalf of a team. The world's
// storage facilities implement it; partial-delivery returns and poster
// payouts go through here.
type DeliveredSink interface {
	Name() string
	AddDelivered(team string, box *items.Box)
}

// Job is the authoritative per-job ledger: the requirement, the window, and
// how much each team has actually delivered so far. Mutated only by the
// server-side simulation; agents see read-only replicas via percepts.
type Job struct {
	name      string
	status    Status
	storage   DeliveredSink
	reward    int
	beginStep int
	endStep   int
	poster    string

	required  *items.Box
	delivered map[string]*items.Box
}

func New(reward int, storage DeliveredSink, begin, end int, required *items.Box, poster string) *Job {
	if required == nil {
		required = items.NewBox()
	}
	if poster == "" {
		poster = PosterSystem
	}
	return &Job{
		status:    StatusFuture,
		storage:   storage,
		reward:    reward,
		beginStep: begin,
		endStep:   end,
		required:  required,
		poster:    poster,
		delivered: map[string]*items.Box{},
	}
}

func (j *Job) Name() string           { return j.name }
func (j *Job) Status() Status         { return j.status }
func (j *Job) Storage() DeliveredSink { return j.storage }
func (j *Job) Reward() int            { return j.reward }
func (j *Job) BeginStep() int         { return j.beginStep }
func (j *Job) EndStep() int           { return j.endStep }
func (j *Job) Poster() string         { return j.poster }
func (j *Job) Required() *items.Box   { return j.required }

func (j *Job) IsActive() bool { return j.status == StatusActive }

func (j *Job) transition(to Status) error {
	if !validTransitions[j.status][to] {
		return fmt.Errorf("job %s: invalid status transition %s -> %s", j.name, j.status, to)
	}
	j.status = to
	return nil
}

// Activate moves the job from FUTURE to ACTIVE. The registry calls it exactly
// once when the clock reaches beginStep.
func (j *Job) Activate() error {
	return j.transition(StatusActive)
}

// Deliver credits up to n of item to team's ledger entry, capped at what is
// still missing toward the requirement. Returns how many were credited.
// Excess units stay with the caller; the ledger never over-credits.
func (j *Job) Deliver(item string, n int, team string) int {
	if j.status != StatusActive {
		return 0
	}
	box := j.deliveredFor(team)
	missing := j.required.Count(item) - box.Count(item)
	store := n
	if missing < store {
		store = missing
	}
	if store <= 0 {
		return 0
	}
	box.Store(item, store)
	return store
}

func (j *Job) deliveredFor(team string) *items.Box {
	box, ok := j.delivered[team]
	if !ok {
		box = items.NewBox()
		j.delivered[team] = box
	}
	return box
}

// DeliveredCount reports how much of item is currently credited to team.
func (j *Job) DeliveredCount(item, team string) int {
	return j.delivered[team].Count(item)
}

// CheckCompletion tests whether team has covered the full requirement and, on
// the first success, completes the job: other teams' partial deliveries are
// returned to them and, if the job was posted by a team, the required items
// are handed over to the poster. False once the job is terminal.
func (j *Job) CheckCompletion(team string) bool {
	if j.status != StatusActive {
		return false
	}
	if !j.required.IsSubset(j.deliveredFor(team)) {
		return false
	}
	if err := j.transition(StatusCompleted); err != nil {
		return false
	}
	j.returnPartialDeliveries(map[string]bool{team: true})
	if j.poster != PosterSystem && j.storage != nil {
		j.storage.AddDelivered(j.poster, j.required.Clone())
	}
	return true
}

// Terminate ends an uncompleted job and returns every team's partial
// deliveries. Calling it on a COMPLETED job is a no-op.
func (j *Job) Terminate() {
	if j.status == StatusCompleted || j.status == StatusEnded {
		return
	}
	if err := j.transition(StatusEnded); err != nil {
		return
	}
	j.returnPartialDeliveries(nil)
}

// returnPartialDeliveries credits each non-excluded team's delivered box back
// through the storage and settles the ledger entry.
func (j *Job) returnPartialDeliveries(exclude map[string]bool) {
	for team, box := range j.delivered {
		if exclude[team] || box.IsEmpty() {
			continue
		}
		if j.storage != nil {
			j.storage.AddDelivered(team, box.Clone())
		}
		delete(j.delivered, team)
	}
}

// DelayEnd pushes the end of the delivery window out by n steps.
func (j *Job) DelayEnd(n int) {
	if n > 0 {
		j.endStep += n
	}
}

// acquireName assigns the registry-issued name once; later calls are no-ops.
func (j *Job) acquireName(name string) {
	if j.name == "" {
		j.name = name
	}
}
