package jobs

import (
	"fmt"
	"sort"

	"cityhaul.ai/internal/sim/items"
)

// Registry owns every job of one simulation and drives their lifecycle from
// the authoritative clock. Job names are issued from a counter scoped to the
// registry, so two simulations in one process never share a sequence.
type Registry struct {
	jobs    map[string]*Job
	nextNum int
}

func NewRegistry() *Registry {
	return &Registry{jobs: map[string]*Job{}}
}

// Add names the job and takes ownership of it. The name is assigned lazily
// here, on first need, and is immutable afterwards.
func (r *Registry) Add(j *Job) string {
	j.acquireName(fmt.Sprintf("job%d", r.nextNum))
	r.nextNum++
	r.jobs[j.name] = j
	return j.name
}

// Lookup returns the job or nil. Callers treat nil as terminal state.
func (r *Registry) Lookup(name string) *Job {
	return r.jobs[name]
}

// Names returns every known job name, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.jobs))
	for name := range r.jobs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Active returns the currently active jobs in name order.
func (r *Registry) Active() []*Job {
	out := make([]*Job, 0, len(r.jobs))
	for _, name := range r.Names() {
		if j := r.jobs[name]; j.IsActive() {
			out = append(out, j)
		}
	}
	return out
}

// OnStepStart activates every future job whose window has opened and
// terminates every active job whose window has passed. Safe to call twice or
// with a step the clock already announced: a job is activated and terminated
// at most once because the status table refuses repeats.
func (r *Registry) OnStepStart(step int) {
	for _, name := range r.Names() {
		j := r.jobs[name]
		switch {
		case j.status == StatusFuture && j.beginStep <= step:
			_ = j.Activate()
		case j.IsActive() && j.endStep < step:
			j.Terminate()
		}
	}
}

func sortedTeams(m map[string]*items.Box) []string {
	out := make([]string, 0, len(m))
	for team := range m {
		out = append(out, team)
	}
	sort.Strings(out)
	return out
}
