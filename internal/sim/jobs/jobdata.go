package jobs

import "cityhaul.ai/internal/sim/items"

// Data is the reporting snapshot of a job. Delivered breakdown and poster are
// independently optional so percept building and match reports can choose
// what to expose.
type Data struct {
	Name         string        `json:"name"`
	Storage      string        `json:"storage"`
	BeginStep    int           `json:"begin_step"`
	EndStep      int           `json:"end_step"`
	Reward       int           `json:"reward"`
	Status       Status        `json:"status"`
	Requirements []items.Stack `json:"requirements"`
	Delivered    []TeamStacks  `json:"delivered,omitempty"`
	Poster       string        `json:"poster,omitempty"`
}

// TeamStacks is one team's delivered breakdown, zero entries filtered.
type TeamStacks struct {
	Team   string        `json:"team"`
	Stacks []items.Stack `json:"stacks"`
}

// Data builds the snapshot. withDelivered includes the per-team delivered
// breakdown; withPoster includes the poster identity.
func (j *Job) Data(withDelivered, withPoster bool) Data {
	d := Data{
		Name:         j.name,
		BeginStep:    j.beginStep,
		EndStep:      j.endStep,
		Reward:       j.reward,
		Status:       j.status,
		Requirements: j.required.Stacks(),
	}
	if j.storage != nil {
		d.Storage = j.storage.Name()
	}
	if withDelivered {
		d.Delivered = j.deliveredData()
	}
	if withPoster {
		d.Poster = j.poster
	}
	return d
}

func (j *Job) deliveredData() []TeamStacks {
	out := make([]TeamStacks, 0, len(j.delivered))
	for _, team := range sortedTeams(j.delivered) {
		stacks := j.delivered[team].Stacks()
		if len(stacks) == 0 {
			continue
		}
		out = append(out, TeamStacks{Team: team, Stacks: stacks})
	}
	return out
}
