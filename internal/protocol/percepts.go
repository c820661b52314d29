package protocol

import "encoding/json"

// Percept names. The same records travel server->agent (world facts) and
// agent->team (broadcasts resurfaced as percepts on the receiving side).
const (
	PerceptJob          = "job"
	PerceptStorage      = "storage"
	PerceptStep         = "step"
	PerceptEntity       = "entity"
	PerceptResourceNode = "resourceNode"
	PerceptLeader       = "leader"
	PerceptProposals    = "proposals"
	PerceptSuggestions  = "suggestions"
	PerceptTaken        = "taken"
	PerceptError        = "error"
)

// Percept is a named record with ordered, loosely typed parameters. Accessors
// substitute neutral defaults for missing or malformed fields; a bad percept
// never aborts a round.
type Percept struct {
	Name   string `json:"name"`
	Params []any  `json:"params,omitempty"`
}

func NewPercept(name string, params ...any) Percept {
	return Percept{Name: name, Params: params}
}

func (p Percept) StringParam(i int) string {
	if i < 0 || i >= len(p.Params) {
		return ""
	}
	s, ok := p.Params[i].(string)
	if !ok {
		return ""
	}
	return s
}

func (p Percept) IntParam(i int) int {
	if i < 0 || i >= len(p.Params) {
		return 0
	}
	switch v := p.Params[i].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64: // JSON numbers decode as float64
		return int(v)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0
		}
		return int(n)
	default:
		return 0
	}
}

func (p Percept) FloatParam(i int) float64 {
	if i < 0 || i >= len(p.Params) {
		return 0
	}
	switch v := p.Params[i].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// ItemAmount is one (item, amount) pair of a job requirement.
type ItemAmount struct {
	Item   string
	Amount int
}

// PairsParam decodes a parameter shaped as a list of [item, amount] pairs.
// Malformed entries are skipped.
func (p Percept) PairsParam(i int) []ItemAmount {
	if i < 0 || i >= len(p.Params) {
		return nil
	}
	list, ok := p.Params[i].([]any)
	if !ok {
		return nil
	}
	out := make([]ItemAmount, 0, len(list))
	for _, raw := range list {
		pair, ok := raw.([]any)
		if !ok || len(pair) < 2 {
			continue
		}
		entry := Percept{Params: pair}
		item := entry.StringParam(0)
		amount := entry.IntParam(1)
		if item == "" || amount <= 0 {
			continue
		}
		out = append(out, ItemAmount{Item: item, Amount: amount})
	}
	return out
}

// JobInfo is the typed view of a job percept:
// job(name, storageName, beginStep, endStep, reward, requirements[]).
type JobInfo struct {
	Name         string
	Storage      string
	BeginStep    int
	EndStep      int
	Reward       int
	Requirements []ItemAmount
}

func DecodeJob(p Percept) JobInfo {
	return JobInfo{
		Name:         p.StringParam(0),
		Storage:      p.StringParam(1),
		BeginStep:    p.IntParam(2),
		EndStep:      p.IntParam(3),
		Reward:       p.IntParam(4),
		Requirements: p.PairsParam(5),
	}
}

func JobPercept(j JobInfo) Percept {
	reqs := make([]any, 0, len(j.Requirements))
	for _, r := range j.Requirements {
		reqs = append(reqs, []any{r.Item, r.Amount})
	}
	return NewPercept(PerceptJob, j.Name, j.Storage, j.BeginStep, j.EndStep, j.Reward, reqs)
}

// StorageInfo is the typed view of storage(name, lat, lon).
type StorageInfo struct {
	Name string
	Lat  float64
	Lon  float64
}

func DecodeStorage(p Percept) StorageInfo {
	return StorageInfo{Name: p.StringParam(0), Lat: p.FloatParam(1), Lon: p.FloatParam(2)}
}

func StoragePercept(s StorageInfo) Percept {
	return NewPercept(PerceptStorage, s.Name, s.Lat, s.Lon)
}

// EntityInfo is the typed view of entity(name, team, lat, lon, role).
type EntityInfo struct {
	Name string
	Team string
	Lat  float64
	Lon  float64
	Role string
}

func DecodeEntity(p Percept) EntityInfo {
	return EntityInfo{
		Name: p.StringParam(0),
		Team: p.StringParam(1),
		Lat:  p.FloatParam(2),
		Lon:  p.FloatParam(3),
		Role: p.StringParam(4),
	}
}

func EntityPercept(e EntityInfo) Percept {
	return NewPercept(PerceptEntity, e.Name, e.Team, e.Lat, e.Lon, e.Role)
}

// ResourceNodeInfo is the typed view of resourceNode(name, item, lat, lon).
type ResourceNodeInfo struct {
	Name string
	Item string
	Lat  float64
	Lon  float64
}

func DecodeResourceNode(p Percept) ResourceNodeInfo {
	return ResourceNodeInfo{
		Name: p.StringParam(0),
		Item: p.StringParam(1),
		Lat:  p.FloatParam(2),
		Lon:  p.FloatParam(3),
	}
}

func ResourceNodePercept(r ResourceNodeInfo) Percept {
	return NewPercept(PerceptResourceNode, r.Name, r.Item, r.Lat, r.Lon)
}

func StepPercept(step int) Percept { return NewPercept(PerceptStep, step) }

// ErrorPercept reports a rejected action back to its sender:
// error(code, detail).
func ErrorPercept(code, detail string) Percept {
	return NewPercept(PerceptError, code, detail)
}

// Single-name records shared by proposals/suggestions/taken.
func JobNamePercept(kind, jobName string) Percept { return NewPercept(kind, jobName) }

func LeaderPercept() Percept { return NewPercept(PerceptLeader) }
