package agent

import (
	"math"
	"math/rand"

	"cityhaul.ai/internal/protocol"
)

// Config carries the knobs the driver needs from tuning.
type Config struct {
	Seed                   int64
	EligibilityWindowSteps int
	// AtRadiusDeg is the distance within which the agent counts as standing
	// at a facility.
	AtRadiusDeg float64
}

// Driver composes the per-round pipeline of one agent: ingest percepts into
// the replica, resolve the mediator, then either arbitrate (mediator) or
// negotiate/execute (member). Every round yields exactly one action and at
// most one broadcast per kind; no branch applying yields a no-op.
type Driver struct {
	state *State
	coord *LeaderCoordinator
	neg   *Negotiator
	exec  *Executor

	atRadius float64

	// Resource nodes already passed on to the team.
	sharedNodes map[string]bool
}

func NewDriver(self, team, role string, cfg Config) *Driver {
	if cfg.AtRadiusDeg <= 0 {
		cfg.AtRadiusDeg = 0.0001
	}
	d := &Driver{
		state:       NewState(self, team, role),
		coord:       &LeaderCoordinator{},
		neg:         NewNegotiator(rand.New(rand.NewSource(cfg.Seed)), cfg.EligibilityWindowSteps),
		atRadius:    cfg.AtRadiusDeg,
		sharedNodes: map[string]bool{},
	}
	d.exec = NewExecutor(d.atStorage)
	return d
}

func (d *Driver) State() *State { return d.state }

// Round consumes one percept message and produces the round's act.
func (d *Driver) Round(msg protocol.PerceptMsg) protocol.ActMsg {
	for _, p := range msg.Percepts {
		d.state.ApplyPercept(p)
	}
	for _, m := range msg.Messages {
		d.state.ApplyMessage(m.From, m.Percept)
	}

	broadcasts := d.coord.Resolve(d.state)

	action := protocol.NoopAction()
	switch {
	case d.state.Role != "drone":
		// Trucks and other roles idle in this protocol.
	case d.state.Leader == d.state.Self:
		broadcasts = append(broadcasts, d.neg.Mediate(d.state)...)
	case d.state.MyJob != "":
		action = d.exec.Step(d.state)
	default:
		broadcasts = append(broadcasts, d.neg.Negotiate(d.state)...)
		if d.state.MyJob != "" {
			action = d.exec.Step(d.state)
		}
	}

	// Let teammates learn about us even before the server shows us to them.
	if self, ok := d.state.Entities[d.state.Self]; ok {
		broadcasts = append(broadcasts, protocol.EntityPercept(self))
	}
	// Pass sighted resource nodes on to the team, one per round.
	for _, name := range sortedKeys(d.state.Resources) {
		if d.sharedNodes[name] {
			continue
		}
		d.sharedNodes[name] = true
		broadcasts = append(broadcasts, protocol.ResourceNodePercept(d.state.Resources[name]))
		break
	}

	return protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: protocol.Version,
		Step:            msg.Step,
		AgentID:         d.state.Self,
		Action:          action,
		Broadcasts:      onePerKind(broadcasts),
	}
}

// atStorage is the executor's position predicate, backed by the replica's
// entity and storage records.
func (d *Driver) atStorage(storage string) bool {
	self, ok := d.state.Entities[d.state.Self]
	if !ok {
		return false
	}
	st, ok := d.state.Storages[storage]
	if !ok {
		return false
	}
	return math.Abs(self.Lat-st.Lat) <= d.atRadius && math.Abs(self.Lon-st.Lon) <= d.atRadius
}

// onePerKind keeps the first broadcast of each percept kind.
func onePerKind(in []protocol.Percept) []protocol.Percept {
	if len(in) == 0 {
		return nil
	}
	seen := map[string]bool{}
	out := make([]protocol.Percept, 0, len(in))
	for _, p := range in {
		if seen[p.Name] {
			continue
		}
		seen[p.Name] = true
		out = append(out, p)
	}
	return out
}
