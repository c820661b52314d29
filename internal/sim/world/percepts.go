package world

import (
	"encoding/json"
	"sort"

	"cityhaul.ai/internal/protocol"
)

// sendPercepts builds and delivers one PERCEPT per connected agent: the
// step, the facilities, the active jobs, every visible entity, and the team
// broadcasts stashed at the last barrier.
func (w *World) sendPercepts() {
	shared := w.sharedPercepts()
	for id, client := range w.clients {
		a, ok := w.agents[id]
		if !ok {
			continue
		}
		percepts := shared
		if results := w.results[id]; len(results) > 0 {
			percepts = append(append([]protocol.Percept{}, shared...), results...)
		}
		msg := protocol.PerceptMsg{
			Type:            protocol.TypePercept,
			ProtocolVersion: protocol.Version,
			Step:            w.step,
			AgentID:         id,
			Percepts:        percepts,
			Messages:        w.teamMessages(a),
		}
		b, err := json.Marshal(msg)
		if err != nil {
			w.log.Printf("marshal percept for %s: %v", id, err)
			continue
		}
		select {
		case client.Out <- b:
		default:
			// Slow consumer: drop the round rather than stall the barrier.
		}
	}
}

func (w *World) sharedPercepts() []protocol.Percept {
	out := []protocol.Percept{protocol.StepPercept(w.step)}
	for _, spec := range w.cfg.Tune.Storages {
		st := w.storages[spec.Name]
		out = append(out, protocol.StoragePercept(protocol.StorageInfo{
			Name: st.Name(), Lat: st.Lat, Lon: st.Lon,
		}))
	}
	for _, node := range w.cfg.Tune.ResourceNodes {
		out = append(out, protocol.ResourceNodePercept(protocol.ResourceNodeInfo{
			Name: node.Name, Item: node.Item, Lat: node.Lat, Lon: node.Lon,
		}))
	}
	for _, j := range w.registry.Active() {
		out = append(out, protocol.JobPercept(jobInfo(j.Data(false, false))))
	}
	for _, id := range sortedAgentIDs(w.agents) {
		a := w.agents[id]
		out = append(out, protocol.EntityPercept(protocol.EntityInfo{
			Name: a.ID, Team: a.Team, Lat: a.Lat, Lon: a.Lon, Role: a.Role,
		}))
	}
	return out
}

func (w *World) teamMessages(a *Agent) []protocol.TeamMessage {
	var out []protocol.TeamMessage
	for _, b := range w.relay {
		if b.Team != a.Team || b.From == a.ID {
			continue
		}
		out = append(out, protocol.TeamMessage{From: b.From, Percept: b.Percept})
	}
	return out
}

func sortedAgentIDs(m map[string]*Agent) []string {
	out := make([]string, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
