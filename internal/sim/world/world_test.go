package world

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"testing"

	"cityhaul.ai/internal/protocol"
	"cityhaul.ai/internal/sim/items"
	"cityhaul.ai/internal/sim/jobs"
	"cityhaul.ai/internal/sim/tuning"
)

type captureReporter struct {
	jobEvents []string
	rounds    int
}

func (c *captureReporter) RecordJob(simID string, step int, event, team string, data jobs.Data) {
	c.jobEvents = append(c.jobEvents, event+":"+data.Name)
}

func (c *captureReporter) RecordRound(RoundLogEntry) { c.rounds++ }

func testWorld(t *testing.T) *World {
	t.Helper()
	tune := tuning.Defaults()
	tune.JobGen.Rate = 0 // tests post their own jobs
	tune.Storages = []tuning.StorageSpec{{Name: "storage1", Lat: 10, Lon: 10}}
	return New(Config{ID: "sim_test", Seed: 1, Tune: tune}, log.New(io.Discard, "", 0))
}

func joinAgent(t *testing.T, w *World, name, team, role string) (string, chan []byte) {
	t.Helper()
	out := make(chan []byte, 8)
	resp := make(chan JoinResponse, 1)
	w.handleJoin(JoinRequest{Name: name, Team: team, Role: role, Out: out, Resp: resp})
	jr := <-resp
	if jr.Welcome.AgentID == "" {
		t.Fatalf("join failed for %s", name)
	}
	return jr.Welcome.AgentID, out
}

func readPercept(t *testing.T, out chan []byte) protocol.PerceptMsg {
	t.Helper()
	select {
	case b := <-out:
		var msg protocol.PerceptMsg
		if err := json.Unmarshal(b, &msg); err != nil {
			t.Fatalf("unmarshal percept: %v", err)
		}
		return msg
	default:
		t.Fatalf("no percept queued")
		return protocol.PerceptMsg{}
	}
}

func addActiveJob(t *testing.T, w *World, required *items.Box) string {
	t.Helper()
	st := w.Storage("storage1")
	j := jobs.New(100, st, 0, 10_000, required, jobs.PosterSystem)
	name := w.registry.Add(j)
	if err := j.Activate(); err != nil {
		t.Fatalf("activate: %v", err)
	}
	return name
}

func TestPerceptsCarryWorldFacts(t *testing.T) {
	w := testWorld(t)
	id, out := joinAgent(t, w, "drone1", "teamA", "drone")

	req := items.NewBox()
	req.Store("iron", 2)
	jobName := addActiveJob(t, w, req)

	w.runStep(nil, nil, nil)
	msg := readPercept(t, out)
	if msg.AgentID != id || msg.Step != 1 {
		t.Fatalf("header = %+v", msg)
	}

	var sawStep, sawStorage, sawJob, sawNode, sawSelf bool
	for _, p := range msg.Percepts {
		switch p.Name {
		case protocol.PerceptStep:
			sawStep = p.IntParam(0) == 1
		case protocol.PerceptStorage:
			sawStorage = p.StringParam(0) == "storage1"
		case protocol.PerceptJob:
			sawJob = p.StringParam(0) == jobName
		case protocol.PerceptResourceNode:
			if p.StringParam(0) == "node1" {
				sawNode = p.StringParam(1) == "iron"
			}
		case protocol.PerceptEntity:
			if p.StringParam(0) == id {
				sawSelf = p.StringParam(4) == "drone"
			}
		}
	}
	if !sawStep || !sawStorage || !sawJob || !sawNode || !sawSelf {
		t.Fatalf("percepts missing facts: step=%v storage=%v job=%v node=%v self=%v", sawStep, sawStorage, sawJob, sawNode, sawSelf)
	}
}

func TestBroadcastDeliveredOneRoundLater(t *testing.T) {
	w := testWorld(t)
	sender, senderOut := joinAgent(t, w, "drone1", "teamA", "drone")
	_, peerOut := joinAgent(t, w, "drone2", "teamA", "drone")
	_, rivalOut := joinAgent(t, w, "drone3", "teamB", "drone")

	// Round 1: no acts yet; nobody sees messages.
	w.runStep(nil, nil, nil)
	if msg := readPercept(t, peerOut); len(msg.Messages) != 0 {
		t.Fatalf("round 1 messages = %v", msg.Messages)
	}
	drain(senderOut, rivalOut)

	// Round 2: the sender's round-1 act carried a broadcast.
	acts := []ActionEnvelope{{
		AgentID: sender,
		Act: protocol.ActMsg{
			Type: protocol.TypeAct, ProtocolVersion: protocol.Version, Step: 1, AgentID: sender,
			Action:     protocol.NoopAction(),
			Broadcasts: []protocol.Percept{protocol.JobNamePercept(protocol.PerceptTaken, "job0")},
		},
	}}
	w.runStep(nil, nil, acts)

	peerMsg := readPercept(t, peerOut)
	if len(peerMsg.Messages) != 1 || peerMsg.Messages[0].From != sender ||
		peerMsg.Messages[0].Percept.Name != protocol.PerceptTaken {
		t.Fatalf("peer messages = %+v", peerMsg.Messages)
	}
	// The sender does not hear its own broadcast; the rival team hears nothing.
	if msg := readPercept(t, senderOut); len(msg.Messages) != 0 {
		t.Fatalf("sender echoed its own broadcast: %v", msg.Messages)
	}
	if msg := readPercept(t, rivalOut); len(msg.Messages) != 0 {
		t.Fatalf("broadcast leaked across teams: %v", msg.Messages)
	}

	// Round 3: the relay is drained; nothing is redelivered.
	w.runStep(nil, nil, nil)
	if msg := readPercept(t, peerOut); len(msg.Messages) != 0 {
		t.Fatalf("round 3 redelivery: %v", msg.Messages)
	}
}

func TestStoreDeliversAndCompletes(t *testing.T) {
	w := testWorld(t)
	rep := &captureReporter{}
	w.SetReporter(rep)

	id, out := joinAgent(t, w, "drone1", "teamA", "drone")
	req := items.NewBox()
	req.Store("iron", 2)
	jobName := addActiveJob(t, w, req)

	// Stand the agent on the storage.
	a := w.agents[id]
	a.Lat, a.Lon = 10, 10

	store := []ActionEnvelope{{
		AgentID: id,
		Act: protocol.ActMsg{
			Type: protocol.TypeAct, ProtocolVersion: protocol.Version, Step: 1, AgentID: id,
			Action: protocol.Action{Name: protocol.ActionStore, Params: []any{jobName}},
		},
	}}
	w.runStep(nil, nil, store)
	drain(out)

	j := w.registry.Lookup(jobName)
	if j.Status() != jobs.StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", j.Status())
	}
	if got := w.Score("teamA"); got != 100 {
		t.Fatalf("score = %d, want 100", got)
	}
	if len(rep.jobEvents) != 1 || rep.jobEvents[0] != "COMPLETED:"+jobName {
		t.Fatalf("job events = %v", rep.jobEvents)
	}
	if rep.rounds != 1 {
		t.Fatalf("round reports = %d", rep.rounds)
	}
}

func TestStoreAwayFromStorageIsRejected(t *testing.T) {
	w := testWorld(t)
	id, out := joinAgent(t, w, "drone1", "teamA", "drone")
	req := items.NewBox()
	req.Store("iron", 1)
	jobName := addActiveJob(t, w, req)

	// Agent spawns away from the storage; the store must not credit.
	store := []ActionEnvelope{{
		AgentID: id,
		Act: protocol.ActMsg{
			Type: protocol.TypeAct, ProtocolVersion: protocol.Version, Step: 1, AgentID: id,
			Action: protocol.Action{Name: protocol.ActionStore, Params: []any{jobName}},
		},
	}}
	w.runStep(nil, nil, store)
	msg := readPercept(t, out)

	j := w.registry.Lookup(jobName)
	if j.Status() != jobs.StatusActive {
		t.Fatalf("status = %s, want still ACTIVE", j.Status())
	}
	if j.DeliveredCount("iron", "teamA") != 0 {
		t.Fatalf("remote store must not credit items")
	}
	// The sender learns why the store did not count.
	if code, detail := errorReport(msg); code != protocol.ErrInvalidTarget || detail != jobName {
		t.Fatalf("report = %q(%q), want %s(%s)", code, detail, protocol.ErrInvalidTarget, jobName)
	}
}

func TestRejectedActionsReportToSenderOnly(t *testing.T) {
	w := testWorld(t)
	id, out := joinAgent(t, w, "drone1", "teamA", "drone")
	_, peerOut := joinAgent(t, w, "drone2", "teamA", "drone")

	act := func(a protocol.Action) []ActionEnvelope {
		return []ActionEnvelope{{
			AgentID: id,
			Act: protocol.ActMsg{
				Type: protocol.TypeAct, ProtocolVersion: protocol.Version, Step: w.step, AgentID: id,
				Action: a,
			},
		}}
	}

	// Store toward a job nobody ever posted.
	w.runStep(nil, nil, act(protocol.Action{Name: protocol.ActionStore, Params: []any{"job99"}}))
	if code, detail := errorReport(readPercept(t, out)); code != protocol.ErrStale || detail != "job99" {
		t.Fatalf("stale store report = %q(%q)", code, detail)
	}
	if code, _ := errorReport(readPercept(t, peerOut)); code != "" {
		t.Fatalf("peer must not see the sender's rejection, got %q", code)
	}

	// Goto an unknown facility.
	w.runStep(nil, nil, act(protocol.GotoAction("nowhere")))
	if code, detail := errorReport(readPercept(t, out)); code != protocol.ErrInvalidTarget || detail != "nowhere" {
		t.Fatalf("bad goto report = %q(%q)", code, detail)
	}
	drain(peerOut)

	// An action name outside the protocol.
	w.runStep(nil, nil, act(protocol.Action{Name: "fly"}))
	if code, detail := errorReport(readPercept(t, out)); code != protocol.ErrBadRequest || detail != "fly" {
		t.Fatalf("unknown action report = %q(%q)", code, detail)
	}
	drain(peerOut)

	// Reports are per round, not sticky.
	w.runStep(nil, nil, nil)
	if code, _ := errorReport(readPercept(t, out)); code != "" {
		t.Fatalf("report redelivered on a quiet round: %q", code)
	}
}

func TestRunToleratesZeroRoundRate(t *testing.T) {
	tune := tuning.Defaults()
	tune.RoundRateHz = 0
	tune.Storages = []tuning.StorageSpec{{Name: "storage1", Lat: 10, Lon: 10}}
	w := New(Config{ID: "sim_test", Seed: 1, Tune: tune}, log.New(io.Discard, "", 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Run(ctx); err != context.Canceled {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
}

// errorReport extracts the first error percept of a round, if any.
func errorReport(msg protocol.PerceptMsg) (code, detail string) {
	for _, p := range msg.Percepts {
		if p.Name == protocol.PerceptError {
			return p.StringParam(0), p.StringParam(1)
		}
	}
	return "", ""
}

func TestGotoMovesAgentToStorage(t *testing.T) {
	w := testWorld(t)
	id, out := joinAgent(t, w, "drone1", "teamA", "drone")
	a := w.agents[id]
	a.Lat, a.Lon = 10.01, 9.99

	gotoAct := func(step int) []ActionEnvelope {
		return []ActionEnvelope{{
			AgentID: id,
			Act: protocol.ActMsg{
				Type: protocol.TypeAct, ProtocolVersion: protocol.Version, Step: step, AgentID: id,
				Action: protocol.GotoAction("storage1"),
			},
		}}
	}

	st := w.Storage("storage1")
	for step := 1; step <= 10 && !w.atStorage(a, st); step++ {
		w.runStep(nil, nil, gotoAct(step))
		drain(out)
	}
	if !w.atStorage(a, st) {
		t.Fatalf("agent never reached the storage: at (%v,%v)", a.Lat, a.Lon)
	}
}

func TestGeneratorPostsAndRegistryTicks(t *testing.T) {
	tune := tuning.Defaults()
	tune.JobGen.Rate = 1
	tune.JobGen.WindowMin = 5
	tune.JobGen.WindowMax = 5
	tune.Storages = []tuning.StorageSpec{{Name: "storage1", Lat: 0, Lon: 0}}
	w := New(Config{ID: "sim_test", Seed: 42, Tune: tune}, log.New(io.Discard, "", 0))
	rep := &captureReporter{}
	w.SetReporter(rep)

	w.runStep(nil, nil, nil)
	if len(w.registry.Names()) != 1 {
		t.Fatalf("rate 1.0 must post a job per step, have %v", w.registry.Names())
	}
	name := w.registry.Names()[0]
	if rep.jobEvents[0] != "POSTED:"+name {
		t.Fatalf("events = %v", rep.jobEvents)
	}

	// Posted at step 1 with begin=2: active on the next step.
	w.runStep(nil, nil, nil)
	j := w.registry.Lookup(name)
	if !j.IsActive() {
		t.Fatalf("job not activated at beginStep, status=%s", j.Status())
	}

	// Run past the window; it terminates untouched.
	for i := 0; i < 10; i++ {
		w.runStep(nil, nil, nil)
	}
	if j.Status() != jobs.StatusEnded {
		t.Fatalf("status = %s, want ENDED after window", j.Status())
	}
}

func TestResumeAttachReusesAgent(t *testing.T) {
	w := testWorld(t)
	id, _ := joinAgent(t, w, "drone1", "teamA", "drone")
	token := w.agents[id].ResumeToken

	out := make(chan []byte, 8)
	resp := make(chan JoinResponse, 1)
	w.handleAttach(AttachRequest{ResumeToken: token, Out: out, Resp: resp})
	jr := <-resp
	if jr.Welcome.AgentID != id {
		t.Fatalf("attach returned %q, want %q", jr.Welcome.AgentID, id)
	}

	resp2 := make(chan JoinResponse, 1)
	w.handleAttach(AttachRequest{ResumeToken: "bogus", Resp: resp2})
	if jr := <-resp2; jr.Welcome.AgentID != "" {
		t.Fatalf("bogus token must not attach")
	}
}

func drain(chs ...chan []byte) {
	for _, ch := range chs {
		for len(ch) > 0 {
			<-ch
		}
	}
}
