package world

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"cityhaul.ai/internal/protocol"
	"cityhaul.ai/internal/sim/jobs"
	"cityhaul.ai/internal/sim/tuning"
)

type Config struct {
	ID   string
	Seed int64
	Tune tuning.Tuning
}

// World is the authoritative simulation: the job registry and ledgers, the
// storages, the clock, and the team broadcast relay. It runs as a single
// actor; everything reaches it through channels and mutations happen only at
// the round barrier, so no locks are needed.
type World struct {
	cfg Config
	log *log.Logger

	registry *jobs.Registry
	gen      *jobs.Generator
	storages map[string]*Storage
	agents   map[string]*Agent
	clients  map[string]*clientState
	scores   map[string]int

	step         int
	nextAgentNum int

	// Broadcasts accepted at the last barrier, for delivery with the next
	// round's percepts. One full round of latency, never same-round.
	relay []teamBroadcast

	// Rejected-action reports, keyed by agent, delivered with the percepts of
	// the round that applied the action and then cleared.
	results map[string][]protocol.Percept

	inbox  chan ActionEnvelope
	join   chan JoinRequest
	attach chan AttachRequest
	leave  chan string
	stop   chan struct{}

	roundLogger RoundLogger
	reporter    JobReporter

	metricsMu sync.Mutex
	metrics   Metrics
}

// Metrics is a cross-goroutine snapshot of the last completed round, for the
// HTTP exposition endpoint. Updated once per barrier.
type Metrics struct {
	Step       int            `json:"step"`
	Agents     int            `json:"agents"`
	Clients    int            `json:"clients"`
	ActiveJobs int            `json:"active_jobs"`
	Scores     map[string]int `json:"scores"`
}

type teamBroadcast struct {
	Team    string
	From    string
	Percept protocol.Percept
}

func New(cfg Config, logger *log.Logger) *World {
	if logger == nil {
		logger = log.New(log.Writer(), "[world] ", log.LstdFlags)
	}
	w := &World{
		cfg:      cfg,
		log:      logger,
		registry: jobs.NewRegistry(),
		storages: map[string]*Storage{},
		agents:   map[string]*Agent{},
		clients:  map[string]*clientState{},
		scores:   map[string]int{},
		results:  map[string][]protocol.Percept{},
		inbox:    make(chan ActionEnvelope, 1024),
		join:     make(chan JoinRequest, 64),
		attach:   make(chan AttachRequest, 64),
		leave:    make(chan string, 64),
		stop:     make(chan struct{}),
	}

	sinks := make([]jobs.DeliveredSink, 0, len(cfg.Tune.Storages))
	for _, spec := range cfg.Tune.Storages {
		st := NewStorage(spec.Name, spec.Lat, spec.Lon)
		w.storages[spec.Name] = st
		sinks = append(sinks, st)
	}

	gc := cfg.Tune.JobGen
	w.gen = jobs.NewGenerator(jobs.GeneratorConfig{
		Rate:      gc.Rate,
		RewardMin: gc.RewardMin, RewardMax: gc.RewardMax,
		WindowMin: gc.WindowMin, WindowMax: gc.WindowMax,
		TypesMin: gc.TypesMin, TypesMax: gc.TypesMax,
		AmountMin: gc.AmountMin, AmountMax: gc.AmountMax,
	}, cfg.Tune.Items, sinks, rand.New(rand.NewSource(cfg.Seed)))

	return w
}

func (w *World) SetRoundLogger(l RoundLogger) { w.roundLogger = l }
func (w *World) SetReporter(r JobReporter)    { w.reporter = r }

func (w *World) Inbox() chan<- ActionEnvelope { return w.inbox }
func (w *World) Join() chan<- JoinRequest     { return w.join }
func (w *World) Attach() chan<- AttachRequest { return w.attach }
func (w *World) Leave() chan<- string         { return w.leave }

func (w *World) Registry() *jobs.Registry { return w.registry }
func (w *World) CurrentStep() int         { return w.step }
func (w *World) Score(team string) int    { return w.scores[team] }
func (w *World) Storage(name string) *Storage {
	return w.storages[name]
}

func (w *World) Run(ctx context.Context) error {
	rate := w.cfg.Tune.RoundRateHz
	if rate <= 0 {
		rate = 1
	}
	interval := time.Second / time.Duration(rate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingActions []ActionEnvelope
	var pendingJoins []JoinRequest
	var pendingLeaves []string

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.join:
			pendingJoins = append(pendingJoins, req)
		case req := <-w.attach:
			w.handleAttach(req)
		case id := <-w.leave:
			pendingLeaves = append(pendingLeaves, id)
		case env := <-w.inbox:
			pendingActions = append(pendingActions, env)
		case <-ticker.C:
			w.runStep(pendingJoins, pendingLeaves, pendingActions)
			pendingJoins = pendingJoins[:0]
			pendingLeaves = pendingLeaves[:0]
			pendingActions = pendingActions[:0]
			if w.cfg.Tune.TotalSteps > 0 && w.step >= w.cfg.Tune.TotalSteps {
				w.log.Printf("simulation over after %d steps; scores=%v", w.step, w.scores)
				return nil
			}
		}
	}
}

func (w *World) Stop() { close(w.stop) }

// runStep is the round barrier: membership changes, the job clock, last
// round's actions, then fresh percepts carrying last round's broadcasts.
func (w *World) runStep(joins []JoinRequest, leaves []string, actions []ActionEnvelope) {
	for _, id := range leaves {
		delete(w.clients, id)
	}
	for _, req := range joins {
		w.handleJoin(req)
	}

	w.step++
	terminated := w.tickJobs()
	w.relay = w.relay[:0]
	clear(w.results)
	broadcasts, completions := w.applyActions(actions)
	w.sendPercepts()

	entry := RoundLogEntry{
		SimID:       w.cfg.ID,
		Step:        w.step,
		Agents:      len(w.agents),
		ActiveJobs:  len(w.registry.Active()),
		Actions:     len(actions),
		Broadcasts:  broadcasts,
		Completions: completions,
		Terminated:  terminated,
	}
	if w.roundLogger != nil {
		if err := w.roundLogger.WriteRound(entry); err != nil {
			w.log.Printf("round log: %v", err)
		}
	}
	if w.reporter != nil {
		w.reporter.RecordRound(entry)
	}

	scores := make(map[string]int, len(w.scores))
	for team, v := range w.scores {
		scores[team] = v
	}
	w.metricsMu.Lock()
	w.metrics = Metrics{
		Step:       w.step,
		Agents:     len(w.agents),
		Clients:    len(w.clients),
		ActiveJobs: len(w.registry.Active()),
		Scores:     scores,
	}
	w.metricsMu.Unlock()
}

// Metrics returns the last barrier's snapshot. Safe from any goroutine.
func (w *World) Metrics() Metrics {
	w.metricsMu.Lock()
	defer w.metricsMu.Unlock()
	return w.metrics
}

// tickJobs advances the job clock: generate, activate, terminate.
func (w *World) tickJobs() (terminated int) {
	if j := w.gen.Step(w.step, w.registry); j != nil {
		w.log.Printf("step %d: posted %s reward=%d window=[%d,%d]", w.step, j.Name(), j.Reward(), j.BeginStep(), j.EndStep())
		w.report(JobEventPosted, "", j.Data(false, true))
	}

	wasActive := map[string]bool{}
	for _, j := range w.registry.Active() {
		wasActive[j.Name()] = true
	}
	w.registry.OnStepStart(w.step)
	for name := range wasActive {
		j := w.registry.Lookup(name)
		if j.Status() == jobs.StatusEnded {
			terminated++
			w.log.Printf("step %d: %s ended without completion", w.step, name)
			w.report(JobEventTerminated, "", j.Data(true, true))
		}
	}
	return terminated
}

func (w *World) handleJoin(req JoinRequest) {
	w.nextAgentNum++
	id := fmt.Sprintf("A%d", w.nextAgentNum)
	name := req.Name
	if name == "" {
		name = "agent"
	}
	team := req.Team
	if team == "" {
		team = "teamA"
	}
	role := req.Role
	if role == "" {
		role = "drone"
	}

	// Spawn offset from the first storage so nobody starts on top of one.
	lat, lon := 51.5, -0.1
	if len(w.cfg.Tune.Storages) > 0 {
		lat = w.cfg.Tune.Storages[0].Lat + float64(w.nextAgentNum)*0.004
		lon = w.cfg.Tune.Storages[0].Lon - float64(w.nextAgentNum)*0.004
	}

	a := &Agent{
		ID:          id,
		Name:        name,
		Team:        team,
		Role:        role,
		Lat:         lat,
		Lon:         lon,
		ResumeToken: uuid.NewString(),
	}
	w.agents[id] = a
	if req.Out != nil {
		w.clients[id] = &clientState{Out: req.Out}
	}

	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		AgentID:         id,
		Team:            team,
		ResumeToken:     a.ResumeToken,
		SimParams: protocol.SimParams{
			RoundRateHz:            w.cfg.Tune.RoundRateHz,
			TotalSteps:             w.cfg.Tune.TotalSteps,
			EligibilityWindowSteps: w.cfg.Tune.EligibilityWindowSteps,
			Seed:                   w.cfg.Seed,
		},
	}
	w.log.Printf("join %s (%s/%s) as %s", name, team, role, id)
	if req.Resp != nil {
		req.Resp <- JoinResponse{Welcome: welcome}
	}
}

// handleAttach resumes an existing agent after a reconnect.
func (w *World) handleAttach(req AttachRequest) {
	for _, a := range w.agents {
		if a.ResumeToken != req.ResumeToken {
			continue
		}
		if req.Out != nil {
			w.clients[a.ID] = &clientState{Out: req.Out}
		}
		if req.Resp != nil {
			req.Resp <- JoinResponse{Welcome: protocol.WelcomeMsg{
				Type:            protocol.TypeWelcome,
				ProtocolVersion: protocol.Version,
				AgentID:         a.ID,
				Team:            a.Team,
				ResumeToken:     a.ResumeToken,
				SimParams: protocol.SimParams{
					RoundRateHz:            w.cfg.Tune.RoundRateHz,
					TotalSteps:             w.cfg.Tune.TotalSteps,
					EligibilityWindowSteps: w.cfg.Tune.EligibilityWindowSteps,
					Seed:                   w.cfg.Seed,
				},
			}}
		}
		return
	}
	if req.Resp != nil {
		req.Resp <- JoinResponse{}
	}
}

func (w *World) report(event, team string, data jobs.Data) {
	if w.reporter != nil {
		w.reporter.RecordJob(w.cfg.ID, w.step, event, team, data)
	}
}
