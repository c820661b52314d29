package world

import (
	"cityhaul.ai/internal/protocol"
	"cityhaul.ai/internal/sim/jobs"
)

// ActionEnvelope carries one agent's act into the round barrier.
type ActionEnvelope struct {
	AgentID string
	Act     protocol.ActMsg
}

type JoinRequest struct {
	Name string
	Team string
	Role string
	Out  chan []byte
	Resp chan JoinResponse
}

type AttachRequest struct {
	ResumeToken string
	Out         chan []byte
	Resp        chan JoinResponse
}

type JoinResponse struct {
	Welcome protocol.WelcomeMsg
}

// Agent is the server-side record of a connected agent.
type Agent struct {
	ID          string
	Name        string
	Team        string
	Role        string
	Lat         float64
	Lon         float64
	ResumeToken string

	// goto target, empty when idle.
	TargetStorage string
}

type clientState struct {
	Out chan []byte
}

// RoundLogEntry is one JSONL record per simulation round.
type RoundLogEntry struct {
	SimID       string `json:"sim_id"`
	Step        int    `json:"step"`
	Agents      int    `json:"agents"`
	ActiveJobs  int    `json:"active_jobs"`
	Actions     int    `json:"actions"`
	Broadcasts  int    `json:"broadcasts"`
	Completions int    `json:"completions"`
	Terminated  int    `json:"terminated"`
}

// JobEvent marks why a job snapshot was recorded.
const (
	JobEventPosted     = "POSTED"
	JobEventCompleted  = "COMPLETED"
	JobEventTerminated = "TERMINATED"
)

// RoundLogger receives one entry per round (compressed JSONL on disk).
type RoundLogger interface {
	WriteRound(RoundLogEntry) error
}

// JobReporter receives job lifecycle snapshots for the read-model index.
type JobReporter interface {
	RecordJob(simID string, step int, event string, team string, data jobs.Data)
	RecordRound(entry RoundLogEntry)
}
