package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AgentName       string `json:"agent_name"`
	Team            string `json:"team"`
	Role            string `json:"role,omitempty"` // "drone" or "truck"
	ResumeToken     string `json:"resume_token,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	AgentID         string    `json:"agent_id"`
	Team            string    `json:"team"`
	ResumeToken     string    `json:"resume_token"`
	SimParams       SimParams `json:"sim_params"`
}

type SimParams struct {
	RoundRateHz            int   `json:"round_rate_hz"`
	TotalSteps             int   `json:"total_steps"`
	EligibilityWindowSteps int   `json:"eligibility_window_steps"`
	Seed                   int64 `json:"seed"`
}

// PERCEPT (server -> client): one per round. Percepts describe the world as
// the server sees it this step; Messages carries team broadcasts sent during
// the previous round (one full round of latency, never same-round).
type PerceptMsg struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	Step            int           `json:"step"`
	AgentID         string        `json:"agent_id"`
	Percepts        []Percept     `json:"percepts"`
	Messages        []TeamMessage `json:"messages,omitempty"`
}

// TeamMessage is a peer broadcast relayed by the server; the envelope carries
// the sender identity so receivers never have to trust message bodies for it.
type TeamMessage struct {
	From    string  `json:"from"`
	Percept Percept `json:"percept"`
}

// ACT (client -> server): exactly one action per round, plus at most one
// broadcast per kind.
type ActMsg struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	Step            int       `json:"step"`
	AgentID         string    `json:"agent_id"`
	Action          Action    `json:"action"`
	Broadcasts      []Percept `json:"broadcasts,omitempty"`
}

// ERROR (server -> client): a request rejected before it reached the round
// loop, e.g. a malformed HELLO.
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Reason          string `json:"reason,omitempty"`
}

// Action names.
const (
	ActionGoto     = "goto"
	ActionStore    = "store"
	ActionSkip     = "skip"
	ActionContinue = "continue"
)

type Action struct {
	Name   string `json:"name"`
	Params []any  `json:"params,omitempty"`
}

// StringTarget returns the action's first parameter as a string, or "" when
// absent or malformed.
func (a Action) StringTarget() string {
	if len(a.Params) == 0 {
		return ""
	}
	s, _ := a.Params[0].(string)
	return s
}

// NoopAction is the default when no branch of the round logic applies.
func NoopAction() Action { return Action{Name: ActionContinue} }

func GotoAction(target string) Action {
	return Action{Name: ActionGoto, Params: []any{target}}
}
