package main

import (
	"encoding/json"
	"flag"
	"hash/fnv"
	"log"
	"os"
	"os/signal"

	"github.com/gorilla/websocket"

	"cityhaul.ai/internal/agent"
	"cityhaul.ai/internal/protocol"
)

func main() {
	var (
		url   = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name  = flag.String("name", "bot", "agent name")
		team  = flag.String("team", "teamA", "team name")
		role  = flag.String("role", "drone", "agent role (drone or truck)")
		token = flag.String("resume", "", "resume token from a previous session")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		AgentName:       *name,
		Team:            *team,
		Role:            *role,
		ResumeToken:     *token,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	var driver *agent.Driver

	for {
		select {
		case <-stop:
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			logger.Printf("WELCOME agent_id=%s team=%s seed=%d resume=%s", w.AgentID, w.Team, w.SimParams.Seed, w.ResumeToken)
			driver = agent.NewDriver(w.AgentID, w.Team, *role, agent.Config{
				// Per-agent seed so teammates explore different jobs.
				Seed:                   w.SimParams.Seed ^ int64(hashString(w.AgentID)),
				EligibilityWindowSteps: w.SimParams.EligibilityWindowSteps,
			})

		case protocol.TypePercept:
			if driver == nil {
				continue
			}
			var p protocol.PerceptMsg
			if err := json.Unmarshal(msg, &p); err != nil {
				continue
			}
			act := driver.Round(p)
			if err := conn.WriteJSON(act); err != nil {
				return
			}
		}
	}
}

func hashString(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}
