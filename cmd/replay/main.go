package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"cityhaul.ai/internal/sim/world"
)

// Reads the compressed round logs of a finished match and prints a summary.
func main() {
	var (
		roundsDir = flag.String("rounds", "", "dir containing rounds-*.jsonl.zst")
		fromStep  = flag.Int("from_step", 0, "start at step (inclusive, optional)")
		toStep    = flag.Int("to_step", 0, "stop at step (inclusive, optional)")
	)
	flag.Parse()

	if *roundsDir == "" {
		fmt.Fprintln(os.Stderr, "missing -rounds")
		os.Exit(2)
	}

	files, err := listRoundFiles(*roundsDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list rounds:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no round files found in", *roundsDir)
		os.Exit(1)
	}

	var sum summary
	for _, path := range files {
		if err := scanFile(path, *fromStep, *toStep, &sum); err != nil {
			fmt.Fprintln(os.Stderr, "scan:", err)
			os.Exit(1)
		}
	}

	if sum.rounds == 0 {
		fmt.Println("no rounds in range")
		return
	}
	fmt.Printf("sim=%s rounds=%d steps=[%d,%d]\n", sum.simID, sum.rounds, sum.firstStep, sum.lastStep)
	fmt.Printf("actions=%d broadcasts=%d completions=%d terminated=%d\n",
		sum.actions, sum.broadcasts, sum.completions, sum.terminated)
	fmt.Printf("peak agents=%d peak active jobs=%d\n", sum.peakAgents, sum.peakActive)
}

type summary struct {
	simID       string
	rounds      int
	firstStep   int
	lastStep    int
	actions     int
	broadcasts  int
	completions int
	terminated  int
	peakAgents  int
	peakActive  int
}

func (s *summary) add(e world.RoundLogEntry) {
	if s.rounds == 0 {
		s.simID = e.SimID
		s.firstStep = e.Step
	}
	s.rounds++
	s.lastStep = e.Step
	s.actions += e.Actions
	s.broadcasts += e.Broadcasts
	s.completions += e.Completions
	s.terminated += e.Terminated
	if e.Agents > s.peakAgents {
		s.peakAgents = e.Agents
	}
	if e.ActiveJobs > s.peakActive {
		s.peakActive = e.ActiveJobs
	}
}

func listRoundFiles(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "rounds-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

func scanFile(path string, fromStep, toStep int, sum *summary) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)

	for sc.Scan() {
		var entry world.RoundLogEntry
		if err := json.Unmarshal(sc.Bytes(), &entry); err != nil {
			return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
		}
		if entry.Step < fromStep {
			continue
		}
		if toStep != 0 && entry.Step > toStep {
			return nil
		}
		sum.add(entry)
	}
	return sc.Err()
}
