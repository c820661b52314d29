package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"cityhaul.ai/internal/sim/jobs"
	"cityhaul.ai/internal/sim/world"
)

// SQLiteIndex is a queryable read model over the job ledger's event stream.
// Writes are queued to a background goroutine so the round barrier never
// blocks on disk; the JSONL round logs remain the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type reqKind int

const (
	reqJobEvent reqKind = iota + 1
	reqRound
	reqFlush
)

type req struct {
	kind reqKind

	job   jobEventRow
	round world.RoundLogEntry
	flush chan struct{}
}

type jobEventRow struct {
	SimID      string
	Step       int
	Event      string
	Team       string
	JobName    string
	Reward     int
	RecordedAt string
	RawJSON    string
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	// NORMAL is a decent durability/perf tradeoff for a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS job_events (
			sim_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			event TEXT NOT NULL,
			team TEXT,
			job_name TEXT NOT NULL,
			reward INTEGER NOT NULL,
			recorded_at TEXT NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (sim_id, step, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_job_events_job ON job_events(sim_id, job_name, step);`,
		`CREATE INDEX IF NOT EXISTS idx_job_events_event ON job_events(sim_id, event, step);`,
		`CREATE TABLE IF NOT EXISTS rounds (
			sim_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			agents INTEGER NOT NULL,
			active_jobs INTEGER NOT NULL,
			actions INTEGER NOT NULL,
			broadcasts INTEGER NOT NULL,
			completions INTEGER NOT NULL,
			terminated INTEGER NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (sim_id, step)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// RecordJob queues one ledger lifecycle event (POSTED, COMPLETED, TERMINATED).
func (s *SQLiteIndex) RecordJob(simID string, step int, event, team string, data jobs.Data) {
	if s == nil || s.closed.Load() {
		return
	}
	raw, _ := json.Marshal(data)
	r := jobEventRow{
		SimID:      simID,
		Step:       step,
		Event:      event,
		Team:       team,
		JobName:    data.Name,
		Reward:     data.Reward,
		RecordedAt: time.Now().UTC().Format(time.RFC3339Nano),
		RawJSON:    string(raw),
	}
	select {
	case s.ch <- req{kind: reqJobEvent, job: r}:
	default:
		// Drop if the indexer falls behind; JSONL logs remain the source of truth.
	}
}

// RecordRound queues one per-round stats row.
func (s *SQLiteIndex) RecordRound(entry world.RoundLogEntry) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqRound, round: entry}:
	default:
	}
}

// JobEvent is a row returned by queries over the indexed event stream.
type JobEvent struct {
	Step    int
	Event   string
	Team    string
	JobName string
	Reward  int
}

// JobHistory returns the indexed lifecycle of one job, oldest first.
func (s *SQLiteIndex) JobHistory(simID, jobName string) ([]JobEvent, error) {
	rows, err := s.db.Query(
		`SELECT step, event, COALESCE(team,''), job_name, reward
		 FROM job_events WHERE sim_id=? AND job_name=? ORDER BY step, seq`,
		simID, jobName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []JobEvent
	for rows.Next() {
		var e JobEvent
		if err := rows.Scan(&e.Step, &e.Event, &e.Team, &e.JobName, &e.Reward); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CompletionsByTeam sums the reward of completed jobs per team.
func (s *SQLiteIndex) CompletionsByTeam(simID string) (map[string]int, error) {
	rows, err := s.db.Query(
		`SELECT team, SUM(reward) FROM job_events
		 WHERE sim_id=? AND event=? AND team != '' GROUP BY team`,
		simID, world.JobEventCompleted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var team string
		var total int
		if err := rows.Scan(&team, &total); err != nil {
			return nil, err
		}
		out[team] = total
	}
	return out, rows.Err()
}

// Flush blocks until everything queued so far is committed. Test helper.
func (s *SQLiteIndex) Flush() {
	if s == nil || s.closed.Load() {
		return
	}
	done := make(chan struct{})
	s.ch <- req{kind: reqFlush, flush: done}
	<-done
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertJob, _ := s.db.Prepare(`INSERT OR REPLACE INTO job_events(sim_id,step,seq,event,team,job_name,reward,recorded_at,raw_json) VALUES(?,?,?,?,?,?,?,?,?)`)
	insertRound, _ := s.db.Prepare(`INSERT OR REPLACE INTO rounds(sim_id,step,agents,active_jobs,actions,broadcasts,completions,terminated,raw_json) VALUES(?,?,?,?,?,?,?,?,?)`)
	defer func() {
		if insertJob != nil {
			_ = insertJob.Close()
		}
		if insertRound != nil {
			_ = insertRound.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = 2 * time.Second

		lastEventStep = -1
		eventSeq      int
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		if r.kind == reqFlush {
			commit()
			close(r.flush)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqJobEvent:
			e := r.job
			if e.Step != lastEventStep {
				lastEventStep = e.Step
				eventSeq = 0
			}
			seq := eventSeq
			eventSeq++
			if insertJob != nil {
				if _, err := tx.Stmt(insertJob).Exec(
					e.SimID, e.Step, seq, e.Event, e.Team, e.JobName, e.Reward, e.RecordedAt, e.RawJSON,
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqRound:
			entry := r.round
			raw, _ := json.Marshal(entry)
			if insertRound != nil {
				if _, err := tx.Stmt(insertRound).Exec(
					entry.SimID, entry.Step, entry.Agents, entry.ActiveJobs,
					entry.Actions, entry.Broadcasts, entry.Completions, entry.Terminated,
					string(raw),
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}
		}
		flushIfNeeded()
	}

	commit()
}
