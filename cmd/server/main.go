package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"cityhaul.ai/internal/persistence/indexdb"
	persistlog "cityhaul.ai/internal/persistence/log"
	"cityhaul.ai/internal/sim/tuning"
	"cityhaul.ai/internal/sim/world"
	"cityhaul.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		simID      = flag.String("sim", "sim_1", "simulation id")
		seed       = flag.Int64("seed", 1337, "simulation seed")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite job-event index")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	simDir := filepath.Join(*dataDir, "sims", *simID)
	_ = os.MkdirAll(simDir, 0o755)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("tuning not found (%s); using defaults", tp)
			tune = tuning.Defaults()
		} else {
			logger.Fatalf("load tuning: %v", err)
		}
	}

	w := world.New(world.Config{ID: *simID, Seed: *seed, Tune: tune}, log.New(os.Stdout, "[world] ", log.LstdFlags|log.Lmicroseconds))

	// Read-model index (does not affect sim determinism).
	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(simDir, "index.db"))
		if err != nil {
			logger.Fatalf("open index backend: %v", err)
		}
		defer idx.Close()
		w.SetReporter(idx)
	}

	roundLog := persistlog.NewRoundLogger(simDir)
	defer roundLog.Close()
	w.SetRoundLogger(roundLog)

	ctx, cancel := signalContext()
	defer cancel()

	go func() {
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("world stopped: %v", err)
		}
		cancel()
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		m := w.Metrics()

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP cityhaul_sim_step Current simulation step.\n")
		fmt.Fprintf(rw, "# TYPE cityhaul_sim_step gauge\n")
		fmt.Fprintf(rw, "cityhaul_sim_step{sim=%q} %d\n", *simID, m.Step)

		fmt.Fprintf(rw, "# HELP cityhaul_sim_agents Current number of agents.\n")
		fmt.Fprintf(rw, "# TYPE cityhaul_sim_agents gauge\n")
		fmt.Fprintf(rw, "cityhaul_sim_agents{sim=%q} %d\n", *simID, m.Agents)

		fmt.Fprintf(rw, "# HELP cityhaul_sim_clients Current number of connected clients.\n")
		fmt.Fprintf(rw, "# TYPE cityhaul_sim_clients gauge\n")
		fmt.Fprintf(rw, "cityhaul_sim_clients{sim=%q} %d\n", *simID, m.Clients)

		fmt.Fprintf(rw, "# HELP cityhaul_sim_active_jobs Currently active jobs.\n")
		fmt.Fprintf(rw, "# TYPE cityhaul_sim_active_jobs gauge\n")
		fmt.Fprintf(rw, "cityhaul_sim_active_jobs{sim=%q} %d\n", *simID, m.ActiveJobs)

		fmt.Fprintf(rw, "# HELP cityhaul_team_score Accumulated reward per team.\n")
		fmt.Fprintf(rw, "# TYPE cityhaul_team_score gauge\n")
		teams := make([]string, 0, len(m.Scores))
		for team := range m.Scores {
			teams = append(teams, team)
		}
		sort.Strings(teams)
		for _, team := range teams {
			fmt.Fprintf(rw, "cityhaul_team_score{sim=%q,team=%q} %d\n", *simID, team, m.Scores[team])
		}
	})

	enableAdminHTTP := envBool("CH_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	enablePprofHTTP := envBool("CH_ENABLE_PPROF_HTTP", false)
	if enableAdminHTTP {
		// Local-only admin endpoints (do not affect simulation determinism).
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			resp := struct {
				SimID   string        `json:"sim_id"`
				Metrics world.Metrics `json:"metrics"`
			}{
				SimID:   *simID,
				Metrics: w.Metrics(),
			}
			_ = json.NewEncoder(rw).Encode(resp)
		})
	} else {
		logger.Printf("admin endpoints disabled (CH_ENABLE_ADMIN_HTTP=false)")
	}
	if enablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(w, logger).Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func envBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}
