// Command substrate drives a single pipeline run: crash recovery on
// startup, the phase-orchestrated analysis -> planning -> solutioning
// -> implementation sequence, and the task graph the implementation
// phase hands off to the worker-pooled execution engine.
//
// Usage:
//
//	substrate auto run -session <id> -concept <text> [-config path] [-stop-after phase]
//	substrate auto resume -run-id <id> [-config path] [-stop-after phase]
//	substrate run-graph -session <id> -graph <path> [-config path]
//	substrate pause|resume|cancel -session <id> [-db path]
//	substrate recover [-config path]
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/johnplanow/substrate/internal/config"
	"github.com/johnplanow/substrate/internal/decisions"
	"github.com/johnplanow/substrate/internal/eventbus"
	"github.com/johnplanow/substrate/internal/methodology"
	"github.com/johnplanow/substrate/internal/phase"
	"github.com/johnplanow/substrate/internal/quotes"
	"github.com/johnplanow/substrate/internal/recovery"
	"github.com/johnplanow/substrate/internal/signal"
	"github.com/johnplanow/substrate/internal/store"
	"github.com/johnplanow/substrate/internal/substratelog"
	"github.com/johnplanow/substrate/internal/workerpool"
	"github.com/johnplanow/substrate/internal/worktree"
)

const (
	defaultConfigPath = ".substrate/config.yaml"
	defaultDBPath     = ".substrate/state.db"
	cliName           = "substrate"
)

var log = substratelog.New("substrate")

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "auto":
		err = runAuto(args)
	case "run-graph":
		err = runGraphCmd(args)
	case "pause", "resume", "cancel":
		err = runSignalCmd(cmd, args)
	case "recover":
		err = runRecoverCmd(args)
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: substrate <auto run|auto resume|run-graph|pause|resume|cancel|recover> [flags]")
}

// openEverything opens the DB, config, decision store, worktree
// manager and runs crash recovery — the bootstrap sequence every
// subcommand that touches a session needs.
func openEverything(configPath, dbPath string) (*store.Store, *config.Config, *decisions.Store, *worktree.Manager, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	s, err := openStore(dbPath)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("open store: %w", err)
	}

	wt := worktree.New(cfg.ProjectRoot, cfg.WorktreesDir, "task")
	wt.BaseBranch = cfg.DefaultBranch

	rec := recovery.New(s, wt, func(err error) { log.Errorf("worktree cleanup: %v", err) })
	if _, err := rec.Reconcile(); err != nil {
		s.Close()
		return nil, nil, nil, nil, fmt.Errorf("crash recovery: %w", err)
	}

	return s, cfg, decisions.New(s), wt, nil
}

func runAuto(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("auto: expected a subcommand (run|resume)")
	}
	sub, rest := args[0], args[1:]

	fs := flag.NewFlagSet("auto "+sub, flag.ExitOnError)
	sessionID := fs.String("session", "", "session id for a new run (auto run)")
	runID := fs.String("run-id", "", "pipeline run id to resume (auto resume)")
	concept := fs.String("concept", "", "concept driving an amendment run")
	parentRunID := fs.String("parent-run-id", "", "parent run id, for an amendment run")
	from := fs.String("from", "", "phase to start from")
	stopAfter := fs.String("stop-after", "", "phase to stop after")
	configPath := fs.String("config", defaultConfigPath, "path to config.yaml")
	dbPath := fs.String("db", defaultDBPath, "path to the state database")
	natsPort := fs.Int("nats-port", 4222, "embedded NATS server port")
	fs.Parse(rest)

	s, cfg, ds, _, err := openEverything(*configPath, *dbPath)
	if err != nil {
		return err
	}
	defer s.Close()

	var effectiveRunID string
	switch sub {
	case "run":
		if *sessionID == "" {
			return fmt.Errorf("auto run: -session is required")
		}
		effectiveRunID = uuid.New().String()
		run := &decisions.PipelineRun{ID: effectiveRunID, Methodology: "default", ParentRunID: *parentRunID}
		if err := ds.CreatePipelineRun(run); err != nil {
			return fmt.Errorf("create pipeline run: %w", err)
		}
	case "resume":
		if *runID == "" {
			return fmt.Errorf("auto resume: -run-id is required")
		}
		effectiveRunID = *runID
		if _, err := ds.GetPipelineRun(effectiveRunID); err != nil {
			return err
		}
	default:
		return fmt.Errorf("auto: unknown subcommand %q", sub)
	}

	bus := eventbus.NewBus()
	ndjson := eventbus.StartNDJSON(bus, effectiveRunID, os.Stdout)
	defer ndjson.Stop()

	bridge, err := eventbus.NewBridge(*natsPort, bus)
	if err != nil {
		log.Errorf("embedded nats bridge unavailable, continuing without it: %v", err)
	} else {
		defer bridge.Shutdown()
	}

	quotes.Init(cfg.ProjectRoot)
	log.Printf("[%s] %s", effectiveRunID, quotes.SpawnQuote())

	heartbeat := time.NewTicker(time.Minute)
	heartbeatDone := make(chan struct{})
	go func() {
		for {
			select {
			case <-heartbeat.C:
				bus.Publish(eventbus.Frame{
					Kind: eventbus.KindHeartbeat, SessionID: effectiveRunID, CreatedAt: time.Now(),
					Payload: map[string]interface{}{"status": quotes.HourlyQuote()},
				})
			case <-heartbeatDone:
				return
			}
		}
	}()
	defer func() { heartbeat.Stop(); close(heartbeatDone) }()

	var amendment *phase.AmendmentHandler
	if *parentRunID != "" {
		amendment = phase.NewAmendmentHandler(ds, *parentRunID, *concept, nil)
	}

	pc := &pipelineContext{
		runID:     effectiveRunID,
		cfg:       cfg,
		ds:        ds,
		pack:      defaultMethodologyPack(),
		pool:      workerpool.New(1),
		amendment: amendment,
	}

	orch := phase.New(effectiveRunID, newPhaseImplementation(pc))
	orch.CLIName = cliName

	opts := phase.Options{From: phase.Name(*from), StopAfter: phase.Name(*stopAfter)}
	outcome, err := orch.Run(opts, func(n phase.Name) map[string]interface{} {
		params := map[string]interface{}{"concept": *concept, "run_id": effectiveRunID}
		if n == phase.Implementation {
			params["graph_path"] = pc.graphPath
		}
		return params
	})
	if err != nil {
		return fmt.Errorf("run pipeline: %w", err)
	}

	if outcome.Failed {
		ds.SetRunStatus(effectiveRunID, decisions.RunStatusFailed)
		return fmt.Errorf("phase %s failed: %v", outcome.FailedPhase, outcome.FailureErr)
	}

	for _, p := range outcome.CompletedPhases {
		if p == phase.Implementation && pc.graphPath != "" {
			if _, err := loadAndRunGraph(pc.graphPath, effectiveRunID, cfg, bus); err != nil {
				ds.SetRunStatus(effectiveRunID, decisions.RunStatusFailed)
				return fmt.Errorf("run task graph: %w", err)
			}
		}
	}

	if summary, ok := orch.Summary(); ok {
		fmt.Println(summary.Render())
	}

	if outcome.StoppedAfter == phase.Implementation {
		ds.SetRunStatus(effectiveRunID, decisions.RunStatusCompleted)
	} else {
		ds.SetRunStatus(effectiveRunID, decisions.RunStatusPaused)
	}
	log.Printf("[%s] %s", effectiveRunID, quotes.ShutdownQuote())
	return nil
}

func runGraphCmd(args []string) error {
	fs := flag.NewFlagSet("run-graph", flag.ExitOnError)
	sessionID := fs.String("session", "", "session id")
	graphPath := fs.String("graph", "", "path to a task graph file")
	configPath := fs.String("config", defaultConfigPath, "path to config.yaml")
	dbPath := fs.String("db", defaultDBPath, "path to the state database")
	natsPort := fs.Int("nats-port", 4222, "embedded NATS server port")
	fs.Parse(args)

	if *sessionID == "" || *graphPath == "" {
		return fmt.Errorf("run-graph: -session and -graph are required")
	}

	s, cfg, _, _, err := openEverything(*configPath, *dbPath)
	if err != nil {
		return err
	}
	defer s.Close()

	bus := eventbus.NewBus()
	ndjson := eventbus.StartNDJSON(bus, *sessionID, os.Stdout)
	defer ndjson.Stop()

	bridge, err := eventbus.NewBridge(*natsPort, bus)
	if err != nil {
		log.Errorf("embedded nats bridge unavailable, continuing without it: %v", err)
	} else {
		defer bridge.Shutdown()
	}

	results, err := loadAndRunGraph(*graphPath, *sessionID, cfg, bus)
	if err != nil {
		return err
	}
	for _, r := range results {
		log.Printf("tick: dispatched=%v completed=%v retried=%v failed=%v", r.Dispatched, r.Completed, r.Retried, r.Failed)
	}
	return nil
}

func runSignalCmd(kind string, args []string) error {
	fs := flag.NewFlagSet(kind, flag.ExitOnError)
	sessionID := fs.String("session", "", "session id")
	dbPath := fs.String("db", defaultDBPath, "path to the state database")
	fs.Parse(args)

	if *sessionID == "" {
		return fmt.Errorf("%s: -session is required", kind)
	}

	s, err := openStore(*dbPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer s.Close()

	sig := signal.New(s)
	return sig.Send(uuid.New().String(), *sessionID, signal.Kind(kind))
}

func runRecoverCmd(args []string) error {
	fs := flag.NewFlagSet("recover", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to config.yaml")
	dbPath := fs.String("db", defaultDBPath, "path to the state database")
	fs.Parse(args)

	s, _, _, _, err := openEverything(*configPath, *dbPath)
	if err != nil {
		return err
	}
	defer s.Close()
	log.Println("crash recovery reconciled")
	return nil
}

// defaultMethodologyPack returns a built-in prompt pack covering the
// four fixed phases, used until an external pack is configured.
func defaultMethodologyPack() methodology.Pack {
	p := methodology.NewMemoryPack()
	p.Prompts["analysis"] = "Analyze the concept: {{concept}}. Produce requirements, constraints, and open questions as decisions."
	p.Prompts["planning"] = "Plan an approach for run {{run_id}} given the prior decisions. Record architecture and sequencing decisions."
	p.Prompts["solutioning"] = "Design a task graph for run {{run_id}} and register it as a task_graph artifact."
	p.Prompts["implementation"] = "Execute the task graph at {{graph_path}} for run {{run_id}}."
	return p
}
