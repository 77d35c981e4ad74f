package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/johnplanow/substrate/internal/config"
	"github.com/johnplanow/substrate/internal/decisions"
	"github.com/johnplanow/substrate/internal/dispatch"
	"github.com/johnplanow/substrate/internal/eventbus"
	"github.com/johnplanow/substrate/internal/methodology"
	"github.com/johnplanow/substrate/internal/phase"
	"github.com/johnplanow/substrate/internal/store"
	"github.com/johnplanow/substrate/internal/stringutils"
	"github.com/johnplanow/substrate/internal/taskgraph"
	"github.com/johnplanow/substrate/internal/workerpool"
)

// pipelineContext is the shared state a phaseImpl closure needs:
// persistence, the prompt pack, a worker pool to spawn the phase
// agent under (so an eventual cancel signal can Terminate it
// mid-phase), and the graph-file path that the solutioning phase
// writes and the implementation phase reads.
type pipelineContext struct {
	runID     string
	cfg       *config.Config
	ds        *decisions.Store
	pack      methodology.Pack
	pool      *workerpool.Pool
	amendment *phase.AmendmentHandler
	graphPath string
}

const phaseDispatchTimeout = 10 * time.Minute

// dispatchPhaseAgent spawns a phase's agent through the worker pool
// (one slot at a time — phases never run concurrently) and parses its
// captured stdout with internal/dispatch's YAML extraction and
// parsing. No output schema is validated here.
func dispatchPhaseAgent(pool *workerpool.Pool, binary, taskType, prompt string) (*dispatch.Result, error) {
	type outcome struct {
		stdout, stderr string
		exitCode       int
		failed         bool
	}
	done := make(chan outcome, 1)
	cb := workerpool.Callbacks{
		OnComplete: func(_ string, stdout, stderr string, exitCode int) {
			done <- outcome{stdout: stdout, stderr: stderr, exitCode: exitCode}
		},
		OnError: func(_ string, stderr string, exitCode int) {
			done <- outcome{stderr: stderr, exitCode: exitCode, failed: true}
		},
	}
	pool.Submit(workerpool.Spec{
		ID: uuid.New().String(), Command: binary, Stdin: prompt, Timeout: phaseDispatchTimeout,
	}, cb)
	out := <-done

	result := &dispatch.Result{
		ExitCode: out.exitCode,
		TokenEstimate: dispatch.TokenEstimate{
			Input:  len(prompt) / 4,
			Output: len(out.stdout) / 4,
		},
	}
	if out.failed {
		result.Status = dispatch.StatusFailed
		result.Output = out.stderr
		return result, nil
	}

	result.Output = out.stdout
	block, found := dispatch.ExtractLastYAMLBlock(out.stdout)
	if !found || stringutils.IsEmpty(block) {
		result.Status = dispatch.StatusFailed
		result.ParseError = "no YAML block found in output"
		return result, nil
	}
	parsed, err := dispatch.ParseYAML(block)
	if err != nil {
		result.Status = dispatch.StatusFailed
		result.ParseError = fmt.Sprintf("invalid YAML: %v", err)
		return result, nil
	}
	result.Status = dispatch.StatusCompleted
	result.Parsed = parsed
	return result, nil
}

// promptBudgetChars bounds a compiled phase prompt before the amendment
// frame, if any, is injected.
const promptBudgetChars = 32000

// newPhaseImplementation builds the phase.Implementation closure the
// Orchestrator drives. Each phase: compiles its prompt from the
// methodology pack, injects amendment context if this is an amendment
// run, dispatches the phase's agent, then persists whatever the agent
// declared (decisions, artifacts) before returning success.
func newPhaseImplementation(pc *pipelineContext) phase.Implementation {
	return func(n phase.Name, params map[string]interface{}) (phase.PhaseOutput, error) {
		prompt, err := pc.pack.GetPrompt(string(n))
		if err != nil {
			return phase.PhaseOutput{}, fmt.Errorf("phase %s: %w", n, err)
		}
		prompt = methodology.Render(prompt, stringParams(params))

		if pc.amendment != nil {
			frame, ok, err := pc.amendment.BuildFrame()
			if err != nil {
				return phase.PhaseOutput{}, fmt.Errorf("build amendment frame: %w", err)
			}
			if ok {
				prompt = phase.InjectInto(prompt, frame, promptBudgetChars)
			}
		}

		agent, _ := params["agent"].(string)
		agent = stringutils.TrimAll(agent)
		if stringutils.IsEmpty(agent) {
			agent = "claude"
		}

		result, err := dispatchPhaseAgent(pc.pool, pc.cfg.AgentBinary(agent), string(n), prompt)
		if err != nil {
			return phase.PhaseOutput{}, fmt.Errorf("dispatch phase %s: %w", n, err)
		}
		if result.Status != dispatch.StatusCompleted {
			return phase.PhaseOutput{Result: phase.ResultFailed}, nil
		}

		decisionCount, err := persistDecisions(pc.ds, pc.runID, string(n), result.Parsed)
		if err != nil {
			return phase.PhaseOutput{}, err
		}

		artifacts, err := persistArtifacts(pc.ds, pc.runID, string(n), result.Parsed, &pc.graphPath)
		if err != nil {
			return phase.PhaseOutput{}, err
		}

		if err := pc.ds.AddTokenUsage(&decisions.TokenUsage{
			ID: uuid.New().String(), PipelineRunID: pc.runID, Phase: string(n),
			InputTokens: int64(result.TokenEstimate.Input), OutputTokens: int64(result.TokenEstimate.Output),
		}); err != nil {
			return phase.PhaseOutput{}, fmt.Errorf("record token usage: %w", err)
		}

		if err := pc.ds.AdvancePhase(pc.runID, string(n)); err != nil {
			return phase.PhaseOutput{}, fmt.Errorf("advance phase: %w", err)
		}

		return phase.PhaseOutput{
			Result:        phase.ResultSuccess,
			TokenInput:    result.TokenEstimate.Input,
			TokenOutput:   result.TokenEstimate.Output,
			DecisionCount: decisionCount,
			Artifacts:     artifacts,
		}, nil
	}
}

// stringParams narrows a phase's param map to the string values
// methodology.Render understands.
func stringParams(params map[string]interface{}) map[string]string {
	out := make(map[string]string, len(params))
	for k, v := range params {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

// persistDecisions reads a "decisions" list out of a phase's parsed
// output and records each as an append-only Decision row.
func persistDecisions(ds *decisions.Store, runID, phaseName string, parsed map[string]interface{}) (int, error) {
	raw, ok := parsed["decisions"].([]interface{})
	if !ok {
		return 0, nil
	}
	count := 0
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		d := &decisions.Decision{
			ID:            uuid.New().String(),
			PipelineRunID: runID,
			Phase:         phaseName,
			Category:      fieldString(m, "category"),
			Key:           fieldString(m, "key"),
			Value:         fieldString(m, "value"),
			Rationale:     fieldString(m, "rationale"),
		}
		if err := ds.CreateDecision(d); err != nil {
			return count, fmt.Errorf("persist decision: %w", err)
		}
		count++
	}
	return count, nil
}

// persistArtifacts reads an "artifacts" list out of a phase's parsed
// output and registers each. The solutioning phase's task-graph
// artifact is recognized by type and its path captured for the
// implementation phase to load.
func persistArtifacts(ds *decisions.Store, runID, phaseName string, parsed map[string]interface{}, graphPath *string) ([]string, error) {
	raw, ok := parsed["artifacts"].([]interface{})
	if !ok {
		return nil, nil
	}
	var paths []string
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		path := fieldString(m, "path")
		artifactType := fieldString(m, "type")
		a := &decisions.Artifact{
			ID:            uuid.New().String(),
			PipelineRunID: runID,
			Phase:         phaseName,
			Type:          artifactType,
			Path:          path,
			ContentHash:   fieldString(m, "content_hash"),
		}
		if err := ds.RegisterArtifact(a); err != nil {
			return paths, fmt.Errorf("register artifact: %w", err)
		}
		paths = append(paths, path)
		if artifactType == "task_graph" && graphPath != nil {
			*graphPath = path
		}
	}
	return paths, nil
}

func fieldString(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}

// loadAndRunGraph parses, validates, and executes the task graph
// produced by the solutioning phase through a sessionRunner.
func loadAndRunGraph(path, sessionID string, cfg *config.Config, bus *eventbus.Bus) ([]taskgraph.TickResult, error) {
	gf, err := taskgraph.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("parse task graph: %w", err)
	}
	if _, err := taskgraph.Validate(gf, []int{1}, nil); err != nil {
		return nil, fmt.Errorf("validate task graph: %w", err)
	}

	engine := taskgraph.NewEngine(gf, 4)
	runner := newSessionRunner(sessionID, cfg, bus)
	return engine.Run(runner), nil
}

// openStore is a small indirection so tests can substitute an
// in-memory database without touching main().
func openStore(path string) (*store.Store, error) {
	return store.Open(path, store.Migrations())
}
