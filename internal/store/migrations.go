package store

// Migrations returns the ordered, idempotent schema migrations for the
// core engine's tables. Each statement uses CREATE TABLE IF NOT EXISTS so
// re-running a migration that was already recorded is a no-op even if
// schema_migrations were somehow reset.
func Migrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "pipeline_runs",
			SQL: `
				CREATE TABLE IF NOT EXISTS pipeline_runs (
					id TEXT PRIMARY KEY,
					methodology TEXT NOT NULL,
					current_phase TEXT,
					status TEXT NOT NULL DEFAULT 'running',
					config_snapshot TEXT,
					token_usage_snapshot TEXT,
					parent_run_id TEXT,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_pipeline_runs_parent ON pipeline_runs(parent_run_id);
			`,
		},
		{
			Version: 2,
			Name:    "decisions",
			SQL: `
				CREATE TABLE IF NOT EXISTS decisions (
					id TEXT PRIMARY KEY,
					pipeline_run_id TEXT,
					phase TEXT NOT NULL,
					category TEXT NOT NULL,
					key TEXT NOT NULL,
					value TEXT NOT NULL,
					rationale TEXT,
					superseded_by TEXT,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_decisions_run_phase ON decisions(pipeline_run_id, phase);
				CREATE INDEX IF NOT EXISTS idx_decisions_active ON decisions(pipeline_run_id, superseded_by);
			`,
		},
		{
			Version: 3,
			Name:    "requirements_constraints_artifacts",
			SQL: `
				CREATE TABLE IF NOT EXISTS requirements (
					id TEXT PRIMARY KEY,
					pipeline_run_id TEXT NOT NULL,
					phase TEXT NOT NULL,
					text TEXT NOT NULL,
					kind TEXT NOT NULL DEFAULT 'functional',
					created_at TIMESTAMP NOT NULL
				);
				CREATE TABLE IF NOT EXISTS constraints (
					id TEXT PRIMARY KEY,
					pipeline_run_id TEXT NOT NULL,
					phase TEXT NOT NULL,
					text TEXT NOT NULL,
					created_at TIMESTAMP NOT NULL
				);
				CREATE TABLE IF NOT EXISTS artifacts (
					id TEXT PRIMARY KEY,
					pipeline_run_id TEXT NOT NULL,
					phase TEXT NOT NULL,
					type TEXT NOT NULL,
					path TEXT NOT NULL,
					content_hash TEXT NOT NULL,
					created_at TIMESTAMP NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_requirements_run ON requirements(pipeline_run_id, phase);
				CREATE INDEX IF NOT EXISTS idx_constraints_run ON constraints(pipeline_run_id, phase);
				CREATE INDEX IF NOT EXISTS idx_artifacts_run_type ON artifacts(pipeline_run_id, phase, type);
			`,
		},
		{
			Version: 4,
			Name:    "token_usage",
			SQL: `
				CREATE TABLE IF NOT EXISTS token_usage (
					id TEXT PRIMARY KEY,
					pipeline_run_id TEXT NOT NULL,
					phase TEXT NOT NULL,
					input_tokens INTEGER NOT NULL DEFAULT 0,
					output_tokens INTEGER NOT NULL DEFAULT 0,
					created_at TIMESTAMP NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_token_usage_run ON token_usage(pipeline_run_id);
			`,
		},
		{
			Version: 5,
			Name:    "sessions",
			SQL: `
				CREATE TABLE IF NOT EXISTS sessions (
					id TEXT PRIMARY KEY,
					graph_file TEXT NOT NULL,
					status TEXT NOT NULL DEFAULT 'active',
					base_branch TEXT NOT NULL DEFAULT 'main',
					budget_usd REAL NOT NULL DEFAULT 0,
					total_cost_usd REAL NOT NULL DEFAULT 0,
					planning_cost_usd REAL NOT NULL DEFAULT 0,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				);
			`,
		},
		{
			Version: 6,
			Name:    "tasks",
			SQL: `
				CREATE TABLE IF NOT EXISTS tasks (
					id TEXT PRIMARY KEY,
					session_id TEXT NOT NULL,
					name TEXT NOT NULL,
					prompt TEXT NOT NULL,
					status TEXT NOT NULL DEFAULT 'pending',
					agent TEXT,
					model TEXT,
					billing_mode TEXT,
					worktree_path TEXT,
					worktree_branch TEXT,
					worker_id TEXT,
					budget_usd REAL,
					cost_usd REAL NOT NULL DEFAULT 0,
					input_tokens INTEGER NOT NULL DEFAULT 0,
					output_tokens INTEGER NOT NULL DEFAULT 0,
					result TEXT,
					error TEXT,
					exit_code INTEGER,
					retry_count INTEGER NOT NULL DEFAULT 0,
					max_retries INTEGER NOT NULL DEFAULT 0,
					task_type TEXT,
					started_at TIMESTAMP,
					completed_at TIMESTAMP,
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_tasks_session_status ON tasks(session_id, status);

				CREATE TABLE IF NOT EXISTS task_dependencies (
					task_id TEXT NOT NULL,
					depends_on TEXT NOT NULL,
					PRIMARY KEY (task_id, depends_on),
					CHECK (task_id != depends_on)
				);
				CREATE INDEX IF NOT EXISTS idx_task_deps_task ON task_dependencies(task_id);
				CREATE INDEX IF NOT EXISTS idx_task_deps_depends_on ON task_dependencies(depends_on);
			`,
		},
		{
			Version: 7,
			Name:    "cost_entries",
			SQL: `
				CREATE TABLE IF NOT EXISTS cost_entries (
					id TEXT PRIMARY KEY,
					session_id TEXT NOT NULL,
					task_id TEXT,
					agent TEXT NOT NULL,
					provider TEXT NOT NULL,
					model TEXT NOT NULL,
					billing_mode TEXT NOT NULL,
					tokens_in INTEGER NOT NULL DEFAULT 0,
					tokens_out INTEGER NOT NULL DEFAULT 0,
					cost_usd REAL NOT NULL DEFAULT 0,
					savings_usd REAL NOT NULL DEFAULT 0,
					created_at TIMESTAMP NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_cost_entries_session ON cost_entries(session_id);
				CREATE INDEX IF NOT EXISTS idx_cost_entries_task ON cost_entries(task_id);
			`,
		},
		{
			Version: 8,
			Name:    "session_signals",
			SQL: `
				CREATE TABLE IF NOT EXISTS session_signals (
					id TEXT PRIMARY KEY,
					session_id TEXT NOT NULL,
					signal TEXT NOT NULL,
					created_at TIMESTAMP NOT NULL,
					processed_at TIMESTAMP
				);
				CREATE INDEX IF NOT EXISTS idx_session_signals_pending ON session_signals(session_id, processed_at);
			`,
		},
	}
}
