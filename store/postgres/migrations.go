package postgres

// migrations are applied in slice order. Append only; never edit an
// entry that has shipped.
var migrations = []struct {
	name string
	sql  string
}{
	{
		name: "001_create_jobs",
		sql: `
			CREATE TABLE IF NOT EXISTS maestro_jobs (
				id             TEXT PRIMARY KEY,
				type           TEXT NOT NULL,
				status         TEXT NOT NULL DEFAULT 'queued',
				params         JSONB NOT NULL DEFAULT '{}',
				result         JSONB,
				last_error     TEXT NOT NULL DEFAULT '',
				priority       INTEGER NOT NULL DEFAULT 0,
				attempts       INTEGER NOT NULL DEFAULT 0,
				max_attempts   INTEGER NOT NULL DEFAULT 3,
				available_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				backoff_ms     BIGINT NOT NULL DEFAULT 0,
				dedupe_key     TEXT,
				cache_key      TEXT NOT NULL DEFAULT '',
				parent_id      TEXT,
				credential_id  TEXT,
				worker_id      TEXT,
				heartbeat_at   TIMESTAMPTZ,
				started_at     TIMESTAMPTZ,
				completed_at   TIMESTAMPTZ,
				timeout_ms     BIGINT NOT NULL DEFAULT 0,
				created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_maestro_jobs_claim
				ON maestro_jobs (type, priority DESC, available_at ASC, created_at ASC)
				WHERE status = 'queued';

			CREATE INDEX IF NOT EXISTS idx_maestro_jobs_status
				ON maestro_jobs (status);

			CREATE INDEX IF NOT EXISTS idx_maestro_jobs_heartbeat
				ON maestro_jobs (heartbeat_at)
				WHERE status = 'running';

			CREATE UNIQUE INDEX IF NOT EXISTS idx_maestro_jobs_dedupe
				ON maestro_jobs (dedupe_key)
				WHERE dedupe_key IS NOT NULL
				  AND status IN ('queued', 'running');
		`,
	},
	{
		name: "002_create_dlq",
		sql: `
			CREATE TABLE IF NOT EXISTS maestro_dlq (
				id             TEXT PRIMARY KEY,
				job_id         TEXT NOT NULL,
				job_type       TEXT NOT NULL,
				params         JSONB NOT NULL DEFAULT '{}',
				error          TEXT NOT NULL,
				attempts       INTEGER NOT NULL DEFAULT 0,
				max_attempts   INTEGER NOT NULL DEFAULT 0,
				permanent      BOOLEAN NOT NULL DEFAULT FALSE,
				credential_id  TEXT,
				failed_at      TIMESTAMPTZ NOT NULL,
				replayed_at    TIMESTAMPTZ,
				created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_maestro_dlq_failed_at
				ON maestro_dlq (failed_at DESC);

			CREATE INDEX IF NOT EXISTS idx_maestro_dlq_job_type
				ON maestro_dlq (job_type);
		`,
	},
	{
		name: "003_create_cache",
		sql: `
			CREATE TABLE IF NOT EXISTS maestro_cache (
				key         TEXT PRIMARY KEY,
				result      JSONB NOT NULL,
				created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				expires_at  TIMESTAMPTZ
			);

			CREATE INDEX IF NOT EXISTS idx_maestro_cache_expiry
				ON maestro_cache (expires_at)
				WHERE expires_at IS NOT NULL;
		`,
	},
	{
		name: "004_create_credentials",
		sql: `
			CREATE TABLE IF NOT EXISTS maestro_credentials (
				id          TEXT PRIMARY KEY,
				name        TEXT NOT NULL DEFAULT '',
				token_hash  TEXT NOT NULL,
				tier        TEXT NOT NULL DEFAULT 'free',
				rate_limit  INTEGER NOT NULL DEFAULT 0,
				disabled    BOOLEAN NOT NULL DEFAULT FALSE,
				created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);

			CREATE UNIQUE INDEX IF NOT EXISTS idx_maestro_credentials_token
				ON maestro_credentials (token_hash);
		`,
	},
}
