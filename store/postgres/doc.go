// Package postgres provides the PostgreSQL storage backend.
//
// It implements the job, dead letter queue, result cache, and credential
// stores on a single pgxpool connection pool. Job claims use SELECT FOR
// UPDATE SKIP LOCKED so that any number of workers can poll the same
// table without handing the same job to two of them, and the dedupe
// guarantee is enforced by a partial unique index over non-terminal
// rows.
//
// Usage:
//
//	st, err := postgres.New(ctx, "postgres://localhost:5432/musewave")
//	if err != nil {
//		return err
//	}
//	defer st.Close()
//
//	if err := st.Migrate(ctx); err != nil {
//		return err
//	}
//
// Migrate applies the embedded schema migrations in order and records
// them in maestro_migrations, so it is safe to call on every startup.
package postgres
