// Package pg bootstraps PostgreSQL access on top of pgx/v5 and goose/v3.
//
//   - Config is populated from PG_* environment variables.
//   - Connect opens a *pgxpool.Pool and retries with a linearly growing delay
//     until the database answers a ping or ctx is cancelled.
//   - Migrate runs goose migrations from an fs.FS, so each store embeds its
//     own schema next to its queries.
//   - WithTx wraps a function in a transaction.
//   - Healthcheck adapts the pool to the HTTP server health endpoint.
//
// Error helpers such as IsNotFoundError and IsCheckViolationError classify
// driver errors without callers importing pgconn.
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, pgstore.Migrations, pgstore.MigrationsDir, cfg, pg.MigrateUp, log); err != nil {
//		return err
//	}
package pg
