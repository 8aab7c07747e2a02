// Package storage bootstraps the persistence layer: the PostgreSQL
// connection pool, schema migrations, and the Redis client used for
// rate limiting and caching.
//
// Connections are opened once at startup and shared across the
// application. Pool statistics can be published to Prometheus gauges
// in the background:
//
//	db, err := storage.Connect(ctx, cfg.Database)
//	if err != nil {
//		return err
//	}
//	defer db.Close()
//
//	if err := storage.Migrate(ctx, db); err != nil {
//		return err
//	}
//
//	go storage.PublishPoolStats(ctx, db, metrics, 15*time.Second)
package storage
