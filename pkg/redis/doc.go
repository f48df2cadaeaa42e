// Package redis connects to an optional Redis server used for cross-instance
// coordination, such as the sweeper lock in package lock.
//
//	var cfg redis.Config
//	config.MustLoad(&cfg)
//	if cfg.Enabled() {
//		client, err := redis.Connect(ctx, cfg)
//		...
//	}
//
// Connect retries the initial ping; Healthcheck plugs the client into the
// HTTP health endpoint.
package redis
