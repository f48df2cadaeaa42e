// Package config loads application configuration from environment variables
// into typed structs.
//
// It wraps github.com/joho/godotenv and github.com/caarlos0/env/v11:
//
//   - Load parses the environment into any struct annotated with `env` tags
//     and caches the result per type for the lifetime of the process.
//   - Structs implementing Validator are checked before they are cached, so a
//     misconfigured deployment fails at startup.
//   - LoadEnv reads explicit env files, e.g. passed with a CLI flag.
//   - ResetCache clears the cache in tests.
//
// # Usage
//
//	var stripeCfg billing.StripeConfig
//	config.MustLoad(&stripeCfg)
//
// Every component in this module declares its own config struct next to the
// code that uses it (httpserver.Config, pg.Config, billing.StripeConfig,
// payments.Config) and main composes them.
package config
