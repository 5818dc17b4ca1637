// Package config loads the process configuration from config.yaml.
//
// Sections:
//   - server     : http_port (default 8000), allowed_origins for CORS,
//     auth (mode apikey | none, header, key_env)
//   - log        : level: debug | info | warn | error
//   - monitor    : polling bounds, idle delay, fetch backoff, call timeouts,
//     dedup policy (off | message), verify_target, reconcile_schedule
//   - storage    : backend memory | file | redis | postgres, path, url_env
//   - provider   : match data base_url, user_agent, timeout
//   - interpreter: base_url, model, key_env, prompt overrides
//   - notify     : webhooks, nats, email
//
// Secrets are never read from YAML. Every *_env field names an environment
// variable; LoadEnv fills the environment from a .env file first.
//
// Load(path) applies defaults before unmarshalling, then validates. Watch
// re-loads the file on change; main re-applies only the monitor section.
package config
