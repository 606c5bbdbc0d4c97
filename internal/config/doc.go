// Package config loads the launcher configuration.
//
// # Resolution order
//
//  1. Built-in defaults (Default)
//  2. The TOML file passed to Load, or <appDir>/launcher.toml
//  3. LAUNCHER_* environment overrides
//  4. DEPLOY_ENV, which only selects the deployment mode
//
// A missing config file is not an error. Unknown keys in an existing file
// are, so typos surface instead of silently falling back to defaults.
//
// # Environment
//
//   - DEPLOY_ENV: "DEV" selects development mode, anything else production
//   - LAUNCHER_APP_DIR: install directory (default: the executable's directory)
//   - LAUNCHER_BACKEND_PORT: backend port (default 4242)
//   - LAUNCHER_LOG_LEVEL, LAUNCHER_LOG_DEV: logging
//   - LAUNCHER_METRICS_ADDR: loopback address for /metrics (default: off)
//
// Unprefixed names (BACKEND_PORT, LOG_LEVEL) are never read. BACKEND_PORT
// in particular is what the launcher exports to the backend.
//
// # TOML format
//
//	app_dir = "/opt/tridentframe"
//
//	[backend]
//	port = 4242
//	interpreter = "python3"
//	stop_timeout = "5s"
//
//	[readiness]
//	timeout = "10s"
//	health_path = ""
//
//	[window]
//	devtools = false
//	stay_resident_platforms = ["darwin"]
//
//	[log]
//	level = "debug"
//	development = true
//
// Relative paths (script, executables, icon, prod_content) are resolved
// against app_dir. Durations use Go duration syntax.
package config
