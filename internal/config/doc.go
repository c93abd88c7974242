// Package config handles configuration loading for honeypot-gateway.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	model:
//	  api_key: "${GEMINI_API_KEY}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	report:
//	  timeout: "10s"
//	  sweep_interval: "1m"
//	  retry_cooldown: "5m"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"  # Platform webhook and session API
//
// Inbound authentication:
//
//	auth:
//	  api_key: "${HONEYPOT_API_KEY}"  # Empty disables auth (dev only)
//
// Model backend:
//
//	model:
//	  api_key: "${GEMINI_API_KEY}"  # Required
//	  name: "gemini-3-flash-preview"
//	  endpoint: ""                  # Default public endpoint when empty
//	  timeout: "20s"
//
// Intelligence sink:
//
//	report:
//	  endpoint: "https://intel.example.com/reports"  # Required
//	  api_key: ""                                    # Optional sink auth
//	  timeout: "10s"
//	  sweep_interval: "1m"
//	  retry_cooldown: "5m"
//
// Report ledger database:
//
//	database:
//	  path: "/var/lib/honeypot/ledger.db"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Validation
//
// Load() validates:
//
//   - Model API key presence
//   - Report sink endpoint presence
//   - Database path presence
//   - Duration format validity
//   - Logging level and format values
//
// # Usage
//
// Load configuration from a path:
//
//	cfg, err := config.Load("/etc/honeypot/gateway.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
