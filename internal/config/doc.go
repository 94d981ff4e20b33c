// Package config handles configuration loading for wanderhub-chat.
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
//	auth:
//	  jwt_secret: "${WANDERHUB_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	broker:
//	  dedup_ttl: "30m"
//	  dedup_window: "5s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"   # WebSocket and health endpoints
//
// Backplane:
//
//	redis:
//	  addr: "localhost:6379"
//	  password: "${WANDERHUB_REDIS_PASSWORD}"
//	  db: 0
//
// Instance identity:
//
//	instance:
//	  id: ""   # auto-generated when empty
//
// Database:
//
//	database:
//	  path: "/var/lib/wanderhub/chat.db"
//
// Authentication:
//
//	auth:
//	  jwt_secret: "${WANDERHUB_JWT_SECRET}"
//
// Fan-out tuning:
//
//	broker:
//	  dedup_ttl: "30m"
//	  dedup_window: "5s"
//	  index_size: 10000
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load("/etc/wanderhub/chat.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
