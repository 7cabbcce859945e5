/*
Package log provides structured logging for ipsecd using zerolog.

A single global zerolog.Logger is configured once by Init and shared by every
package. Until Init is called the logger discards output, so packages can log
freely from tests.

# Component Loggers

Each worker logs through a child logger carrying a component field:

	logger := log.WithComponent("dispatcher")
	logger.Info().Str("task", id).Msg("Task applied")

WithConnection adds the IKE connection name. With attaches any other single
field, such as an SPI. Both are used where a log line concerns one object:

	{"level":"warn","connection":"site-a","event":"peer_auth_failed",
	 "time":"2026-03-02T10:30:00Z","message":"IKE daemon reported an error"}

# Configuration

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
	})

Console output (JSONOutput false) is meant for running the daemon in a
terminal. Under systemd, use JSON and read it with journalctl:

	journalctl -u ipsecd -o cat | jq 'select(.component=="errnotify")'

Levels are debug, info, warn and error. Debug adds one line per API request
and per broker event; leave it off in production.
*/
package log
