/*
Package log provides structured logging for the provisioner using zerolog.

A single global Logger is configured once at startup through Init. Long-lived
components derive child loggers carrying a component field, and per-pool work
adds a pool field on top:

	logger := log.WithComponent("reconciler")
	poolLog := log.WithPool(logger, "worker-a")
	poolLog.Info().Int("change", 4).Msg("capacity change computed")

Init writes JSON lines when Config.JSONOutput is set, which is the daemon's
default, and a human-readable console format otherwise:

	{"level":"info","component":"loop","run":12,"took":843.2,"time":"...","message":"sweep completed"}

Level filtering is global (zerolog.SetGlobalLevel), so debug statements cost
almost nothing when the daemon runs at info.
*/
package log
