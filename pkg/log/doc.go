/*
Package log provides structured logging for fleetwork using zerolog.

A single package-level zerolog.Logger is initialized once via Init and
handed out to every other package through component-scoped child loggers
(WithComponent, WithWorkerID, WithTaskID, WithPrimitiveID). Logs go to a
human-readable console writer unless Config.JSONOutput selects JSON.

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	dispatchLog := log.WithComponent("dispatch")
	dispatchLog.Info().Int("worker_id", 3).Msg("worker marked dead")
*/
package log
