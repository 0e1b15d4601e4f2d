// Package async runs background tasks with panic recovery and a deadline.
//
// Run executes a task synchronously and turns a panic into an error. It suits
// callers that already own a goroutine, such as cron jobs:
//
//	c.AddFunc(spec, func() {
//		if err := async.Run(ctx, time.Minute, "snapshot export", exporter.ExportTask); err != nil {
//			logger.WithError(err).Error("export failed")
//		}
//	})
//
// SafeGo starts the task in its own goroutine, logs failures, and returns a channel
// that yields the result once:
//
//	done := async.SafeGo(ctx, logger, time.Minute, "initial export", task)
package async
