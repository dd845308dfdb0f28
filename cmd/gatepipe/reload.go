package main

import (
	"context"
	"time"

	"github.com/calmisko/gatepipe/internal/config"
	"github.com/calmisko/gatepipe/internal/observability"
)

// drainGrace is how long a replaced pipeline keeps serving requests
// that started on it before its collaborators are closed.
const drainGrace = 30 * time.Second

// startConfigWatcher wires config file changes to pipeline
// replacement. A missing watcher is not fatal: the gateway keeps
// serving the startup configuration.
func startConfigWatcher(app *application, configPath string, logger observability.Logger) *config.Watcher {
	watcher, err := config.NewWatcher(configPath, func(next *config.Config) {
		app.reload(next)
	}, config.WithWatcherLogger(logger))
	if err != nil {
		logger.Warn("config watcher unavailable", observability.Error(err))
		return nil
	}

	if err := watcher.Start(context.Background()); err != nil {
		logger.Warn("config watcher failed to start", observability.Error(err))
	}

	return watcher
}

// reload swaps in a pipeline built from the new configuration.
// In-flight requests finish on the pipeline they started with; the
// listener itself keeps running, so server settings on disk only take
// effect after a restart.
func (a *application) reload(next *config.Config) {
	pipeline, err := a.buildPipeline(next)
	if err != nil {
		a.logger.Error("config reload failed, keeping the previous pipeline",
			observability.Error(err),
		)
		return
	}

	previous := a.server.SwapPipeline(pipeline)

	a.mu.Lock()
	if a.config.Server != next.Server {
		a.logger.Warn("server settings changed on disk, restart to apply them")
	}
	a.config = next
	a.mu.Unlock()

	time.AfterFunc(drainGrace, func() {
		if err := previous.Close(); err != nil {
			a.logger.Warn("failed to close replaced pipeline",
				observability.Error(err),
			)
		}
	})

	a.logger.Info("configuration reloaded",
		observability.Int("routes", len(next.Routes)),
		observability.Int("upstreams", len(next.Upstreams)),
	)
}
