// Copyright 2026 The Covox Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package main provides the entry point for the Covox server. The server
// hosts a pipeline of speech, language and vision operations behind a
// management REST API and a streaming WebSocket endpoint.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/covoxlabs/covox/internal/api"
	"github.com/covoxlabs/covox/internal/buildinfo"
	"github.com/covoxlabs/covox/internal/config"
	"github.com/covoxlabs/covox/internal/events"
	"github.com/covoxlabs/covox/internal/hooks"
	"github.com/covoxlabs/covox/internal/logging"
	"github.com/covoxlabs/covox/internal/manager"
	"github.com/covoxlabs/covox/internal/operation/registry"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// init initializes the shared logger setup.
func init() {
	logging.SetupBaseLogger()
	buildinfo.Version = Version
	buildinfo.Commit = Commit
	buildinfo.BuildDate = BuildDate
}

func main() {
	// .env is optional; real deployments configure through the YAML file.
	_ = godotenv.Load()

	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	watch := flag.Bool("watch", true, "reload the operation roster when the config file changes")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	if err := logging.ConfigureLogOutput(cfg.LoggingToFile); err != nil {
		log.Fatalf("failed to configure logging: %v", err)
	}

	log.Infof("Covox %s (%s) starting", buildinfo.Version, buildinfo.Commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := events.NewBus()
	defer bus.Shutdown()

	hookMgr, err := hooks.NewHookManager(cfg.HooksDir, bus)
	if err != nil {
		log.Fatalf("failed to create hook manager: %v", err)
	}
	if err := hookMgr.LoadHooks(); err != nil {
		log.WithError(err).Warn("failed to load hooks")
	}
	hookMgr.SubscribeToAllEvents()
	if err := hookMgr.StartWatcher(); err != nil {
		log.WithError(err).Warn("hooks watcher unavailable")
	}
	defer hookMgr.StopWatcher()

	mgr := manager.New(registry.New, manager.WithBus(bus))
	defer mgr.CloseAll()

	applyConfig := func(ctx context.Context, cfg *config.Config) error {
		descs, err := cfg.Descriptors()
		if err != nil {
			return err
		}
		return mgr.LoadFromConfig(ctx, descs)
	}
	if err := applyConfig(ctx, cfg); err != nil {
		log.Fatalf("failed to load operations: %v", err)
	}

	reload := func(ctx context.Context) error {
		fresh, err := config.LoadConfig(*configPath)
		if err != nil {
			return err
		}
		return applyConfig(ctx, fresh)
	}

	server := api.NewServer(cfg, mgr, reload)

	if *watch {
		go func() {
			err := config.Watch(ctx, *configPath, func(fresh *config.Config) {
				if err := applyConfig(ctx, fresh); err != nil {
					log.WithError(err).Error("failed to apply reloaded config")
					return
				}
				server.SetConfig(fresh)
				log.Info("configuration reloaded")
			})
			if err != nil && ctx.Err() == nil {
				log.WithError(err).Warn("config watcher stopped")
			}
		}()
	}

	if err := server.Run(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
	log.Info("shutdown complete")
}
