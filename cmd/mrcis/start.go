// Copyright 2025 KrakLabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/mrcis/mrcis/internal/errors"
	"github.com/mrcis/mrcis/internal/runtime"
	"github.com/mrcis/mrcis/internal/ui"
)

func startCommand() *cli.Command {
	return &cli.Command{
		Name:  "start",
		Usage: "Run the indexing service until interrupted (writer, or read-only when another writer is live)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "HTTP listen address for Prometheus metrics (empty to disable)",
			},
		},
		Action: runStart,
	}
}

func runStart(c *cli.Context) error {
	globals := globalFlags(c)
	cfg, err := loadConfig(c)
	if err != nil {
		errors.FatalError(err, globals.JSON)
	}
	dataDir, err := dataDirFor(cfg)
	if err != nil {
		return err
	}

	if addr := c.String("metrics-addr"); addr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			srv := &http.Server{Addr: addr, Handler: mux}
			slog.Info("metrics.http.start", "addr", addr, "path", "/metrics")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Warn("metrics.http.error", "err", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	rt := runtime.New(cfg, slog.Default())
	if err := rt.Start(ctx, dataDir); err != nil {
		errors.FatalError(err, globals.JSON)
	}

	if !globals.Quiet {
		switch rt.Mode() {
		case runtime.ModeWriter:
			ui.Successf("mrcis started as writer (data: %s)", dataDir)
		default:
			ui.Infof("mrcis started read-only; another writer holds the lock (data: %s)", dataDir)
		}
	}

	sig := <-sigChan
	slog.Info("shutdown.signal", "signal", sig.String())
	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := rt.Stop(stopCtx); err != nil {
		slog.Warn("shutdown.stop_error", "err", err)
	}
	if !globals.Quiet {
		ui.Success("mrcis stopped")
	}
	return nil
}
