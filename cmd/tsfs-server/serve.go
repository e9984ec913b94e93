// Copyright (C) 2025 tsfs-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tsfs-project/tsfs/config"
	"github.com/tsfs-project/tsfs/health"
	"github.com/tsfs-project/tsfs/internal/httpapi"
	"github.com/tsfs-project/tsfs/internal/logger"
	"github.com/tsfs-project/tsfs/internal/metrics"
	"github.com/tsfs-project/tsfs/internal/opaqueauth"
	"github.com/tsfs-project/tsfs/internal/sessionstore"
	"github.com/tsfs-project/tsfs/pkg/store/postgres"
)

var selfSigned bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the TSFS HTTPS API server",
	Long: `Run the TSFS HTTPS API server: loads configuration from the environment,
opens the PostgreSQL store, restores the OPAQUE server setup, and serves
every endpoint spec.md §6 defines until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&selfSigned, "self-signed", false,
		"generate an ephemeral self-signed certificate instead of reading CERT_FILE/CERT_KEY_FILE (development only)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.GetDefaultLogger()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.NewStoreFromDSN(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	setup, err := opaqueauth.DecodeServerSetup(cfg.OpaqueServerSetup)
	if err != nil {
		return fmt.Errorf("decode OPAQUE_SERVER_SETUP: %w", err)
	}
	driver := opaqueauth.NewDriver(setup)

	sessions := sessionstore.New(db)

	checker := health.NewHealthChecker(2 * time.Second)
	checker.SetLogger(log)
	checker.RegisterCheck("database", health.DatabaseHealthCheck(db.Ping))
	checker.RegisterCheck("opaque_setup", health.OpaqueSetupHealthCheck(func() bool { return setup != nil }))
	checker.RegisterCheck("session_sweep", health.SessionStoreHealthCheck(sessions.LastSweptAt, 2*time.Minute))

	api := httpapi.NewServer(db, driver, sessions)
	api.SetHealthChecker(checker)

	tlsConfig, err := loadTLSConfig(cfg)
	if err != nil {
		return fmt.Errorf("load TLS config: %w", err)
	}

	httpServer := &http.Server{
		Addr:      cfg.Addr(),
		Handler:   api.Routes(),
		TLSConfig: tlsConfig,
	}

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		sessions.Run(gctx)
		return nil
	})

	group.Go(func() error {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if n := driver.SweepExpiredLogins(); n > 0 {
					log.Info("swept expired in-flight logins", logger.Int("count", n))
				}
			}
		}
	})

	group.Go(func() error {
		log.Info("listening", logger.String("addr", cfg.Addr()))
		err := httpServer.ListenAndServeTLS("", "")
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen and serve: %w", err)
		}
		return nil
	})

	if cfg.MetricsAddress != "" {
		metricsServer := &http.Server{Addr: cfg.MetricsAddress, Handler: metrics.Handler()}
		group.Go(func() error {
			log.Info("serving plain-HTTP metrics", logger.String("addr", cfg.MetricsAddress))
			err := metricsServer.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics listen and serve: %w", err)
			}
			return nil
		})
		group.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return metricsServer.Shutdown(shutdownCtx)
		})
	}

	group.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		return fmt.Errorf("server exited: %w", err)
	}
	log.Info("shutdown complete")
	return nil
}

// loadTLSConfig returns a tls.Config serving either an ephemeral
// self-signed certificate (--self-signed, development convenience) or the
// PEM pair named by CERT_FILE/CERT_KEY_FILE.
func loadTLSConfig(cfg *config.Config) (*tls.Config, error) {
	if selfSigned {
		cert, err := generateSelfSignedCert()
		if err != nil {
			return nil, fmt.Errorf("generate self-signed certificate: %w", err)
		}
		return &tls.Config{Certificates: []tls.Certificate{cert}}, nil
	}

	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.CertKeyFile)
	if err != nil {
		return nil, fmt.Errorf("load certificate pair %s/%s: %w", cfg.CertFile, cfg.CertKeyFile, err)
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}}, nil
}
