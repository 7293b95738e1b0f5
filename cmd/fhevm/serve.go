// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/luxfi/fhevm/config"
	"github.com/luxfi/fhevm/internal/storage"
	"github.com/luxfi/fhevm/lattice"
	"github.com/luxfi/fhevm/ratelimit"
	"github.com/luxfi/fhevm/server"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the fhevm gateway",
		Long: `Run the gateway HTTP and websocket service. The network key pair is
loaded from <data-dir>/keys, or generated there on first start.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
}

// localEngine loads the node key pair from the data directory.
func (a *app) localEngine() (*lattice.Engine, error) {
	params, err := a.cfg.Parameters()
	if err != nil {
		return nil, err
	}
	sk, pk, err := lattice.LoadOrGenerateKeys(params, filepath.Join(a.cfg.DataDir, "keys"))
	if err != nil {
		return nil, err
	}
	return lattice.NewEngine(params, sk, pk)
}

func (a *app) serve(ctx context.Context) error {
	log := a.log
	defer log.Sync()
	log.Info("Initializing fhevm gateway",
		zap.Uint64("chainId", a.cfg.ChainID),
		zap.String("paramSet", a.cfg.ParamSet),
		zap.String("storage", a.cfg.StorageLocation),
	)

	engine, err := a.localEngine()
	if err != nil {
		return fmt.Errorf("load keys: %w", err)
	}

	var rdb *redis.Client
	if a.cfg.RedisURL != "" {
		opts, err := redis.ParseURL(a.cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("redis connect: %w", err)
		}
	}

	store, err := a.openStorage(rdb)
	if err != nil {
		return err
	}

	var limiter ratelimit.Allower
	if rdb != nil {
		limiter = ratelimit.NewRedisLimiter(rdb, "", a.cfg.RateLimitMax, a.cfg.RateLimitWindow)
	} else {
		limiter = ratelimit.New(a.cfg.RateLimitMax, a.cfg.RateLimitWindow)
	}

	srv, err := server.New(
		server.Config{
			Network:        a.cfg.Network(),
			AllowedOrigins: a.cfg.AllowedOrigins,
			MaxBodyBytes:   a.cfg.MaxRequestBodyMB << 20,
		},
		engine,
		server.WithLogger(log),
		server.WithStorage(store),
		server.WithLimiter(limiter),
		server.WithPrometheus(prometheus.DefaultRegisterer, prometheus.DefaultGatherer),
	)
	if err != nil {
		store.Close()
		return fmt.Errorf("create server: %w", err)
	}
	defer srv.Close()

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.APIPort),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errGroup, ctx := errgroup.WithContext(ctx)
	errGroup.Go(func() error {
		log.Info("fhevm gateway listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	// Handle graceful shutdown
	errGroup.Go(func() error {
		<-ctx.Done()
		log.Info("Shutting down fhevm gateway")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := errGroup.Wait(); err != nil {
		log.Error("Exited with error", zap.Error(err))
		return err
	}
	log.Info("fhevm gateway stopped")
	return nil
}

func (a *app) openStorage(rdb *redis.Client) (storage.Storage, error) {
	switch a.cfg.StorageLocation {
	case config.StorageFile:
		st, err := storage.NewFileStorage(filepath.Join(a.cfg.DataDir, "ciphertexts"))
		if err != nil {
			return nil, fmt.Errorf("open file storage: %w", err)
		}
		return st, nil
	case config.StorageRedis:
		if rdb == nil {
			return nil, errors.New("redis storage requires redis-url")
		}
		return storage.NewRedisStorageFromClient(rdb, "", a.cfg.StorageTTL), nil
	default:
		return storage.NewMemoryStorage(a.cfg.StorageCapacityMB), nil
	}
}
