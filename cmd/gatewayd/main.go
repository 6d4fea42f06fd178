// Copyright 2026 The StratumGate Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command gatewayd wires the core components into a runnable process: the
// HTTP routing shell (pkg/server), both provider engines, the credential
// pools, and the quota engine, plus a cron housekeeping sweep for quota
// rollover and Warp session LRU eviction.
package main

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/stratumgate/gateway/internal/config"
	"github.com/stratumgate/gateway/internal/log"
	"github.com/stratumgate/gateway/internal/obs"
	"github.com/stratumgate/gateway/pkg/credential"
	"github.com/stratumgate/gateway/pkg/providers/kiro"
	"github.com/stratumgate/gateway/pkg/providers/warp"
	"github.com/stratumgate/gateway/pkg/quota"
	"github.com/stratumgate/gateway/pkg/server"
)

func main() {
	cfg := config.Get()

	if cfg.CredentialErrorThreshold > 0 {
		credential.QuarantineThreshold = cfg.CredentialErrorThreshold
	}

	var credStore credential.Store = credential.NewMemStore()
	if path := cfg.SQLitePath; path != "" {
		sqliteStore, err := credential.NewSQLiteStore(path)
		if err != nil {
			log.Error("failed to open sqlite credential store, falling back to memory", zap.Error(err))
		} else {
			// One SQLite file backs both provider tables, discriminated by
			// the Credential.Provider column every Store method keys off of.
			credStore = sqliteStore
		}
	}

	kiroPool := credential.NewPool(credStore,
		credential.NewOAuth2Refresher(cfg.KiroTokenURL, cfg.KiroClientID, cfg.KiroClientSecret))
	warpPool := credential.NewPool(credStore,
		credential.NewOAuth2Refresher(cfg.WarpTokenURL, cfg.WarpClientID, cfg.WarpClientSecret))

	keyStore := quota.NewMemStore()
	quotaEngine := quota.NewEngine(keyStore)

	if key := cfg.BootstrapAPIKey; key != "" {
		if _, err := keyStore.Create(quota.ApiKey{
			DisplayName:     "bootstrap",
			Key:             key,
			Active:          true,
			ConcurrentLimit: int64(cfg.DefaultConcurrentLimit),
		}); err != nil {
			log.Error("failed to provision bootstrap api key", zap.Error(err))
		}
	}

	httpClient := outboundHTTPClient(cfg.ProxyURL)

	traceProvider := sdktrace.NewTracerProvider()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = traceProvider.Shutdown(ctx)
	}()

	warpExecutor := buildWarpExecutor(cfg)
	if sandbox, ok := warpExecutor.(*warp.SandboxExecutor); ok {
		defer sandbox.Close()
	}

	gw := &server.Gateway{
		Kiro: &server.ProviderBinding{
			Pool:   kiroPool,
			Engine: kiro.NewEngine(httpClient, ""),
		},
		Warp:   buildWarpBinding(warpPool, httpClient, warpExecutor),
		Keys:   &server.KeyAdmission{Keys: keyStore, Quota: quotaEngine},
		Tracer: obs.New(traceProvider.Tracer("stratumgate/gatewayd")),
	}

	router := server.NewRouter(gw)

	addr := cfg.Addr

	httpServer := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	scheduler := cron.New()
	_, err := scheduler.AddFunc("@every 1h", func() {
		if err := quotaEngine.Rollover(); err != nil {
			log.Error("quota rollover sweep failed", zap.Error(err))
		}
		evicted := gw.Warp.Sessions.Sweep(time.Now().Add(-24 * time.Hour))
		if evicted > 0 {
			log.Info("evicted idle warp sessions", zap.Int("count", evicted))
		}
	})
	if err != nil {
		log.Error("failed to schedule housekeeping job", zap.Error(err))
	}
	scheduler.Start()
	defer scheduler.Stop()

	go func() {
		log.Info("gatewayd listening", zap.String("addr", addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server stopped unexpectedly", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
	_ = log.Sync()
}

// buildWarpExecutor prefers the Docker sandbox for local tool execution,
// degrading to the host executor when the sandbox is disabled or the Docker
// daemon is unreachable.
func buildWarpExecutor(cfg *config.Config) warp.Executor {
	if cfg.SandboxImage == "" {
		log.Info("docker sandbox disabled, tool execution runs on the host")
		return &warp.ToolExecutor{}
	}
	sandbox, err := warp.NewSandboxExecutor(context.Background(), cfg.SandboxDockerHost, cfg.SandboxImage)
	if err != nil {
		log.Warn("docker sandbox unavailable, tool execution falls back to the host", zap.Error(err))
		return &warp.ToolExecutor{}
	}
	return sandbox
}

func buildWarpBinding(pool *credential.Pool, httpClient *http.Client, executor warp.Executor) *server.WarpBinding {
	sessions := warp.NewSessionStore(0)
	engine := warp.NewEngine(httpClient, "")
	loop := warp.NewLoop(engine, sessions, executor)
	return &server.WarpBinding{Pool: pool, Loop: loop, Sessions: sessions}
}

// outboundHTTPClient builds the shared per-process HTTP client every
// credential's transport is derived from, honoring the optional outbound
// proxy URL.
func outboundHTTPClient(proxyURL string) *http.Client {
	transport := &http.Transport{
		MaxConnsPerHost:     100,
		MaxIdleConnsPerHost: 5,
	}
	if proxyURL != "" {
		if parsed, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(parsed)
		} else {
			log.Error("invalid proxy URL, ignoring", zap.Error(err))
		}
	}
	return &http.Client{Timeout: 5 * time.Minute, Transport: transport}
}
