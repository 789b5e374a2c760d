package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"gorm.io/gorm"

	"shoplist/internal/broker"
	"shoplist/internal/config"
	"shoplist/internal/db"
	"shoplist/internal/itemstore"
	"shoplist/internal/journal"
	"shoplist/internal/protocol"
	"shoplist/internal/reconcile"
	"shoplist/internal/router"
	"shoplist/internal/telemetry"
)

// runtime is everything one process needs to talk to a deployment.
type runtime struct {
	cfg        config.Config
	logger     *slog.Logger
	client     *itemstore.Client
	db         *gorm.DB
	collector  *telemetry.Collector
	reconciler *reconcile.Reconciler
}

func newRuntime(cfg config.Config, logger *slog.Logger, view reconcile.View) (*runtime, error) {
	client := itemstore.New(itemstore.Options{
		BaseURL:    cfg.APIBaseURL,
		Deployment: cfg.Deployment,
		APIKey:     cfg.APIKey,
		UserAgent:  cfg.UserAgent,
		HTTPClient: &http.Client{Timeout: cfg.HTTPTimeout},
	})

	rt := &runtime{cfg: cfg, logger: logger, client: client}

	var jr telemetry.Journal
	if cfg.CollectEnabled() {
		gdb, err := db.Open(cfg.DBPath)
		if err != nil {
			// The journal is a local record only; syncing works without it.
			logger.Warn("action journal unavailable", "path", cfg.DBPath, "err", err)
		} else {
			st, err := journal.NewStore(gdb)
			if err != nil {
				_ = db.Close(gdb)
				return nil, err
			}
			rt.db = gdb
			jr = st
		}
	}

	rt.collector = telemetry.New(telemetry.Options{
		Sender:     client,
		Journal:    jr,
		Enabled:    cfg.CollectEnabled(),
		Deployment: cfg.Deployment,
		UserAgent:  cfg.UserAgent,
		UserKey:    cfg.APIKey,
		Timeout:    cfg.HTTPTimeout,
		Logger:     logger.With("module", "telemetry"),
	})

	rec, err := reconcile.New(reconcile.Options{
		Store:    client,
		View:     view,
		Recorder: rt.collector,
		Logger:   logger.With("module", "reconcile"),
	})
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.reconciler = rec
	return rt, nil
}

func (r *runtime) newBrokerManager(setStatus func(string)) (*broker.Manager, error) {
	topics := protocol.NewTopics(r.cfg.Deployment)
	return broker.NewManager(broker.Options{
		Dialer: broker.PahoDialer{
			BrokerURL:      r.cfg.BrokerURL,
			ConnectTimeout: r.cfg.ConnectTimeout,
		},
		Topics:         topics.All(),
		Hooks:          r.brokerHooks(topics, setStatus),
		Endpoint:       r.cfg.BrokerURL,
		ConnectTimeout: r.cfg.ConnectTimeout,
		Backoff:        broker.NewBackoff(r.cfg.ReconnectInitial, r.cfg.ReconnectMax),
		Logger:         r.logger.With("module", "broker"),
	})
}

// brokerHooks refreshes the whole list once per new session, which covers
// anything published while disconnected. A loss only updates the status.
func (r *runtime) brokerHooks(topics protocol.Topics, setStatus func(string)) broker.Hooks {
	if setStatus == nil {
		setStatus = func(string) {}
	}
	rt := router.New(topics, r.reconciler)
	return broker.Hooks{
		OnReady: func(ctx context.Context, _ *broker.Session) {
			setStatus("live")
			_ = r.reconciler.FullRefresh(ctx)
		},
		OnLost: func(context.Context, error) {
			setStatus("reconnecting")
		},
		OnMessage: rt.Handler(r.logger.With("module", "router")),
	}
}

func (r *runtime) Close() error {
	r.collector.Wait()
	if r.db == nil {
		return nil
	}
	err := db.Close(r.db)
	r.db = nil
	if err != nil {
		return fmt.Errorf("close journal: %w", err)
	}
	return nil
}
