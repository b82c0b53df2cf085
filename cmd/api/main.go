package main

import (
	"fmt"
	"net/http"

	"github.com/dmolinac/microcredit/pkg/audit"
	"github.com/dmolinac/microcredit/pkg/config"
	"github.com/dmolinac/microcredit/pkg/ledger"
	"github.com/dmolinac/microcredit/pkg/store"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

func main() {
	cfg := config.Load()

	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	defer log.Sync()

	sqliteStore, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatal("failed to initialize SQLite store", zap.Error(err))
	}
	defer sqliteStore.Close()
	log.Info("database connection established", zap.String("path", cfg.DBPath))

	l := ledger.NewLedger(sqliteStore, audit.NewZapSink(log), log)
	l.SetMaxInstallments(cfg.MaxInstallments)

	server := NewServer(l, sqliteStore, log)
	router := mux.NewRouter()
	server.Routes(router)
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Info("server starting", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}
