// Copyright 2025 Panacea Project
// SPDX-License-Identifier: Apache-2.0

// Command devicesim runs the sync stack as a simulated bedside device: it
// opens the local store, registers with the sync server, performs an initial
// pull for a ward, records a medication administration while "offline", then
// goes online and lets the scheduler drain the queue.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Kamwaro-001/panacea/clinic"
	"github.com/Kamwaro-001/panacea/domain"
	"github.com/Kamwaro-001/panacea/localstore"
	"github.com/Kamwaro-001/panacea/opqueue"
	"github.com/Kamwaro-001/panacea/scheduler"
	"github.com/Kamwaro-001/panacea/syncer"
)

func main() {
	// .env is optional; flags and real env win.
	_ = godotenv.Load()

	var (
		serverFlag  = flag.String("server", envOr("PANACEA_SERVER_URL", "http://localhost:8080"), "Sync server base URL")
		tokenFlag   = flag.String("token", envOr("PANACEA_TOKEN", ""), "Bearer token for the sync server")
		dbFlag      = flag.String("db", envOr("PANACEA_DB", "devicesim.db"), "SQLite database file")
		wardFlag    = flag.String("ward", envOr("PANACEA_WARD_ID", ""), "Ward id to scope pulls to")
		nurseFlag   = flag.String("nurse", envOr("PANACEA_NURSE_ID", ""), "Nurse user id for recorded events")
		verboseFlag = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	logLevel := slog.LevelInfo
	if *verboseFlag {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := localstore.Open(*dbFlag, logger)
	if err != nil {
		log.Fatalf("failed to open local store: %v", err)
	}
	defer store.Close()

	queue := opqueue.New(store, logger)
	api := syncer.NewAPIClient(*serverFlag, syncer.StaticToken(*tokenFlag), logger)
	engine := syncer.NewEngine(store, queue, api, syncer.DeviceInfo{
		Name:       "devicesim",
		Model:      "simulator",
		OSVersion:  "n/a",
		AppVersion: "dev",
	}, logger)

	// Start offline, the way a cold-booted ward tablet usually does.
	monitor := scheduler.NewManualMonitor(false)

	cfg := scheduler.DefaultConfig()
	cfg.WardID = *wardFlag
	cfg.SettleDelay = 500 * time.Millisecond
	sched := scheduler.New(engine, queue, monitor, cfg, logger)
	sched.Start(ctx)
	defer sched.Close()

	cancelStatus := sched.Subscribe(func(st scheduler.Status) {
		logger.Info("sync status",
			"syncing", st.IsSyncing, "pending", st.PendingCount, "error", st.Err)
	})
	defer cancelStatus()

	events := clinic.NewEventService(store, queue, api, monitor, logger)

	// Record an administration with no connectivity. This must succeed
	// purely against the local store.
	ev, err := events.RecordAdministration(ctx, clinic.AdministrationInput{
		OrderID:   "order-demo",
		PatientID: "patient-demo",
		NurseID:   *nurseFlag,
		Outcome:   domain.OutcomeGiven,
		VitalsBp:  "120/80",
	})
	if err != nil {
		log.Fatalf("failed to record administration offline: %v", err)
	}
	logger.Info("recorded offline", "event_id", ev.ID)

	pending, err := queue.Count(ctx)
	if err != nil {
		log.Fatalf("failed to count pending operations: %v", err)
	}
	logger.Info("operations queued while offline", "count", pending)

	// Go online; the scheduler picks this up and runs a full cycle
	// (register, pull, push) after the settle delay.
	logger.Info("going online")
	monitor.SetOnline(true)

	select {
	case <-ctx.Done():
	case <-time.After(30 * time.Second):
	}

	st := sched.Status()
	logger.Info("final status",
		"last_sync", st.LastSyncTime, "pending", st.PendingCount, "error", st.Err)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
