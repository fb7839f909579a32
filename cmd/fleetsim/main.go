package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"

	"BikeRebalancer/internal/agent"
	"BikeRebalancer/internal/config"
	"BikeRebalancer/internal/engine"
	"BikeRebalancer/internal/model"
	"BikeRebalancer/internal/notifier"
	"BikeRebalancer/internal/recorder"
	"BikeRebalancer/internal/scheduler"
	"BikeRebalancer/internal/source"
)

func main() {
	log.SetReportTimestamp(true)
	log.Info("fleetsim starting")

	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal("load config", "err", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal("config validation", "err", err)
	}
	if lvl, err := log.ParseLevel(cfg.Log.Level); err == nil {
		log.SetLevel(lvl)
	} else {
		log.Warn("unknown log level, keeping info", "level", cfg.Log.Level)
	}

	catalog, trips := sources(cfg)

	// Learning agent, only for the learned policy
	var (
		trainer engine.Trainer
		ckpt    scheduler.Checkpointer
		dqn     *agent.DQN
	)
	if cfg.Policy.Kind == "learned" {
		dqn = agent.New(agent.ParamsFromConfig(cfg.Agent))
		loaded, err := dqn.Load(cfg.Checkpoint.Path)
		if err != nil {
			log.Fatal("load checkpoint", "path", cfg.Checkpoint.Path, "err", err)
		}
		log.Info("agent ready", "checkpoint", loaded, "epsilon", fmt.Sprintf("%.3f", dqn.Epsilon()))
		trainer, ckpt = dqn, dqn
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Init recorders
	sinks := recorder.Multi{}
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, cfg.Simulation.RecordTicks)
		if err != nil {
			log.Warn("init sqlite recorder failed, using noop", "err", err)
		} else {
			sinks = append(sinks, sr)
		}
	}
	var tn *notifier.TelegramNotifier
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != "" {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)
		sinks = append(sinks, notifier.NewSink(ctx, tn))
	}
	var rec recorder.Recorder = recorder.NewNoopRecorder()
	if len(sinks) > 0 {
		rec = sinks
	}
	defer rec.Close()

	runner := engine.NewRunner(cfg, catalog, trips, trainer, rec, log.Default())

	if os.Getenv("RUN_MODE") == "daemon" {
		runDaemon(ctx, cancel, cfg, runner, ckpt, tn)
		return
	}

	// Batch: run the configured epochs and print the training table
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutdown signal received, stopping...")
		cancel()
	}()
	fmt.Println(notifier.TableHeader())
	err = runner.Run(ctx, cfg.Simulation.Epochs, func(epoch int, sum *model.DaySummary) {
		fmt.Println(notifier.TableRow(epoch, sum))
	})
	if err != nil {
		log.Error("simulation stopped", "err", err)
	}
	if dqn != nil {
		if err := dqn.Save(cfg.Checkpoint.Path); err != nil {
			log.Error("save checkpoint", "path", cfg.Checkpoint.Path, "err", err)
		} else {
			log.Info("checkpoint saved", "path", cfg.Checkpoint.Path)
		}
	}
	log.Info("fleetsim stopped", "epochs", runner.Epochs())
}

func sources(cfg *config.Config) (source.StationCatalog, source.TripSource) {
	syn := source.Synthetic{
		NumStations:  cfg.Data.Synthetic.Stations,
		TripsPerHour: cfg.Data.Synthetic.TripsPerHour,
		Seed:         cfg.Data.Synthetic.Seed,
	}
	var catalog source.StationCatalog = syn
	var trips source.TripSource = syn
	if cfg.Data.StationsCSV != "" {
		catalog = source.CSVCatalog{Path: cfg.Data.StationsCSV}
	}
	if len(cfg.Data.TripsCSV) > 0 {
		trips = source.CSVTrips{Files: cfg.Data.TripsCSV}
	}
	log.Info("data sources", "stations", fmt.Sprintf("%T", catalog), "trips", fmt.Sprintf("%T", trips))
	return catalog, trips
}

func runDaemon(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, runner *engine.Runner,
	ckpt scheduler.Checkpointer, tn *notifier.TelegramNotifier) {
	sched := scheduler.NewScheduler(ctx, runner, ckpt, cfg.Checkpoint.Path)
	sched.OnDay = func(epoch int, sum *model.DaySummary) {
		log.Info("day", "row", notifier.TableRow(epoch, sum))
	}
	if err := sched.RegisterAll(cfg.Schedule.EpochCron, cfg.Schedule.CheckpointCron); err != nil {
		log.Fatal("register cron tasks", "err", err)
	}
	sched.Start()
	defer sched.Stop()

	if tn != nil {
		go tn.StartPolling(ctx, sched.HandleCommand)
		log.Info("telegram polling started")
	}

	// Optional: run immediately on start
	if os.Getenv("RUN_ON_START") == "true" {
		log.Info("RUN_ON_START enabled, executing an epoch now")
		go sched.RunEpochNow()
	}

	log.Info("fleetsim daemon is running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, stopping...")
	cancel()
}
