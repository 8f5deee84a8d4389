// taskmgrd runs the fixed-tick task manager engine against a configured
// hardware target (the shipped target is the host simulator) and exposes
// its metering through logs and optional sample persistence.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	sdaemon "github.com/coreos/go-systemd/v22/daemon"
	"github.com/robfig/cron/v3"

	"taskmgr/internal/calib"
	"taskmgr/internal/config"
	"taskmgr/internal/cpumeter"
	"taskmgr/internal/eventbus"
	"taskmgr/internal/hal"
	"taskmgr/internal/monitor"
	"taskmgr/internal/observability"
	"taskmgr/internal/profiler"
	"taskmgr/internal/runtime/supervisor"
	"taskmgr/internal/scheduler"
	"taskmgr/internal/storage"
	"taskmgr/pkg/logx"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./taskmgr.yaml", "path to config file (yaml or json)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfgPath); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string) error {
	boot := logx.NewConsole("info")

	mgr := config.NewManager(cfgPath, boot)
	cfg, err := mgr.Load()
	if err != nil {
		return fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	res, err := cfg.Resolve()
	if err != nil {
		return err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   res.LogLevel,
		Console: res.LogConsole,
		File:    logx.FileConfig{Enabled: res.LogFile.Enabled, Path: res.LogFile.Path},
	})
	defer logSvc.Close()

	log.Info("taskmgrd starting",
		logx.String("config", cfgPath),
		logx.String("target", res.TargetFamily),
		logx.Duration("tick_period", res.TickPeriod),
		logx.Int("max_tasks", res.MaxTasks))

	// Hardware target. An unknown family fails here, before anything runs.
	target, err := hal.New(res.TargetFamily)
	if err != nil {
		return err
	}
	src, err := target.Timer(hal.Options{
		TickPeriod:    res.TickPeriod,
		TimerSelector: res.TimerSelector,
		ISRPriority:   res.ISRPriority,
		ISREnabled:    res.ISREnabled,
	})
	if err != nil {
		return err
	}
	defer src.Close()

	fullIdle, err := resolveCalibration(res, src, log)
	if err != nil {
		return err
	}

	meter, err := cpumeter.New(fullIdle, src.ReadPeriod())
	if err != nil {
		return err
	}
	mon := monitor.New(src, log)

	var pin hal.DebugPin
	if res.DebugOutputEnabled {
		pin, err = target.DebugPin(res.DebugOutputPin)
		if err != nil {
			return err
		}
	}
	prof := profiler.New(profiler.Config{
		Enabled:         res.DebugOutputEnabled,
		DetailedPattern: res.DebugDetailedPattern,
		HistoryLength:   res.HistoryLength,
	}, pin)

	bus := eventbus.New()

	engine, err := scheduler.New(scheduler.Config{MaxTasks: res.MaxTasks}, scheduler.Deps{
		Source:   src,
		Meter:    meter,
		Monitor:  mon,
		Profiler: prof,
		Bus:      bus,
		Log:      log,
	})
	if err != nil {
		return err
	}

	if err := registerBuiltinTasks(engine, res, log); err != nil {
		return err
	}

	store, err := storage.Open(storage.Config{
		Driver:      res.StorageDriver,
		Path:        res.StoragePath,
		BusyTimeout: res.StorageBusyTimeout,
	}, log)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	sup := supervisor.New(ctx, supervisor.WithLogger(log), supervisor.WithCancelOnError())

	if store != nil {
		events, unsub := bus.Subscribe(1024)
		sup.Go("storage-sink", func(ctx context.Context) error {
			defer unsub()
			return persistSamples(ctx, events, store)
		})
	}

	sup.Go("config-watch", func(ctx context.Context) error {
		return mgr.Watch(ctx)
	})
	reloads := mgr.Subscribe(1)
	sup.Go("config-apply", func(ctx context.Context) error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case next := <-reloads:
				applyReload(next, logSvc, log)
			}
		}
	})

	dbg := observability.NewServer(observability.Config{
		Addr:  res.DebugAddr,
		Token: res.DebugToken,
	}, engine.Snapshot, log)
	if dbg.Enabled() {
		sup.Go("debug-http", dbg.Run)
	}

	cr := cron.New()
	if _, err := cr.AddFunc(res.ReportSpec, func() { reportSnapshot(engine, log) }); err != nil {
		return fmt.Errorf("maintenance.report_spec: %w", err)
	}
	if store != nil {
		maxAge := res.PruneMaxAge
		if _, err := cr.AddFunc(res.PruneSpec, func() {
			if _, err := store.Prune(context.Background(), time.Now().Add(-maxAge)); err != nil {
				log.Warn("sample prune failed", logx.Err(err))
			}
		}); err != nil {
			return fmt.Errorf("maintenance.prune_spec: %w", err)
		}
	}
	cr.Start()
	defer func() { <-cr.Stop().Done() }()

	if err := engine.Arm(); err != nil {
		return err
	}
	sup.Go("engine", func(ctx context.Context) error {
		return engine.Run(ctx)
	})

	_, _ = sdaemon.SdNotify(false, sdaemon.SdNotifyReady)

	<-sup.Context().Done()
	_, _ = sdaemon.SdNotify(false, sdaemon.SdNotifyStopping)

	engine.Stop()
	sup.Stop(5 * time.Second)

	if err := sup.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("taskmgrd stopped", logx.Uint32("ticks", engine.TickCounter()))
	return nil
}

// resolveCalibration picks the full-idle iteration constant: an explicit
// configured value wins, then runtime self-calibration, then the shipped
// table keyed by optimization profile.
func resolveCalibration(res config.Resolved, src hal.TickSource, log logx.Logger) (uint32, error) {
	if res.CalibrationConstant > 0 {
		return res.CalibrationConstant, nil
	}

	table := calib.Default()
	table.CheckToolchain(res.ToolchainVersion, log)

	if res.SelfCalibrate {
		c, err := calib.SelfCalibrate(src, res.SelfCalibrateTicks)
		if err != nil {
			return 0, err
		}
		log.Info("self-calibration complete", logx.Uint32("full_idle_iters", c))
		return c, nil
	}

	cycles, err := table.CyclesPerLoop(res.OptimizationProfile)
	if err != nil {
		return 0, err
	}
	c := calib.IterationsPerTick(src.ReadPeriod(), cycles)
	if c == 0 {
		return 0, cpumeter.ErrInvalidCalibration
	}
	return c, nil
}

// registerBuiltinTasks installs the daemon's own periodic work. Real
// deployments register application tasks here; the heartbeat keeps the
// table non-empty so the meters have something to show.
func registerBuiltinTasks(engine *scheduler.Engine, res config.Resolved, log logx.Logger) error {
	heartbeatTicks := uint32(time.Second / res.TickPeriod)
	if heartbeatTicks == 0 {
		heartbeatTicks = 1
	}
	return engine.Register(scheduler.TaskSpec{
		ID:          "heartbeat",
		PeriodTicks: heartbeatTicks,
		QuotaTicks:  0,
		Action: func() error {
			log.Trace("heartbeat")
			return nil
		},
	})
}

func persistSamples(ctx context.Context, events <-chan eventbus.Event, store storage.Store) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			switch data := e.Data.(type) {
			case cpumeter.Sample:
				_ = store.AppendLoad(ctx, storage.LoadRecord{
					At: e.Time, Tick: data.Tick, Percent: data.Percent,
				})
			case monitor.Sample:
				_ = store.AppendRuntime(ctx, storage.RuntimeRecord{
					At: e.Time, Tick: data.Tick, TaskID: data.TaskID,
					RuntimeTicks: data.RuntimeTicks, QuotaTicks: data.QuotaTicks,
					Overrun: data.Overrun,
				})
			}
		}
	}
}

func reportSnapshot(engine *scheduler.Engine, log logx.Logger) {
	snap := engine.Snapshot()
	log.Info("engine snapshot",
		logx.String("state", snap.State.String()),
		logx.Uint32("tick", snap.TickCounter),
		logx.Int("tasks", len(snap.Tasks)),
		logx.Int("utilization_pct", int(snap.Utilization)),
		logx.Uint64("overruns", snap.Overruns))
}

// applyReload applies the reloadable subset of a committed config change.
func applyReload(cfg *config.Config, logSvc *logx.Service, log logx.Logger) {
	if cfg == nil {
		return
	}
	res, err := cfg.Resolve()
	if err != nil {
		log.Warn("reloaded config failed to resolve", logx.Err(err))
		return
	}
	logSvc.Apply(logx.Config{
		Level:   res.LogLevel,
		Console: res.LogConsole,
		File:    logx.FileConfig{Enabled: res.LogFile.Enabled, Path: res.LogFile.Path},
	})
	log.Info("applied reloadable configuration", logx.String("level", res.LogLevel))
}
