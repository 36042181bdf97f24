package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/humanalog/markedfordeath/internal/commands"
	"github.com/humanalog/markedfordeath/internal/config"
	"github.com/humanalog/markedfordeath/internal/dispatcher"
	"github.com/humanalog/markedfordeath/internal/grid"
	"github.com/humanalog/markedfordeath/internal/handlers"
	"github.com/humanalog/markedfordeath/internal/influx"
	"github.com/humanalog/markedfordeath/internal/logging"
	"github.com/humanalog/markedfordeath/internal/monitor"
	"github.com/humanalog/markedfordeath/internal/notify"
	"github.com/humanalog/markedfordeath/internal/random"
	"github.com/humanalog/markedfordeath/internal/registry"
	"github.com/humanalog/markedfordeath/internal/roster"
	"github.com/humanalog/markedfordeath/internal/scheduler"
	"github.com/humanalog/markedfordeath/internal/storage"
	"github.com/humanalog/markedfordeath/internal/transfer"
	"github.com/humanalog/markedfordeath/pkg/hostlink"
)

// Lifecycle commands handled outside the mark engine.
const (
	commandVersion       = ":VERSION:"
	commandGetLogDir     = ":GETDIR:LOG:"
	commandPanelRegister = ":PANEL:REGISTER:"
)

// reconnectDelay spaces initial dial attempts. Once connected, the host link
// reconnects on its own.
const reconnectDelay = 5 * time.Second

// newEngine builds the mark engine over store. sink and stats may be nil.
func newEngine(store storage.Store, live transfer.RosterLookup, sink notify.Sink, stats transfer.Stats) (*transfer.Engine, error) {
	markCfg := config.GetMarkConfig()
	gridCfg := config.GetGridConfig()
	storageCfg := config.GetStorageConfig()

	rng, err := random.New()
	if err != nil {
		return nil, err
	}

	reg := registry.New(store, registry.Options{
		DefaultID:   markCfg.DefaultMarkedPlayerID,
		DefaultName: markCfg.DefaultMarkedPlayerName,
		Timeout:     storageCfg.Timeout,
		SaveRetries: 1,
	}, Logger)

	history, _ := store.(storage.TransferLog)

	return transfer.New(transfer.Dependencies{
		Registry: reg,
		Roster:   live,
		Grid: grid.NewObfuscator(grid.Config{
			CellSize:  gridCfg.CellSize,
			WorldSize: gridCfg.WorldSize,
		}, rng, Logger),
		Random:       rng,
		Sink:         sink,
		History:      history,
		Stats:        stats,
		JitterRadius: gridCfg.JitterRadius,
		Logger:       Logger,
	}), nil
}

// connectStats returns nil when influx output is disabled or unusable.
func connectStats(ctx context.Context) (*influx.Manager, error) {
	backupPath := filepath.Join(viper.GetString("logsDir"), ExtensionName+"_influx_backup.lp.gz")
	m := influx.NewManager(DBLogger.With().Str("component", "influx").Logger(), config.GetInfluxConfig(), backupPath)

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := m.Connect(connectCtx); err != nil {
		if errors.Is(err, influx.ErrDisabled) {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

func runServer(ctx context.Context) error {
	store, err := openStore(config.GetStorageConfig(), config.GetDBConfig(), DBLogger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			Logger.Error("Failed to close store", "error", err)
		}
	}()

	dispatcherLogger := logging.NewDispatcherLogger(DBLogger.With().Str("component", "dispatcher").Logger())
	d, err := dispatcher.New(dispatcherLogger, viper.GetInt("dispatcher.queueSize"))
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}

	hostCfg := config.GetHostConfig()
	client := hostlink.New(hostlink.Config{
		URL:       hostCfg.URL,
		Secret:    hostCfg.Secret,
		Extension: ExtensionName,
		Version:   CurrentExtensionVersion,
		Commands:  commands.Names(),
		OnConnect: func() {
			if err := d.Post(dispatcher.Event{Command: commandPanelRegister}); err != nil {
				Logger.Warn("Failed to queue panel registration", "error", err)
			}
		},
	}, func(command string, args []string, reply func(any, error)) error {
		return d.Submit(dispatcher.Event{Command: command, Args: args}, reply)
	}, Logger)

	var sink notify.Sink = notify.Discard{}
	if notifyCfg := config.GetNotifyConfig(); notifyCfg.Enabled {
		sink = notify.NewHostSink(client, notifyCfg.Timeout, notifyCfg.Retries, Logger)
	}

	var stats transfer.Stats
	im, err := connectStats(ctx)
	if err != nil {
		Logger.Error("Failed to connect to InfluxDB, transfer stats disabled", "error", err)
	} else if im != nil {
		stats = im
		defer func() {
			if err := im.Close(); err != nil {
				Logger.Error("Failed to close InfluxDB manager", "error", err)
			}
		}()
	}

	live := roster.New()
	engine, err := newEngine(store, live, sink, stats)
	if err != nil {
		return err
	}
	markEngine.Store(engine)

	refreshCfg := config.GetRefreshConfig()
	sched := scheduler.New(scheduler.RealClock, d, scheduler.Options{
		Interval:     refreshCfg.Interval,
		ConnectDelay: refreshCfg.ConnectDelay,
	}, Logger)

	handlers.NewService(handlers.Dependencies{
		Roster:     live,
		Engine:     engine,
		Scheduler:  sched,
		LogManager: SlogManager,
	}).Register(d)
	commands.NewManager(engine, Logger).RegisterHandlers(d)
	registerLifecycleHandlers(d, engine, sink)

	rec, err := engine.Current(ctx)
	if err != nil {
		return fmt.Errorf("failed to load mark record: %w", err)
	}
	Logger.Info("Mark loaded", "markedID", rec.MarkedID, "markedName", rec.MarkedName, "gridLocation", rec.GridLocation)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return d.Run(gctx)
	})
	if monCfg := config.GetMonitorConfig(); monCfg.Enabled {
		mon := newMonitor(monCfg, live, engine, client, im)
		g.Go(func() error {
			return mon.Run(gctx)
		})
	}
	g.Go(func() error {
		connectHost(gctx, client)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sched.Stop()
		if err := client.Close(); err != nil {
			Logger.Warn("Failed to close host link", "error", err)
		}
		return nil
	})

	if err := sched.Start(); err != nil {
		Logger.Error("Failed to start refresh timer", "error", err)
	}
	Logger.Info("Extension running", "host", hostCfg.URL)

	err = g.Wait()
	Logger.Info("Extension stopped")
	return err
}

// newMonitor builds the status monitor. im may be nil.
func newMonitor(cfg config.MonitorConfig, live *roster.Roster, engine *transfer.Engine, client *hostlink.Client, im *influx.Manager) *monitor.Service {
	deps := monitor.Dependencies{
		PlayersOnline: live.Len,
		Mark:          engine.Snapshot,
		HostConnected: client.Connected,
		Interval:      cfg.Interval,
		Logger:        Logger,
	}
	if cfg.StatusFile != "" {
		deps.StatusFile = filepath.Join(viper.GetString("logsDir"), cfg.StatusFile)
	}
	if im != nil {
		deps.Writer = im
	}
	return monitor.NewService(deps)
}

// connectHost dials until the first connection succeeds or ctx ends.
func connectHost(ctx context.Context, client *hostlink.Client) {
	for {
		err := client.Connect()
		if err == nil {
			Logger.Info("Connected to host")
			return
		}
		if errors.Is(err, hostlink.ErrClosed) {
			return
		}
		Logger.Warn("Host not reachable, retrying", "error", err, "delay", reconnectDelay)

		timer := time.NewTimer(reconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func registerLifecycleHandlers(d *dispatcher.Dispatcher, engine *transfer.Engine, sink notify.Sink) {
	d.Register(commandVersion, func(context.Context, dispatcher.Event) (any, error) {
		return []string{CurrentExtensionVersion, BuildDate}, nil
	})

	d.Register(commandGetLogDir, func(context.Context, dispatcher.Event) (any, error) {
		return LogFilePath, nil
	})

	// Sent after every host (re)connect: the host forgets panels on restart.
	d.Register(commandPanelRegister, func(ctx context.Context, _ dispatcher.Event) (any, error) {
		if err := notify.Register(ctx, sink); err != nil {
			Logger.Warn("Panel registration failed", "error", err)
			return nil, nil
		}
		return nil, engine.Repaint(ctx)
	}, dispatcher.Logged())
}

// withEngine opens the configured store for a one-shot operator command.
func withEngine(ctx context.Context, fn func(*transfer.Engine) error) error {
	store, err := openStore(config.GetStorageConfig(), config.GetDBConfig(), DBLogger)
	if err != nil {
		return err
	}
	defer store.Close()

	engine, err := newEngine(store, roster.New(), nil, nil)
	if err != nil {
		return err
	}
	return fn(engine)
}

func showMark(ctx context.Context, w io.Writer, limit int) error {
	return withEngine(ctx, func(engine *transfer.Engine) error {
		rec, err := engine.Current(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Marked: %s (%d)\n", rec.MarkedName, rec.MarkedID)
		fmt.Fprintf(w, "Last seen near: %s\n", rec.GridLocation)

		transfers, err := engine.History(ctx, limit)
		if errors.Is(err, transfer.ErrNoHistory) {
			return nil
		}
		if err != nil {
			return err
		}
		if len(transfers) == 0 {
			fmt.Fprintln(w, "No transfers recorded.")
			return nil
		}
		fmt.Fprintln(w, "Transfers:")
		for _, t := range transfers {
			fmt.Fprintf(w, "  %s\n", commands.FormatTransfer(t))
		}
		return nil
	})
}

func resetMark(ctx context.Context, w io.Writer) error {
	return withEngine(ctx, func(engine *transfer.Engine) error {
		rec, err := engine.Reset(ctx)
		if err != nil {
			return err
		}
		Logger.Info("Mark reset", "markedID", rec.MarkedID, "markedName", rec.MarkedName)
		fmt.Fprintf(w, "Mark reset to %s (%d)\n", rec.MarkedName, rec.MarkedID)
		return nil
	})
}
