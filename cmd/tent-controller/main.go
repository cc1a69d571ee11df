// Command tent-controller runs the grow tent control loop: it polls the tent's
// devices, drives the fan, heater and light, tracks humidifier runtime and
// energy use, and publishes status to MQTT and HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sweeney/tent-controller/internal/config"
	"github.com/sweeney/tent-controller/internal/device"
	"github.com/sweeney/tent-controller/internal/duty"
	"github.com/sweeney/tent-controller/internal/energy"
	"github.com/sweeney/tent-controller/internal/engine"
	"github.com/sweeney/tent-controller/internal/esp32"
	"github.com/sweeney/tent-controller/internal/gpio"
	"github.com/sweeney/tent-controller/internal/metrics"
	"github.com/sweeney/tent-controller/internal/mqtt"
	"github.com/sweeney/tent-controller/internal/recorder"
	"github.com/sweeney/tent-controller/internal/status"
	"github.com/sweeney/tent-controller/internal/web"
)

// printSettle is how long -print-status waits for MQTT devices to report.
const printSettle = 3 * time.Second

func main() {
	defaultConfig := os.Getenv("CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = "tent.yaml"
	}
	configPath := flag.String("config", defaultConfig, "Path to the YAML config file")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	logConsole := flag.Bool("log-console", false, "Human-readable console logs instead of JSON")
	printStatus := flag.Bool("print-status", false, "Read all devices once, print the status JSON and exit")
	reprice := flag.Bool("reprice", false, "Recompute every ledger cost at the configured price and exit")

	flag.Parse()

	logger, err := newLogger(*logLevel, *logConsole)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(*configPath, *printStatus, *reprice, logger); err != nil {
		logger.Fatal("fatal", zap.Error(err))
	}
}

func newLogger(level string, console bool) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	if console {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = lvl
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

func run(configPath string, printStatus, reprice bool, logger *zap.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	loc, _ := cfg.Location()

	ledger := energy.NewLedger(cfg.EnergyFile(), time.Now, logger)
	if err := ledger.Load(); err != nil {
		return fmt.Errorf("load energy history: %w", err)
	}

	if reprice {
		ledger.Reprice(cfg.Energy.Price)
		if err := ledger.Save(); err != nil {
			return err
		}
		logger.Info("repriced energy history", zap.Int("days", ledger.Len()), zap.Float64("kwh_price", cfg.Energy.Price))
		return nil
	}

	settings := config.NewSettingsStore(cfg.SettingsFile, logger)
	if err := settings.Load(); err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	topics := mqtt.NewTopics(cfg.MQTT.TopicPrefix)
	client := mqtt.NewClient(mqtt.Options{
		Broker:   cfg.MQTT.Broker,
		ClientID: cfg.MQTT.ClientID,
		Username: cfg.MQTT.Username,
		Password: cfg.MQTT.Password,
		Topics:   topics,
	}, logger)
	defer client.Close()

	devs, history, cleanup, err := buildDevices(cfg, client, time.Now, loc, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	gateway := device.NewGateway(devs, cfg.Devices.Timeout, time.Now, logger)

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		IntervalMs:     cfg.Interval.Milliseconds(),
		SaveIntervalMs: cfg.SaveInterval.Milliseconds(),
		Broker:         cfg.MQTT.Broker,
		HTTPAddr:       cfg.HTTPAddr,
		Timezone:       cfg.Timezone,
		Price:          cfg.Energy.Price,
		Currency:       cfg.Energy.Currency,
	})

	if printStatus {
		time.Sleep(printSettle)
		tracker.Update(status.Tick{Devices: gateway.Fetch(context.Background()), Settings: settings.Get()})
		fmt.Println(string(status.FormatJSON(tracker.Snapshot())))
		return nil
	}

	runtime := duty.NewTracker(cfg.RuntimeFile(), time.Now, logger)
	runtime.SetLocation(loc)
	runtime.SetWeeks(cfg.Runtime.Weeks)
	if err := runtime.Load(); err != nil {
		return fmt.Errorf("load runtime history: %w", err)
	}

	var rec recorder.Recorder
	if sq, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, logger); err != nil {
		logger.Warn("sqlite recorder unavailable, history disabled", zap.Error(err))
		rec = recorder.NewNoopRecorder()
	} else {
		rec = sq
		history = append([]device.HistoryMeter{sq}, history...)
	}
	defer rec.Close()

	m := metrics.New()

	eng := engine.New(engine.Options{
		Gateway:        gateway,
		Tracker:        runtime,
		Ledger:         ledger,
		Settings:       settings,
		Alerts:         cfg.Alerts,
		Notifier:       mqtt.NewNotifier(client, time.Now),
		Recorder:       rec,
		Metrics:        m,
		Status:         tracker,
		Publisher:      client,
		Connection:     client,
		History:        history,
		BackfillMonths: cfg.Energy.BackfillMonths,
		Price:          cfg.Energy.Price,
		SaveInterval:   cfg.SaveInterval,
		HistoryDays:    cfg.Energy.HistoryDays,
		CommandTimeout: cfg.Devices.Timeout,
		Location:       loc,
		Logger:         logger,
	})

	sched := cron.New(cron.WithSeconds(), cron.WithLocation(loc))
	if _, err := sched.AddFunc(cfg.Energy.BackfillCron, eng.RequestBackfill); err != nil {
		return fmt.Errorf("register backfill schedule: %w", err)
	}
	sched.Start()
	defer sched.Stop()
	eng.RequestBackfill()

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := client.PublishSystem(startupEvent); err != nil {
		logger.Warn("failed to publish startup event", zap.Error(err))
	} else {
		logger.Info("published startup event")
	}

	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker, web.Options{Settings: settings, Metrics: m.Handler(), Logger: logger})
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", zap.Error(err))
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
		logger.Info("http status server listening", zap.String("addr", cfg.HTTPAddr))
	}

	logger.Info("started",
		zap.Duration("interval", cfg.Interval),
		zap.String("broker", cfg.MQTT.Broker),
		zap.String("timezone", loc.String()))

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(eng, client, client, tracker, time.Now, ticker.C, sigCh, logger)
}

// buildDevices creates an adapter for every configured device. Slots left
// unconfigured stay nil and report as unavailable.
func buildDevices(cfg *config.Config, broker mqtt.Broker, now func() time.Time, loc *time.Location, logger *zap.Logger) (device.Devices, []device.HistoryMeter, func(), error) {
	var (
		devs    device.Devices
		history []device.HistoryMeter
		closers []func() error
	)
	cleanup := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.Warn("close device", zap.Error(err))
			}
		}
	}
	stale := cfg.MQTT.StaleAfter

	if cfg.Devices.ESP32.URL != "" {
		board := esp32.NewClient(cfg.Devices.ESP32.URL, cfg.Devices.ESP32.AuthCode, cfg.Devices.Timeout)
		devs.Fan = board
		devs.Temperature = board
	}
	if t := cfg.Devices.LightTopic; t != "" {
		light := mqtt.NewSwitch(broker, t, stale, now)
		if err := light.Start(); err != nil {
			return devs, nil, cleanup, fmt.Errorf("start light: %w", err)
		}
		devs.Light = light
	}
	if t := cfg.Devices.HumidifierTopic; t != "" {
		hum := mqtt.NewHumidifier(broker, t, stale, now)
		if err := hum.Start(); err != nil {
			return devs, nil, cleanup, fmt.Errorf("start humidifier: %w", err)
		}
		devs.Humidifier = hum
	}
	if t := cfg.Devices.MeterTopic; t != "" {
		meter := mqtt.NewMeter(broker, t, stale, now, loc)
		if err := meter.Start(); err != nil {
			return devs, nil, cleanup, fmt.Errorf("start meter: %w", err)
		}
		devs.Meter = meter
		history = append(history, meter)
	}

	switch {
	case cfg.Devices.HeaterTopic != "":
		heater := mqtt.NewSwitch(broker, cfg.Devices.HeaterTopic, stale, now)
		if err := heater.Start(); err != nil {
			return devs, nil, cleanup, fmt.Errorf("start heater: %w", err)
		}
		devs.Heater = heater
	case cfg.Devices.HeaterGPIO.Pin > 0:
		line, err := gpio.NewRealLine(cfg.Devices.HeaterGPIO.Chip, cfg.Devices.HeaterGPIO.Pin, true)
		if err != nil {
			return devs, nil, cleanup, fmt.Errorf("init heater gpio: %w", err)
		}
		relay := gpio.NewRelay(line)
		closers = append(closers, relay.Close)
		devs.Heater = relay
	}

	return devs, history, cleanup, nil
}

// runLoop drives the engine from tick until a signal arrives, then stops the
// engine, waits for its final save and publishes the retained SHUTDOWN event.
func runLoop(eng *engine.Engine, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx, tick) }()

	select {
	case err := <-done:
		return err
	case s := <-sig:
		logger.Info("shutting down", zap.String("signal", s.String()))
		cancel()
		if err := <-done; err != nil {
			logger.Warn("final save failed", zap.Error(err))
		}

		name := signalName(s)
		event := mqtt.SystemEvent{
			Timestamp: now(),
			Event:     "SHUTDOWN",
			Reason:    name,
			Retained:  true,
		}
		if tracker != nil {
			if mqttStatus != nil {
				tracker.SetMQTTConnected(mqttStatus.IsConnected())
			}
			event.RawPayload = status.FormatStatusEvent(tracker.Snapshot(), "SHUTDOWN", name)
		}
		if err := publisher.PublishSystem(event); err != nil {
			logger.Warn("failed to publish shutdown event", zap.Error(err))
		} else {
			logger.Info("published shutdown event")
		}
		return nil
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}
