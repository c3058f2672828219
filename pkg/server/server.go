package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/KyleBrandon/planty/config"
	"github.com/KyleBrandon/planty/internal/controller"
	"github.com/KyleBrandon/planty/internal/database"
	"github.com/KyleBrandon/planty/internal/debounce"
	"github.com/KyleBrandon/planty/internal/link"
	"github.com/KyleBrandon/planty/internal/mailbox"
	"github.com/KyleBrandon/planty/internal/metrics"
	"github.com/KyleBrandon/planty/internal/mqttlink"
	"github.com/KyleBrandon/planty/internal/producer"
	"github.com/KyleBrandon/planty/internal/sensor"
	"github.com/KyleBrandon/planty/internal/telemetry"
	"github.com/KyleBrandon/planty/pkg/server/health"
	"github.com/KyleBrandon/planty/pkg/server/monitor"
	"github.com/KyleBrandon/planty/pkg/server/pump"
	"github.com/KyleBrandon/planty/pkg/server/readings"
	"github.com/KyleBrandon/planty/pkg/server/status"
	"github.com/KyleBrandon/planty/pkg/utils"
	"github.com/cenkalti/backoff/v4"
	"github.com/joho/godotenv"
	"github.com/nikoksr/notify"
	"github.com/nikoksr/notify/service/twilio"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	DEFAULT_SERVER_PORT          = "8080"
	DEFAULT_CONFIG_FILE_LOCATION = "./config/config.yaml"

	shutdownTimeout = 5 * time.Second
)

// Options are the command line settings for the server.
type Options struct {
	LogLevel      string
	UseMockSensor bool
	ConfigFile    string
}

type ServerConfig struct {
	mux                *http.ServeMux
	mctx               *monitor.MonitorContext
	ServerPort         string
	DatabaseURL        string
	UseMockSensor      bool
	LogFileLocation    string
	ConfigFileLocation string
	ApiKey             string
	Logger             *slog.Logger
	LoggerLevel        *slog.LevelVar
	LogFile            *os.File
	Notifier           *notify.Notify

	Config       config.Config
	Sensors      sensor.Sensors
	Queries      *database.Queries
	DBConnection *sql.DB
	Registry     *prometheus.Registry
}

// InitializeServer reads the environment and config file, then opens the sensors and database.
func InitializeServer(opts Options) (*ServerConfig, error) {
	slog.Debug(">>InitializeServer")
	defer slog.Debug("<<InitializeServer")

	sc := &ServerConfig{}

	// MUST BE FIRST
	if err := sc.readEnvironmentVariables(opts); err != nil {
		return nil, err
	}

	if err := sc.configureLogger(opts.LogLevel); err != nil {
		return nil, err
	}

	cfg, err := config.LoadConfigSettings(sc.ConfigFileLocation)
	if err != nil {
		slog.Error("failed to load config file", "file", sc.ConfigFileLocation, "error", err)
		return nil, err
	}
	sc.Config = cfg
	sc.applyMQTTEnvironment()

	sensors, err := sensor.NewSensorConfig(
		cfg.SensorTimeoutSeconds,
		cfg.Devices,
		sc.UseMockSensor)
	if err != nil {
		slog.Error("failed to initialize sensors", "error", err)
		return nil, err
	}
	sc.Sensors = sensors

	if err := sc.openDatabase(); err != nil {
		sensors.Close()
		return nil, err
	}

	sc.Registry = prometheus.NewRegistry()
	sc.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return sc, nil
}

// Run wires the controller to its producers and remote surfaces and serves until ctx is
// cancelled. The pump is off when Run returns.
func (sc *ServerConfig) Run(ctx context.Context) error {
	slog.Info(">>Run")
	defer slog.Info("<<Run")

	defer sc.close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cc := sc.Config.Controller
	settings := cc.Settings()

	mb := mailbox.New(cc.Capacity())
	bridge := telemetry.NewBridge()
	commands := producer.NewCommands(mb)

	// the link registers as the bridge notifier, so it must exist before the controller runs
	lnk := link.New(sc.Config.Link.DeviceName, bridge, commands, sc.Config.OriginPatterns)

	collector := metrics.NewCollector(sc.Registry, mb.Len)
	collector.SetThreshold(settings.DefaultThreshold)

	sc.mctx = monitor.InitializeMonitorContext(sc.notifier(), sc.monitorStore(), sc.Sensors)
	defer sc.mctx.CancelAndWait()

	ctrl := controller.New(mb, sc.Sensors, sc.Sensors, bridge, settings, collector, sc.mctx)

	sc.mux = http.NewServeMux()
	sc.registerRoutes(lnk, bridge, ctrl, commands)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := ctrl.Run(ctx); err != nil {
			slog.Error("controller stopped", "error", err)
		}
		cancel()
	}()

	sc.startProducers(ctx, &wg, cc, mb)
	sc.startMQTT(ctx, &wg, commands, bridge, ctrl)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", sc.ServerPort),
		Handler: sc.mux,
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Warn("server shutdown failed", "error", err)
		}
	}()

	err := sc.runServer(ctx, server)
	cancel()
	wg.Wait()

	return err
}

func (sc *ServerConfig) registerRoutes(lnk *link.Link, bridge *telemetry.Bridge, ctrl *controller.Controller, commands *producer.Commands) {
	healthHandler := health.NewHandler(sc.LoggerLevel, sc.Logger)
	healthHandler.RegisterRoutes(sc.mux)

	lnk.RegisterRoutes(sc.mux)

	pumpHandler := pump.NewHandler(ctrl.Status(), commands, sc.ApiKey)
	pumpHandler.RegisterRoutes(sc.mux)

	statusHandler := status.NewHandler(ctrl.Status(), bridge, sc.Config.OriginPatterns)
	statusHandler.RegisterRoutes(sc.mux)

	var store readings.ReadingStore
	if sc.Queries != nil {
		store = sc.Queries
	}
	readingsHandler := readings.NewHandler(store, sc.Sensors)
	readingsHandler.RegisterRoutes(sc.mux)

	sc.mux.Handle("GET /metrics", metrics.Handler(sc.Registry))
}

// startProducers starts the button and measurement producers. A button that is not
// configured is skipped.
func (sc *ServerConfig) startProducers(ctx context.Context, wg *sync.WaitGroup, cc config.ControllerConfig, mb *mailbox.Mailbox) {
	buttons := []struct {
		name string
		run  func(context.Context, *debounce.Debouncer, producer.Sender)
	}{
		{sensor.BUTTON_WATER, producer.WaterButton},
		{sensor.BUTTON_CALIBRATE, producer.CalibrateButton},
	}

	for _, b := range buttons {
		line, err := sc.Sensors.ButtonLine(ctx, b.name)
		if errors.Is(err, sensor.ErrUnknownButton) {
			slog.Warn("button not configured", "button", b.name)
			continue
		}
		if err != nil {
			slog.Error("failed to open button", "button", b.name, "error", err)
			continue
		}

		debouncer := debounce.New(line, cc.DebounceSettle())
		run := b.run

		wg.Add(1)
		go func() {
			defer wg.Done()
			run(ctx, debouncer, mb)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		producer.Measurement(ctx, cc.MeasurementInterval(), mb)
	}()
}

// startMQTT connects to the broker in the background when one is configured.
func (sc *ServerConfig) startMQTT(ctx context.Context, wg *sync.WaitGroup, commands *producer.Commands, bridge *telemetry.Bridge, ctrl *controller.Controller) {
	cfg := sc.Config.MQTT
	if cfg.Broker == "" {
		slog.Info("no MQTT broker configured")
		return
	}

	wg.Add(1)
	go func() {
		defer wg.Done()

		client, err := mqttlink.Connect(ctx, cfg)
		if err != nil {
			slog.Error("MQTT bridge disabled", "error", err)
			return
		}

		b := mqttlink.NewBridge(client, cfg.TopicPrefix, commands)
		if err := b.Run(ctx, bridge.SubscribeMoisture(), ctrl.Status().Subscribe()); err != nil {
			slog.Error("MQTT bridge stopped", "error", err)
		}
	}()
}

// runServer listens for connections, restarting the listener after failures until ctx ends.
func (sc *ServerConfig) runServer(ctx context.Context, server *http.Server) error {
	slog.Info(">>runServer")
	defer slog.Info("<<runServer")

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0

	err := backoff.RetryNotify(func() error {
		slog.Info("Starting server", "port", sc.ServerPort)
		err := server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(bo, ctx), func(err error, next time.Duration) {
		slog.Error("Server failed, retrying", "error", err, "retry_in", next)
	})

	if errors.Is(err, http.ErrServerClosed) || errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}

func (sc *ServerConfig) readEnvironmentVariables(opts Options) error {
	slog.Info(">>readEnvironmentVariables")
	defer slog.Info("<<readEnvironmentVariables")

	// load the environment
	err := godotenv.Load()
	if err != nil {
		slog.Warn("could not load .env file", "error", err)
	}

	sc.DatabaseURL = os.Getenv("DATABASE_URL")
	if len(sc.DatabaseURL) == 0 {
		slog.Warn("no database connection string is configured, history is disabled")
	}

	sc.ServerPort = os.Getenv("PORT")
	if len(sc.ServerPort) == 0 {
		sc.ServerPort = DEFAULT_SERVER_PORT
	}

	sc.LogFileLocation = os.Getenv("LOG_FILE_LOCATION")

	sc.ApiKey = os.Getenv("API_KEY")
	if len(sc.ApiKey) == 0 {
		slog.Warn("no API_KEY is configured, pump and threshold changes are not protected")
	}

	sc.ConfigFileLocation = opts.ConfigFile
	if len(sc.ConfigFileLocation) == 0 {
		sc.ConfigFileLocation = os.Getenv("CONFIG_FILE_LOCATION")
	}
	if len(sc.ConfigFileLocation) == 0 {
		sc.ConfigFileLocation = DEFAULT_CONFIG_FILE_LOCATION
	}

	twilioAccountSID := os.Getenv("TWILIO_ACCOUNT_SID")
	twilioAuthToken := os.Getenv("TWILIO_AUTH_TOKEN")
	twilioFromPhone := os.Getenv("TWILIO_FROM_PHONE_NO")
	twilioToPhone := os.Getenv("TWILIO_TO_PHONE_NO")
	if len(twilioAccountSID) != 0 {
		slog.Info("Twilio account information present, configuring Notifier")

		twilioService, err := twilio.New(twilioAccountSID, twilioAuthToken, twilioFromPhone)
		if err != nil {
			return fmt.Errorf("failed to initialize Twilio service: %w", err)
		}

		twilioService.AddReceivers(twilioToPhone)

		notifier := notify.New()
		notifier.UseServices(twilioService)
		sc.Notifier = notifier
	}

	sc.UseMockSensor = opts.UseMockSensor

	return nil
}

// applyMQTTEnvironment lets the environment override the broker settings from the config file.
func (sc *ServerConfig) applyMQTTEnvironment() {
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		sc.Config.MQTT.Broker = v
	}
	if v := os.Getenv("MQTT_USERNAME"); v != "" {
		sc.Config.MQTT.Username = v
	}
	if v := os.Getenv("MQTT_PASSWORD"); v != "" {
		sc.Config.MQTT.Password = v
	}
}

// configureLogger will initialize the slog to stderr and save the log level so it can be set via API.
func (sc *ServerConfig) configureLogger(logLevel string) error {
	slog.Info(">>configureLogger")
	defer slog.Info("<<configureLogger")

	currentLevel := new(slog.LevelVar)

	level, err := utils.ParseLogLevel(logLevel)
	if err != nil {
		slog.Error("Failed to parse the log level, setting to DefaultLogLevel", "error", err, "log_level", logLevel)
		level = config.DefaultLogLevel
	}

	currentLevel.Set(level)

	// by default we will write to stderr
	logFile := os.Stderr
	if len(sc.LogFileLocation) != 0 {
		slog.Info("Save to log file", "file", sc.LogFileLocation)
		logFile, err = os.OpenFile(sc.LogFileLocation, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
	}

	fileHandler := slog.NewTextHandler(logFile, &slog.HandlerOptions{Level: currentLevel})

	logger := slog.New(fileHandler)

	slog.SetDefault(logger)

	sc.Logger = logger
	sc.LoggerLevel = currentLevel
	sc.LogFile = logFile

	return nil
}

func (sc *ServerConfig) openDatabase() error {
	if len(sc.DatabaseURL) == 0 {
		return nil
	}

	db, err := sql.Open("postgres", sc.DatabaseURL)
	if err != nil {
		slog.Error("failed to open database connection", "error", err)
		return err
	}

	sc.DBConnection = db
	sc.Queries = database.New(db)

	return nil
}

func (sc *ServerConfig) notifier() monitor.Notifier {
	if sc.Notifier == nil {
		return nil
	}
	return sc.Notifier
}

func (sc *ServerConfig) monitorStore() monitor.MonitorStore {
	if sc.Queries == nil {
		return nil
	}
	return sc.Queries
}

func (sc *ServerConfig) close() {
	if err := sc.Sensors.Close(); err != nil {
		slog.Warn("failed to close sensors", "error", err)
	}

	if sc.DBConnection != nil {
		sc.DBConnection.Close()
	}

	if sc.LogFile != nil && sc.LogFile != os.Stderr {
		sc.LogFile.Close()
	}
}
