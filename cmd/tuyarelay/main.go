// Tuya Relay bridges WebSocket clients to a single Tuya cloud device.
//
// Clients send {"deviceType":"MainFan","state":"turn_on"} text frames; each
// valid message becomes one signed OpenAPI command. MQTT events, InfluxDB
// metrics and a SQLite audit log are optional side channels.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/tuya-relay/internal/api"
	"github.com/nerrad567/tuya-relay/internal/audit"
	"github.com/nerrad567/tuya-relay/internal/catalog"
	"github.com/nerrad567/tuya-relay/internal/command"
	"github.com/nerrad567/tuya-relay/internal/dispatch"
	"github.com/nerrad567/tuya-relay/internal/infrastructure/config"
	"github.com/nerrad567/tuya-relay/internal/infrastructure/database"
	"github.com/nerrad567/tuya-relay/internal/infrastructure/influxdb"
	"github.com/nerrad567/tuya-relay/internal/infrastructure/logging"
	"github.com/nerrad567/tuya-relay/internal/infrastructure/mqtt"
	"github.com/nerrad567/tuya-relay/internal/metrics"
	"github.com/nerrad567/tuya-relay/internal/session"
	"github.com/nerrad567/tuya-relay/internal/tuya"
	"github.com/nerrad567/tuya-relay/migrations"
)

// Version information, set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	configFlag := flag.String("config", "", "path to config.yaml (overrides TUYARELAY_CONFIG)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configFlag); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component, serves until ctx is cancelled and then shuts
// down in reverse order via defers.
func run(ctx context.Context, configFlag string) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting tuya relay",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath(configFlag)
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
		"debug", cfg.Logging.Debug,
	)

	cat, err := catalog.New(cfg.Catalog.Devices, cfg.Catalog.States, cfg.Catalog.ActivateState)
	if err != nil {
		return fmt.Errorf("building catalog: %w", err)
	}
	log.Info("catalog loaded", "devices", cat.Len(), "states", cat.States())

	tuyaClient, err := tuya.New(cfg.Cloud, tuya.WithLogger(log))
	if err != nil {
		return fmt.Errorf("creating tuya client: %w", err)
	}

	m := metrics.New()
	recorders := recorderSet{m}
	dispatchOpts := []dispatch.Option{
		dispatch.WithLogger(log),
		dispatch.WithObserver(m),
	}

	// Audit database (optional)
	var db *database.DB
	var auditRepo audit.Repository
	if cfg.Database.Enabled {
		db, err = database.Open(database.Config{
			Path:        cfg.Database.Path,
			WALMode:     cfg.Database.WALMode,
			BusyTimeout: cfg.Database.BusyTimeout,
		})
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()

		if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		log.Info("database ready", "path", cfg.Database.Path)

		auditRepo = audit.NewSQLiteRepository(db.DB)
		dispatchOpts = append(dispatchOpts, dispatch.WithObserver(&auditObserver{repo: auditRepo, log: log}))
	} else {
		log.Info("audit database disabled")
	}

	// MQTT event bus (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		events := &mqttEvents{client: mqttClient, log: log}
		recorders = append(recorders, events)
		dispatchOpts = append(dispatchOpts, dispatch.WithObserver(events))
	} else {
		log.Info("MQTT disabled")
	}

	// InfluxDB (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(ctx, cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		points := &influxPoints{client: influxClient}
		recorders = append(recorders, points)
		dispatchOpts = append(dispatchOpts, dispatch.WithObserver(points))
	} else {
		log.Info("InfluxDB disabled")
	}

	dispatcher, err := dispatch.New(tuyaClient, cfg.Cloud.DeviceID, dispatchOpts...)
	if err != nil {
		return fmt.Errorf("creating dispatcher: %w", err)
	}

	pipeline := &session.Pipeline{
		Validator:  command.NewValidator(cat, log),
		Translator: command.NewTranslator(cat.ActivateState()),
		Dispatcher: dispatcher,
		Recorder:   recorders,
		Logger:     log,
	}

	if mqttClient != nil {
		if subErr := subscribeCommands(ctx, mqttClient, pipeline, cfg.MQTT, log); subErr != nil {
			return subErr
		}
	}

	srv, err := api.New(api.Deps{
		Server:    cfg.Server,
		WebSocket: cfg.WebSocket,
		Logger:    log,
		Catalog:   cat,
		Pipeline:  pipeline,
		Metrics:   m,
		Audit:     auditRepo,
		DB:        db,
		MQTT:      mqttClient,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("relay ready",
		"address", srv.Addr(),
		"websocket_path", cfg.WebSocket.Path,
		"device_id", cfg.Cloud.DeviceID,
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// subscribeCommands feeds MQTT command messages through the same pipeline
// as WebSocket frames.
func subscribeCommands(ctx context.Context, client *mqtt.Client, p *session.Pipeline, cfg config.MQTTConfig, log *logging.Logger) error {
	topic := client.Topics().Command()
	sessionID := "mqtt:" + cfg.Broker.ClientID

	qos := byte(cfg.QoS) //nolint:gosec // validated to 0-2 by config.Validate
	err := client.Subscribe(topic, qos, func(_ string, payload []byte) error {
		if ctx.Err() != nil {
			return nil
		}
		res := p.Process(ctx, sessionID, payload)
		if res.Outcome != nil && !res.Outcome.Success {
			return res.Outcome.Err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	log.Info("listening for MQTT commands", "topic", topic)
	return nil
}

// getConfigPath picks the -config flag, then TUYARELAY_CONFIG, then the
// default.
func getConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if path := os.Getenv("TUYARELAY_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
