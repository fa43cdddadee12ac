// Gray Logic Discovery - SSDP/UPnP discovery and DLNA browsing service
//
// This is the main entry point for the Gray Logic Discovery service. It
// watches the local network for UPnP devices over SSDP, records discovery
// flows for matched integrations, and exposes DLNA MediaServer browsing
// through the REST/WebSocket API and MQTT.
//
// For architecture details, see: docs/architecture/system-overview.md
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	_ "github.com/nerrad567/gray-logic-discovery/migrations"

	"github.com/nerrad567/gray-logic-discovery/internal/api"
	"github.com/nerrad567/gray-logic-discovery/internal/dms"
	"github.com/nerrad567/gray-logic-discovery/internal/flows"
	"github.com/nerrad567/gray-logic-discovery/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-discovery/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-discovery/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-discovery/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-discovery/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-discovery/internal/ssdp"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// A local cancel lets the MQTT shutdown signal stop the service the
	// same way SIGTERM does.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Gray Logic Discovery",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
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
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Initialise flow store
	flowStore := flows.NewStore(flows.NewSQLiteRepository(db.DB))
	flowStore.SetLogger(log)
	if refreshErr := flowStore.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading flow store: %w", refreshErr)
	}

	// SSDP scanner
	matchers := ssdp.NewIntegrationMatchers(integrationMatchers())
	scanner := ssdp.NewScanner(ssdp.Config{
		ScanInterval:       cfg.ScanInterval(),
		SearchMX:           cfg.SSDP.SearchMX,
		MaxAge:             time.Duration(cfg.SSDP.MaxAge) * time.Second,
		DescriptionTimeout: cfg.DescriptionTimeout(),
	}, matchers, flowStore)
	scanner.SetLogger(log)
	if influxClient != nil {
		scanner.SetScanObserver(func(d time.Duration, devices int) {
			influxClient.WriteScanMetric(float64(d)/float64(time.Millisecond), devices)
		})
	}

	// Media-server sources: seed the registry from config and the database
	registry := dms.NewRegistry()
	entryRepo := dms.NewSQLiteEntryRepository(db.DB)
	if seedErr := seedSources(ctx, cfg, registry, entryRepo, log); seedErr != nil {
		return fmt.Errorf("seeding media sources: %w", seedErr)
	}
	log.Info("media sources initialised", "sources", registry.Count())

	// API server
	server, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log,
		Scanner:  scanner,
		Sources:  registry,
		Flows:    flowStore,
		MQTT:     mqttClient,
		Influx:   influxClient,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	// Newly created flows are announced on MQTT and the WebSocket stream.
	// Registered before the scanner starts so no creation is missed.
	flowStore.SetOnCreate(func(flow flows.Flow) {
		payload, err := json.Marshal(flow)
		if err != nil {
			return
		}
		topic := mqtt.Topics{}.DiscoveryFlow(flow.Domain)
		if pubErr := mqttClient.Publish(topic, payload, 0, false); pubErr != nil {
			log.Warn("publishing flow creation failed", "topic", topic, "error", pubErr)
		}
		server.Hub().Broadcast(api.ChannelFlowCreated, flow)
	})

	// Start the scanner, then wire callbacks. Registration replays ALIVE
	// for devices found between Start and RegisterCallback, so sources and
	// the event fan-out miss nothing.
	if startErr := scanner.Start(ctx); startErr != nil {
		return fmt.Errorf("starting SSDP scanner: %w", startErr)
	}
	defer func() {
		log.Info("stopping SSDP scanner")
		scanner.Stop()
	}()
	log.Info("SSDP scanner started", "listeners", scanner.Listeners())

	wireSources(ctx, scanner, registry, entryRepo, mqttClient, server.Hub(), log)
	wireEventFanout(scanner, mqttClient, influxClient, server.Hub(), log)

	// Platform-wide shutdown signal, treated like SIGTERM.
	shutdownTopic := mqtt.Topics{}.SystemShutdown()
	if subErr := mqttClient.Subscribe(shutdownTopic, 1, func(string, []byte) error {
		log.Info("shutdown requested over MQTT")
		cancel()
		return nil
	}); subErr != nil {
		log.Warn("subscribing to shutdown topic failed", "topic", shutdownTopic, "error", subErr)
	}

	// Periodic reconnect for sources whose last connection attempt failed
	if cfg.DLNA.RetryInterval > 0 {
		go retryLoop(ctx, registry, cfg.DLNARetryInterval(), log)
	}

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient, scanner, server); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. SSDP scanner
	// 2. API server
	// 3. InfluxDB (if enabled)
	// 4. MQTT
	// 5. Database

	log.Info("Gray Logic Discovery stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// integrationMatchers returns the SSDP match table: integration domain to
// the header/description attribute sets that identify its devices.
func integrationMatchers() map[string][]ssdp.Matcher {
	return map[string][]ssdp.Matcher{
		"dlna_dms": {
			{"deviceType": "urn:schemas-upnp-org:device:MediaServer:1"},
			{"deviceType": "urn:schemas-upnp-org:device:MediaServer:2"},
			{"deviceType": "urn:schemas-upnp-org:device:MediaServer:3"},
			{"deviceType": "urn:schemas-upnp-org:device:MediaServer:4"},
			{"st": "urn:schemas-upnp-org:device:MediaServer:1"},
		},
		"hue": {
			{"manufacturer": "Signify", "deviceType": "urn:schemas-upnp-org:device:Basic:1"},
			{"manufacturer": "Royal Philips Electronics", "deviceType": "urn:schemas-upnp-org:device:Basic:1"},
		},
		"sonos": {
			{"st": "urn:schemas-upnp-org:device:ZonePlayer:1"},
		},
		"wemo": {
			{"manufacturer": "Belkin International Inc."},
		},
	}
}

// seedSources merges the configured server list into the database, then
// creates one source per persisted entry. Configured entries win on name;
// entries created by earlier runs survive config removal.
func seedSources(ctx context.Context, cfg *config.Config, registry *dms.Registry, repo dms.EntryRepository, log *logging.Logger) error {
	for _, server := range cfg.DLNA.Servers {
		entry := &dms.ServerEntry{
			ID:       server.ID,
			Name:     server.Name,
			USN:      server.USN,
			Location: server.URL,
		}
		if entry.ID == "" {
			entry.ID = uuid.NewString()
		}
		if entry.Name == "" {
			entry.Name = server.USN
		}
		if err := repo.Upsert(ctx, entry); err != nil {
			return fmt.Errorf("persisting configured server %q: %w", server.USN, err)
		}
	}

	entries, err := repo.List(ctx)
	if err != nil {
		return fmt.Errorf("listing media servers: %w", err)
	}

	httpClient := &http.Client{Timeout: cfg.DLNARequestTimeout()}
	for _, entry := range entries {
		source := dms.NewSource(dms.SourceConfig{
			EntryID:    entry.ID,
			Name:       entry.Name,
			UDN:        ssdp.UDNFromUSN(entry.USN),
			USN:        entry.USN,
			Location:   entry.Location,
			HTTPClient: httpClient,
		})
		source.SetLogger(log)
		sourceID, err := registry.Add(source)
		if err != nil {
			return fmt.Errorf("registering server %q: %w", entry.USN, err)
		}
		log.Info("media source registered",
			"source_id", sourceID,
			"usn", entry.USN,
			"location", entry.Location,
		)
	}
	return nil
}

// wireSources subscribes each source to its SSDP lifecycle events. Two
// registrations per source: one on the USN, and one on the device UDN for
// byebye, which some devices send per device rather than per service. The
// callback forwards events to the source's connection state machine,
// persists location changes, and announces availability flips.
func wireSources(ctx context.Context, scanner *ssdp.Scanner, registry *dms.Registry, repo dms.EntryRepository, mqttClient *mqtt.Client, hub *api.Hub, log *logging.Logger) {
	for _, source := range registry.All() {
		handle := func(info ssdp.ServiceInfo, change ssdp.Change) error {
			wasAvailable := source.Available()

			if err := source.HandleSSDP(ctx, info, change); err != nil {
				return err
			}

			// Persist the location once the state machine has adopted it.
			if info.Location != "" && info.Location == source.Location() {
				if err := repo.UpdateLocation(ctx, source.EntryID(), info.Location); err != nil {
					log.Warn("persisting source location failed",
						"source_id", source.ID(),
						"error", err,
					)
				}
			}

			if available := source.Available(); available != wasAvailable {
				announceSourceState(source, available, mqttClient, hub, log)
			}
			return nil
		}

		scanner.RegisterCallback(handle, map[string]string{"usn": source.USN()})
		scanner.RegisterCallback(handle, map[string]string{
			"_udn": source.UDN(),
			"nts":  "ssdp:byebye",
		})
	}
}

// announceSourceState publishes a source availability change to MQTT and the
// WebSocket stream.
func announceSourceState(source *dms.Source, available bool, mqttClient *mqtt.Client, hub *api.Hub, log *logging.Logger) {
	state := map[string]any{
		"source_id": source.ID(),
		"name":      source.Name(),
		"usn":       source.USN(),
		"available": available,
	}
	log.Info("media source state changed", "source_id", source.ID(), "available", available)

	payload, err := json.Marshal(state)
	if err == nil {
		if pubErr := mqttClient.PublishRetained(mqtt.Topics{}.DiscoverySource(source.ID()), payload); pubErr != nil {
			log.Warn("publishing source state failed", "error", pubErr)
		}
	}
	if hub != nil {
		hub.Broadcast(api.ChannelSourceState, state)
	}
}

// wireEventFanout registers the catch-all callback that mirrors every SSDP
// lifecycle event to MQTT, InfluxDB, and WebSocket subscribers.
func wireEventFanout(scanner *ssdp.Scanner, mqttClient *mqtt.Client, influxClient *influxdb.Client, hub *api.Hub, log *logging.Logger) {
	scanner.RegisterCallback(func(info ssdp.ServiceInfo, change ssdp.Change) error {
		event := map[string]any{
			"change":   change.String(),
			"usn":      info.USN,
			"st":       info.ST,
			"udn":      info.UDN,
			"location": info.Location,
		}

		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("encoding discovery event: %w", err)
		}
		topics := mqtt.Topics{}
		topic := topics.DiscoveryEvent(change.String())
		if pubErr := mqttClient.Publish(topic, payload, 0, false); pubErr != nil {
			log.Warn("publishing discovery event failed", "topic", topic, "error", pubErr)
		}

		// Retained per-device description; a byebye clears it so the
		// retained set always mirrors the live device set.
		if info.UDN != "" {
			deviceTopic := topics.DiscoveryDevice(info.UDN)
			var description []byte
			if change != ssdp.ChangeByeBye {
				description, _ = json.Marshal(map[string]any{
					"udn":      info.UDN,
					"usn":      info.USN,
					"st":       info.ST,
					"location": info.Location,
					"name":     info.Description["friendlyName"],
				})
			}
			if pubErr := mqttClient.PublishRetained(deviceTopic, description); pubErr != nil {
				log.Warn("publishing device description failed", "topic", deviceTopic, "error", pubErr)
			}
		}

		if influxClient != nil {
			influxClient.WriteDiscoveryEvent(change.String(), info.ST, info.UDN)
		}
		if hub != nil {
			hub.Broadcast(api.ChannelDiscoveryEvent, event)
		}
		return nil
	}, nil)
}

// retryLoop periodically retries connecting sources that are offline. A
// source whose SSDP connect attempt failed stays down until its device
// reboots or re-announces; this loop gives it a second chance on a timer.
func retryLoop(ctx context.Context, registry *dms.Registry, interval time.Duration, log *logging.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, source := range registry.All() {
				if source.Available() {
					continue
				}
				if err := source.Connect(ctx); err != nil {
					log.Debug("source reconnect attempt failed",
						"source_id", source.ID(),
						"error", err,
					)
				}
			}
		}
	}
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client, scanner *ssdp.Scanner, server *api.Server) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	if err := scanner.HealthCheck(ctx); err != nil {
		return fmt.Errorf("ssdp: %w", err)
	}
	if err := server.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}
