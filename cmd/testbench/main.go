package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"can-testbench/internal/codec"
	"can-testbench/internal/config"
	"can-testbench/internal/database"
	"can-testbench/internal/database/clickhouse"
	"can-testbench/internal/database/influxdb"
	"can-testbench/internal/dbc"
	"can-testbench/internal/plugin"
	"can-testbench/internal/runner"
	"can-testbench/internal/scenario"
	"can-testbench/internal/transport"
	"can-testbench/internal/vehicle"
)

func main() {
	// Command line flag for config file
	envFile := flag.String("env", ".env", "Path to .env configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*envFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting CAN test bench...")
	log.Printf("Transport: %s (interface %s)", cfg.Transport, cfg.CANInterface)
	log.Printf("Scenario directory: %s", cfg.ScenarioDir)

	// Create transport adapter
	var adapter transport.Adapter
	switch cfg.Transport {
	case "socketcan":
		adapter = transport.NewSocketCAN(cfg.CANInterface, cfg.CANFilters)
	case "virtual":
		adapter = transport.NewVirtual(transport.VirtualConfig{
			GenerateTraffic: cfg.GenerateTraffic,
			TrafficRate:     cfg.TrafficRate,
		})
	default:
		log.Fatalf("Unknown transport: %s", cfg.Transport)
	}

	if !adapter.Connect() {
		log.Fatalf("Failed to connect transport %s", adapter.Name())
	}
	defer adapter.Disconnect()

	// Load message databases
	parser, err := dbc.NewParser(cfg.DBCParser)
	if err != nil {
		log.Fatalf("Failed to create DBC parser: %v", err)
	}

	registry := dbc.NewRegistry(parser)
	for _, path := range cfg.DBCFiles {
		if _, err := registry.Load(path); err != nil {
			log.Printf("Warning: failed to load DBC file %s: %v", path, err)
		} else {
			log.Printf("Loaded DBC file: %s", path)
		}
	}

	signalCodec := codec.New(registry)

	// Create database writers
	var dbLogger database.Logger = database.Nop{}
	if cfg.ClickHouseEnable {
		chConfig := clickhouse.Config{
			Host:          cfg.ClickHouseHost,
			Port:          cfg.ClickHousePort,
			Database:      cfg.ClickHouseDatabase,
			Username:      cfg.ClickHouseUsername,
			Password:      cfg.ClickHousePassword,
			MessagesTable: cfg.ClickHouseMessagesTable,
			EventsTable:   cfg.ClickHouseEventsTable,
			ErrorsTable:   cfg.ClickHouseErrorsTable,
		}

		chWriter, err := clickhouse.New(chConfig, cfg.BatchSize)
		if err != nil {
			log.Fatalf("Failed to create ClickHouse writer: %v", err)
		}
		defer chWriter.Close()
		dbLogger = chWriter
		log.Printf("ClickHouse: %s:%d/%s", cfg.ClickHouseHost, cfg.ClickHousePort, cfg.ClickHouseDatabase)
	}

	var signalSink database.SignalSink = database.Nop{}
	if cfg.InfluxDBEnable {
		influxWriter, err := influxdb.New(influxdb.Config{
			URL:      cfg.InfluxDBURL,
			Token:    cfg.InfluxDBToken,
			Database: cfg.InfluxDBDatabase,
		}, cfg.BatchSize)
		if err != nil {
			log.Fatalf("Failed to create InfluxDB writer: %v", err)
		}
		defer influxWriter.Close()
		signalSink = influxWriter
		log.Printf("InfluxDB: %s/%s", cfg.InfluxDBURL, cfg.InfluxDBDatabase)
	}

	// Load scenario definitions
	store, err := scenario.NewStore(cfg.ScenarioDir)
	if err != nil {
		log.Fatalf("Failed to create scenario store: %v", err)
	}
	if _, err := store.LoadAll(); err != nil {
		log.Fatalf("Failed to load scenarios: %v", err)
	}
	for file, msg := range store.LoadErrors() {
		log.Printf("Warning: skipped scenario file %s: %s", file, msg)
	}
	log.Printf("Loaded %d scenarios", len(store.List()))

	// Bus health monitoring only makes sense against real hardware.
	if cfg.Transport == "socketcan" && cfg.HealthIntervalSec > 0 {
		monitor := transport.NewHealthMonitor(cfg.CANInterface,
			time.Duration(cfg.HealthIntervalSec)*time.Second)
		monitor.Start()
		defer monitor.Stop()

		go func() {
			for health := range monitor.Health() {
				if health.Degraded() {
					dbLogger.LogError("transport", "bus_degraded",
						fmt.Sprintf("%s bus state %s (berr tx=%d rx=%d)",
							health.Interface, health.BusState,
							health.TXErrorCounter, health.RXErrorCounter))
				}
				dbLogger.LogEvent("bus_health", health.Interface,
					fmt.Sprintf("state=%s bus=%s rx=%d tx=%d rx_err=%d tx_err=%d",
						health.State, health.BusState, health.RXPackets,
						health.TXPackets, health.RXErrors, health.TXErrors))
			}
		}()
	}

	// Vehicle simulator and plugins
	simulator := vehicle.New(adapter)
	simulator.Start()
	defer simulator.Stop()

	plugins := plugin.NewRegistry()
	if err := plugins.Register(&plugin.LoggerPlugin{}); err != nil {
		log.Fatalf("Failed to register logger plugin: %v", err)
	}
	defer plugins.UnloadAll()

	// Scenario runner
	scenarioRunner := runner.New(store, adapter, plugins, simulator, dbLogger)
	defer scenarioRunner.Close()

	// Receive pump: log every frame, decode and persist known signals
	stopPump := make(chan struct{})
	go func() {
		timeout := time.Duration(cfg.ReceiveTimeoutMs) * time.Millisecond
		for {
			select {
			case <-stopPump:
				return
			default:
			}

			msg, ok := adapter.Receive(timeout)
			if !ok {
				continue
			}

			dbLogger.LogCANMessage(msg)

			if values, ok := signalCodec.Decode(msg.Frame.ID, msg.Frame.Payload()); ok {
				name, _ := signalCodec.MessageName(msg.Frame.ID)
				signalSink.WriteSignals(name, msg.Frame.ID, values, msg.Timestamp)
			}
		}
	}()

	// Drain codec diagnostics into the error log
	go func() {
		for d := range signalCodec.Diagnostics() {
			dbLogger.LogError("codec", "signal_diagnostic",
				d.Signal+": "+d.Message)
		}
	}()

	// Scenarios named on the command line start immediately
	for _, id := range flag.Args() {
		if !scenarioRunner.Run(id) {
			log.Printf("Warning: could not start scenario %s", id)
		}
	}

	log.Println("Test bench started. Press Ctrl+C to stop.")

	// Setup signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	log.Println("\nShutting down...")
	close(stopPump)

	for _, state := range scenarioRunner.Active() {
		log.Printf("Stopping scenario %s (%s, step %d/%d)",
			state.ID, state.Status, state.CurrentStep, state.TotalSteps)
	}
}
