package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration
type Config struct {
	// Transport
	Transport         string // "virtual" or "socketcan"
	CANInterface      string
	CANFilters        []uint32
	GenerateTraffic   bool
	TrafficRate       float64
	HealthIntervalSec int

	// Message databases
	DBCFiles  []string
	DBCParser string // "grammar" or "regex"

	// Scenarios
	ScenarioDir string

	// ClickHouse (frame/event/error log)
	ClickHouseEnable        bool
	ClickHouseHost          string
	ClickHousePort          int
	ClickHouseDatabase      string
	ClickHouseUsername      string
	ClickHousePassword      string
	ClickHouseMessagesTable string
	ClickHouseEventsTable   string
	ClickHouseErrorsTable   string

	// InfluxDB (decoded signal history)
	InfluxDBEnable   bool
	InfluxDBURL      string
	InfluxDBToken    string
	InfluxDBDatabase string

	// General
	BatchSize        int
	ReceiveTimeoutMs int
}

// LoadConfig loads configuration from .env file
func LoadConfig(envFile string) (*Config, error) {
	// Set default values
	config := &Config{
		Transport:               "virtual",
		CANInterface:            "vcan0",
		GenerateTraffic:         true,
		TrafficRate:             10.0,
		DBCParser:               "grammar",
		ScenarioDir:             "config/scenarios",
		ClickHouseHost:          "localhost",
		ClickHousePort:          9000,
		ClickHouseDatabase:      "default",
		ClickHouseUsername:      "default",
		ClickHousePassword:      "",
		ClickHouseMessagesTable: "can_messages",
		ClickHouseEventsTable:   "events",
		ClickHouseErrorsTable:   "errors",
		InfluxDBURL:             "http://localhost:8086",
		InfluxDBToken:           "",
		InfluxDBDatabase:        "can_signals",
		HealthIntervalSec:       10,
		BatchSize:               1000,
		ReceiveTimeoutMs:        100,
	}

	// Try to load .env file
	if envFile == "" {
		envFile = ".env"
	}

	file, err := os.Open(envFile)
	if err != nil {
		// If .env file doesn't exist, return default config
		if os.IsNotExist(err) {
			fmt.Printf("No .env file found at %s, using default configuration\n", envFile)
			return config, nil
		}
		return nil, fmt.Errorf("error opening .env file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present
		value = strings.Trim(value, `"'`)

		// Set configuration values
		switch key {
		case "TRANSPORT":
			config.Transport = value
		case "CAN_INTERFACE":
			config.CANInterface = value
		case "CAN_FILTERS":
			config.CANFilters = parseFilters(value)
		case "GENERATE_TRAFFIC":
			config.GenerateTraffic = parseBool(value)
		case "TRAFFIC_RATE":
			config.TrafficRate, _ = strconv.ParseFloat(value, 64)
		case "HEALTH_INTERVAL_SEC":
			config.HealthIntervalSec, _ = strconv.Atoi(value)
		case "DBC_FILES":
			config.DBCFiles = parseList(value)
		case "DBC_PARSER":
			config.DBCParser = value
		case "SCENARIO_DIR":
			config.ScenarioDir = value
		case "CLICKHOUSE_ENABLE":
			config.ClickHouseEnable = parseBool(value)
		case "CLICKHOUSE_HOST":
			config.ClickHouseHost = value
		case "CLICKHOUSE_PORT":
			config.ClickHousePort, _ = strconv.Atoi(value)
		case "CLICKHOUSE_DATABASE":
			config.ClickHouseDatabase = value
		case "CLICKHOUSE_USERNAME":
			config.ClickHouseUsername = value
		case "CLICKHOUSE_PASSWORD":
			config.ClickHousePassword = value
		case "CLICKHOUSE_MESSAGES_TABLE":
			config.ClickHouseMessagesTable = value
		case "CLICKHOUSE_EVENTS_TABLE":
			config.ClickHouseEventsTable = value
		case "CLICKHOUSE_ERRORS_TABLE":
			config.ClickHouseErrorsTable = value
		case "INFLUXDB_ENABLE":
			config.InfluxDBEnable = parseBool(value)
		case "INFLUXDB_URL":
			config.InfluxDBURL = value
		case "INFLUXDB_TOKEN":
			config.InfluxDBToken = value
		case "INFLUXDB_DATABASE":
			config.InfluxDBDatabase = value
		case "BATCH_SIZE":
			config.BatchSize, _ = strconv.Atoi(value)
		case "RECEIVE_TIMEOUT_MS":
			config.ReceiveTimeoutMs, _ = strconv.Atoi(value)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	return config, nil
}

// parseFilters parses comma-separated CAN IDs
func parseFilters(filterStr string) []uint32 {
	if filterStr == "" {
		return nil
	}

	parts := strings.Split(filterStr, ",")
	filters := make([]uint32, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		var id uint32
		_, err := fmt.Sscanf(part, "%x", &id)
		if err != nil {
			continue
		}

		filters = append(filters, id)
	}

	return filters
}

// parseList parses comma-separated values
func parseList(listStr string) []string {
	if listStr == "" {
		return nil
	}

	parts := strings.Split(listStr, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseBool parses typical truthy .env values
func parseBool(value string) bool {
	switch strings.ToLower(value) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
