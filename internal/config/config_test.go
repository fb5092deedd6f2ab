package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Transport != "virtual" {
		t.Errorf("Transport = %q, want virtual", cfg.Transport)
	}
	if cfg.CANInterface != "vcan0" {
		t.Errorf("CANInterface = %q, want vcan0", cfg.CANInterface)
	}
	if cfg.DBCParser != "grammar" {
		t.Errorf("DBCParser = %q, want grammar", cfg.DBCParser)
	}
	if cfg.BatchSize != 1000 {
		t.Errorf("BatchSize = %d, want 1000", cfg.BatchSize)
	}
	if cfg.ClickHouseEnable || cfg.InfluxDBEnable {
		t.Error("database writers should default to disabled")
	}
}

func TestLoadConfigParsesFile(t *testing.T) {
	content := `# comment line
TRANSPORT=socketcan
CAN_INTERFACE=can1
CAN_FILTERS=100,1A0,7FF
GENERATE_TRAFFIC=false
TRAFFIC_RATE=25.5
DBC_FILES=config/engine.dbc, config/body.dbc
DBC_PARSER=regex
SCENARIO_DIR="scenarios"
CLICKHOUSE_ENABLE=true
CLICKHOUSE_HOST=ch.internal
CLICKHOUSE_PORT=19000
INFLUXDB_ENABLE=yes
INFLUXDB_TOKEN='secret'
BATCH_SIZE=50

MALFORMED LINE WITHOUT EQUALS
`
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Transport != "socketcan" || cfg.CANInterface != "can1" {
		t.Errorf("transport settings: %q %q", cfg.Transport, cfg.CANInterface)
	}
	if len(cfg.CANFilters) != 3 || cfg.CANFilters[0] != 0x100 || cfg.CANFilters[1] != 0x1A0 {
		t.Errorf("CANFilters = %v", cfg.CANFilters)
	}
	if cfg.GenerateTraffic {
		t.Error("GENERATE_TRAFFIC=false not honored")
	}
	if cfg.TrafficRate != 25.5 {
		t.Errorf("TrafficRate = %g", cfg.TrafficRate)
	}
	if len(cfg.DBCFiles) != 2 || cfg.DBCFiles[1] != "config/body.dbc" {
		t.Errorf("DBCFiles = %v", cfg.DBCFiles)
	}
	if cfg.DBCParser != "regex" {
		t.Errorf("DBCParser = %q", cfg.DBCParser)
	}
	if cfg.ScenarioDir != "scenarios" {
		t.Errorf("quotes not stripped: %q", cfg.ScenarioDir)
	}
	if !cfg.ClickHouseEnable || cfg.ClickHouseHost != "ch.internal" || cfg.ClickHousePort != 19000 {
		t.Errorf("clickhouse settings: %v %q %d", cfg.ClickHouseEnable, cfg.ClickHouseHost, cfg.ClickHousePort)
	}
	if !cfg.InfluxDBEnable || cfg.InfluxDBToken != "secret" {
		t.Errorf("influxdb settings: %v %q", cfg.InfluxDBEnable, cfg.InfluxDBToken)
	}
	if cfg.BatchSize != 50 {
		t.Errorf("BatchSize = %d", cfg.BatchSize)
	}
}
