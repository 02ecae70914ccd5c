package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_ValidConfig(t *testing.T) {
	// Create a temporary config file
	content := `
service:
  name: "test-pbsg"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  host: "0.0.0.0"
  port: 8080
companion:
  source: "memory"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Service.Name != "test-pbsg" {
		t.Errorf("Service.Name = %q, want %q", cfg.Service.Name, "test-pbsg")
	}

	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}

	if cfg.MQTT.Broker.Host != "localhost" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "localhost")
	}

	if cfg.Companion.Source != "memory" {
		t.Errorf("Companion.Source = %q, want %q", cfg.Companion.Source, "memory")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
service:
  name: ""
database:
  path: "/tmp/test.db"
api:
  port: 8080
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for empty service.name, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{
			name: "valid config",
			config: &Config{
				Service: ServiceConfig{Name: "pbsg-core"},
				Database: DatabaseConfig{
					Path: "/data/pbsg.db",
				},
				MQTT: MQTTConfig{
					QoS: 1,
				},
				API: APIConfig{
					Port: 8080,
				},
				Companion: CompanionConfig{Source: "mqtt"},
			},
			wantErr: false,
		},
		{
			name: "missing service name",
			config: &Config{
				Service:   ServiceConfig{Name: ""},
				Database:  DatabaseConfig{Path: "/data/pbsg.db"},
				API:       APIConfig{Port: 8080},
				Companion: CompanionConfig{Source: "mqtt"},
			},
			wantErr: true,
		},
		{
			name: "missing database path",
			config: &Config{
				Service:   ServiceConfig{Name: "pbsg-core"},
				Database:  DatabaseConfig{Path: ""},
				API:       APIConfig{Port: 8080},
				Companion: CompanionConfig{Source: "mqtt"},
			},
			wantErr: true,
		},
		{
			name: "invalid QoS",
			config: &Config{
				Service:   ServiceConfig{Name: "pbsg-core"},
				Database:  DatabaseConfig{Path: "/data/pbsg.db"},
				MQTT:      MQTTConfig{QoS: 3},
				API:       APIConfig{Port: 8080},
				Companion: CompanionConfig{Source: "mqtt"},
			},
			wantErr: true,
		},
		{
			name: "invalid port low",
			config: &Config{
				Service:   ServiceConfig{Name: "pbsg-core"},
				Database:  DatabaseConfig{Path: "/data/pbsg.db"},
				MQTT:      MQTTConfig{QoS: 1},
				API:       APIConfig{Port: 0},
				Companion: CompanionConfig{Source: "mqtt"},
			},
			wantErr: true,
		},
		{
			name: "invalid port high",
			config: &Config{
				Service:   ServiceConfig{Name: "pbsg-core"},
				Database:  DatabaseConfig{Path: "/data/pbsg.db"},
				MQTT:      MQTTConfig{QoS: 1},
				API:       APIConfig{Port: 70000},
				Companion: CompanionConfig{Source: "mqtt"},
			},
			wantErr: true,
		},
		{
			name: "invalid companion source",
			config: &Config{
				Service:   ServiceConfig{Name: "pbsg-core"},
				Database:  DatabaseConfig{Path: "/data/pbsg.db"},
				MQTT:      MQTTConfig{QoS: 1},
				API:       APIConfig{Port: 8080},
				Companion: CompanionConfig{Source: "carrier-pigeon"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}

	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}

	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	// Set environment variables
	t.Setenv("PBSG_DATABASE_PATH", "/custom/path.db")
	t.Setenv("PBSG_MQTT_HOST", "mqtt.example.com")
	t.Setenv("PBSG_MQTT_USERNAME", "testuser")
	t.Setenv("PBSG_MQTT_PASSWORD", "testpass")
	t.Setenv("PBSG_API_HOST", "192.168.1.1")
	t.Setenv("PBSG_INFLUXDB_TOKEN", "secret-token")

	applyEnvOverrides(cfg)

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}

	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}

	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}

	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}

	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "192.168.1.1")
	}

	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Service.Name == "" {
		t.Error("defaultConfig should have non-empty Service.Name")
	}

	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}

	if !cfg.MQTT.Enabled {
		t.Error("defaultConfig should enable MQTT")
	}

	if cfg.API.Port != 8080 {
		t.Errorf("defaultConfig API.Port = %d, want 8080", cfg.API.Port)
	}

	if cfg.Companion.Source != "mqtt" {
		t.Errorf("defaultConfig Companion.Source = %q, want mqtt", cfg.Companion.Source)
	}
}
