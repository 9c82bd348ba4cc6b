package config

import (
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	mu sync.Mutex `yaml:"-"`

	DeviceID     string `yaml:"device_id"`
	DatabasePath string `yaml:"database_path"`
	BarcodeRegex string `yaml:"barcode_regex"`

	// PersistDebounce is the quiet period before a snapshot write; rapid
	// mutations within the window coalesce into one durable write.
	PersistDebounce time.Duration `yaml:"persist_debounce"`

	// StorageQuota is the advisory storage budget in bytes reported by
	// stats. Zero means unknown.
	StorageQuota int64 `yaml:"storage_quota"`

	Web       WebConfig       `yaml:"web"`
	API       APIConfig       `yaml:"api"`
	Checklist ChecklistConfig `yaml:"checklist"`
	Messaging MessagingConfig `yaml:"messaging"`
}

// WebConfig defines the web server settings.
type WebConfig struct {
	Host          string        `yaml:"host"`
	Port          int           `yaml:"port"`
	SessionSecret string        `yaml:"session_secret"`
	PromptTimeout time.Duration `yaml:"prompt_timeout"`
}

// APIConfig defines the upstream collaborator endpoints and deadlines.
type APIConfig struct {
	GeniusURL     string `yaml:"genius_url"`
	SharePointURL string `yaml:"sharepoint_url"`
	LogURL        string `yaml:"log_url"`

	LookupTimeout time.Duration `yaml:"lookup_timeout"`
	CheckTimeout  time.Duration `yaml:"check_timeout"`
	UploadTimeout time.Duration `yaml:"upload_timeout"`
	LogTimeout    time.Duration `yaml:"log_timeout"`

	LookupRetries int           `yaml:"lookup_retries"`
	RetryBackoff  time.Duration `yaml:"retry_backoff"`
}

// ChecklistConfig maps item families to QC template files.
type ChecklistConfig struct {
	TemplateDir string `yaml:"template_dir"`
	// FamilyMap lists template names per family code; the special entry
	// "all" expands to AllTemplates.
	FamilyMap    map[string][]string `yaml:"family_map"`
	AllTemplates []string            `yaml:"all_templates"`
}

// MessagingConfig defines the plant broker backend.
type MessagingConfig struct {
	Enabled           bool          `yaml:"enabled"`
	Backend           string        `yaml:"backend"` // "mqtt" or "kafka"
	MQTT              MQTTConfig    `yaml:"mqtt"`
	Kafka             KafkaConfig   `yaml:"kafka"`
	TelemetryTopic    string        `yaml:"telemetry_topic"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
}

// MQTTConfig defines MQTT broker settings.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
}

// KafkaConfig defines Kafka broker settings.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	GroupID string   `yaml:"group_id"`
}

// Defaults returns a Config with sane defaults.
func Defaults() *Config {
	return &Config{
		DeviceID:        "qc-kiosk-1",
		DatabasePath:    "qckiosk.db",
		BarcodeRegex:    `^\d{8}$`,
		PersistDebounce: 300 * time.Millisecond,
		Web: WebConfig{
			Host:          "0.0.0.0",
			Port:          8090,
			PromptTimeout: 60 * time.Second,
		},
		API: APIConfig{
			GeniusURL:     "http://localhost:8080/api/genius/sales-order/",
			SharePointURL: "http://localhost:8080/api/sharepoint",
			LogURL:        "http://localhost:8080/api/qc-logs",
			LookupTimeout: 8 * time.Second,
			CheckTimeout:  15 * time.Second,
			UploadTimeout: 15 * time.Second,
			LogTimeout:    12 * time.Second,
			LookupRetries: 3,
			RetryBackoff:  500 * time.Millisecond,
		},
		Checklist: ChecklistConfig{
			TemplateDir: "qc_lib",
			FamilyMap: map[string][]string{
				"CUST_J": {"all"},
				"STD_J":  {"all"},
				"STD_K":  {"all"},
				"SP":     {"foam"},
				"PUR":    {"electrical", "blower", "pneumatics", "testing"},
				"COMP":   {"structure"},
				"FEES":   {},
			},
			AllTemplates: []string{
				"structure", "foam", "fit_finish", "electrical",
				"blower", "pneumatics", "testing", "pre_ship",
			},
		},
		Messaging: MessagingConfig{
			Backend:           "mqtt",
			TelemetryTopic:    "qc/kiosk/telemetry",
			HeartbeatInterval: 60 * time.Second,
			MQTT: MQTTConfig{
				Broker: "localhost",
				Port:   1883,
			},
		},
	}
}

// Load reads a YAML config file. If the file doesn't exist, defaults are used.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to a YAML file.
func (c *Config) Save(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Lock acquires the config mutex for multi-step mutations.
func (c *Config) Lock() { c.mu.Lock() }

// Unlock releases the config mutex.
func (c *Config) Unlock() { c.mu.Unlock() }
