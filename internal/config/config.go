package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel    string            `json:"log_level" yaml:"log_level"`
	Ingest      IngestConfig      `json:"ingest" yaml:"ingest"`
	Classifier  ClassifierConfig  `json:"classifier" yaml:"classifier"`
	Calibration CalibrationConfig `json:"calibration" yaml:"calibration"`
	Alerts      AlertsConfig      `json:"alerts" yaml:"alerts"`
	Delivery    DeliveryConfig    `json:"delivery" yaml:"delivery"`
	API         APIConfig         `json:"api" yaml:"api"`
	Storage     StorageConfig     `json:"storage" yaml:"storage"`
}

type IngestConfig struct {
	ChannelBuffer int             `json:"channel_buffer" yaml:"channel_buffer"`
	Kafka         KafkaConfig     `json:"kafka" yaml:"kafka"`
	NATS          NATSConfig      `json:"nats" yaml:"nats"`
	REST          RESTConfig      `json:"rest" yaml:"rest"`
	Syslog        SyslogConfig    `json:"syslog" yaml:"syslog"`
	TCPStream     TCPStreamConfig `json:"tcp_stream" yaml:"tcp_stream"`
	FileTail      FileTailConfig  `json:"file_tail" yaml:"file_tail"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`
}

type NATSConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	URL     string `json:"url" yaml:"url"`
	Subject string `json:"subject" yaml:"subject"`
	Queue   string `json:"queue" yaml:"queue"`
}

type RESTConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type SyslogConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	UDPAddr string `json:"udp_addr" yaml:"udp_addr"`
	TCPAddr string `json:"tcp_addr" yaml:"tcp_addr"`
}

type TCPStreamConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type FileTailConfig struct {
	Enabled    bool     `json:"enabled" yaml:"enabled"`
	StartAtEnd bool     `json:"start_at_end" yaml:"start_at_end"`
	Files      []string `json:"files" yaml:"files"`
}

type ClassifierConfig struct {
	Endpoint       string        `json:"endpoint" yaml:"endpoint"`
	Timeout        time.Duration `json:"timeout" yaml:"timeout"`
	WarmupInterval time.Duration `json:"warmup_interval" yaml:"warmup_interval"`
}

type CalibrationConfig struct {
	WindowSize       int           `json:"window_size" yaml:"window_size"`
	Interval         time.Duration `json:"interval" yaml:"interval"`
	InitialThreshold float64       `json:"initial_threshold" yaml:"initial_threshold"`
	StatePath        string        `json:"state_path" yaml:"state_path"`
}

type AlertsConfig struct {
	Classes    []int `json:"classes" yaml:"classes"`
	StoreLimit int   `json:"store_limit" yaml:"store_limit"`
}

type DeliveryConfig struct {
	Enabled    bool                `json:"enabled" yaml:"enabled"`
	URL        string              `json:"url" yaml:"url"`
	APIKey     string              `json:"api_key" yaml:"api_key"`
	MaxRetries int                 `json:"max_retries" yaml:"max_retries"`
	RetryDelay time.Duration       `json:"retry_delay" yaml:"retry_delay"`
	Timeout    time.Duration       `json:"timeout" yaml:"timeout"`
	Kafka      DeliveryKafkaConfig `json:"kafka" yaml:"kafka"`
}

type DeliveryKafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
	APIKey  string `json:"api_key" yaml:"api_key"`
}

type StorageConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver" yaml:"driver"`
	DSN     string `json:"dsn" yaml:"dsn"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Ingest: IngestConfig{
			ChannelBuffer: 10000,
			Kafka: KafkaConfig{
				Enabled: true,
				Brokers: []string{"localhost:9092"},
				Topic:   "log_topic",
				GroupID: "logwarden",
			},
			NATS:      NATSConfig{Enabled: false, URL: "nats://127.0.0.1:4222", Subject: "logs.raw"},
			REST:      RESTConfig{Enabled: false, Addr: ":8080"},
			Syslog:    SyslogConfig{Enabled: false, UDPAddr: ":5514", TCPAddr: ":5514"},
			TCPStream: TCPStreamConfig{Enabled: false, Addr: ":9000"},
			FileTail:  FileTailConfig{Enabled: false, StartAtEnd: true},
		},
		Classifier: ClassifierConfig{
			Endpoint:       "http://127.0.0.1:8501",
			Timeout:        10 * time.Second,
			WarmupInterval: 3 * time.Second,
		},
		Calibration: CalibrationConfig{
			WindowSize:       1000,
			Interval:         300 * time.Second,
			InitialThreshold: 0.5,
		},
		Alerts: AlertsConfig{Classes: []int{1, 2}, StoreLimit: 1000},
		Delivery: DeliveryConfig{
			Enabled:    false,
			MaxRetries: 4,
			RetryDelay: 2 * time.Second,
			Timeout:    5 * time.Second,
			Kafka:      DeliveryKafkaConfig{Enabled: false, Topic: "anomalies"},
		},
		API:     APIConfig{Enabled: true, Addr: ":8081"},
		Storage: StorageConfig{Enabled: true, Driver: "sqlite", DSN: "file:logwarden.db?_pragma=busy_timeout(5000)"},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	if cfg.Ingest.ChannelBuffer <= 0 {
		cfg.Ingest.ChannelBuffer = 10000
	}
	if cfg.Classifier.Timeout <= 0 {
		cfg.Classifier.Timeout = 10 * time.Second
	}
	if cfg.Classifier.WarmupInterval <= 0 {
		cfg.Classifier.WarmupInterval = 3 * time.Second
	}
	if cfg.Calibration.WindowSize <= 0 {
		cfg.Calibration.WindowSize = 1000
	}
	if cfg.Calibration.Interval <= 0 {
		cfg.Calibration.Interval = 300 * time.Second
	}
	if cfg.Alerts.Classes == nil {
		cfg.Alerts.Classes = []int{1, 2}
	}
	if cfg.Alerts.StoreLimit <= 0 {
		cfg.Alerts.StoreLimit = 1000
	}
	if cfg.Delivery.MaxRetries < 0 {
		cfg.Delivery.MaxRetries = 4
	}
	if cfg.Delivery.RetryDelay <= 0 {
		cfg.Delivery.RetryDelay = 2 * time.Second
	}
	if cfg.Delivery.Timeout <= 0 {
		cfg.Delivery.Timeout = 5 * time.Second
	}
	if cfg.Delivery.Kafka.Topic == "" {
		cfg.Delivery.Kafka.Topic = "anomalies"
	}
}

func Validate(cfg *Config) error {
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	if cfg.Ingest.Kafka.Enabled {
		if len(cfg.Ingest.Kafka.Brokers) == 0 || cfg.Ingest.Kafka.Topic == "" || cfg.Ingest.Kafka.GroupID == "" {
			return errors.New("ingest.kafka requires brokers, topic, group_id")
		}
	}
	if cfg.Ingest.NATS.Enabled {
		if cfg.Ingest.NATS.URL == "" || cfg.Ingest.NATS.Subject == "" {
			return errors.New("ingest.nats requires url and subject")
		}
	}
	if cfg.Ingest.REST.Enabled && cfg.Ingest.REST.Addr == "" {
		return errors.New("ingest.rest.addr required when ingest.rest.enabled is true")
	}
	if cfg.Ingest.Syslog.Enabled && cfg.Ingest.Syslog.UDPAddr == "" && cfg.Ingest.Syslog.TCPAddr == "" {
		return errors.New("ingest.syslog.udp_addr or tcp_addr required when ingest.syslog.enabled is true")
	}
	if cfg.Ingest.TCPStream.Enabled && cfg.Ingest.TCPStream.Addr == "" {
		return errors.New("ingest.tcp_stream.addr required when ingest.tcp_stream.enabled is true")
	}
	if cfg.Ingest.FileTail.Enabled && len(cfg.Ingest.FileTail.Files) == 0 {
		return errors.New("ingest.file_tail.files required when ingest.file_tail.enabled is true")
	}
	if cfg.Classifier.Endpoint == "" {
		return errors.New("classifier.endpoint is required")
	}
	if cfg.Calibration.InitialThreshold < 0 || cfg.Calibration.InitialThreshold > 1 {
		return fmt.Errorf("calibration.initial_threshold must be within [0,1], got %v", cfg.Calibration.InitialThreshold)
	}
	for _, id := range cfg.Alerts.Classes {
		if id < 0 || id > 6 {
			return fmt.Errorf("alerts.classes contains invalid class id: %d", id)
		}
	}
	if cfg.Delivery.Enabled && cfg.Delivery.URL == "" {
		return errors.New("delivery.url required when delivery.enabled is true")
	}
	if cfg.Delivery.Kafka.Enabled && len(cfg.Delivery.Kafka.Brokers) == 0 {
		return errors.New("delivery.kafka.brokers required when delivery.kafka.enabled is true")
	}
	if cfg.Storage.Enabled {
		if cfg.Storage.Driver != "sqlite" && cfg.Storage.Driver != "postgres" {
			return fmt.Errorf("storage.driver must be sqlite or postgres, got %q", cfg.Storage.Driver)
		}
	}
	return nil
}

type Manager struct {
	path    string
	cfg     atomic.Value
	modTime time.Time
}

func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	info, err := os.Stat(path)
	if err == nil {
		m.modTime = info.ModTime()
	}
	return m, nil
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return cfg, nil
}

func (m *Manager) Update(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if err := Save(m.path, cfg); err != nil {
		return err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return nil
}

func (m *Manager) NeedsReload() (bool, error) {
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	return info.ModTime().After(m.modTime), nil
}

func (m *Manager) Watch(interval time.Duration, onReload func(*Config), onError func(error), stop <-chan struct{}) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			needs, err := m.NeedsReload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if !needs {
				continue
			}
			cfg, err := m.Reload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onReload != nil {
				onReload(cfg)
			}
		case <-stop:
			return
		}
	}
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
