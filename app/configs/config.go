package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

type Config struct {
	Server  ServerConfig  `json:"server"`
	Oracle  OracleConfig  `json:"oracle"`
	Planner PlannerConfig `json:"planner"`
	Settle  SettleConfig  `json:"settle"`
}

type ServerConfig struct {
	Port    int    `json:"port"`
	DataDir string `json:"data_dir"`
	LogDir  string `json:"log_dir"`
}

type OracleConfig struct {
	Model       string  `json:"model"`
	BaseURL     string  `json:"base_url,omitempty"`
	Temperature float64 `json:"temperature"`
	TimeoutSec  int     `json:"timeout_sec"`
}

type PlannerConfig struct {
	HistoryWindowDays int `json:"history_window_days"`
}

type SettleConfig struct {
	NightlyEnabled bool `json:"nightly_enabled"`
	NightlyHour    int  `json:"nightly_hour"`
}

type Manager struct {
	path string
	mu   sync.RWMutex
	cfg  Config
}

func DefaultPath() string {
	return filepath.Join("config", "config.json")
}

func NewManager(path string) (*Manager, error) {
	cfg := defaultConfig()
	mgr := &Manager{
		path: path,
		cfg:  cfg,
	}
	if err := mgr.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	}
	if err := mgr.save(); err != nil {
		return nil, err
	}
	return mgr, nil
}

func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *Manager) Update(apply func(*Config)) (Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	apply(&m.cfg)
	applyDefaults(&m.cfg)
	if err := m.saveLocked(); err != nil {
		return Config{}, err
	}
	return m.cfg, nil
}

func (m *Manager) load() error {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return err
	}
	var fileCfg Config
	if err := json.Unmarshal(data, &fileCfg); err != nil {
		return err
	}
	m.cfg = fileCfg
	applyDefaults(&m.cfg)
	return nil
}

func (m *Manager) save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked()
}

func (m *Manager) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m.cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.path, data, 0644)
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:    8080,
			DataDir: filepath.Join("output", "db"),
			LogDir:  filepath.Join("output", "logs"),
		},
		Oracle: OracleConfig{
			Model:       "gpt-4o-mini",
			Temperature: 0.4,
			TimeoutSec:  60,
		},
		Planner: PlannerConfig{
			HistoryWindowDays: 7,
		},
		Settle: SettleConfig{
			NightlyEnabled: false,
			NightlyHour:    23,
		},
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		cfg.Server.Port = 8080
	}
	if strings.TrimSpace(cfg.Server.DataDir) == "" {
		cfg.Server.DataDir = filepath.Join("output", "db")
	}
	if strings.TrimSpace(cfg.Server.LogDir) == "" {
		cfg.Server.LogDir = filepath.Join("output", "logs")
	}
	if strings.TrimSpace(cfg.Oracle.Model) == "" {
		cfg.Oracle.Model = "gpt-4o-mini"
	}
	if cfg.Oracle.Temperature <= 0 || cfg.Oracle.Temperature > 2 {
		cfg.Oracle.Temperature = 0.4
	}
	if cfg.Oracle.TimeoutSec <= 0 {
		cfg.Oracle.TimeoutSec = 60
	}
	if cfg.Planner.HistoryWindowDays <= 0 {
		cfg.Planner.HistoryWindowDays = 7
	}
	if cfg.Settle.NightlyHour < 0 || cfg.Settle.NightlyHour > 23 {
		cfg.Settle.NightlyHour = 23
	}
}
