package config

import (
	"encoding/json"
	"fmt"
	"os"

	"degen-dashboard-go/internal/models"
)

// 缺省值与内置兜底地址。兜底地址只在环境变量和主机名推断都失效时使用。
const (
	defaultFallbackBackendURL = "https://api.degendex.trade"
	defaultListenAddr         = ":8080"
	defaultDBPath             = "dashboard_data"
	defaultPollIntervalSec    = 5
	defaultProbeTimeoutSec    = 3
	defaultFetchTimeoutSec    = 10
	defaultFailureThreshold   = 3
	defaultControlSettleMs    = 1500
	defaultSymbol             = "SOLUSDT"
	defaultTimeframe          = "1h"
)

// LoadConfig 从指定路径加载JSON配置文件并解析到Config结构体中
func LoadConfig(path string) (*models.Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	config := &models.Config{}
	err = decoder.Decode(config)
	if err != nil {
		return nil, err
	}

	applyDefaults(config)
	if err := Validate(config); err != nil {
		return nil, err
	}

	return config, nil
}

// applyDefaults 为未设置的字段填充缺省值
func applyDefaults(cfg *models.Config) {
	if cfg.FallbackBackendURL == "" {
		cfg.FallbackBackendURL = defaultFallbackBackendURL
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultListenAddr
	}
	if cfg.DBPath == "" {
		cfg.DBPath = defaultDBPath
	}
	if cfg.PollIntervalSec == 0 {
		cfg.PollIntervalSec = defaultPollIntervalSec
	}
	if cfg.ProbeTimeoutSec == 0 {
		cfg.ProbeTimeoutSec = defaultProbeTimeoutSec
	}
	if cfg.FetchTimeoutSec == 0 {
		cfg.FetchTimeoutSec = defaultFetchTimeoutSec
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = defaultFailureThreshold
	}
	if cfg.ControlSettleMs == 0 {
		cfg.ControlSettleMs = defaultControlSettleMs
	}
	if cfg.DefaultSymbol == "" {
		cfg.DefaultSymbol = defaultSymbol
	}
	if cfg.DefaultTimeframe == "" {
		cfg.DefaultTimeframe = defaultTimeframe
	}
}

// Validate 检查配置的合法性，返回第一个发现的问题
func Validate(cfg *models.Config) error {
	if cfg.PollIntervalSec < 0 {
		return fmt.Errorf("poll_interval_sec 不能为负数: %d", cfg.PollIntervalSec)
	}
	if cfg.ProbeTimeoutSec < 0 {
		return fmt.Errorf("probe_timeout_sec 不能为负数: %d", cfg.ProbeTimeoutSec)
	}
	if cfg.FetchTimeoutSec < 0 {
		return fmt.Errorf("fetch_timeout_sec 不能为负数: %d", cfg.FetchTimeoutSec)
	}
	if cfg.FailureThreshold < 1 {
		return fmt.Errorf("failure_threshold 必须大于等于 1: %d", cfg.FailureThreshold)
	}
	if cfg.ControlSettleMs < 0 {
		return fmt.Errorf("control_settle_ms 不能为负数: %d", cfg.ControlSettleMs)
	}
	return nil
}
