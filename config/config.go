// Package config 文件化配置，覆盖日志、存储、异步工作池与恢复任务
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"tcc/log"
	"tcc/recovery"
	"tcc/txmanager"
)

// 存储类型
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreMongo  = "mongo"
)

type Config struct {
	Log      log.Config     `yaml:"log"`
	Store    StoreConfig    `yaml:"store"`
	Executor ExecutorConfig `yaml:"executor"`
	Recovery RecoveryConfig `yaml:"recovery"`
}

type StoreConfig struct {
	// 存储类型: memory / sqlite / mongo
	Driver string `yaml:"driver"`
	// sqlite 文件路径或 mongo 连接串
	DSN string `yaml:"dsn"`
	// mongo 专用：库名与集合名
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
	// 是否包一层读穿透缓存
	Cached bool `yaml:"cached"`
}

type ExecutorConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queueSize"`
}

type RecoveryConfig struct {
	MonitorTick     Duration `yaml:"monitorTick"`
	StaleThreshold  Duration `yaml:"staleThreshold"`
	MaxRetriedCount int      `yaml:"maxRetriedCount"`
}

// Duration 支持 "10s" / "2m" 写法的时长配置
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Default 返回各组件兜底后的默认配置
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Driver: StoreMemory,
		},
		Executor: ExecutorConfig{
			Workers:   4,
			QueueSize: 64,
		},
		Recovery: RecoveryConfig{
			MonitorTick:     Duration(10 * time.Second),
			StaleThreshold:  Duration(2 * time.Minute),
			MaxRetriedCount: 30,
		},
	}
}

// Load 读取 YAML 配置文件，未填写的字段保留默认值
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	conf := Default()
	if err := yaml.Unmarshal(content, conf); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return conf, nil
}

// ManagerOptions 转换为事务管理器选项
func (c *Config) ManagerOptions() []txmanager.Option {
	return []txmanager.Option{
		txmanager.WithWorkers(c.Executor.Workers),
		txmanager.WithQueueSize(c.Executor.QueueSize),
	}
}

// RecoveryOptions 转换为恢复任务选项
func (c *Config) RecoveryOptions() []recovery.Option {
	return []recovery.Option{
		recovery.WithMonitorTick(time.Duration(c.Recovery.MonitorTick)),
		recovery.WithStaleThreshold(time.Duration(c.Recovery.StaleThreshold)),
		recovery.WithMaxRetriedCount(c.Recovery.MaxRetriedCount),
	}
}
