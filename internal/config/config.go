package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"uhf-telemetry/pkg/protocol"
)

type Config struct {
	Serial  SerialConfig  `yaml:"serial"`
	Reader  ReaderConfig  `yaml:"reader"`
	Publish PublishConfig `yaml:"publish"`
	Redis   RedisConfig   `yaml:"redis"`
	Log     LogConfig     `yaml:"log"`
	Monitor MonitorConfig `yaml:"monitor"`
}

type SerialConfig struct {
	Port        string        `yaml:"port"`
	Driver      string        `yaml:"driver"` // bugst | tarm | sim
	PollTimeout time.Duration `yaml:"poll_timeout"`
}

type ReaderConfig struct {
	BaudRate        int           `yaml:"baud_rate"`
	DefaultBaudRate int           `yaml:"default_baud_rate"`
	TrustBaudSwitch bool          `yaml:"trust_baud_switch"`
	StopSettle      time.Duration `yaml:"stop_settle"`
	BaudSettle      time.Duration `yaml:"baud_settle"`
	CommandTimeout  time.Duration `yaml:"command_timeout"`

	Region    string `yaml:"region"`
	ReadPower int    `yaml:"read_power"` // 单位 0.01 dBm

	SensorBank       uint8         `yaml:"sensor_bank"`
	SensorAddress    uint32        `yaml:"sensor_address"`
	SensorLength     int           `yaml:"sensor_length"`
	SensorCodeOffset int           `yaml:"sensor_code_offset"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	// PollPause 两次采集之间的间隔，真实模块的读超时本身就起节流作用
	PollPause time.Duration `yaml:"poll_pause"`

	ReadIdentity      bool          `yaml:"read_identity"`
	IdentityLength    int           `yaml:"identity_length"`
	IdentityTimeout   time.Duration `yaml:"identity_timeout"`
	IdentitySeparator string        `yaml:"identity_separator"`
}

type PublishConfig struct {
	Interval time.Duration `yaml:"interval"`
	Paths    PathsConfig   `yaml:"paths"`
}

type PathsConfig struct {
	SensorCode string `yaml:"sensor_code"`
	RSSI       string `yaml:"rssi"`
	Identity   string `yaml:"identity"`
}

type RedisConfig struct {
	Addr          string        `yaml:"addr"`
	Password      string        `yaml:"password"`
	DB            int           `yaml:"db"`
	PoolSize      int           `yaml:"pool_size"`
	Channel       string        `yaml:"channel"`
	HistoryLength int64         `yaml:"history_length"`
	WaitInterval  time.Duration `yaml:"wait_interval"`
}

type LogConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type MonitorConfig struct {
	Enabled     bool `yaml:"enabled"`
	MetricsPort int  `yaml:"metrics_port"`
}

// LoadConfig 加载配置文件，未出现的字段沿用默认值
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	config := GetDefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("配置校验失败: %w", err)
	}

	return config, nil
}

// GetDefaultConfig 返回默认配置
func GetDefaultConfig() *Config {
	return &Config{
		Serial: SerialConfig{
			Port:        "/dev/ttyACM0",
			Driver:      "bugst",
			PollTimeout: 10 * time.Millisecond,
		},
		Reader: ReaderConfig{
			BaudRate:        115200,
			DefaultBaudRate: protocol.DefaultBaudRate,
			TrustBaudSwitch: true,
			StopSettle:      1500 * time.Millisecond,
			BaudSettle:      250 * time.Millisecond,
			CommandTimeout:  protocol.CommandTimeoutMs * time.Millisecond,

			Region:    "europe",
			ReadPower: 2600,

			SensorBank:       protocol.BankReserved,
			SensorAddress:    0x0B,
			SensorLength:     2,
			SensorCodeOffset: 1,
			ReadTimeout:      protocol.CommandTimeoutMs * time.Millisecond,

			ReadIdentity:      false,
			IdentityLength:    12,
			IdentityTimeout:   500 * time.Millisecond,
			IdentitySeparator: " ",
		},
		Publish: PublishConfig{
			Interval: 1000 * time.Millisecond,
			Paths: PathsConfig{
				SensorCode: "/RFID/Sensor Code",
				RSSI:       "/RFID/ Tag RSSI",
				Identity:   "/RFID/Tag EPC",
			},
		},
		Redis: RedisConfig{
			Addr:          "localhost:6379",
			Password:      "",
			DB:            0,
			PoolSize:      4,
			Channel:       "rfid_telemetry",
			HistoryLength: 1000,
			WaitInterval:  300 * time.Millisecond,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Monitor: MonitorConfig{
			Enabled:     true,
			MetricsPort: 9090,
		},
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	var errs []error

	switch c.Serial.Driver {
	case "bugst", "tarm", "sim":
	default:
		errs = append(errs, fmt.Errorf("未知串口驱动: %q", c.Serial.Driver))
	}
	if c.Serial.Driver != "sim" && c.Serial.Port == "" {
		errs = append(errs, errors.New("串口名称为空"))
	}

	r := c.Reader
	if r.BaudRate <= 0 || r.DefaultBaudRate <= 0 {
		errs = append(errs, fmt.Errorf("波特率无效: %d/%d", r.BaudRate, r.DefaultBaudRate))
	}
	if r.CommandTimeout <= 0 {
		errs = append(errs, errors.New("command_timeout 必须大于 0"))
	}
	if _, err := protocol.ParseRegion(r.Region); err != nil {
		errs = append(errs, err)
	}
	if r.ReadPower < 0 || r.ReadPower > protocol.MaxReadPower {
		errs = append(errs, fmt.Errorf("读功率超出范围 0-%d: %d", protocol.MaxReadPower, r.ReadPower))
	}
	if r.SensorLength <= 0 || r.SensorCodeOffset < 0 || r.SensorCodeOffset >= r.SensorLength {
		errs = append(errs, fmt.Errorf("传感字段设置无效: length=%d offset=%d", r.SensorLength, r.SensorCodeOffset))
	}
	if r.PollPause < 0 {
		errs = append(errs, fmt.Errorf("poll_pause 不能为负: %v", r.PollPause))
	}
	if r.ReadIdentity && r.IdentityLength <= 0 {
		errs = append(errs, fmt.Errorf("identity_length 无效: %d", r.IdentityLength))
	}

	p := c.Publish
	if p.Interval <= 0 {
		errs = append(errs, errors.New("publish.interval 必须大于 0"))
	}
	if p.Paths.SensorCode == "" || p.Paths.RSSI == "" {
		errs = append(errs, errors.New("发布路径为空"))
	}
	if r.ReadIdentity && p.Paths.Identity == "" {
		errs = append(errs, errors.New("已启用标签识别但 identity 路径为空"))
	}

	return errors.Join(errs...)
}

// RegionCode 返回已校验的区域代码
func (r ReaderConfig) RegionCode() protocol.Region {
	region, err := protocol.ParseRegion(r.Region)
	if err != nil {
		return protocol.RegionEurope
	}
	return region
}
