package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"uhf-telemetry/internal/acquisition"
	"uhf-telemetry/internal/bringup"
	"uhf-telemetry/internal/config"
	"uhf-telemetry/internal/monitor"
	"uhf-telemetry/internal/nano"
	"uhf-telemetry/internal/nanosim"
	"uhf-telemetry/internal/publish"
	"uhf-telemetry/internal/runner"
	"uhf-telemetry/internal/storage"
	"uhf-telemetry/internal/transport"
	"uhf-telemetry/pkg/protocol"
)

var (
	Version   = "1.0.0"
	BuildTime = "unknown"
)

func main() {
	// 命令行参数
	configFile := flag.String("config", "configs/config.yaml", "配置文件路径")
	showVersion := flag.Bool("version", false, "显示版本信息")
	flag.Parse()

	// 显示版本
	if *showVersion {
		fmt.Printf("UHF Telemetry Reader v%s (Build: %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	// 加载配置
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		cfg = config.GetDefaultConfig()
		fmt.Println("使用默认配置")
	}

	// 初始化日志
	log := setupLogger(cfg.Log)
	log.Infof("UHF Telemetry Reader v%s 启动中...", Version)
	log.Infof("配置文件: %s", *configFile)

	ctx := context.Background()

	// 启动监控，模块就绪前 /health 返回 503
	mon := monitor.NewMonitor(log)
	if cfg.Monitor.Enabled {
		mon.StartMetricsServer(cfg.Monitor.MetricsPort)
		mon.StartRuntimeMonitor(10*time.Second, nil)
	}

	// 等待远端存储可用
	sink := storage.NewRedisSink(cfg.Redis, log)
	if err := sink.WaitReady(ctx, cfg.Redis.WaitInterval); err != nil {
		log.Fatalf("连接Redis失败: %v", err)
	}

	link, err := newLink(cfg, log)
	if err != nil {
		log.Fatalf("创建串口链路失败: %v", err)
	}

	reader := nano.NewReader(link, nano.Options{CommandTimeout: cfg.Reader.CommandTimeout}, log)

	ctrl := bringup.NewController(reader, link, bringup.Options{
		TargetBaud:      cfg.Reader.BaudRate,
		DefaultBaud:     cfg.Reader.DefaultBaudRate,
		StopSettle:      cfg.Reader.StopSettle,
		BaudSettle:      cfg.Reader.BaudSettle,
		TrustBaudSwitch: cfg.Reader.TrustBaudSwitch,
	}, log)

	result, err := ctrl.BringUp(ctx)
	if err != nil {
		// 模块无应答时不进入采集循环
		log.Fatalf("模块启动失败, 请检查接线: %v", err)
	}

	region := cfg.Reader.RegionCode()
	if s := reader.SetRegion(region); s != protocol.AllGood {
		log.Warnf("设置区域失败: %s", s)
	}
	if s := reader.SetReadPower(cfg.Reader.ReadPower); s != protocol.AllGood {
		log.Warnf("设置读功率失败: %s", s)
	}

	mon.Status().SetDevice(monitor.Device{
		Firmware:    result.Version.String(),
		BringUpPath: result.Path.String(),
		Baud:        link.Baud(),
		Region:      region.String(),
		ReadPower:   cfg.Reader.ReadPower,
	})

	cycle := acquisition.NewCycle(reader, acquisition.Options{
		Bank:              cfg.Reader.SensorBank,
		Address:           cfg.Reader.SensorAddress,
		Length:            cfg.Reader.SensorLength,
		SensorCodeOffset:  cfg.Reader.SensorCodeOffset,
		ReadTimeout:       cfg.Reader.ReadTimeout,
		ReadIdentity:      cfg.Reader.ReadIdentity,
		IdentityLength:    cfg.Reader.IdentityLength,
		IdentityTimeout:   cfg.Reader.IdentityTimeout,
		IdentitySeparator: cfg.Reader.IdentitySeparator,
	}, log)

	paths := cfg.Publish.Paths
	gate := publish.NewGate(sink, publish.Options{
		Interval: cfg.Publish.Interval,
		Paths: publish.Paths{
			SensorCode: paths.SensorCode,
			RSSI:       paths.RSSI,
			Identity:   paths.Identity,
		},
		IncludeIdentity: cfg.Reader.ReadIdentity,
	}, log)

	pause := cfg.Reader.PollPause
	if cfg.Serial.Driver == "sim" && pause == 0 {
		pause = 50 * time.Millisecond
	}

	r := runner.NewRunner(cycle, gate, mon.Status(), runner.Options{Pause: pause}, log)
	r.OnShutdown(sink)
	r.OnShutdown(link)

	if err := r.Start(ctx); err != nil {
		log.Fatalf("采集循环异常退出: %v", err)
	}
}

// newLink 按配置创建串口链路，sim 驱动使用内存中的模拟模块
func newLink(cfg *config.Config, log *logrus.Logger) (transport.Link, error) {
	if cfg.Serial.Driver == "sim" {
		log.Warn("使用模拟模块, 未连接真实阅读器")
		module := nanosim.New(cfg.Reader.DefaultBaudRate, log)
		module.Tag = nanosim.NewTag([]byte{0xE2, 0x00, 0x68, 0x06, 0x00, 0x00, 0xC3, 0x11, 0x22, 0x33, 0x44, 0x55}, 0x0017)
		return module, nil
	}
	link, err := transport.NewSerialLink(cfg.Serial.Port, cfg.Serial.Driver, cfg.Serial.PollTimeout, log)
	if err != nil {
		return nil, err
	}
	return link, nil
}

func setupLogger(cfg config.LogConfig) *logrus.Logger {
	log := logrus.New()

	// 设置日志级别
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	// 设置日志格式
	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	// 设置输出
	if cfg.Output == "file" && cfg.FilePath != "" {
		file, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err == nil {
			log.SetOutput(file)
		} else {
			log.Warnf("打开日志文件失败: %v, 使用标准输出", err)
		}
	}

	return log
}
