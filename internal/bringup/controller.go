package bringup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"uhf-telemetry/pkg/protocol"
)

// ErrDeviceUnresponsive 协商后模块仍无健康应答，需人工介入
var ErrDeviceUnresponsive = errors.New("阅读器模块无应答")

// Device 启动过程需要的模块命令
type Device interface {
	GetVersion() (protocol.Version, protocol.Status)
	StopReading() error
	SetBaud(baud int) protocol.Status
	SetTagProtocol(tagProtocol byte) protocol.Status
	SetAntennaPort() protocol.Status
}

// Link 启动过程需要的链路操作
type Link interface {
	Open(baud int) error
	Flush() error
}

// Mode 启动过程中推断出的模块状态
type Mode int

const (
	ModeUnknown Mode = iota
	ModeStreaming
	ModeIdleConfigured
)

func (m Mode) String() string {
	switch m {
	case ModeStreaming:
		return "streaming"
	case ModeIdleConfigured:
		return "idle-configured"
	}
	return "unknown"
}

// Path 首次版本查询后走的分支
type Path int

const (
	PathIdle Path = iota
	PathStopStreaming
	PathBaudSwitch
)

func (p Path) String() string {
	switch p {
	case PathStopStreaming:
		return "stop-streaming"
	case PathBaudSwitch:
		return "baud-switch"
	}
	return "idle"
}

type Options struct {
	TargetBaud  int
	DefaultBaud int
	StopSettle  time.Duration
	BaudSettle  time.Duration
	// TrustBaudSwitch 为 true 时不检查切换波特率命令的应答
	TrustBaudSwitch bool
}

type Result struct {
	Path    Path
	Version protocol.Version
}

type Controller struct {
	device Device
	link   Link
	opts   Options
	log    *logrus.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewController(device Device, link Link, opts Options, log *logrus.Logger) *Controller {
	if opts.DefaultBaud <= 0 {
		opts.DefaultBaud = protocol.DefaultBaudRate
	}
	return &Controller{
		device: device,
		link:   link,
		opts:   opts,
		log:    log,
		sleep:  sleepContext,
	}
}

// BringUp 把模块从未知状态带到空闲、GEN2、1 号天线口、目标波特率
//
// 只协商一次。最终版本查询失败时返回 ErrDeviceUnresponsive，调用方应停机。
func (c *Controller) BringUp(ctx context.Context) (Result, error) {
	var result Result
	mode := ModeUnknown
	target := c.opts.TargetBaud

	// 先假设模块已经工作在目标波特率
	if err := c.link.Open(target); err != nil {
		return result, fmt.Errorf("打开串口失败: %w", err)
	}
	// 上电约 200ms 后模块会吐出一段版本信息
	if err := c.link.Flush(); err != nil {
		c.log.Debugf("清空串口缓冲区失败: %v", err)
	}

	_, status := c.device.GetVersion()
	switch status {
	case protocol.ErrWrongOpcodeResponse:
		// 波特率正确但模块在连续盘点
		mode = ModeStreaming
		result.Path = PathStopStreaming
		c.log.Warnf("模块处于连续盘点模式, 要求停止 (%s)", mode)

		if err := c.device.StopReading(); err != nil {
			c.log.Warnf("发送停止盘点命令失败: %v", err)
		}
		if err := c.sleep(ctx, c.opts.StopSettle); err != nil {
			return result, err
		}

	case protocol.AllGood:
		result.Path = PathIdle
		c.log.Infof("模块已在 %d bps 下空闲", target)

	default:
		// 没有应答，认为模块刚上电，工作在默认波特率
		result.Path = PathBaudSwitch
		c.log.Infof("模块在 %d bps 下无应答(%s), 尝试从 %d bps 切换", target, status, c.opts.DefaultBaud)

		if err := c.link.Open(c.opts.DefaultBaud); err != nil {
			return result, fmt.Errorf("打开串口失败: %w", err)
		}

		ack := c.device.SetBaud(target)
		if !c.opts.TrustBaudSwitch && ack != protocol.AllGood {
			return result, fmt.Errorf("%w: 切换波特率未确认 (%s)", ErrDeviceUnresponsive, ack)
		}
		if ack != protocol.AllGood {
			c.log.Debugf("忽略切换波特率应答: %s", ack)
		}

		if err := c.link.Open(target); err != nil {
			return result, fmt.Errorf("打开串口失败: %w", err)
		}
		if err := c.sleep(ctx, c.opts.BaudSettle); err != nil {
			return result, err
		}
	}

	version, status := c.device.GetVersion()
	if status != protocol.AllGood {
		c.log.Errorf("模块版本查询失败: %s", status)
		return result, fmt.Errorf("%w: %s", ErrDeviceUnresponsive, status)
	}
	result.Version = version

	// 以下设置与部署现场无关，每次启动都写入
	if s := c.device.SetTagProtocol(protocol.TagProtocolGEN2); s != protocol.AllGood {
		c.log.Warnf("设置 GEN2 协议失败: %s", s)
	}
	if s := c.device.SetAntennaPort(); s != protocol.AllGood {
		c.log.Warnf("设置天线口失败: %s", s)
	}

	mode = ModeIdleConfigured
	c.log.Infof("模块就绪: %s, 路径=%s, 状态=%s", version, result.Path, mode)
	return result, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
