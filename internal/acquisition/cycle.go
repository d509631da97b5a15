package acquisition

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"uhf-telemetry/pkg/protocol"
)

// TagReader 采集需要的模块命令
type TagReader interface {
	ReadData(bank byte, address uint32, length int, timeout time.Duration) ([]byte, protocol.Status)
	ReadTagEPC(maxLength int, timeout time.Duration) ([]byte, protocol.Status)
	TagRSSI() int
}

type Options struct {
	Bank             byte
	Address          uint32
	Length           int
	SensorCodeOffset int
	ReadTimeout      time.Duration

	// 扩展模式下额外读取标签 EPC
	ReadIdentity      bool
	IdentityLength    int
	IdentityTimeout   time.Duration
	IdentitySeparator string
}

type Cycle struct {
	reader TagReader
	opts   Options
	log    *logrus.Logger
	now    func() time.Time
}

func NewCycle(reader TagReader, opts Options, log *logrus.Logger) *Cycle {
	return &Cycle{
		reader: reader,
		opts:   opts,
		log:    log,
		now:    time.Now,
	}
}

// PollOnce 单次读取传感字段，不重试
//
// 无论读取是否成功都会查询 RSSI，该值来自模块最近一次应答，可能已过时。
func (c *Cycle) PollOnce() Sample {
	data, status := c.reader.ReadData(c.opts.Bank, c.opts.Address, c.opts.Length, c.opts.ReadTimeout)
	rssi := c.reader.TagRSSI()

	if status != protocol.ResponseSuccess {
		c.log.Debug("未找到标签")
		return NotFoundSample()
	}
	if len(data) <= c.opts.SensorCodeOffset {
		c.log.Debugf("传感字段长度不足: %d bytes", len(data))
		return NotFoundSample()
	}

	reading := Reading{
		SensorCode: int(data[c.opts.SensorCodeOffset]),
		RSSI:       rssi,
		ReadAt:     c.now(),
	}

	if c.opts.ReadIdentity {
		epc, status := c.reader.ReadTagEPC(c.opts.IdentityLength, c.opts.IdentityTimeout)
		if status == protocol.ResponseSuccess {
			reading.Identity = FormatIdentity(epc, c.opts.IdentitySeparator)
		} else {
			c.log.Debugf("读取标签 EPC 失败: %s", status)
		}
	}

	c.log.Debugf("传感码: %d, RSSI: %d, EPC: %s", reading.SensorCode, reading.RSSI, reading.Identity)
	return FoundSample(reading)
}

// FormatIdentity 把 EPC 转成以分隔符连接的十六进制字节
func FormatIdentity(epc []byte, sep string) string {
	parts := make([]string, len(epc))
	for i, b := range epc {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, sep)
}
