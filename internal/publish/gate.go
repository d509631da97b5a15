package publish

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"uhf-telemetry/internal/acquisition"
)

// Sink 远端键值存储，只由 Gate 写入
type Sink interface {
	Write(ctx context.Context, path string, value interface{}) error
}

type Paths struct {
	SensorCode string
	RSSI       string
	Identity   string
}

type Options struct {
	Interval        time.Duration
	Paths           Paths
	IncludeIdentity bool
}

// Gate 最小间隔发布闸门
type Gate struct {
	sink      Sink
	opts      Options
	log       *logrus.Logger
	last      time.Time
	published bool
}

func NewGate(sink Sink, opts Options, log *logrus.Logger) *Gate {
	return &Gate{
		sink: sink,
		opts: opts,
		log:  log,
	}
}

// LastPublish 最近一次发布的时间，从未发布时返回 false
func (g *Gate) LastPublish() (time.Time, bool) {
	return g.last, g.published
}

// Open 判断 now 时刻闸门是否打开
func (g *Gate) Open(now time.Time) bool {
	return !g.published || now.Sub(g.last) > g.opts.Interval
}

// MaybePublish 闸门打开且样本有数据时逐字段写入
//
// 时间戳在写入前更新；字段之间没有原子性，失败的字段不会回滚或重试。
// 未读到标签的样本不发布，闸门保持打开。
func (g *Gate) MaybePublish(ctx context.Context, now time.Time, sample acquisition.Sample) (bool, error) {
	if !g.Open(now) {
		return false, nil
	}
	reading, ok := sample.Reading()
	if !ok {
		return false, nil
	}

	g.last = now
	g.published = true

	var errs []error
	write := func(path string, value interface{}) {
		if err := g.sink.Write(ctx, path, value); err != nil {
			errs = append(errs, fmt.Errorf("写入 %q 失败: %w", path, err))
		}
	}

	write(g.opts.Paths.SensorCode, reading.SensorCode)
	write(g.opts.Paths.RSSI, reading.RSSI)
	if g.opts.IncludeIdentity {
		write(g.opts.Paths.Identity, reading.Identity)
	}

	if len(errs) > 0 {
		return true, errors.Join(errs...)
	}
	g.log.Debugf("已发布: 传感码=%d RSSI=%d", reading.SensorCode, reading.RSSI)
	return true, nil
}
