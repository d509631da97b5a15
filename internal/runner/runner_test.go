package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uhf-telemetry/internal/acquisition"
	"uhf-telemetry/internal/config"
	"uhf-telemetry/internal/monitor"
	"uhf-telemetry/internal/nano"
	"uhf-telemetry/internal/nanosim"
	"uhf-telemetry/internal/publish"
	"uhf-telemetry/internal/storage"
	"uhf-telemetry/pkg/protocol"
)

var testEPC = []byte{0xE2, 0x00, 0x68, 0x06, 0x00, 0x00, 0xC3, 0x11, 0x22, 0x33, 0x44, 0x55}

// clock 每次读取前进固定步长
type clock struct {
	t    time.Time
	step time.Duration
}

func (c *clock) now() time.Time {
	c.t = c.t.Add(c.step)
	return c.t
}

type stack struct {
	runner *Runner
	module *nanosim.Module
	redis  *miniredis.Miniredis
	status *monitor.Status
}

func newStack(t *testing.T, identity bool) *stack {
	t.Helper()
	log, _ := test.NewNullLogger()
	cfg := config.GetDefaultConfig()

	module := nanosim.New(protocol.DefaultBaudRate, log)
	require.NoError(t, module.Open(protocol.DefaultBaudRate))
	module.Tag = nanosim.NewTag(testEPC, 0x0017)
	reader := nano.NewReader(module, nano.Options{CommandTimeout: 20 * time.Millisecond}, log)

	cycle := acquisition.NewCycle(reader, acquisition.Options{
		Bank:              cfg.Reader.SensorBank,
		Address:           cfg.Reader.SensorAddress,
		Length:            cfg.Reader.SensorLength,
		SensorCodeOffset:  cfg.Reader.SensorCodeOffset,
		ReadTimeout:       50 * time.Millisecond,
		ReadIdentity:      identity,
		IdentityLength:    cfg.Reader.IdentityLength,
		IdentityTimeout:   50 * time.Millisecond,
		IdentitySeparator: cfg.Reader.IdentitySeparator,
	}, log)

	mr := miniredis.RunT(t)
	redisCfg := cfg.Redis
	redisCfg.Addr = mr.Addr()
	sink := storage.NewRedisSink(redisCfg, log)
	t.Cleanup(func() { sink.Close() })

	p := cfg.Publish.Paths
	gate := publish.NewGate(sink, publish.Options{
		Interval:        time.Second,
		Paths:           publish.Paths{SensorCode: p.SensorCode, RSSI: p.RSSI, Identity: p.Identity},
		IncludeIdentity: identity,
	}, log)

	status := monitor.NewStatus()
	return &stack{
		runner: NewRunner(cycle, gate, status, Options{}, log),
		module: module,
		redis:  mr,
		status: status,
	}
}

func TestStepPublishesThroughGate(t *testing.T) {
	s := newStack(t, true)
	clk := &clock{t: time.Unix(0, 0), step: 200 * time.Millisecond}
	s.runner.now = clk.now

	var published int
	for i := 0; i < 6; i++ {
		ok, err := s.runner.Step(context.Background())
		require.NoError(t, err)
		if ok {
			published++
		}
	}
	// 每步前进 600ms，第 1、3、5 步发布
	assert.Equal(t, 3, published)

	s.redis.CheckGet(t, "/RFID/Sensor Code", "23")
	s.redis.CheckGet(t, "/RFID/Tag EPC", "E2 00 68 06 00 00 C3 11 22 33 44 55")
	assert.True(t, s.redis.Exists("/RFID/ Tag RSSI"))

	snap := s.status.Snapshot()
	assert.Equal(t, uint64(6), snap.Polls)
	assert.Equal(t, uint64(3), snap.Publishes)
}

func TestStepSkipsPublishWithoutTag(t *testing.T) {
	s := newStack(t, false)
	s.module.Tag = nil

	published, err := s.runner.Step(context.Background())
	require.NoError(t, err)
	assert.False(t, published)
	assert.False(t, s.redis.Exists("/RFID/Sensor Code"))
	assert.Equal(t, "not_found", s.status.Snapshot().LastOutcome)

	// 标签出现后立即发布
	s.module.Tag = nanosim.NewTag(testEPC, 0x0005)
	published, err = s.runner.Step(context.Background())
	require.NoError(t, err)
	assert.True(t, published)
	s.redis.CheckGet(t, "/RFID/Sensor Code", "5")
}

func TestStepReportsSinkFailure(t *testing.T) {
	s := newStack(t, false)
	s.redis.Close()

	published, err := s.runner.Step(context.Background())
	assert.True(t, published)
	assert.Error(t, err)
	assert.Equal(t, uint64(1), s.status.Snapshot().PublishErrors)
}

type countingPoller struct {
	polls  int
	cancel context.CancelFunc
}

func (p *countingPoller) PollOnce() acquisition.Sample {
	p.polls++
	if p.polls == 3 {
		p.cancel()
	}
	return acquisition.NotFoundSample()
}

type failingPublisher struct{}

func (failingPublisher) MaybePublish(ctx context.Context, now time.Time, sample acquisition.Sample) (bool, error) {
	return true, errors.New("down")
}

type closer struct {
	closed *[]string
	name   string
}

func (c closer) Close() error {
	*c.closed = append(*c.closed, c.name)
	return nil
}

func TestRunStopsOnCancel(t *testing.T) {
	log, _ := test.NewNullLogger()
	ctx, cancel := context.WithCancel(context.Background())
	poller := &countingPoller{cancel: cancel}

	r := NewRunner(poller, failingPublisher{}, nil, Options{}, log)
	require.NoError(t, r.Run(ctx))
	assert.Equal(t, 3, poller.polls)
}

func TestStartClosesResources(t *testing.T) {
	log, _ := test.NewNullLogger()
	ctx, cancel := context.WithCancel(context.Background())
	poller := &countingPoller{cancel: cancel}

	var closed []string
	r := NewRunner(poller, failingPublisher{}, nil, Options{Pause: time.Millisecond}, log)
	r.OnShutdown(closer{&closed, "sink"})
	r.OnShutdown(closer{&closed, "link"})

	require.NoError(t, r.Start(ctx))
	assert.Equal(t, []string{"link", "sink"}, closed)
}
