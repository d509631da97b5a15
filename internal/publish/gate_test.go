package publish

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uhf-telemetry/internal/acquisition"
)

type write struct {
	path  string
	value interface{}
}

type recordingSink struct {
	writes []write
	fail   map[string]error
}

func (s *recordingSink) Write(ctx context.Context, path string, value interface{}) error {
	s.writes = append(s.writes, write{path, value})
	return s.fail[path]
}

var testPaths = Paths{
	SensorCode: "/RFID/Sensor Code",
	RSSI:       "/RFID/ Tag RSSI",
	Identity:   "/RFID/Tag EPC",
}

func newTestGate(sink Sink, interval time.Duration, identity bool) *Gate {
	log, _ := test.NewNullLogger()
	return NewGate(sink, Options{Interval: interval, Paths: testPaths, IncludeIdentity: identity}, log)
}

func found(code, rssi int, identity string) acquisition.Sample {
	return acquisition.FoundSample(acquisition.Reading{SensorCode: code, RSSI: rssi, Identity: identity})
}

func TestMaybePublishWritesInOrder(t *testing.T) {
	sink := &recordingSink{}
	g := newTestGate(sink, time.Second, false)
	t0 := time.Unix(1000, 0)

	published, err := g.MaybePublish(context.Background(), t0, found(17, -61, "E2 00"))
	require.NoError(t, err)
	assert.True(t, published)
	assert.Equal(t, []write{
		{"/RFID/Sensor Code", 17},
		{"/RFID/ Tag RSSI", -61},
	}, sink.writes)

	last, ok := g.LastPublish()
	assert.True(t, ok)
	assert.Equal(t, t0, last)
}

func TestMaybePublishIdentity(t *testing.T) {
	sink := &recordingSink{}
	g := newTestGate(sink, time.Second, true)

	_, err := g.MaybePublish(context.Background(), time.Unix(0, 0), found(3, -50, "E2 00 41"))
	require.NoError(t, err)
	require.Len(t, sink.writes, 3)
	assert.Equal(t, write{"/RFID/Tag EPC", "E2 00 41"}, sink.writes[2])
}

func TestMaybePublishInterval(t *testing.T) {
	sink := &recordingSink{}
	g := newTestGate(sink, time.Second, false)
	t0 := time.Unix(0, 0)
	ctx := context.Background()

	published, _ := g.MaybePublish(ctx, t0, found(1, -60, ""))
	assert.True(t, published)

	published, _ = g.MaybePublish(ctx, t0.Add(500*time.Millisecond), found(2, -60, ""))
	assert.False(t, published)

	// 刚好等于间隔时闸门仍关闭
	published, _ = g.MaybePublish(ctx, t0.Add(time.Second), found(3, -60, ""))
	assert.False(t, published)

	published, _ = g.MaybePublish(ctx, t0.Add(1500*time.Millisecond), found(4, -60, ""))
	assert.True(t, published)

	assert.Len(t, sink.writes, 4)
	assert.Equal(t, 4, sink.writes[2].value)
}

func TestMaybePublishNeverTwiceWithinInterval(t *testing.T) {
	sink := &recordingSink{}
	g := newTestGate(sink, time.Second, false)
	t0 := time.Unix(0, 0)

	var times []time.Time
	for i := 0; i < 100; i++ {
		now := t0.Add(time.Duration(i*70) * time.Millisecond)
		if published, _ := g.MaybePublish(context.Background(), now, found(i, -60, "")); published {
			times = append(times, now)
		}
	}
	require.NotEmpty(t, times)
	for i := 1; i < len(times); i++ {
		assert.Greater(t, times[i].Sub(times[i-1]), time.Second)
	}
}

func TestMaybePublishNotFound(t *testing.T) {
	sink := &recordingSink{}
	g := newTestGate(sink, time.Second, false)
	t0 := time.Unix(0, 0)

	published, err := g.MaybePublish(context.Background(), t0, acquisition.NotFoundSample())
	require.NoError(t, err)
	assert.False(t, published)
	assert.Empty(t, sink.writes)

	_, ok := g.LastPublish()
	assert.False(t, ok)

	// 闸门保持打开，下一个有效样本立即发布
	published, _ = g.MaybePublish(context.Background(), t0.Add(10*time.Millisecond), found(5, -40, ""))
	assert.True(t, published)
}

func TestMaybePublishPartialFailure(t *testing.T) {
	errDown := errors.New("connection refused")
	sink := &recordingSink{fail: map[string]error{testPaths.SensorCode: errDown}}
	g := newTestGate(sink, time.Second, false)
	t0 := time.Unix(0, 0)

	published, err := g.MaybePublish(context.Background(), t0, found(9, -55, ""))
	assert.True(t, published)
	assert.ErrorIs(t, err, errDown)
	assert.Contains(t, err.Error(), testPaths.SensorCode)

	// 后续字段照常写入，时间戳已更新
	assert.Len(t, sink.writes, 2)
	last, _ := g.LastPublish()
	assert.Equal(t, t0, last)

	published, _ = g.MaybePublish(context.Background(), t0.Add(100*time.Millisecond), found(9, -55, ""))
	assert.False(t, published)
}
