package acquisition

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uhf-telemetry/internal/nano"
	"uhf-telemetry/internal/nanosim"
	"uhf-telemetry/pkg/protocol"
)

type fakeReader struct {
	data      []byte
	status    protocol.Status
	epc       []byte
	epcStatus protocol.Status
	rssi      int
	calls     []string
}

func (f *fakeReader) ReadData(bank byte, address uint32, length int, timeout time.Duration) ([]byte, protocol.Status) {
	f.calls = append(f.calls, "read")
	return f.data, f.status
}

func (f *fakeReader) ReadTagEPC(maxLength int, timeout time.Duration) ([]byte, protocol.Status) {
	f.calls = append(f.calls, "epc")
	return f.epc, f.epcStatus
}

func (f *fakeReader) TagRSSI() int {
	f.calls = append(f.calls, "rssi")
	return f.rssi
}

func baselineOptions() Options {
	return Options{
		Bank:             protocol.BankReserved,
		Address:          0x0B,
		Length:           2,
		SensorCodeOffset: 1,
		ReadTimeout:      50 * time.Millisecond,
	}
}

func TestPollOnceFound(t *testing.T) {
	log, _ := test.NewNullLogger()
	r := &fakeReader{data: []byte{0x00, 0x07}, status: protocol.ResponseSuccess, rssi: -42}
	c := NewCycle(r, baselineOptions(), log)

	sample := c.PollOnce()
	require.Equal(t, Found, sample.Outcome())
	reading, ok := sample.Reading()
	require.True(t, ok)
	assert.Equal(t, 7, reading.SensorCode)
	assert.Equal(t, -42, reading.RSSI)
	assert.Empty(t, reading.Identity)
	assert.Equal(t, []string{"read", "rssi"}, r.calls)
}

func TestPollOnceNotFoundStillQueriesRSSI(t *testing.T) {
	log, _ := test.NewNullLogger()
	r := &fakeReader{status: protocol.ResponseFail, rssi: -70}
	c := NewCycle(r, baselineOptions(), log)

	sample := c.PollOnce()
	assert.Equal(t, NotFound, sample.Outcome())
	_, ok := sample.Reading()
	assert.False(t, ok)
	assert.Equal(t, []string{"read", "rssi"}, r.calls)
}

func TestPollOnceNotFoundHoldsNoPreviousData(t *testing.T) {
	log, _ := test.NewNullLogger()
	r := &fakeReader{data: []byte{0x00, 0x09}, status: protocol.ResponseSuccess}
	c := NewCycle(r, baselineOptions(), log)

	first := c.PollOnce()
	require.Equal(t, Found, first.Outcome())

	r.status = protocol.ResponseFail
	second := c.PollOnce()
	reading, ok := second.Reading()
	assert.False(t, ok)
	assert.Equal(t, Reading{}, reading)
}

func TestPollOnceShortField(t *testing.T) {
	log, _ := test.NewNullLogger()
	r := &fakeReader{data: []byte{0x01}, status: protocol.ResponseSuccess}
	c := NewCycle(r, baselineOptions(), log)

	assert.Equal(t, NotFound, c.PollOnce().Outcome())
}

func TestPollOnceIdentity(t *testing.T) {
	log, _ := test.NewNullLogger()
	opts := baselineOptions()
	opts.ReadIdentity = true
	opts.IdentityLength = 12
	opts.IdentitySeparator = " "

	r := &fakeReader{
		data:      []byte{0x00, 0x10},
		status:    protocol.ResponseSuccess,
		epc:       []byte{0xE2, 0x00, 0x41},
		epcStatus: protocol.ResponseSuccess,
	}
	c := NewCycle(r, opts, log)

	reading, ok := c.PollOnce().Reading()
	require.True(t, ok)
	assert.Equal(t, "E2 00 41", reading.Identity)
	assert.Equal(t, []string{"read", "rssi", "epc"}, r.calls)

	// identity failure keeps the sample but leaves the identity empty
	r.epcStatus = protocol.ResponseFail
	reading, ok = c.PollOnce().Reading()
	require.True(t, ok)
	assert.Equal(t, 16, reading.SensorCode)
	assert.Empty(t, reading.Identity)

	// no identity read when the sensor read failed
	r.status = protocol.ResponseFail
	r.calls = nil
	c.PollOnce()
	assert.Equal(t, []string{"read", "rssi"}, r.calls)
}

func TestFormatIdentity(t *testing.T) {
	assert.Equal(t, "E2:00:0A", FormatIdentity([]byte{0xE2, 0x00, 0x0A}, ":"))
	assert.Equal(t, "", FormatIdentity(nil, " "))
}

func TestPollOnceSimulatedModule(t *testing.T) {
	log, _ := test.NewNullLogger()
	module := nanosim.New(protocol.DefaultBaudRate, log)
	require.NoError(t, module.Open(protocol.DefaultBaudRate))
	epc := []byte{0xE2, 0x00, 0x68, 0x06, 0x00, 0x00, 0xC3, 0x11, 0x22, 0x33, 0x44, 0x55}
	module.Tag = nanosim.NewTag(epc, 0x0017)

	reader := nano.NewReader(module, nano.Options{CommandTimeout: 20 * time.Millisecond}, log)
	opts := baselineOptions()
	opts.ReadIdentity = true
	opts.IdentityLength = 12
	opts.IdentityTimeout = 50 * time.Millisecond
	opts.IdentitySeparator = " "
	c := NewCycle(reader, opts, log)

	reading, ok := c.PollOnce().Reading()
	require.True(t, ok)
	assert.Equal(t, 0x17, reading.SensorCode)
	assert.Equal(t, "E2 00 68 06 00 00 C3 11 22 33 44 55", reading.Identity)

	module.Tag = nil
	assert.Equal(t, NotFound, c.PollOnce().Outcome())
}
