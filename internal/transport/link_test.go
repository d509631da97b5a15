package transport

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePort struct {
	baud    int
	pending [][]byte
	written []byte
	resets  int
	closed  bool
}

func (p *fakePort) Read(b []byte) (int, error) {
	if len(p.pending) == 0 {
		return 0, io.EOF
	}
	n := copy(b, p.pending[0])
	p.pending = p.pending[1:]
	return n, nil
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.written = append(p.written, b...)
	return len(b), nil
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func (p *fakePort) ResetInput() error {
	p.resets++
	p.pending = nil
	return nil
}

// settablePort 可以直接切换波特率
type settablePort struct {
	fakePort
	fail bool
}

func (p *settablePort) SetBaud(baud int) error {
	if p.fail {
		return errors.New("ioctl failed")
	}
	p.baud = baud
	return nil
}

func newTestLogger() *logrus.Logger {
	log, _ := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	return log
}

func TestOpenReopensPlainPort(t *testing.T) {
	var opened []*fakePort
	open := func(name string, baud int, timeout time.Duration) (port, error) {
		p := &fakePort{baud: baud}
		opened = append(opened, p)
		return p, nil
	}

	link := newSerialLink("/dev/null", 10*time.Millisecond, open, newTestLogger())
	require.NoError(t, link.Open(115200))
	require.NoError(t, link.Open(38400))

	require.Len(t, opened, 2)
	assert.True(t, opened[0].closed)
	assert.False(t, opened[1].closed)
	assert.Equal(t, 38400, link.Baud())
	assert.Equal(t, 38400, opened[1].baud)
}

func TestOpenKeepsSettablePort(t *testing.T) {
	var opened []*settablePort
	open := func(name string, baud int, timeout time.Duration) (port, error) {
		p := &settablePort{fakePort: fakePort{baud: baud}}
		opened = append(opened, p)
		return p, nil
	}

	link := newSerialLink("/dev/null", 10*time.Millisecond, open, newTestLogger())
	require.NoError(t, link.Open(115200))
	require.NoError(t, link.Open(9600))

	require.Len(t, opened, 1)
	assert.Equal(t, 9600, opened[0].baud)
	assert.Equal(t, 9600, link.Baud())

	// a failing SetBaud falls back to close and reopen
	opened[0].fail = true
	require.NoError(t, link.Open(57600))
	require.Len(t, opened, 2)
	assert.True(t, opened[0].closed)
	assert.Equal(t, 57600, opened[1].baud)
}

func TestOpenError(t *testing.T) {
	open := func(name string, baud int, timeout time.Duration) (port, error) {
		return nil, errors.New("no such device")
	}
	link := newSerialLink("/dev/ttyNOPE", time.Millisecond, open, newTestLogger())
	assert.Error(t, link.Open(115200))

	_, err := link.ReadByte()
	assert.ErrorIs(t, err, ErrNotOpen)
	_, err = link.Write([]byte{0xFF})
	assert.ErrorIs(t, err, ErrNotOpen)
	assert.False(t, link.Available())
}

func TestReadBytesAndFlush(t *testing.T) {
	p := &fakePort{pending: [][]byte{{0xFF, 0x00}, {0x03}}}
	open := func(name string, baud int, timeout time.Duration) (port, error) {
		return p, nil
	}

	link := newSerialLink("/dev/null", time.Millisecond, open, newTestLogger())
	require.NoError(t, link.Open(115200))

	var got []byte
	for link.Available() {
		b, err := link.ReadByte()
		require.NoError(t, err)
		got = append(got, b)
	}
	assert.Equal(t, []byte{0xFF, 0x00, 0x03}, got)

	_, err := link.ReadByte()
	assert.ErrorIs(t, err, ErrNoData)

	p.pending = [][]byte{{0x01, 0x02}}
	require.True(t, link.Available())
	require.NoError(t, link.Flush())
	assert.Equal(t, 1, p.resets)
	assert.False(t, link.Available())

	n, err := link.Write([]byte{0xAA, 0x55})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []byte{0xAA, 0x55}, p.written)

	require.NoError(t, link.Close())
	assert.True(t, p.closed)
	assert.NoError(t, link.Close())
}

func TestNewSerialLinkDriver(t *testing.T) {
	_, err := NewSerialLink("/dev/null", "usb", time.Millisecond, newTestLogger())
	assert.Error(t, err)

	for _, driver := range []string{"bugst", "tarm", ""} {
		link, err := NewSerialLink("/dev/null", driver, time.Millisecond, newTestLogger())
		require.NoError(t, err, driver)
		assert.NotNil(t, link.open)
	}
}
