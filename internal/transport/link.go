package transport

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	ErrNotOpen = errors.New("串口未打开")
	ErrNoData  = errors.New("无可读数据")
)

// Link 到阅读器模块的字节链路
type Link interface {
	// Open 以指定波特率打开链路，已打开时切换波特率
	Open(baud int) error
	Baud() int
	// Available 报告是否有未读字节，最多阻塞一个轮询周期
	Available() bool
	ReadByte() (byte, error)
	Write(p []byte) (int, error)
	// Flush 丢弃接收缓冲区中的全部字节
	Flush() error
	Close() error
}

// port 底层串口驱动的最小接口
type port interface {
	io.ReadWriteCloser
	ResetInput() error
}

// baudSetter 支持不重新打开即可切换波特率的驱动
type baudSetter interface {
	SetBaud(baud int) error
}

type opener func(name string, baud int, timeout time.Duration) (port, error)

// SerialLink 串口链路，重新打开时保持同一个对象
type SerialLink struct {
	name    string
	timeout time.Duration
	open    opener
	port    port
	baud    int
	rx      []byte
	buf     []byte
	log     *logrus.Logger
}

// NewSerialLink 按驱动名创建串口链路，此时并不打开串口
func NewSerialLink(name, driver string, pollTimeout time.Duration, log *logrus.Logger) (*SerialLink, error) {
	var open opener
	switch driver {
	case "bugst", "":
		open = openBugst
	case "tarm":
		open = openTarm
	default:
		return nil, fmt.Errorf("未知串口驱动: %q", driver)
	}
	return newSerialLink(name, pollTimeout, open, log), nil
}

func newSerialLink(name string, pollTimeout time.Duration, open opener, log *logrus.Logger) *SerialLink {
	return &SerialLink{
		name:    name,
		timeout: pollTimeout,
		open:    open,
		buf:     make([]byte, 256),
		log:     log,
	}
}

func (l *SerialLink) Open(baud int) error {
	if l.port != nil {
		if s, ok := l.port.(baudSetter); ok {
			err := s.SetBaud(baud)
			if err == nil {
				l.baud = baud
				l.rx = l.rx[:0]
				l.log.Debugf("串口 %s 切换波特率: %d", l.name, baud)
				return nil
			}
			l.log.Warnf("串口 %s 切换波特率失败, 重新打开: %v", l.name, err)
		}
		if err := l.port.Close(); err != nil {
			l.log.Debugf("关闭串口 %s 失败: %v", l.name, err)
		}
		l.port = nil
	}

	p, err := l.open(l.name, baud, l.timeout)
	if err != nil {
		return fmt.Errorf("打开串口 %s 失败(%d bps): %w", l.name, baud, err)
	}

	l.port = p
	l.baud = baud
	l.rx = l.rx[:0]
	l.log.Debugf("串口 %s 已打开: %d bps", l.name, baud)
	return nil
}

func (l *SerialLink) Baud() int {
	return l.baud
}

func (l *SerialLink) Available() bool {
	if len(l.rx) > 0 {
		return true
	}
	if l.port == nil {
		return false
	}

	n, err := l.port.Read(l.buf)
	if n > 0 {
		l.rx = append(l.rx, l.buf[:n]...)
	}
	if err != nil && !errors.Is(err, io.EOF) {
		l.log.Debugf("读取串口 %s 失败: %v", l.name, err)
	}
	return len(l.rx) > 0
}

func (l *SerialLink) ReadByte() (byte, error) {
	if l.port == nil {
		return 0, ErrNotOpen
	}
	if !l.Available() {
		return 0, ErrNoData
	}
	b := l.rx[0]
	l.rx = l.rx[1:]
	return b, nil
}

func (l *SerialLink) Write(p []byte) (int, error) {
	if l.port == nil {
		return 0, ErrNotOpen
	}
	return l.port.Write(p)
}

func (l *SerialLink) Flush() error {
	l.rx = l.rx[:0]
	if l.port == nil {
		return ErrNotOpen
	}
	return l.port.ResetInput()
}

func (l *SerialLink) Close() error {
	if l.port == nil {
		return nil
	}
	err := l.port.Close()
	l.port = nil
	l.rx = l.rx[:0]
	return err
}
