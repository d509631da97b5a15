package transport

import (
	"time"

	"go.bug.st/serial"
)

// bugstPort go.bug.st/serial 驱动，切换波特率不需要重新打开
type bugstPort struct {
	serial.Port
}

func openBugst(name string, baud int, timeout time.Duration) (port, error) {
	p, err := serial.Open(name, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, err
	}
	if err := p.SetReadTimeout(timeout); err != nil {
		p.Close()
		return nil, err
	}
	return &bugstPort{Port: p}, nil
}

func (p *bugstPort) ResetInput() error {
	return p.ResetInputBuffer()
}

func (p *bugstPort) SetBaud(baud int) error {
	return p.SetMode(&serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
}
