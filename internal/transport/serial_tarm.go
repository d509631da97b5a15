package transport

import (
	"time"

	"github.com/tarm/serial"
)

// tarmPort github.com/tarm/serial 驱动，切换波特率时需要重新打开
type tarmPort struct {
	*serial.Port
}

func openTarm(name string, baud int, timeout time.Duration) (port, error) {
	p, err := serial.OpenPort(&serial.Config{
		Name:        name,
		Baud:        baud,
		Parity:      serial.ParityNone,
		ReadTimeout: timeout,
	})
	if err != nil {
		return nil, err
	}
	return &tarmPort{Port: p}, nil
}

func (p *tarmPort) ResetInput() error {
	return p.Flush()
}
