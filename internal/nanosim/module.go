package nanosim

import (
	"bytes"
	"encoding/binary"

	"github.com/sirupsen/logrus"

	"uhf-telemetry/internal/parser"
	"uhf-telemetry/internal/transport"
	"uhf-telemetry/pkg/protocol"
)

var _ transport.Link = (*Module)(nil)

// Tag 模拟标签的各存储区内容
type Tag struct {
	Banks map[byte][]byte
}

// NewTag 构造带传感码的标签，传感码位于保留区第 0x0B 个字
func NewTag(epc []byte, sensorCode uint16) *Tag {
	reserved := make([]byte, 0x0C*2)
	binary.BigEndian.PutUint16(reserved[0x0B*2:], sensorCode)

	// StoredCRC + PC + EPC
	epcBank := make([]byte, 4, 4+len(epc))
	binary.BigEndian.PutUint16(epcBank[2:], uint16(len(epc)/2)<<11)
	epcBank = append(epcBank, epc...)

	return &Tag{
		Banks: map[byte][]byte{
			protocol.BankReserved: reserved,
			protocol.BankEPC:      epcBank,
		},
	}
}

// Module 内存中的 M6E-Nano 模块，直接充当主机侧的 transport.Link
//
// 主机波特率与模块波特率不一致时，写入的字节全部丢失，模块不应答。
type Module struct {
	parser *parser.Parser
	log    *logrus.Logger

	DeviceBaud int
	Streaming  bool
	Silent     bool
	Banner     []byte
	Version    protocol.Version
	Tag        *Tag

	// 模块当前生效的设置
	Region      protocol.Region
	ReadPower   int
	TagProtocol byte
	Antenna     [2]byte

	// Commands 按顺序记录模块实际收到的操作码
	Commands []byte

	hostBaud   int
	open       bool
	bannerSent bool
	in         []byte
	rx         []byte
}

// New 创建处于空闲状态的模块
func New(deviceBaud int, log *logrus.Logger) *Module {
	return &Module{
		parser:     parser.NewParser(),
		log:        log,
		DeviceBaud: deviceBaud,
		Version: protocol.Version{
			Bootloader:   [4]byte{0x12, 0x12, 0x00, 0x00},
			Hardware:     [4]byte{0x20, 0x00, 0x00, 0x00},
			FirmwareDate: [4]byte{0x20, 0x17, 0x03, 0x14},
			Firmware:     [4]byte{0x01, 0x09, 0x00, 0x02},
			Protocols:    [4]byte{0x00, 0x00, 0x00, 0x10},
		},
	}
}

func (m *Module) Open(baud int) error {
	m.hostBaud = baud
	m.open = true
	m.rx = nil
	m.in = nil
	if baud == m.DeviceBaud && !m.bannerSent && len(m.Banner) > 0 {
		m.rx = append(m.rx, m.Banner...)
		m.bannerSent = true
	}
	return nil
}

func (m *Module) Baud() int {
	return m.hostBaud
}

func (m *Module) Available() bool {
	return m.open && len(m.rx) > 0
}

func (m *Module) ReadByte() (byte, error) {
	if !m.open {
		return 0, transport.ErrNotOpen
	}
	if len(m.rx) == 0 {
		return 0, transport.ErrNoData
	}
	b := m.rx[0]
	m.rx = m.rx[1:]
	return b, nil
}

func (m *Module) Write(p []byte) (int, error) {
	if !m.open {
		return 0, transport.ErrNotOpen
	}
	if m.Silent || m.hostBaud != m.DeviceBaud {
		return len(p), nil
	}
	m.in = append(m.in, p...)
	m.process()
	return len(p), nil
}

func (m *Module) Flush() error {
	m.rx = nil
	return nil
}

func (m *Module) Close() error {
	m.open = false
	m.rx = nil
	return nil
}

func (m *Module) process() {
	for {
		start := bytes.IndexByte(m.in, protocol.FrameHeader)
		if start < 0 {
			m.in = m.in[:0]
			return
		}
		m.in = m.in[start:]

		size := parser.CommandSize(m.in)
		if size == 0 || len(m.in) < size {
			return
		}

		opcode, payload, err := m.parser.ParseCommand(m.in[:size])
		m.in = m.in[size:]
		if err != nil {
			m.log.Debugf("模拟模块丢弃损坏命令: %v", err)
			continue
		}
		m.handle(opcode, payload)
	}
}

func (m *Module) handle(opcode byte, payload []byte) {
	m.Commands = append(m.Commands, opcode)

	if m.Streaming {
		if opcode == protocol.OpcodeMultiProtocolTagOp && bytes.Equal(payload, []byte{0x00, 0x00, 0x02}) {
			m.Streaming = false
			m.reply(opcode, protocol.DeviceStatusOK, nil)
			return
		}
		// 连续盘点中只会吐出盘点结果
		m.reply(protocol.OpcodeReadTagIDMultiple, protocol.DeviceStatusOK, []byte{0x00, 0x00, 0x01})
		return
	}

	switch opcode {
	case protocol.OpcodeVersion:
		m.reply(opcode, protocol.DeviceStatusOK, m.Version.Bytes())

	case protocol.OpcodeSetBaudRate:
		if len(payload) < 4 {
			m.reply(opcode, protocol.DeviceStatusBadOpcode, nil)
			return
		}
		// 应答仍按旧波特率发出
		m.reply(opcode, protocol.DeviceStatusOK, nil)
		m.DeviceBaud = int(binary.BigEndian.Uint32(payload))

	case protocol.OpcodeSetTagProtocol:
		if len(payload) == 2 {
			m.TagProtocol = payload[1]
		}
		m.reply(opcode, protocol.DeviceStatusOK, nil)

	case protocol.OpcodeSetAntennaPort:
		if len(payload) == 2 {
			m.Antenna = [2]byte{payload[0], payload[1]}
		}
		m.reply(opcode, protocol.DeviceStatusOK, nil)

	case protocol.OpcodeSetRegion:
		if len(payload) == 1 {
			m.Region = protocol.Region(payload[0])
		}
		m.reply(opcode, protocol.DeviceStatusOK, nil)

	case protocol.OpcodeSetReadTxPower:
		if len(payload) == 2 {
			m.ReadPower = int(binary.BigEndian.Uint16(payload))
		}
		m.reply(opcode, protocol.DeviceStatusOK, nil)

	case protocol.OpcodeMultiProtocolTagOp:
		m.reply(opcode, protocol.DeviceStatusOK, nil)

	case protocol.OpcodeReadTagData:
		m.readTagData(payload)

	default:
		m.reply(opcode, protocol.DeviceStatusBadOpcode, nil)
	}
}

// readTagData 请求格式: timeout(2) bank(1) address(4) words(1)
func (m *Module) readTagData(payload []byte) {
	const opcode = protocol.OpcodeReadTagData
	if len(payload) < 8 {
		m.reply(opcode, protocol.DeviceStatusBadOpcode, nil)
		return
	}
	if m.Tag == nil {
		m.reply(opcode, protocol.DeviceStatusNoTagFound, nil)
		return
	}

	bank := payload[2]
	start := int(binary.BigEndian.Uint32(payload[3:7])) * 2
	mem := m.Tag.Banks[bank]
	if start >= len(mem) {
		m.reply(opcode, protocol.DeviceStatusNoTagFound, nil)
		return
	}

	end := len(mem)
	if words := int(payload[7]); words > 0 {
		end = start + words*2
		if end > len(mem) {
			m.reply(opcode, protocol.DeviceStatusNoTagFound, nil)
			return
		}
	}

	data := append([]byte{bank}, mem[start:end]...)
	m.reply(opcode, protocol.DeviceStatusOK, data)
}

func (m *Module) reply(opcode byte, status uint16, data []byte) {
	frame, err := m.parser.EncodeResponse(opcode, status, data)
	if err != nil {
		m.log.Debugf("模拟模块组帧失败: %v", err)
		return
	}
	m.rx = append(m.rx, frame...)
}
