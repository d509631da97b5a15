package parser

import (
	"encoding/binary"
	"errors"
	"fmt"

	"uhf-telemetry/pkg/protocol"
)

var (
	ErrShortFrame = errors.New("帧长度不足")
	ErrBadHeader  = errors.New("帧头错误")
	ErrChecksum   = errors.New("CRC 校验失败")
	ErrTooLong    = errors.New("数据超过最大长度")
)

// crcTable 模块 CRC 使用的半字节查找表 (多项式 0x1021)
var crcTable = [16]uint16{
	0x0000, 0x1021, 0x2042, 0x3063,
	0x4084, 0x50a5, 0x60c6, 0x70e7,
	0x8108, 0x9129, 0xa14a, 0xb16b,
	0xc18c, 0xd1ad, 0xe1ce, 0xf1ef,
}

// Checksum 计算模块帧 CRC，寄存器初值 0xFFFF，按半字节移入数据
func Checksum(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc = ((crc << 4) | uint16(b>>4)) ^ crcTable[crc>>12]
		crc = ((crc << 4) | uint16(b&0x0F)) ^ crcTable[crc>>12]
	}
	return crc
}

type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

// Encode 组装命令帧: FF len opcode data crc
func (p *Parser) Encode(opcode byte, data []byte) ([]byte, error) {
	if len(data) > protocol.MaxDataLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLong, len(data))
	}

	frame := make([]byte, 0, len(data)+protocol.CommandOverhead)
	frame = append(frame, protocol.FrameHeader, byte(len(data)), opcode)
	frame = append(frame, data...)

	crc := Checksum(frame[1:])
	return binary.BigEndian.AppendUint16(frame, crc), nil
}

// EncodeResponse 组装应答帧: FF len opcode status data crc
func (p *Parser) EncodeResponse(opcode byte, status uint16, data []byte) ([]byte, error) {
	if len(data) > protocol.MaxDataLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLong, len(data))
	}

	frame := make([]byte, 0, len(data)+protocol.ResponseOverhead)
	frame = append(frame, protocol.FrameHeader, byte(len(data)), opcode)
	frame = binary.BigEndian.AppendUint16(frame, status)
	frame = append(frame, data...)

	crc := Checksum(frame[1:])
	return binary.BigEndian.AppendUint16(frame, crc), nil
}

// Parse 解析应答帧
func (p *Parser) Parse(data []byte) *protocol.ParseResult {
	result := &protocol.ParseResult{
		Success: false,
	}

	if len(data) < protocol.ResponseOverhead {
		result.Error = fmt.Errorf("%w: %d bytes", ErrShortFrame, len(data))
		return result
	}

	if data[0] != protocol.FrameHeader {
		result.Error = fmt.Errorf("%w: 0x%02X", ErrBadHeader, data[0])
		return result
	}

	size := int(data[1]) + protocol.ResponseOverhead
	if len(data) < size {
		result.Error = fmt.Errorf("%w: 需要 %d bytes, 实际 %d bytes", ErrShortFrame, size, len(data))
		return result
	}

	received := binary.BigEndian.Uint16(data[size-2 : size])
	if calculated := Checksum(data[1 : size-2]); received != calculated {
		result.Error = fmt.Errorf("%w: 接收 0x%04X, 计算 0x%04X", ErrChecksum, received, calculated)
		return result
	}

	payload := make([]byte, int(data[1]))
	copy(payload, data[5:size-2])

	result.Success = true
	result.Frame = &protocol.Frame{
		Opcode: data[2],
		Status: binary.BigEndian.Uint16(data[3:5]),
		Data:   payload,
	}
	return result
}

// ParseCommand 解析命令帧，供模拟器使用
func (p *Parser) ParseCommand(data []byte) (opcode byte, payload []byte, err error) {
	if len(data) < protocol.CommandOverhead {
		return 0, nil, fmt.Errorf("%w: %d bytes", ErrShortFrame, len(data))
	}
	if data[0] != protocol.FrameHeader {
		return 0, nil, fmt.Errorf("%w: 0x%02X", ErrBadHeader, data[0])
	}

	size := int(data[1]) + protocol.CommandOverhead
	if len(data) < size {
		return 0, nil, fmt.Errorf("%w: 需要 %d bytes, 实际 %d bytes", ErrShortFrame, size, len(data))
	}

	received := binary.BigEndian.Uint16(data[size-2 : size])
	if calculated := Checksum(data[1 : size-2]); received != calculated {
		return 0, nil, fmt.Errorf("%w: 接收 0x%04X, 计算 0x%04X", ErrChecksum, received, calculated)
	}

	payload = make([]byte, int(data[1]))
	copy(payload, data[3:size-2])
	return data[2], payload, nil
}

// CommandSize 返回以 data[0] 开头的命令帧总长度，长度字节未到时返回 0
func CommandSize(data []byte) int {
	if len(data) < 2 {
		return 0
	}
	return int(data[1]) + protocol.CommandOverhead
}
