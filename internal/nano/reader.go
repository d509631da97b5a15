package nano

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"uhf-telemetry/internal/parser"
	"uhf-telemetry/internal/transport"
	"uhf-telemetry/pkg/protocol"
)

// Reader M6E-Nano 命令驱动
//
// 每条命令先清空接收缓冲区，再发送命令帧并按 CommandTimeout 等待应答。
// 最近一次应答的原始字节保存在 msg 中，后续应答只覆盖自身长度，
// 所以 TagRSSI 读到的可能是更早一帧留下的字节。
type Reader struct {
	link    transport.Link
	parser  *parser.Parser
	log     *logrus.Logger
	timeout time.Duration
	now     func() time.Time

	msg  [protocol.MaxMessageLength]byte
	last protocol.Frame
}

type Options struct {
	CommandTimeout time.Duration
}

func NewReader(link transport.Link, opts Options, log *logrus.Logger) *Reader {
	timeout := opts.CommandTimeout
	if timeout <= 0 {
		timeout = protocol.CommandTimeoutMs * time.Millisecond
	}
	return &Reader{
		link:    link,
		parser:  parser.NewParser(),
		log:     log,
		timeout: timeout,
		now:     time.Now,
	}
}

// LastFrame 最近一次成功解析的应答帧
func (r *Reader) LastFrame() protocol.Frame {
	return r.last
}

// GetVersion 查询固件版本
func (r *Reader) GetVersion() (protocol.Version, protocol.Status) {
	status := r.sendCommand(protocol.OpcodeVersion, nil, r.timeout)
	if status != protocol.AllGood {
		return protocol.Version{}, status
	}
	v, err := protocol.ParseVersion(r.last.Data)
	if err != nil {
		r.log.Debugf("版本应答解析失败: %v", err)
	}
	return v, status
}

// StopReading 停止连续盘点，不等待应答
func (r *Reader) StopReading() error {
	return r.write(protocol.OpcodeMultiProtocolTagOp, []byte{0x00, 0x00, 0x02})
}

// SetBaud 通知模块切换波特率，应答在旧波特率上返回
func (r *Reader) SetBaud(baud int) protocol.Status {
	data := binary.BigEndian.AppendUint32(nil, uint32(baud))
	return r.sendCommand(protocol.OpcodeSetBaudRate, data, r.timeout)
}

func (r *Reader) SetTagProtocol(tagProtocol byte) protocol.Status {
	return r.sendCommand(protocol.OpcodeSetTagProtocol, []byte{0x00, tagProtocol}, r.timeout)
}

// SetAntennaPort 收发都使用 1 号天线口
func (r *Reader) SetAntennaPort() protocol.Status {
	data := []byte{protocol.AntennaTxPort, protocol.AntennaRxPort}
	return r.sendCommand(protocol.OpcodeSetAntennaPort, data, r.timeout)
}

func (r *Reader) SetRegion(region protocol.Region) protocol.Status {
	return r.sendCommand(protocol.OpcodeSetRegion, []byte{byte(region)}, r.timeout)
}

// SetReadPower 设置读功率，单位 0.01 dBm，超过 27.00 dBm 按上限处理
func (r *Reader) SetReadPower(power int) protocol.Status {
	if power > protocol.MaxReadPower {
		r.log.Warnf("读功率 %d 超过上限, 使用 %d", power, protocol.MaxReadPower)
		power = protocol.MaxReadPower
	}
	if power < 0 {
		power = 0
	}
	data := binary.BigEndian.AppendUint16(nil, uint16(power))
	return r.sendCommand(protocol.OpcodeSetReadTxPower, data, r.timeout)
}

// ReadData 单次读取标签指定存储区，length 为字节数
//
// 返回 ResponseSuccess 与读到的数据，或 ResponseFail。模块在 timeout 内
// 找不到标签时以非零状态字应答。
func (r *Reader) ReadData(bank byte, address uint32, length int, timeout time.Duration) ([]byte, protocol.Status) {
	ms := timeout.Milliseconds()
	if ms > 0xFFFF {
		ms = 0xFFFF
	}

	data := make([]byte, 0, 8)
	data = binary.BigEndian.AppendUint16(data, uint16(ms))
	data = append(data, bank)
	data = binary.BigEndian.AppendUint32(data, address)
	data = append(data, byte(length/2)) // 按 16 位字计数，0 表示整个存储区

	// 应答等待时间要覆盖模块自己的搜索时间
	status := r.sendCommand(protocol.OpcodeReadTagData, data, timeout+r.timeout)
	if status != protocol.AllGood {
		return nil, protocol.ResponseFail
	}
	if r.last.Status != protocol.DeviceStatusOK {
		r.log.Debugf("读标签数据失败: 状态字 0x%04X", r.last.Status)
		return nil, protocol.ResponseFail
	}
	if len(r.last.Data) < protocol.ReadDataOptionLen {
		return nil, protocol.ResponseFail
	}

	payload := r.last.Data[protocol.ReadDataOptionLen:]
	if length > 0 && len(payload) > length {
		payload = payload[:length]
	}
	out := make([]byte, len(payload))
	copy(out, payload)
	return out, protocol.ResponseSuccess
}

// ReadTagEPC 读取标签 EPC
func (r *Reader) ReadTagEPC(maxLength int, timeout time.Duration) ([]byte, protocol.Status) {
	return r.ReadData(protocol.BankEPC, protocol.EPCWordAddress, maxLength, timeout)
}

// TagRSSI 最近一次应答缓冲区中的 RSSI 字节
func (r *Reader) TagRSSI() int {
	return int(r.msg[protocol.RSSIOffset]) - 256
}

func (r *Reader) write(opcode byte, data []byte) error {
	frame, err := r.parser.Encode(opcode, data)
	if err != nil {
		return err
	}
	if err := r.link.Flush(); err != nil {
		r.log.Debugf("清空接收缓冲区失败: %v", err)
	}
	if _, err := r.link.Write(frame); err != nil {
		return fmt.Errorf("发送命令 0x%02X 失败: %w", opcode, err)
	}
	r.log.Tracef("发送命令: % X", frame)
	return nil
}

func (r *Reader) sendCommand(opcode byte, data []byte, timeout time.Duration) protocol.Status {
	if err := r.write(opcode, data); err != nil {
		r.log.Warnf("%v", err)
		return protocol.ErrCommandResponseTimeout
	}
	return r.receiveResponse(opcode, timeout)
}

func (r *Reader) receiveResponse(opcode byte, timeout time.Duration) protocol.Status {
	deadline := r.now().Add(timeout)
	spot := 0
	size := protocol.ResponseOverhead

	for r.now().Before(deadline) {
		if !r.link.Available() {
			continue
		}
		b, err := r.link.ReadByte()
		if err != nil {
			continue
		}
		// 帧头之前的字节都是噪声
		if spot == 0 && b != protocol.FrameHeader {
			continue
		}

		r.msg[spot] = b
		spot++
		if spot == 2 {
			size = int(b) + protocol.ResponseOverhead
		}
		if spot == size {
			return r.checkResponse(opcode, size)
		}
	}

	r.log.Debugf("命令 0x%02X 应答超时 (已收 %d bytes)", opcode, spot)
	return protocol.ErrCommandResponseTimeout
}

func (r *Reader) checkResponse(opcode byte, size int) protocol.Status {
	result := r.parser.Parse(r.msg[:size])
	if !result.Success {
		r.log.Debugf("应答帧损坏: %v, 数据: % X", result.Error, r.msg[:size])
		return protocol.ErrCorruptResponse
	}

	r.last = *result.Frame
	if result.Frame.Opcode != opcode {
		r.log.Debugf("应答操作码不匹配: 期望 0x%02X, 实际 0x%02X", opcode, result.Frame.Opcode)
		return protocol.ErrWrongOpcodeResponse
	}
	return protocol.AllGood
}
