package protocol

import (
	"fmt"
	"strings"
)

// Frame 阅读器应答帧
type Frame struct {
	Opcode byte   `json:"opcode"`
	Status uint16 `json:"status"` // 模块状态字，0x0000 表示成功
	Data   []byte `json:"data,omitempty"`
}

// ParseResult 解析结果
type ParseResult struct {
	Success bool
	Frame   *Frame
	Error   error
}

// Status 命令执行结果，数值与模块驱动文档保持一致
type Status uint8

const (
	AllGood                   Status = 0
	ErrCommandResponseTimeout Status = 1
	ErrCorruptResponse        Status = 2
	ErrWrongOpcodeResponse    Status = 3
	ErrUnknownOpcode          Status = 4
	ResponseIsTemperature     Status = 5
	ResponseIsKeepalive       Status = 6
	ResponseIsTempThrottle    Status = 7
	ResponseIsTagFound        Status = 8
	ResponseIsNoTagFound      Status = 9
	ResponseIsUnknown         Status = 10
	ResponseSuccess           Status = 11
	ResponseFail              Status = 12
)

var statusNames = map[Status]string{
	AllGood:                   "ALL_GOOD",
	ErrCommandResponseTimeout: "COMMAND_RESPONSE_TIMEOUT",
	ErrCorruptResponse:        "CORRUPT_RESPONSE",
	ErrWrongOpcodeResponse:    "WRONG_OPCODE_RESPONSE",
	ErrUnknownOpcode:          "UNKNOWN_OPCODE",
	ResponseIsTemperature:     "RESPONSE_IS_TEMPERATURE",
	ResponseIsKeepalive:       "RESPONSE_IS_KEEPALIVE",
	ResponseIsTempThrottle:    "RESPONSE_IS_TEMPTHROTTLE",
	ResponseIsTagFound:        "RESPONSE_IS_TAGFOUND",
	ResponseIsNoTagFound:      "RESPONSE_IS_NOTAGFOUND",
	ResponseIsUnknown:         "RESPONSE_IS_UNKNOWN",
	ResponseSuccess:           "RESPONSE_SUCCESS",
	ResponseFail:              "RESPONSE_FAIL",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("STATUS(%d)", uint8(s))
}

// 操作码
const (
	OpcodeVersion            = 0x03
	OpcodeSetBaudRate        = 0x06
	OpcodeReadTagIDSingle    = 0x21
	OpcodeReadTagIDMultiple  = 0x22
	OpcodeReadTagData        = 0x28
	OpcodeMultiProtocolTagOp = 0x2F
	OpcodeGetReadTxPower     = 0x62
	OpcodeGetTagProtocol     = 0x63
	OpcodeSetAntennaPort     = 0x91
	OpcodeSetReadTxPower     = 0x92
	OpcodeSetTagProtocol     = 0x93
	OpcodeSetRegion          = 0x97
	OpcodeSetReaderOptParams = 0x9A
	OpcodeSetProtocolParam   = 0x9B
)

// 模块状态字
const (
	DeviceStatusOK         = 0x0000
	DeviceStatusNoTagFound = 0x0400
	DeviceStatusBadOpcode  = 0x0101
)

// 帧格式
const (
	FrameHeader       = 0xFF
	MaxDataLength     = 255
	CommandOverhead   = 5 // 帧头 + 长度 + 操作码 + CRC(2)
	ResponseOverhead  = 7 // 帧头 + 长度 + 操作码 + 状态(2) + CRC(2)
	MaxMessageLength  = MaxDataLength + ResponseOverhead
	RSSIOffset        = 12
	ReadDataOptionLen = 1 // 读数据应答在标签数据前带一个选项字节
)

// 上电默认参数
const (
	DefaultBaudRate  = 115200
	TagProtocolGEN2  = 0x05
	AntennaTxPort    = 0x01
	AntennaRxPort    = 0x01
	MaxReadPower     = 2700 // 27.00 dBm
	CommandTimeoutMs = 2000
)

// 标签存储区
const (
	BankReserved = 0x00
	BankEPC      = 0x01
	BankTID      = 0x02
	BankUser     = 0x03

	// EPC 区前两个字是 StoredCRC 和 PC，EPC 从第 2 个字开始
	EPCWordAddress = 0x02
)

// Region 射频区域代码
type Region byte

const (
	RegionIndia        Region = 0x04
	RegionJapan        Region = 0x05
	RegionChina        Region = 0x06
	RegionEurope       Region = 0x08
	RegionKorea        Region = 0x09
	RegionAustralia    Region = 0x0B
	RegionNewZealand   Region = 0x0C
	RegionNorthAmerica Region = 0x0D
	RegionOpen         Region = 0xFF
)

var regionNames = map[string]Region{
	"india":         RegionIndia,
	"japan":         RegionJapan,
	"china":         RegionChina,
	"europe":        RegionEurope,
	"korea":         RegionKorea,
	"australia":     RegionAustralia,
	"newzealand":    RegionNewZealand,
	"northamerica":  RegionNorthAmerica,
	"north_america": RegionNorthAmerica,
	"new_zealand":   RegionNewZealand,
	"open":          RegionOpen,
}

// ParseRegion 按名称解析区域，忽略大小写
func ParseRegion(name string) (Region, error) {
	r, ok := regionNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("未知区域: %q", name)
	}
	return r, nil
}

func (r Region) String() string {
	switch r {
	case RegionIndia:
		return "india"
	case RegionJapan:
		return "japan"
	case RegionChina:
		return "china"
	case RegionEurope:
		return "europe"
	case RegionKorea:
		return "korea"
	case RegionAustralia:
		return "australia"
	case RegionNewZealand:
		return "newzealand"
	case RegionNorthAmerica:
		return "northamerica"
	case RegionOpen:
		return "open"
	}
	return fmt.Sprintf("region(0x%02X)", byte(r))
}

// Version 固件版本应答
type Version struct {
	Bootloader   [4]byte `json:"bootloader"`
	Hardware     [4]byte `json:"hardware"`
	FirmwareDate [4]byte `json:"firmware_date"`
	Firmware     [4]byte `json:"firmware"`
	Protocols    [4]byte `json:"protocols"`
}

// VersionLength 版本应答数据长度
const VersionLength = 20

// ParseVersion 解析版本应答数据
func ParseVersion(data []byte) (Version, error) {
	var v Version
	if len(data) < VersionLength {
		return v, fmt.Errorf("版本数据长度不足: %d bytes", len(data))
	}
	copy(v.Bootloader[:], data[0:4])
	copy(v.Hardware[:], data[4:8])
	copy(v.FirmwareDate[:], data[8:12])
	copy(v.Firmware[:], data[12:16])
	copy(v.Protocols[:], data[16:20])
	return v, nil
}

// Bytes 编码为应答数据
func (v Version) Bytes() []byte {
	b := make([]byte, 0, VersionLength)
	b = append(b, v.Bootloader[:]...)
	b = append(b, v.Hardware[:]...)
	b = append(b, v.FirmwareDate[:]...)
	b = append(b, v.Firmware[:]...)
	b = append(b, v.Protocols[:]...)
	return b
}

func (v Version) String() string {
	return fmt.Sprintf("hw=%X fw=%X (%X) boot=%X",
		v.Hardware[:], v.Firmware[:], v.FirmwareDate[:], v.Bootloader[:])
}
