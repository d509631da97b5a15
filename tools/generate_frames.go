package main

import (
	"encoding/binary"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strings"

	"uhf-telemetry/internal/parser"
	"uhf-telemetry/pkg/protocol"
)

// 生成阅读器命令帧，或解析抓包得到的应答帧，用于台架调试
func main() {
	op := flag.String("op", "version", "命令 (version|stop|baud|protocol|antenna|region|power|read|epc)")
	value := flag.Int("value", 0, "命令参数: 波特率/功率/区域代码/超时毫秒")
	bank := flag.Uint("bank", protocol.BankReserved, "读取的存储区")
	address := flag.Uint("addr", 0x0B, "读取的起始字地址")
	length := flag.Int("len", 2, "读取字节数")
	response := flag.String("parse", "", "解析十六进制应答帧, 例如 \"FF 00 03 00 00 ...\"")
	flag.Parse()

	p := parser.NewParser()

	if *response != "" {
		raw, err := hex.DecodeString(strings.ReplaceAll(*response, " ", ""))
		if err != nil {
			fmt.Fprintf(os.Stderr, "十六进制格式错误: %v\n", err)
			os.Exit(1)
		}
		parseAndDisplay(p, raw)
		return
	}

	opcode, data, err := buildCommand(*op, *value, byte(*bank), uint32(*address), *length)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	frame, err := p.Encode(opcode, data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "组帧失败: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("命令 %s (0x%02X):\n", *op, opcode)
	fmt.Printf("  十六进制: %s\n", hex.EncodeToString(frame))
	fmt.Printf("  字节数组: % X\n", frame)
	fmt.Printf("  C格式:    {%s}\n", toArray(frame))
	fmt.Printf("  Go格式:   []byte{%s}\n", toArray(frame))
}

func buildCommand(op string, value int, bank byte, address uint32, length int) (byte, []byte, error) {
	switch op {
	case "version":
		return protocol.OpcodeVersion, nil, nil
	case "stop":
		return protocol.OpcodeMultiProtocolTagOp, []byte{0x00, 0x00, 0x02}, nil
	case "baud":
		if value <= 0 {
			value = protocol.DefaultBaudRate
		}
		return protocol.OpcodeSetBaudRate, binary.BigEndian.AppendUint32(nil, uint32(value)), nil
	case "protocol":
		return protocol.OpcodeSetTagProtocol, []byte{0x00, protocol.TagProtocolGEN2}, nil
	case "antenna":
		return protocol.OpcodeSetAntennaPort, []byte{protocol.AntennaTxPort, protocol.AntennaRxPort}, nil
	case "region":
		if value <= 0 {
			value = int(protocol.RegionEurope)
		}
		return protocol.OpcodeSetRegion, []byte{byte(value)}, nil
	case "power":
		if value > protocol.MaxReadPower {
			value = protocol.MaxReadPower
		}
		return protocol.OpcodeSetReadTxPower, binary.BigEndian.AppendUint16(nil, uint16(value)), nil
	case "read", "epc":
		if op == "epc" {
			bank, address = protocol.BankEPC, protocol.EPCWordAddress
		}
		timeout := value
		if timeout <= 0 {
			timeout = protocol.CommandTimeoutMs
		}
		data := binary.BigEndian.AppendUint16(nil, uint16(timeout))
		data = append(data, bank)
		data = binary.BigEndian.AppendUint32(data, address)
		data = append(data, byte(length/2))
		return protocol.OpcodeReadTagData, data, nil
	}
	return 0, nil, fmt.Errorf("未知命令: %s", op)
}

// parseAndDisplay 解析并显示应答帧内容
func parseAndDisplay(p *parser.Parser, raw []byte) {
	result := p.Parse(raw)
	if !result.Success {
		fmt.Printf("  错误: %v\n", result.Error)
		return
	}

	f := result.Frame
	fmt.Printf("  解析结果:\n")
	fmt.Printf("    操作码:   0x%02X\n", f.Opcode)
	fmt.Printf("    状态字:   0x%04X\n", f.Status)
	fmt.Printf("    数据:     % X\n", f.Data)
	if f.Opcode == protocol.OpcodeVersion {
		if v, err := protocol.ParseVersion(f.Data); err == nil {
			fmt.Printf("    版本:     %s\n", v)
		}
	}
	if len(raw) > protocol.RSSIOffset {
		fmt.Printf("    RSSI:     %d\n", int(raw[protocol.RSSIOffset])-256)
	}
}

func toArray(data []byte) string {
	parts := make([]string, len(data))
	for i, b := range data {
		parts[i] = fmt.Sprintf("0x%02X", b)
	}
	return strings.Join(parts, ", ")
}
