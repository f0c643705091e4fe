// Package wire 实现广播信封的组帧格式。
//
// 外层信封把已序列化的交易载荷包进广播协议消费的调用数据里，
// 长度前缀使用按数值大小分四档的紧凑变长无符号整数编码。
package wire

import (
	"encoding/binary"
	"fmt"
)

// MaxCompactValue 紧凑编码支持的最大值（2^30 − 1）
//
// 第四档（大整数模式）在参考格式中存在，但本系统刻意不实现：
// 信封长度超过 1 GiB 的交易在这条链上不可能合法，这里保持硬上限。
const MaxCompactValue = 1<<30 - 1

// ErrLengthOverflow 数值超出紧凑编码支持的范围
var ErrLengthOverflow = fmt.Errorf("compact length overflow: value exceeds %d", uint64(MaxCompactValue))

// 模式标签（最低两位）
const (
	modeSingle = 0x00 // 1字节：0–63
	modeDouble = 0x01 // 2字节小端：64–16383
	modeQuad   = 0x02 // 4字节小端：16384–2^30−1
	modeBig    = 0x03 // 大整数模式，不支持
)

// AppendCompact 将 v 以紧凑编码追加到 dst
//
// 四个档位按数值大小选择：
// - 0–63：1字节，数值左移2位（标签 00）
// - 64–16383：2字节小端，左移2位 | 01
// - 16384–1073741823：4字节小端，左移2位 | 10
// - 更大：返回 ErrLengthOverflow
func AppendCompact(dst []byte, v uint64) ([]byte, error) {
	switch {
	case v <= 63:
		return append(dst, byte(v<<2)|modeSingle), nil
	case v <= 16383:
		return binary.LittleEndian.AppendUint16(dst, uint16(v<<2)|modeDouble), nil
	case v <= MaxCompactValue:
		return binary.LittleEndian.AppendUint32(dst, uint32(v<<2)|modeQuad), nil
	default:
		return nil, ErrLengthOverflow
	}
}

// DecodeCompact 从 b 开头解码一个紧凑编码数值
//
// 返回数值和消耗的字节数。大整数模式（标签 11）返回错误。
func DecodeCompact(b []byte) (uint64, int, error) {
	if len(b) == 0 {
		return 0, 0, fmt.Errorf("decode compact: empty input")
	}

	switch b[0] & 0x03 {
	case modeSingle:
		return uint64(b[0] >> 2), 1, nil

	case modeDouble:
		if len(b) < 2 {
			return 0, 0, fmt.Errorf("decode compact: need 2 bytes, have %d", len(b))
		}
		return uint64(binary.LittleEndian.Uint16(b) >> 2), 2, nil

	case modeQuad:
		if len(b) < 4 {
			return 0, 0, fmt.Errorf("decode compact: need 4 bytes, have %d", len(b))
		}
		return uint64(binary.LittleEndian.Uint32(b) >> 2), 4, nil

	default:
		return 0, 0, fmt.Errorf("decode compact: big-integer mode not supported")
	}
}
