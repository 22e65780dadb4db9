package apktest

import (
	"bytes"
	"encoding/binary"
	"strings"
)

// 与 internal/dex 读取器对应的最小 DEX 编码器：
// 只填充 header、string_ids、type_ids、class_defs 和字符串数据。

const (
	dexHeaderSize       = 0x70
	dexClassDefItemSize = 32
)

// BuildDex 构造声明了给定类（点分类名）的最小 DEX 字节
func BuildDex(classNames ...string) []byte {
	descriptors := make([]string, len(classNames))
	for i, name := range classNames {
		descriptors[i] = "L" + strings.ReplaceAll(name, ".", "/") + ";"
	}

	n := len(descriptors)
	stringIDsOff := dexHeaderSize
	typeIDsOff := stringIDsOff + n*4
	classDefsOff := typeIDsOff + n*4
	dataOff := classDefsOff + n*dexClassDefItemSize

	// 字符串数据区：uleb128 长度 + 字节 + NUL
	var data bytes.Buffer
	stringOffsets := make([]uint32, n)
	for i, desc := range descriptors {
		stringOffsets[i] = uint32(dataOff + data.Len())
		data.Write(uleb128(uint32(len(desc))))
		data.WriteString(desc)
		data.WriteByte(0)
	}

	total := dataOff + data.Len()
	out := make([]byte, total)
	copy(out, "dex\n035\x00")
	put := func(off int, v uint32) {
		binary.LittleEndian.PutUint32(out[off:], v)
	}
	put(0x20, uint32(total)) // file_size
	put(0x24, 0x70)          // header_size
	put(0x38, uint32(n))     // string_ids_size
	put(0x3c, uint32(stringIDsOff))
	put(0x40, uint32(n)) // type_ids_size
	put(0x44, uint32(typeIDsOff))
	put(0x60, uint32(n)) // class_defs_size
	put(0x64, uint32(classDefsOff))

	for i := range descriptors {
		put(stringIDsOff+i*4, stringOffsets[i])
		put(typeIDsOff+i*4, uint32(i)) // type_id -> string_id
		// class_def 首字段 class_idx -> type_id，其余字段置零
		put(classDefsOff+i*dexClassDefItemSize, uint32(i))
	}
	copy(out[dataOff:], data.Bytes())
	return out
}

func uleb128(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
		} else {
			return append(out, b)
		}
	}
}
