// Package dex 从 DEX 字节码的符号表提取声明类名，
// 不做任何反编译，只读 class_defs / type_ids / string_ids 三张表。
package dex

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

const (
	headerSize       = 0x70
	stringIDsSizeOff = 0x38
	stringIDsOffOff  = 0x3c
	typeIDsSizeOff   = 0x40
	typeIDsOffOff    = 0x44
	classDefsSizeOff = 0x60
	classDefsOffOff  = 0x64
	classDefItemSize = 32
)

var (
	errNotDex    = errors.New("not a dex file")
	errTruncated = errors.New("dex file truncated")
)

// ClassNames 返回 DEX 中声明（定义）的全部类名，点分形式，
// 例如 "com.facebook.react.bridge.ReactContext"。
func ClassNames(data []byte) ([]string, error) {
	if len(data) < headerSize {
		return nil, errNotDex
	}
	if string(data[:4]) != "dex\n" {
		return nil, errNotDex
	}

	stringCount := int(binary.LittleEndian.Uint32(data[stringIDsSizeOff:]))
	stringOff := int(binary.LittleEndian.Uint32(data[stringIDsOffOff:]))
	typeCount := int(binary.LittleEndian.Uint32(data[typeIDsSizeOff:]))
	typeOff := int(binary.LittleEndian.Uint32(data[typeIDsOffOff:]))
	classCount := int(binary.LittleEndian.Uint32(data[classDefsSizeOff:]))
	classOff := int(binary.LittleEndian.Uint32(data[classDefsOffOff:]))

	if stringOff+stringCount*4 > len(data) || typeOff+typeCount*4 > len(data) ||
		classOff+classCount*classDefItemSize > len(data) {
		return nil, errTruncated
	}

	names := make([]string, 0, classCount)
	for i := 0; i < classCount; i++ {
		typeIdx := int(binary.LittleEndian.Uint32(data[classOff+i*classDefItemSize:]))
		if typeIdx >= typeCount {
			return nil, fmt.Errorf("class_def %d: type index out of range: %w", i, errTruncated)
		}
		descIdx := int(binary.LittleEndian.Uint32(data[typeOff+typeIdx*4:]))
		if descIdx >= stringCount {
			return nil, fmt.Errorf("type_id %d: string index out of range: %w", typeIdx, errTruncated)
		}
		descOff := int(binary.LittleEndian.Uint32(data[stringOff+descIdx*4:]))
		desc, err := readStringData(data, descOff)
		if err != nil {
			return nil, err
		}
		if name, ok := descriptorToClassName(desc); ok {
			names = append(names, name)
		}
	}
	return names, nil
}

// readStringData 读取 string_data_item：uleb128 长度前缀 + MUTF-8 字节，NUL 结尾。
// 类描述符均为 ASCII，按 UTF-8 处理即可。
func readStringData(data []byte, off int) (string, error) {
	if off >= len(data) {
		return "", errTruncated
	}
	_, n := readULEB128(data[off:])
	if n == 0 {
		return "", errTruncated
	}
	start := off + n
	end := start
	for end < len(data) && data[end] != 0 {
		end++
	}
	if end == len(data) {
		return "", errTruncated
	}
	return string(data[start:end]), nil
}

func readULEB128(b []byte) (uint32, int) {
	var result uint32
	for i := 0; i < 5 && i < len(b); i++ {
		result |= uint32(b[i]&0x7f) << (7 * i)
		if b[i]&0x80 == 0 {
			return result, i + 1
		}
	}
	return 0, 0
}

// descriptorToClassName 把 "Lcom/foo/Bar;" 转成 "com.foo.Bar"。
// 数组、基本类型描述符不是声明类，直接丢弃。
func descriptorToClassName(desc string) (string, bool) {
	if len(desc) < 3 || desc[0] != 'L' || desc[len(desc)-1] != ';' {
		return "", false
	}
	return strings.ReplaceAll(desc[1:len(desc)-1], "/", "."), true
}
