// Package axml 解码 APK 中二进制编码的 AndroidManifest.xml，
// 只提取检测引擎需要的结构化字段（包名、权限、feature、intent action）。
package axml

import (
	"encoding/binary"
	"errors"
	"unicode/utf16"
)

// Manifest 二进制清单中与指纹相关的字段
type Manifest struct {
	Package     string
	Permissions []string // uses-permission android:name
	Features    []string // uses-feature android:name
	Actions     []string // intent-filter 内 action android:name
}

// AXML chunk 类型
const (
	chunkStringPool     = 0x0001
	chunkXMLDocument    = 0x0003
	chunkStartNamespace = 0x0100
	chunkEndNamespace   = 0x0101
	chunkStartElement   = 0x0102
	chunkEndElement     = 0x0103
	chunkCData          = 0x0104
	chunkResourceMap    = 0x0180
)

const (
	utf8Flag     = 0x00000100
	noRawValue   = 0xffffffff
	typeString   = 0x03
	attrItemSize = 20
)

var (
	errNotBinaryXML = errors.New("not a binary xml document")
	errTruncated    = errors.New("binary xml truncated")
)

// Decode 解析二进制清单。格式损坏返回错误，调用方将其视为损坏成员。
func Decode(data []byte) (*Manifest, error) {
	if len(data) < 8 {
		return nil, errTruncated
	}
	if binary.LittleEndian.Uint16(data) != chunkXMLDocument {
		return nil, errNotBinaryXML
	}
	total := int(binary.LittleEndian.Uint32(data[4:]))
	if total > len(data) {
		return nil, errTruncated
	}

	var (
		pool     []string
		manifest = &Manifest{}
	)

	off := 8
	for off+8 <= total {
		chunkType := binary.LittleEndian.Uint16(data[off:])
		chunkSize := int(binary.LittleEndian.Uint32(data[off+4:]))
		if chunkSize < 8 || off+chunkSize > total {
			return nil, errTruncated
		}
		chunk := data[off : off+chunkSize]

		switch chunkType {
		case chunkStringPool:
			parsed, err := parseStringPool(chunk)
			if err != nil {
				return nil, err
			}
			pool = parsed
		case chunkStartElement:
			if err := parseStartElement(chunk, pool, manifest); err != nil {
				return nil, err
			}
		default:
			// 命名空间、resource map、end element 对指纹无贡献
		}

		off += chunkSize
	}

	return manifest, nil
}

// parseStringPool 解析字符串池（UTF-8 与 UTF-16 两种编码）
func parseStringPool(chunk []byte) ([]string, error) {
	if len(chunk) < 28 {
		return nil, errTruncated
	}
	headerSize := int(binary.LittleEndian.Uint16(chunk[2:]))
	count := int(binary.LittleEndian.Uint32(chunk[8:]))
	flags := binary.LittleEndian.Uint32(chunk[16:])
	stringsStart := int(binary.LittleEndian.Uint32(chunk[20:]))
	isUTF8 := flags&utf8Flag != 0

	if headerSize < 28 || headerSize+count*4 > len(chunk) || stringsStart > len(chunk) {
		return nil, errTruncated
	}

	pool := make([]string, count)
	for i := 0; i < count; i++ {
		offset := int(binary.LittleEndian.Uint32(chunk[headerSize+i*4:]))
		pos := stringsStart + offset
		if pos >= len(chunk) {
			return nil, errTruncated
		}
		s, err := decodePoolString(chunk[pos:], isUTF8)
		if err != nil {
			return nil, err
		}
		pool[i] = s
	}
	return pool, nil
}

func decodePoolString(b []byte, isUTF8 bool) (string, error) {
	if isUTF8 {
		// charCount 与 byteCount 各为 1-2 字节的变长值
		_, n1 := readUTF8Length(b)
		if n1 == 0 || len(b) < n1 {
			return "", errTruncated
		}
		byteLen, n2 := readUTF8Length(b[n1:])
		start := n1 + n2
		if n2 == 0 || start+byteLen > len(b) {
			return "", errTruncated
		}
		return string(b[start : start+byteLen]), nil
	}

	if len(b) < 2 {
		return "", errTruncated
	}
	charLen := int(binary.LittleEndian.Uint16(b))
	start := 2
	if charLen&0x8000 != 0 {
		if len(b) < 4 {
			return "", errTruncated
		}
		charLen = (charLen&0x7fff)<<16 | int(binary.LittleEndian.Uint16(b[2:]))
		start = 4
	}
	if start+charLen*2 > len(b) {
		return "", errTruncated
	}
	units := make([]uint16, charLen)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(b[start+i*2:])
	}
	return string(utf16.Decode(units)), nil
}

func readUTF8Length(b []byte) (int, int) {
	if len(b) == 0 {
		return 0, 0
	}
	if b[0]&0x80 == 0 {
		return int(b[0]), 1
	}
	if len(b) < 2 {
		return 0, 0
	}
	return int(b[0]&0x7f)<<8 | int(b[1]), 2
}

// parseStartElement 收集 manifest/uses-permission/uses-feature/action 元素的属性
func parseStartElement(chunk []byte, pool []string, m *Manifest) error {
	if len(chunk) < 36 {
		return errTruncated
	}
	nameIdx := binary.LittleEndian.Uint32(chunk[20:])
	attrStart := int(binary.LittleEndian.Uint16(chunk[24:]))
	attrCount := int(binary.LittleEndian.Uint16(chunk[28:]))

	element := poolString(pool, nameIdx)
	switch element {
	case "manifest", "uses-permission", "uses-permission-sdk-23", "uses-feature", "action":
	default:
		return nil
	}

	// 属性数组起点相对于 node header 之后的扩展区（偏移 16）
	base := 16 + attrStart
	for i := 0; i < attrCount; i++ {
		pos := base + i*attrItemSize
		if pos+attrItemSize > len(chunk) {
			return errTruncated
		}
		attrName := poolString(pool, binary.LittleEndian.Uint32(chunk[pos+4:]))
		value := attributeValue(chunk[pos:], pool)
		if value == "" {
			continue
		}

		switch {
		case element == "manifest" && attrName == "package":
			m.Package = value
		case (element == "uses-permission" || element == "uses-permission-sdk-23") && attrName == "name":
			m.Permissions = append(m.Permissions, value)
		case element == "uses-feature" && attrName == "name":
			m.Features = append(m.Features, value)
		case element == "action" && attrName == "name":
			m.Actions = append(m.Actions, value)
		}
	}
	return nil
}

// attributeValue 取属性的字符串值：优先 rawValue，其次 string 类型的 typed data
func attributeValue(attr []byte, pool []string) string {
	rawIdx := binary.LittleEndian.Uint32(attr[8:])
	if rawIdx != noRawValue {
		return poolString(pool, rawIdx)
	}
	if attr[15] == typeString {
		return poolString(pool, binary.LittleEndian.Uint32(attr[16:]))
	}
	return ""
}

func poolString(pool []string, idx uint32) string {
	if int(idx) >= len(pool) {
		return ""
	}
	return pool[idx]
}
