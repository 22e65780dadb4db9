package apktest

import (
	"bytes"
	"encoding/binary"
	"unicode/utf16"
)

// 与 internal/axml 解码器对应的最小 AXML 编码器。
// 字符串池固定 UTF-16，属性值走 rawValue 索引。

const (
	axChunkStringPool   = 0x0001
	axChunkXMLDocument  = 0x0003
	axChunkStartElement = 0x0102
	axChunkEndElement   = 0x0103
	axNoEntry           = 0xffffffff
	axTypeString        = 0x03
)

// BuildManifest 把 ManifestSpec 编码为二进制 AndroidManifest.xml
func BuildManifest(spec ManifestSpec) []byte {
	pool := newPoolBuilder()

	// 元素与属性名先于值进池，顺序无关紧要，索引一致即可
	elManifest := pool.index("manifest")
	elPermission := pool.index("uses-permission")
	elFeature := pool.index("uses-feature")
	elAction := pool.index("action")
	atPackage := pool.index("package")
	atName := pool.index("name")

	var body bytes.Buffer
	writeStart := func(nameIdx uint32, attrName, attrValue uint32) {
		writeStartElement(&body, nameIdx, attrName, attrValue)
		writeEndElement(&body, nameIdx)
	}

	// manifest 元素包裹其余元素；解码器不要求嵌套闭合，
	// 这里仍按真实文档的顺序先开 manifest
	writeStartElement(&body, elManifest, atPackage, pool.index(spec.Package))
	for _, p := range spec.Permissions {
		writeStart(elPermission, atName, pool.index(p))
	}
	for _, f := range spec.Features {
		writeStart(elFeature, atName, pool.index(f))
	}
	for _, a := range spec.Actions {
		writeStart(elAction, atName, pool.index(a))
	}
	writeEndElement(&body, elManifest)

	poolChunk := pool.encode()

	var doc bytes.Buffer
	writeU16(&doc, axChunkXMLDocument)
	writeU16(&doc, 8)
	writeU32(&doc, uint32(8+len(poolChunk)+body.Len()))
	doc.Write(poolChunk)
	doc.Write(body.Bytes())
	return doc.Bytes()
}

type poolBuilder struct {
	strings []string
	indexOf map[string]uint32
}

func newPoolBuilder() *poolBuilder {
	return &poolBuilder{indexOf: make(map[string]uint32)}
}

func (p *poolBuilder) index(s string) uint32 {
	if idx, ok := p.indexOf[s]; ok {
		return idx
	}
	idx := uint32(len(p.strings))
	p.strings = append(p.strings, s)
	p.indexOf[s] = idx
	return idx
}

func (p *poolBuilder) encode() []byte {
	var data bytes.Buffer
	offsets := make([]uint32, len(p.strings))
	for i, s := range p.strings {
		offsets[i] = uint32(data.Len())
		units := utf16.Encode([]rune(s))
		writeU16(&data, uint16(len(units)))
		for _, u := range units {
			writeU16(&data, u)
		}
		writeU16(&data, 0) // NUL 终止
	}
	for data.Len()%4 != 0 {
		data.WriteByte(0)
	}

	headerSize := 28
	stringsStart := headerSize + len(offsets)*4
	chunkSize := stringsStart + data.Len()

	var chunk bytes.Buffer
	writeU16(&chunk, axChunkStringPool)
	writeU16(&chunk, uint16(headerSize))
	writeU32(&chunk, uint32(chunkSize))
	writeU32(&chunk, uint32(len(p.strings))) // stringCount
	writeU32(&chunk, 0)                      // styleCount
	writeU32(&chunk, 0)                      // flags: UTF-16
	writeU32(&chunk, uint32(stringsStart))
	writeU32(&chunk, 0) // stylesStart
	for _, off := range offsets {
		writeU32(&chunk, off)
	}
	chunk.Write(data.Bytes())
	return chunk.Bytes()
}

func writeStartElement(buf *bytes.Buffer, nameIdx, attrName, attrValue uint32) {
	const attrCount = 1
	chunkSize := 36 + attrCount*20

	writeU16(buf, axChunkStartElement)
	writeU16(buf, 16) // headerSize
	writeU32(buf, uint32(chunkSize))
	writeU32(buf, 0)         // lineNumber
	writeU32(buf, axNoEntry) // comment
	writeU32(buf, axNoEntry) // namespace
	writeU32(buf, nameIdx)
	writeU16(buf, 20) // attributeStart
	writeU16(buf, 20) // attributeSize
	writeU16(buf, attrCount)
	writeU16(buf, 0) // idIndex
	writeU16(buf, 0) // classIndex
	writeU16(buf, 0) // styleIndex

	// 属性：ns, name, rawValue, typedValue(size/res0/type/data)
	writeU32(buf, axNoEntry)
	writeU32(buf, attrName)
	writeU32(buf, attrValue)
	writeU16(buf, 20)
	buf.WriteByte(0)
	buf.WriteByte(axTypeString)
	writeU32(buf, attrValue)
}

func writeEndElement(buf *bytes.Buffer, nameIdx uint32) {
	writeU16(buf, axChunkEndElement)
	writeU16(buf, 16)
	writeU32(buf, 24)
	writeU32(buf, 0)         // lineNumber
	writeU32(buf, axNoEntry) // comment
	writeU32(buf, axNoEntry) // namespace
	writeU32(buf, nameIdx)
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}
