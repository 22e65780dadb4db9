package archive

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
)

const (
	// ManifestEntryName 每个合法 APK 必含的二进制清单条目
	ManifestEntryName = "AndroidManifest.xml"

	// bundleManifestName XAPK 外层容器的元数据条目
	bundleManifestName = "manifest.json"
)

// Kind 包的容器形态
type Kind string

const (
	KindAPK  Kind = "apk"
	KindXAPK Kind = "xapk"
)

// MemberArchive 一个内层 zip 容器的只读视图
type MemberArchive interface {
	// Name 成员名（单体包为文件名，Bundle 内为条目名）
	Name() string
	// Entries 按容器目录顺序返回全部条目路径，可重复遍历
	Entries() []string
	// ReadEntry 读取单个条目的全部字节
	ReadEntry(name string) ([]byte, error)
}

// Package 顶层输入：单体 APK 或 XAPK Bundle
type Package struct {
	Path    string
	Kind    Kind
	members []MemberArchive
	closer  io.Closer
}

// Members 返回有序、可重复遍历的成员序列
func (p *Package) Members() []MemberArchive {
	return p.members
}

// Close 释放底层文件句柄，任何退出路径都应调用
func (p *Package) Close() error {
	if p.closer == nil {
		return nil
	}
	err := p.closer.Close()
	p.closer = nil
	return err
}

// bundleManifest XAPK manifest.json 中与成员枚举相关的字段
type bundleManifest struct {
	PackageName string `json:"package_name"`
	SplitAPKs   []struct {
		File string `json:"file"`
		ID   string `json:"id"`
	} `json:"split_apks"`
}

// Open 打开应用包并按容器结构识别格式。
// 非 zip 返回 ErrUnsupportedFormat；zip 但既不是 APK 也不是 XAPK
// 同样视为不支持；内层成员无法索引返回 CorruptArchiveError。
func Open(path string) (*Package, error) {
	reader, err := zip.OpenReader(path)
	if err != nil {
		if errors.Is(err, zip.ErrFormat) {
			return nil, ErrUnsupportedFormat
		}
		return nil, err
	}

	var (
		hasManifest       bool
		hasBundleManifest bool
		innerAPKs         []string
	)
	for _, f := range reader.File {
		switch {
		case f.Name == ManifestEntryName:
			hasManifest = true
		case f.Name == bundleManifestName:
			hasBundleManifest = true
		case !strings.Contains(f.Name, "/") && strings.HasSuffix(f.Name, ".apk"):
			innerAPKs = append(innerAPKs, f.Name)
		}
	}

	// 单体 APK：自身即唯一成员
	if hasManifest {
		return &Package{
			Path:    path,
			Kind:    KindAPK,
			members: []MemberArchive{newZipMember(filepath.Base(path), &reader.Reader)},
			closer:  reader,
		}, nil
	}

	// XAPK Bundle：外层仅是运输容器，成员是内层 APK
	if hasBundleManifest && len(innerAPKs) > 0 {
		members, err := openBundleMembers(&reader.Reader, innerAPKs)
		// 内层已全部载入内存，外层句柄立即释放
		reader.Close()
		if err != nil {
			return nil, err
		}
		return &Package{
			Path:    path,
			Kind:    KindXAPK,
			members: members,
		}, nil
	}

	reader.Close()
	return nil, ErrUnsupportedFormat
}

// openBundleMembers 枚举 Bundle 中承载应用代码的内层 APK，
// 忽略纯元数据条目（manifest.json、图标等）。
func openBundleMembers(outer *zip.Reader, innerAPKs []string) ([]MemberArchive, error) {
	ordered := orderInnerAPKs(outer, innerAPKs)

	members := make([]MemberArchive, 0, len(ordered))
	for _, name := range ordered {
		data, err := readOuterEntry(outer, name)
		if err != nil {
			return nil, &CorruptArchiveError{Member: name, Err: err}
		}
		inner, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return nil, &CorruptArchiveError{Member: name, Err: err}
		}
		members = append(members, newZipMember(name, inner))
	}
	return members, nil
}

// orderInnerAPKs 按 manifest.json 的 split 列表排序（base 在前），
// 元数据缺失或不完整时退化为按名称排序，保证枚举顺序确定。
func orderInnerAPKs(outer *zip.Reader, innerAPKs []string) []string {
	sort.Strings(innerAPKs)

	data, err := readOuterEntry(outer, bundleManifestName)
	if err != nil {
		return innerAPKs
	}
	var bm bundleManifest
	if err := json.Unmarshal(data, &bm); err != nil || len(bm.SplitAPKs) == 0 {
		return innerAPKs
	}

	present := make(map[string]bool, len(innerAPKs))
	for _, name := range innerAPKs {
		present[name] = true
	}

	var ordered []string
	seen := make(map[string]bool)
	appendIf := func(file string) {
		if present[file] && !seen[file] {
			ordered = append(ordered, file)
			seen[file] = true
		}
	}
	for _, split := range bm.SplitAPKs {
		if split.ID == "base" {
			appendIf(split.File)
		}
	}
	for _, split := range bm.SplitAPKs {
		appendIf(split.File)
	}
	// 列表之外的 APK 仍然计入成员，排在末尾
	for _, name := range innerAPKs {
		appendIf(name)
	}
	return ordered
}

func readOuterEntry(outer *zip.Reader, name string) ([]byte, error) {
	f, err := outer.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// zipMember MemberArchive 的 zip 实现
type zipMember struct {
	name   string
	reader *zip.Reader
}

func newZipMember(name string, reader *zip.Reader) *zipMember {
	return &zipMember{name: name, reader: reader}
}

func (m *zipMember) Name() string {
	return m.name
}

func (m *zipMember) Entries() []string {
	entries := make([]string, 0, len(m.reader.File))
	for _, f := range m.reader.File {
		entries = append(entries, f.Name)
	}
	return entries
}

func (m *zipMember) ReadEntry(name string) ([]byte, error) {
	f, err := m.reader.Open(name)
	if err != nil {
		return nil, fmt.Errorf("read entry %q: %w", name, err)
	}
	defer f.Close()
	return io.ReadAll(f)
}
