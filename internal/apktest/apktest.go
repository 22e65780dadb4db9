// Package apktest 构造测试用的合成 APK/XAPK 字节，
// 仓库不携带真实应用包，各引擎测试共用这里的构造器。
package apktest

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
)

// Entry zip 条目
type Entry struct {
	Name string
	Data []byte
}

// BuildZip 按给定顺序写出一个 zip 容器
func BuildZip(entries []Entry) []byte {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, entry := range entries {
		f, err := w.Create(entry.Name)
		if err != nil {
			panic(fmt.Sprintf("apktest: create entry %s: %v", entry.Name, err))
		}
		if _, err := f.Write(entry.Data); err != nil {
			panic(fmt.Sprintf("apktest: write entry %s: %v", entry.Name, err))
		}
	}
	if err := w.Close(); err != nil {
		panic(fmt.Sprintf("apktest: close zip: %v", err))
	}
	return buf.Bytes()
}

// ManifestSpec 合成清单的内容
type ManifestSpec struct {
	Package     string
	Permissions []string
	Features    []string
	Actions     []string
}

// BuildAPK 构造含二进制清单的最小 APK
func BuildAPK(manifest ManifestSpec, extra ...Entry) []byte {
	entries := []Entry{{Name: "AndroidManifest.xml", Data: BuildManifest(manifest)}}
	entries = append(entries, extra...)
	return BuildZip(entries)
}

// SplitAPK XAPK 内层成员
type SplitAPK struct {
	File string // 外层条目名
	ID   string // manifest.json 中的 split id（base 为基础包）
	Data []byte
}

// BuildXAPK 构造 XAPK Bundle：manifest.json 元数据 + 内层 APK 条目
func BuildXAPK(packageName string, splits []SplitAPK, extra ...Entry) []byte {
	type splitRef struct {
		File string `json:"file"`
		ID   string `json:"id"`
	}
	meta := struct {
		XAPKVersion int        `json:"xapk_version"`
		PackageName string     `json:"package_name"`
		SplitAPKs   []splitRef `json:"split_apks"`
	}{
		XAPKVersion: 2,
		PackageName: packageName,
	}
	for _, split := range splits {
		meta.SplitAPKs = append(meta.SplitAPKs, splitRef{File: split.File, ID: split.ID})
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		panic(fmt.Sprintf("apktest: marshal bundle manifest: %v", err))
	}

	entries := []Entry{{Name: "manifest.json", Data: metaJSON}}
	for _, split := range splits {
		entries = append(entries, Entry{Name: split.File, Data: split.Data})
	}
	entries = append(entries, extra...)
	return BuildZip(entries)
}
