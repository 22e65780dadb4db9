package archive_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdk-detect/sdk-detect-go/internal/apktest"
	"github.com/sdk-detect/sdk-detect-go/internal/archive"
)

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

// TestOpenAPK 单体 APK：包自身是唯一成员
func TestOpenAPK(t *testing.T) {
	data := apktest.BuildAPK(
		apktest.ManifestSpec{Package: "com.example.app"},
		apktest.Entry{Name: "classes.dex", Data: apktest.BuildDex("com.example.Main")},
		apktest.Entry{Name: "lib/arm64-v8a/libnative.so", Data: []byte{0x7f}},
	)
	path := writeTemp(t, "app.apk", data)

	pkg, err := archive.Open(path)
	require.NoError(t, err)
	defer pkg.Close()

	assert.Equal(t, archive.KindAPK, pkg.Kind)
	require.Len(t, pkg.Members(), 1)

	member := pkg.Members()[0]
	assert.Equal(t, "app.apk", member.Name())
	assert.Contains(t, member.Entries(), "AndroidManifest.xml")
	assert.Contains(t, member.Entries(), "classes.dex")

	manifest, err := member.ReadEntry(archive.ManifestEntryName)
	require.NoError(t, err)
	assert.NotEmpty(t, manifest)
}

// TestOpenXAPK Bundle：成员是内层 APK，base 排在最前
func TestOpenXAPK(t *testing.T) {
	base := apktest.BuildAPK(apktest.ManifestSpec{Package: "com.example.app"})
	split := apktest.BuildAPK(apktest.ManifestSpec{Package: "com.example.app"})
	data := apktest.BuildXAPK("com.example.app", []apktest.SplitAPK{
		// manifest.json 故意把 split 放在 base 前，枚举顺序仍应 base 优先
		{File: "config.arm64_v8a.apk", ID: "config.arm64_v8a", Data: split},
		{File: "base.apk", ID: "base", Data: base},
	})
	path := writeTemp(t, "app.xapk", data)

	pkg, err := archive.Open(path)
	require.NoError(t, err)
	defer pkg.Close()

	assert.Equal(t, archive.KindXAPK, pkg.Kind)
	require.Len(t, pkg.Members(), 2)
	assert.Equal(t, "base.apk", pkg.Members()[0].Name())
	assert.Equal(t, "config.arm64_v8a.apk", pkg.Members()[1].Name())
}

// TestOpenXAPKIgnoresMetadataEntries 外层的图标等元数据条目不计入成员
func TestOpenXAPKIgnoresMetadataEntries(t *testing.T) {
	base := apktest.BuildAPK(apktest.ManifestSpec{Package: "com.example.app"})
	data := apktest.BuildXAPK("com.example.app",
		[]apktest.SplitAPK{{File: "base.apk", ID: "base", Data: base}},
		apktest.Entry{Name: "icon.png", Data: []byte{0x89, 0x50}},
	)
	path := writeTemp(t, "app.xapk", data)

	pkg, err := archive.Open(path)
	require.NoError(t, err)
	defer pkg.Close()

	require.Len(t, pkg.Members(), 1)
	assert.Equal(t, "base.apk", pkg.Members()[0].Name())
}

func TestOpenRejectsNonZip(t *testing.T) {
	path := writeTemp(t, "notes.txt", []byte("definitely not a zip archive"))

	_, err := archive.Open(path)
	assert.ErrorIs(t, err, archive.ErrUnsupportedFormat)
}

// TestOpenRejectsUnrelatedZip zip 容器但既无清单也不是 Bundle
func TestOpenRejectsUnrelatedZip(t *testing.T) {
	data := apktest.BuildZip([]apktest.Entry{{Name: "readme.md", Data: []byte("hi")}})
	path := writeTemp(t, "docs.zip", data)

	_, err := archive.Open(path)
	assert.ErrorIs(t, err, archive.ErrUnsupportedFormat)
}

// TestOpenRejectsCorruptInnerAPK 内层成员无法索引时整包判定损坏
func TestOpenRejectsCorruptInnerAPK(t *testing.T) {
	base := apktest.BuildAPK(apktest.ManifestSpec{Package: "com.example.app"})
	data := apktest.BuildXAPK("com.example.app", []apktest.SplitAPK{
		{File: "base.apk", ID: "base", Data: base},
		{File: "config.zh.apk", ID: "config.zh", Data: []byte("garbage bytes")},
	})
	path := writeTemp(t, "app.xapk", data)

	_, err := archive.Open(path)
	require.Error(t, err)
	assert.True(t, archive.IsCorrupt(err), "expected CorruptArchiveError, got %v", err)

	var ce *archive.CorruptArchiveError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "config.zh.apk", ce.Member)
}

func TestOpenMissingFile(t *testing.T) {
	_, err := archive.Open(filepath.Join(t.TempDir(), "missing.apk"))
	assert.Error(t, err)
	assert.False(t, archive.IsCorrupt(err))
}
