package fingerprint_test

import (
	"fmt"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdk-detect/sdk-detect-go/internal/apktest"
	"github.com/sdk-detect/sdk-detect-go/internal/archive"
	"github.com/sdk-detect/sdk-detect-go/internal/fingerprint"
)

// fakeMember 直接由条目表构造的成员，测试无需落盘
type fakeMember struct {
	name    string
	entries []string
	data    map[string][]byte
}

func (m *fakeMember) Name() string      { return m.name }
func (m *fakeMember) Entries() []string { return m.entries }
func (m *fakeMember) ReadEntry(name string) ([]byte, error) {
	data, ok := m.data[name]
	if !ok {
		return nil, fmt.Errorf("no such entry %q", name)
	}
	return data, nil
}

func newMember(name string, entries []apktest.Entry) *fakeMember {
	m := &fakeMember{name: name, data: make(map[string][]byte)}
	for _, e := range entries {
		m.entries = append(m.entries, e.Name)
		m.data[e.Name] = e.Data
	}
	return m
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func manifestEntry(spec apktest.ManifestSpec) apktest.Entry {
	return apktest.Entry{Name: "AndroidManifest.xml", Data: apktest.BuildManifest(spec)}
}

// TestExtractClassPrefixes 包路径按深度 1..max 全部保留，类名段丢弃
func TestExtractClassPrefixes(t *testing.T) {
	member := newMember("app.apk", []apktest.Entry{
		manifestEntry(apktest.ManifestSpec{Package: "com.example.app"}),
		{Name: "classes.dex", Data: apktest.BuildDex(
			"com.facebook.react.bridge.queue.MessageQueueThread",
			"kotlin.Unit",
		)},
	})

	fp, err := fingerprint.NewExtractor(quietLogger(), 4).Extract(member)
	require.NoError(t, err)

	for _, prefix := range []string{
		"com",
		"com.facebook",
		"com.facebook.react",
		"com.facebook.react.bridge",
		"kotlin",
	} {
		assert.True(t, fp.ClassPrefixes.Contains(prefix), "missing prefix %s", prefix)
	}
	// 深度超过上限的前缀与完整类名不保留
	assert.False(t, fp.ClassPrefixes.Contains("com.facebook.react.bridge.queue"))
	assert.False(t, fp.ClassPrefixes.Contains("kotlin.Unit"))
}

// TestExtractPrefixDepthConfigurable 深度上限可配置
func TestExtractPrefixDepthConfigurable(t *testing.T) {
	member := newMember("app.apk", []apktest.Entry{
		manifestEntry(apktest.ManifestSpec{Package: "com.example.app"}),
		{Name: "classes.dex", Data: apktest.BuildDex("com.facebook.react.bridge.ReactContext")},
	})

	fp, err := fingerprint.NewExtractor(quietLogger(), 2).Extract(member)
	require.NoError(t, err)

	assert.True(t, fp.ClassPrefixes.Contains("com.facebook"))
	assert.False(t, fp.ClassPrefixes.Contains("com.facebook.react"))
}

// TestExtractMultiDex classes2.dex 等后续字节码文件同样计入
func TestExtractMultiDex(t *testing.T) {
	member := newMember("app.apk", []apktest.Entry{
		manifestEntry(apktest.ManifestSpec{Package: "com.example.app"}),
		{Name: "classes.dex", Data: apktest.BuildDex("com.example.Main")},
		{Name: "classes2.dex", Data: apktest.BuildDex("io.ionic.portals.Portal")},
	})

	fp, err := fingerprint.NewExtractor(quietLogger(), 0).Extract(member)
	require.NoError(t, err)

	assert.True(t, fp.ClassPrefixes.Contains("com.example"))
	assert.True(t, fp.ClassPrefixes.Contains("io.ionic"))
}

// TestExtractNativeLibs ABI 目录与 .so 后缀剥掉，只留基名
func TestExtractNativeLibs(t *testing.T) {
	member := newMember("app.apk", []apktest.Entry{
		manifestEntry(apktest.ManifestSpec{Package: "com.example.app"}),
		{Name: "lib/arm64-v8a/libflutter.so", Data: []byte{1}},
		{Name: "lib/armeabi-v7a/libflutter.so", Data: []byte{1}},
		{Name: "lib/arm64-v8a/libmonosgen-2.0.so", Data: []byte{1}},
	})

	fp, err := fingerprint.NewExtractor(quietLogger(), 0).Extract(member)
	require.NoError(t, err)

	assert.Equal(t, []string{"libflutter", "libmonosgen-2.0"}, fp.NativeLibs.Values(),
		"same lib under two ABIs dedupes to one basename")
}

// TestExtractAssets 顶层目录与相对路径分别入集合
func TestExtractAssets(t *testing.T) {
	member := newMember("app.apk", []apktest.Entry{
		manifestEntry(apktest.ManifestSpec{Package: "com.example.app"}),
		{Name: "assets/flutter_assets/kernel_blob.bin", Data: []byte{1}},
		{Name: "assets/www/cordova.js", Data: []byte{1}},
		{Name: "assets/index.android.bundle", Data: []byte{1}},
	})

	fp, err := fingerprint.NewExtractor(quietLogger(), 0).Extract(member)
	require.NoError(t, err)

	assert.True(t, fp.AssetDirs.Contains("flutter_assets"))
	assert.True(t, fp.AssetDirs.Contains("www"))
	assert.True(t, fp.AssetFiles.Contains("www/cordova.js"))
	assert.True(t, fp.AssetFiles.Contains("index.android.bundle"))
	assert.False(t, fp.AssetDirs.Contains("index.android.bundle"), "top-level file is not a dir")
}

// TestExtractManifestMarkers 权限、feature 与 action 汇入同一标记集合
func TestExtractManifestMarkers(t *testing.T) {
	member := newMember("app.apk", []apktest.Entry{
		manifestEntry(apktest.ManifestSpec{
			Package:     "com.example.app",
			Permissions: []string{"android.permission.INTERNET"},
			Features:    []string{"android.hardware.camera"},
			Actions:     []string{"android.intent.action.MAIN"},
		}),
	})

	fp, err := fingerprint.NewExtractor(quietLogger(), 0).Extract(member)
	require.NoError(t, err)

	assert.Equal(t, "com.example.app", fp.PackageName)
	assert.True(t, fp.ManifestMarkers.Contains("android.permission.INTERNET"))
	assert.True(t, fp.ManifestMarkers.Contains("android.hardware.camera"))
	assert.True(t, fp.ManifestMarkers.Contains("android.intent.action.MAIN"))
}

// TestExtractMissingManifest 缺清单按损坏成员处理，不降级为空指纹
func TestExtractMissingManifest(t *testing.T) {
	member := newMember("broken.apk", []apktest.Entry{
		{Name: "classes.dex", Data: apktest.BuildDex("com.example.Main")},
	})

	_, err := fingerprint.NewExtractor(quietLogger(), 0).Extract(member)
	require.Error(t, err)
	assert.True(t, archive.IsCorrupt(err))
	assert.ErrorIs(t, err, fingerprint.ErrMissingManifest)
}

// TestExtractCorruptDex 必备条目损坏同样使成员提取失败
func TestExtractCorruptDex(t *testing.T) {
	member := newMember("broken.apk", []apktest.Entry{
		manifestEntry(apktest.ManifestSpec{Package: "com.example.app"}),
		{Name: "classes.dex", Data: []byte("not a dex")},
	})

	_, err := fingerprint.NewExtractor(quietLogger(), 0).Extract(member)
	require.Error(t, err)
	assert.True(t, archive.IsCorrupt(err))
}
