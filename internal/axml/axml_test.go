package axml_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdk-detect/sdk-detect-go/internal/apktest"
	"github.com/sdk-detect/sdk-detect-go/internal/axml"
)

// TestDecodeManifest 解码合成清单的全部结构化字段
func TestDecodeManifest(t *testing.T) {
	data := apktest.BuildManifest(apktest.ManifestSpec{
		Package:     "com.example.app",
		Permissions: []string{"android.permission.INTERNET", "android.permission.CAMERA"},
		Features:    []string{"android.hardware.camera"},
		Actions:     []string{"android.intent.action.MAIN"},
	})

	manifest, err := axml.Decode(data)
	require.NoError(t, err)

	assert.Equal(t, "com.example.app", manifest.Package)
	assert.Equal(t, []string{"android.permission.INTERNET", "android.permission.CAMERA"}, manifest.Permissions)
	assert.Equal(t, []string{"android.hardware.camera"}, manifest.Features)
	assert.Equal(t, []string{"android.intent.action.MAIN"}, manifest.Actions)
}

// TestDecodePackageOnly 只有包名、无任何声明的最小清单
func TestDecodePackageOnly(t *testing.T) {
	data := apktest.BuildManifest(apktest.ManifestSpec{Package: "io.minimal"})

	manifest, err := axml.Decode(data)
	require.NoError(t, err)

	assert.Equal(t, "io.minimal", manifest.Package)
	assert.Empty(t, manifest.Permissions)
	assert.Empty(t, manifest.Features)
	assert.Empty(t, manifest.Actions)
}

func TestDecodeRejectsPlainText(t *testing.T) {
	_, err := axml.Decode([]byte("<?xml version=\"1.0\"?><manifest/>"))
	assert.Error(t, err, "text xml is not a binary manifest")
}

func TestDecodeRejectsTruncated(t *testing.T) {
	data := apktest.BuildManifest(apktest.ManifestSpec{Package: "com.example.app"})

	_, err := axml.Decode(data[:len(data)/2])
	assert.Error(t, err)

	_, err = axml.Decode(data[:4])
	assert.Error(t, err)
}
