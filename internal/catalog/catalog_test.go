package catalog_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdk-detect/sdk-detect-go/internal/catalog"
)

func TestBuiltinCatalogLoads(t *testing.T) {
	cat, err := catalog.NewBuiltin(4)
	require.NoError(t, err)
	assert.Equal(t, 7, cat.Len())
}

// TestCatalogOrdering 特异度降序、同分按标识符升序
func TestCatalogOrdering(t *testing.T) {
	sigs := []catalog.Signature{
		{ID: "B_SDK", Rank: 50, Rules: []catalog.MatchRule{{Kind: catalog.RuleClassPrefix, Pattern: "b"}}},
		{ID: "A_SDK", Rank: 50, Rules: []catalog.MatchRule{{Kind: catalog.RuleClassPrefix, Pattern: "a"}}},
		{ID: "C_SDK", Rank: 90, Rules: []catalog.MatchRule{{Kind: catalog.RuleClassPrefix, Pattern: "c"}}},
	}

	cat, err := catalog.New(sigs, 4)
	require.NoError(t, err)

	var ids []catalog.SDK
	for _, sig := range cat.Signatures() {
		ids = append(ids, sig.ID)
	}
	assert.Equal(t, []catalog.SDK{"C_SDK", "A_SDK", "B_SDK"}, ids)
}

// TestCatalogValidation 不合法的签名数据在加载期拒绝
func TestCatalogValidation(t *testing.T) {
	rule := catalog.MatchRule{Kind: catalog.RuleClassPrefix, Pattern: "com.example"}

	cases := []struct {
		name string
		sigs []catalog.Signature
	}{
		{"empty id", []catalog.Signature{{ID: "", Rules: []catalog.MatchRule{rule}}}},
		{"duplicate id", []catalog.Signature{
			{ID: "DUP", Rules: []catalog.MatchRule{rule}},
			{ID: "DUP", Rules: []catalog.MatchRule{rule}},
		}},
		{"empty rules", []catalog.Signature{{ID: "EMPTY"}}},
		{"unknown composition", []catalog.Signature{
			{ID: "BAD", Composition: "xor", Rules: []catalog.MatchRule{rule}},
		}},
		{"unknown rule kind", []catalog.Signature{
			{ID: "BAD", Rules: []catalog.MatchRule{{Kind: "regex", Pattern: "x"}}},
		}},
		{"empty pattern", []catalog.Signature{
			{ID: "BAD", Rules: []catalog.MatchRule{{Kind: catalog.RuleClassPrefix, Pattern: ""}}},
		}},
		{"prefix deeper than extractor limit", []catalog.Signature{
			{ID: "DEEP", Rules: []catalog.MatchRule{
				{Kind: catalog.RuleClassPrefix, Pattern: "a.b.c.d.e"},
			}},
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := catalog.New(tc.sigs, 4)
			require.Error(t, err)

			var le *catalog.LoadError
			assert.ErrorAs(t, err, &le)
		})
	}
}

// TestLoadOverlayFile 外部文件同名覆盖、新名追加
func TestLoadOverlayFile(t *testing.T) {
	overlay := `
version: 1
signatures:
  - id: FLUTTER
    rank: 95
    rules:
      - kind: native_lib
        pattern: libflutter
  - id: UNITY
    rank: 85
    composition: or
    rules:
      - kind: native_lib
        pattern: libunity
      - kind: native_lib
        pattern: libil2cpp
`
	path := filepath.Join(t.TempDir(), "signatures.yaml")
	require.NoError(t, os.WriteFile(path, []byte(overlay), 0644))

	cat, err := catalog.Load(path, 4)
	require.NoError(t, err)
	assert.Equal(t, 8, cat.Len(), "7 builtin with FLUTTER overridden plus UNITY")

	var flutter *catalog.Signature
	for i := range cat.Signatures() {
		if cat.Signatures()[i].ID == catalog.SDKFlutter {
			flutter = &cat.Signatures()[i]
		}
	}
	require.NotNil(t, flutter)
	assert.Equal(t, 95, flutter.Rank)
	assert.Len(t, flutter.Rules, 1, "overlay replaces the builtin rule set")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := catalog.Load(filepath.Join(t.TempDir(), "nope.yaml"), 4)
	require.Error(t, err)

	var le *catalog.LoadError
	assert.ErrorAs(t, err, &le)
}

func TestLoadEmptyPathIsBuiltin(t *testing.T) {
	cat, err := catalog.Load("", 4)
	require.NoError(t, err)
	assert.Equal(t, 7, cat.Len())
}

func TestPrefixDepth(t *testing.T) {
	assert.Equal(t, 3, catalog.MatchRule{Kind: catalog.RuleClassPrefix, Pattern: "com.facebook.react"}.PrefixDepth())
	assert.Equal(t, 1, catalog.MatchRule{Kind: catalog.RuleClassPrefix, Pattern: "kotlin"}.PrefixDepth())
	assert.Equal(t, 0, catalog.MatchRule{Kind: catalog.RuleNativeLib, Pattern: "libmono"}.PrefixDepth())
}
