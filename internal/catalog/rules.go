package catalog

// Builtin 内置签名表。与引擎代码一同演进的保底目录，
// 外部签名文件可以覆盖或追加（见 Load）。
func Builtin() []Signature {
	return []Signature{
		// ==================== 跨平台框架（高特异度） ====================
		{
			ID:   SDKFlutter,
			Rank: 90,
			Rules: []MatchRule{
				{Kind: RuleNativeLib, Pattern: "libflutter"},
				{Kind: RuleAssetDir, Pattern: "flutter_assets"},
			},
		},
		{
			ID:   SDKReactNative,
			Rank: 80,
			Rules: []MatchRule{
				{Kind: RuleClassPrefix, Pattern: "com.facebook.react"},
				{Kind: RuleNativeLib, Pattern: "libreactnativejni"},
			},
		},
		{
			ID:   SDKXamarin,
			Rank: 75,
			Rules: []MatchRule{
				{Kind: RuleNativeLib, Pattern: "libxamarin-app"},
			},
		},
		{
			ID:   SDKDotnet,
			Rank: 70,
			Rules: []MatchRule{
				{Kind: RuleNativeLib, Pattern: "libmono"},
			},
		},
		{
			ID:          SDKIonic,
			Rank:        65,
			Composition: ComposeAny,
			Rules: []MatchRule{
				{Kind: RuleClassPrefix, Pattern: "io.ionic"},
				{Kind: RuleClassPrefix, Pattern: "com.getcapacitor"},
			},
		},
		{
			ID:   SDKCordova,
			Rank: 60,
			Rules: []MatchRule{
				{Kind: RuleAssetFile, Pattern: "www/cordova.js"},
			},
		},
		// ==================== 语言运行时（低特异度） ====================
		{
			ID:   SDKAndroidKotlin,
			Rank: 10,
			Rules: []MatchRule{
				{Kind: RuleClassPrefix, Pattern: "kotlin"},
			},
		},
	}
}
