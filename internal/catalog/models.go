package catalog

import "fmt"

// SDK 检测结果使用的稳定标识符
type SDK string

const (
	SDKAndroidKotlin SDK = "ANDROID_KOTLIN"
	SDKReactNative   SDK = "REACT_NATIVE"
	SDKFlutter       SDK = "FLUTTER"
	SDKDotnet        SDK = "DOTNET"
	SDKXamarin       SDK = "XAMARIN"
	SDKCordova       SDK = "CORDOVA"
	SDKIonic         SDK = "IONIC"
)

// RuleKind 匹配规则种类
type RuleKind string

const (
	// RuleClassPrefix 指纹的类名前缀集合包含 pattern
	RuleClassPrefix RuleKind = "class_prefix"
	// RuleNativeLib 原生库基名等于 pattern 或以 pattern 开头（去版本号后缀）
	RuleNativeLib RuleKind = "native_lib"
	// RuleManifestMarker 清单声明的权限/feature/action 包含 pattern
	RuleManifestMarker RuleKind = "manifest_marker"
	// RuleAssetDir assets/ 顶层目录名包含 pattern
	RuleAssetDir RuleKind = "asset_dir"
	// RuleAssetFile assets/ 下存在相对路径为 pattern 的条目
	RuleAssetFile RuleKind = "asset_file"
)

// Composition 单个签名内规则的组合方式。
// 语义由数据声明而不是代码硬编码（AND 抑制单一通用标记造成的误报，
// OR 供同一 SDK 的多种等价证据使用）。
type Composition string

const (
	ComposeAll Composition = "and"
	ComposeAny Composition = "or"
)

// MatchRule 对指纹的单一谓词
type MatchRule struct {
	Kind    RuleKind `yaml:"kind"`
	Pattern string   `yaml:"pattern"`
}

// PrefixDepth class_prefix 规则要求的包深度（由 pattern 段数决定）
func (r MatchRule) PrefixDepth() int {
	if r.Kind != RuleClassPrefix {
		return 0
	}
	depth := 1
	for _, c := range r.Pattern {
		if c == '.' {
			depth++
		}
	}
	return depth
}

// Signature 目录条目：一个 SDK 的具名规则集
type Signature struct {
	ID          SDK         `yaml:"id"`
	Rules       []MatchRule `yaml:"rules"`
	Composition Composition `yaml:"composition"` // 空值等同 and
	Rank        int         `yaml:"rank"`        // 特异度，越高越优先展示
}

// RequiresAll 是否为合取语义（默认）
func (s Signature) RequiresAll() bool {
	return s.Composition != ComposeAny
}

// LoadError 目录数据不合法，进程启动即失败
type LoadError struct {
	ID     SDK
	Reason string
}

func (e *LoadError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("catalog load: signature %s: %s", e.ID, e.Reason)
	}
	return fmt.Sprintf("catalog load: %s", e.Reason)
}
