package catalog

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Catalog 加载一次、进程内只读的签名目录。
// 加载完成后没有写者，并发读取不需要加锁。
type Catalog struct {
	signatures []Signature
}

// signatureFile 外部签名文件结构（独立于引擎代码版本化）
type signatureFile struct {
	Version    int         `yaml:"version"`
	Signatures []Signature `yaml:"signatures"`
}

// NewBuiltin 仅用内置签名构建目录
func NewBuiltin(maxPrefixDepth int) (*Catalog, error) {
	return New(Builtin(), maxPrefixDepth)
}

// Load 构建目录：内置签名 + 外部 YAML 文件（同名 ID 覆盖内置，
// 新 ID 追加）。path 为空时等价于 NewBuiltin。
func Load(path string, maxPrefixDepth int) (*Catalog, error) {
	signatures := Builtin()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &LoadError{Reason: fmt.Sprintf("read %s: %v", path, err)}
		}
		var file signatureFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, &LoadError{Reason: fmt.Sprintf("parse %s: %v", path, err)}
		}

		byID := make(map[SDK]int, len(signatures))
		for i, sig := range signatures {
			byID[sig.ID] = i
		}
		for _, sig := range file.Signatures {
			if i, ok := byID[sig.ID]; ok {
				signatures[i] = sig
			} else {
				byID[sig.ID] = len(signatures)
				signatures = append(signatures, sig)
			}
		}
	}

	return New(signatures, maxPrefixDepth)
}

// New 校验签名集并构建目录。maxPrefixDepth 是提取器保留的前缀
// 深度上限，更深的 class_prefix 规则永远无法命中，因此按数据错误拒绝。
func New(signatures []Signature, maxPrefixDepth int) (*Catalog, error) {
	seen := make(map[SDK]bool, len(signatures))
	for _, sig := range signatures {
		if sig.ID == "" {
			return nil, &LoadError{Reason: "empty signature identifier"}
		}
		if seen[sig.ID] {
			return nil, &LoadError{ID: sig.ID, Reason: "duplicate identifier"}
		}
		seen[sig.ID] = true

		if len(sig.Rules) == 0 {
			return nil, &LoadError{ID: sig.ID, Reason: "empty rule list"}
		}
		switch sig.Composition {
		case "", ComposeAll, ComposeAny:
		default:
			return nil, &LoadError{ID: sig.ID, Reason: fmt.Sprintf("unknown composition %q", sig.Composition)}
		}

		for _, rule := range sig.Rules {
			switch rule.Kind {
			case RuleClassPrefix, RuleNativeLib, RuleManifestMarker, RuleAssetDir, RuleAssetFile:
			default:
				return nil, &LoadError{ID: sig.ID, Reason: fmt.Sprintf("unknown rule kind %q", rule.Kind)}
			}
			if rule.Pattern == "" {
				return nil, &LoadError{ID: sig.ID, Reason: "empty rule pattern"}
			}
			if maxPrefixDepth > 0 && rule.PrefixDepth() > maxPrefixDepth {
				return nil, &LoadError{ID: sig.ID, Reason: fmt.Sprintf(
					"class prefix %q deeper than extractor limit %d", rule.Pattern, maxPrefixDepth)}
			}
		}
	}

	// 特异度降序、标识符升序：下游结果顺序由此唯一确定
	ordered := make([]Signature, len(signatures))
	copy(ordered, signatures)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Rank != ordered[j].Rank {
			return ordered[i].Rank > ordered[j].Rank
		}
		return ordered[i].ID < ordered[j].ID
	})

	return &Catalog{signatures: ordered}, nil
}

// Signatures 按特异度降序、标识符升序返回全部签名
func (c *Catalog) Signatures() []Signature {
	return c.signatures
}

// Len 签名数量
func (c *Catalog) Len() int {
	return len(c.signatures)
}
