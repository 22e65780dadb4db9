package detect

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/sdk-detect/sdk-detect-go/internal/catalog"
	"github.com/sdk-detect/sdk-detect-go/internal/fingerprint"
)

// Matcher 在汇聚后的指纹上评估签名目录。
// 纯计算，无副作用，跨 Package 并发安全。
type Matcher struct {
	logger *logrus.Logger
}

func NewMatcher(logger *logrus.Logger) *Matcher {
	return &Matcher{logger: logger}
}

// Match 返回规则集被满足的全部 SDK 标识符。
// 多个签名同时命中是合法结果（混合应用），取并集而非单一最优；
// 返回顺序继承目录的特异度排序，与容器遍历顺序无关。
func (m *Matcher) Match(fp *fingerprint.Fingerprint, cat *catalog.Catalog) []catalog.SDK {
	var matched []catalog.SDK
	for _, sig := range cat.Signatures() {
		if signatureMatches(sig, fp) {
			matched = append(matched, sig.ID)
			m.logger.WithFields(logrus.Fields{
				"sdk":  sig.ID,
				"rank": sig.Rank,
			}).Debug("Signature matched")
		}
	}
	return matched
}

// signatureMatches 按签名声明的组合语义评估规则集。
// 合取（默认）要求全部规则命中，不存在部分满足的降级匹配。
func signatureMatches(sig catalog.Signature, fp *fingerprint.Fingerprint) bool {
	if sig.RequiresAll() {
		for _, rule := range sig.Rules {
			if !ruleSatisfied(rule, fp) {
				return false
			}
		}
		return true
	}
	for _, rule := range sig.Rules {
		if ruleSatisfied(rule, fp) {
			return true
		}
	}
	return false
}

func ruleSatisfied(rule catalog.MatchRule, fp *fingerprint.Fingerprint) bool {
	switch rule.Kind {
	case catalog.RuleClassPrefix:
		return fp.ClassPrefixes.Contains(rule.Pattern)
	case catalog.RuleNativeLib:
		return nativeLibPresent(fp.NativeLibs, rule.Pattern)
	case catalog.RuleManifestMarker:
		return fp.ManifestMarkers.Contains(rule.Pattern)
	case catalog.RuleAssetDir:
		return fp.AssetDirs.Contains(rule.Pattern)
	case catalog.RuleAssetFile:
		return fp.AssetFiles.Contains(rule.Pattern)
	}
	return false
}

// nativeLibPresent 基名精确命中或前缀命中
// （libmono 命中 libmonosgen-2.0 这类带版本/变体后缀的库名）
func nativeLibPresent(libs fingerprint.StringSet, pattern string) bool {
	if libs.Contains(pattern) {
		return true
	}
	for lib := range libs {
		if strings.HasPrefix(lib, pattern) {
			return true
		}
	}
	return false
}
