package fingerprint

import (
	"errors"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/sdk-detect/sdk-detect-go/internal/archive"
	"github.com/sdk-detect/sdk-detect-go/internal/axml"
	"github.com/sdk-detect/sdk-detect-go/internal/dex"
)

// DefaultMaxPrefixDepth 类名前缀保留的最大包深度。
// 深度越大抗高层重命名能力越弱、误报越少，可在配置中调整。
const DefaultMaxPrefixDepth = 4

// ErrMissingManifest 成员缺少必备的清单条目
var ErrMissingManifest = errors.New("missing AndroidManifest.xml entry")

var dexEntryRe = regexp.MustCompile(`^classes[0-9]*\.dex$`)

// Extractor 指纹提取器：成员条目列表与字节的纯函数
type Extractor struct {
	logger         *logrus.Logger
	maxPrefixDepth int
}

// NewExtractor 创建提取器，depth <= 0 时使用默认深度
func NewExtractor(logger *logrus.Logger, maxPrefixDepth int) *Extractor {
	if maxPrefixDepth <= 0 {
		maxPrefixDepth = DefaultMaxPrefixDepth
	}
	return &Extractor{
		logger:         logger,
		maxPrefixDepth: maxPrefixDepth,
	}
}

// MaxPrefixDepth 当前生效的前缀深度上限
func (e *Extractor) MaxPrefixDepth() int {
	return e.maxPrefixDepth
}

// Extract 对单个成员提取结构指纹。
// 缺少清单条目或任何必备条目损坏都返回 CorruptArchiveError，
// 绝不降级为空指纹（空指纹与真阴性不可区分）。
func (e *Extractor) Extract(member archive.MemberArchive) (*Fingerprint, error) {
	fp := New()
	sawManifest := false

	for _, entry := range member.Entries() {
		switch {
		case entry == archive.ManifestEntryName:
			if err := e.extractManifest(member, entry, fp); err != nil {
				return nil, err
			}
			sawManifest = true

		case dexEntryRe.MatchString(entry):
			if err := e.extractClasses(member, entry, fp); err != nil {
				return nil, err
			}

		case strings.HasPrefix(entry, "lib/") && strings.HasSuffix(entry, ".so"):
			fp.NativeLibs.Add(nativeLibBasename(entry))

		case strings.HasPrefix(entry, "assets/"):
			rel := strings.TrimPrefix(entry, "assets/")
			if rel == "" {
				continue
			}
			if i := strings.IndexByte(rel, '/'); i > 0 {
				fp.AssetDirs.Add(rel[:i])
			}
			fp.AssetFiles.Add(rel)
		}
	}

	if !sawManifest {
		return nil, &archive.CorruptArchiveError{Member: member.Name(), Err: ErrMissingManifest}
	}

	e.logger.WithFields(logrus.Fields{
		"member":         member.Name(),
		"package":        fp.PackageName,
		"class_prefixes": fp.ClassPrefixes.Len(),
		"native_libs":    fp.NativeLibs.Len(),
		"asset_dirs":     fp.AssetDirs.Len(),
	}).Debug("Fingerprint extracted")

	return fp, nil
}

func (e *Extractor) extractManifest(member archive.MemberArchive, entry string, fp *Fingerprint) error {
	data, err := member.ReadEntry(entry)
	if err != nil {
		return &archive.CorruptArchiveError{Member: member.Name(), Err: err}
	}
	manifest, err := axml.Decode(data)
	if err != nil {
		return &archive.CorruptArchiveError{Member: member.Name(), Err: err}
	}

	fp.PackageName = manifest.Package
	for _, p := range manifest.Permissions {
		fp.ManifestMarkers.Add(p)
	}
	for _, f := range manifest.Features {
		fp.ManifestMarkers.Add(f)
	}
	for _, a := range manifest.Actions {
		fp.ManifestMarkers.Add(a)
	}
	return nil
}

func (e *Extractor) extractClasses(member archive.MemberArchive, entry string, fp *Fingerprint) error {
	data, err := member.ReadEntry(entry)
	if err != nil {
		return &archive.CorruptArchiveError{Member: member.Name(), Err: err}
	}
	classNames, err := dex.ClassNames(data)
	if err != nil {
		return &archive.CorruptArchiveError{Member: member.Name(), Err: err}
	}
	for _, name := range classNames {
		addPackagePrefixes(fp.ClassPrefixes, name, e.maxPrefixDepth)
	}
	return nil
}

// addPackagePrefixes 把类名的包路径按深度 1..maxDepth 全部放入集合。
// 保留各级前缀使签名可以按自身需要的深度匹配，同时丢弃类级
// 标识符以抵抗逐类混淆（高层包重命名仍是已知局限）。
func addPackagePrefixes(set StringSet, className string, maxDepth int) {
	segments := strings.Split(className, ".")
	if len(segments) < 2 {
		return // 无包名的类对匹配没有价值
	}
	pkg := segments[:len(segments)-1]
	depth := len(pkg)
	if depth > maxDepth {
		depth = maxDepth
	}
	for d := 1; d <= depth; d++ {
		set.Add(strings.Join(pkg[:d], "."))
	}
}

// nativeLibBasename lib/arm64-v8a/libflutter.so -> libflutter
func nativeLibBasename(entry string) string {
	base := entry
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	return strings.TrimSuffix(base, ".so")
}
