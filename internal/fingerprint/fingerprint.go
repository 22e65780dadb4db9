package fingerprint

import "sort"

// StringSet 去重字符串集合，指纹字段的统一表示
type StringSet map[string]struct{}

func NewStringSet(values ...string) StringSet {
	s := make(StringSet, len(values))
	for _, v := range values {
		s.Add(v)
	}
	return s
}

func (s StringSet) Add(v string) {
	s[v] = struct{}{}
}

func (s StringSet) Contains(v string) bool {
	_, ok := s[v]
	return ok
}

// Merge 并入另一个集合，集合语义保证重复并入幂等
func (s StringSet) Merge(other StringSet) {
	for v := range other {
		s[v] = struct{}{}
	}
}

// Values 排序后返回，保证遍历顺序确定
func (s StringSet) Values() []string {
	values := make([]string, 0, len(s))
	for v := range s {
		values = append(values, v)
	}
	sort.Strings(values)
	return values
}

func (s StringSet) Len() int {
	return len(s)
}

// Fingerprint 单个成员容器的结构指纹快照。
// 各字段均为集合，跨成员汇聚（Merge）天然幂等。
type Fingerprint struct {
	// PackageName 清单声明的应用包名（Bundle 中以 base 成员为准）
	PackageName string
	// ClassPrefixes 字节码符号表导出的包名前缀（深度 1..maxDepth 全部保留）
	ClassPrefixes StringSet
	// NativeLibs lib/<abi>/ 下原生库基名（去 ABI 目录与 .so 后缀）
	NativeLibs StringSet
	// AssetDirs assets/ 下顶层目录名
	AssetDirs StringSet
	// AssetFiles assets/ 下条目的相对路径
	AssetFiles StringSet
	// ManifestMarkers 清单声明的权限、feature 与 intent action
	ManifestMarkers StringSet
}

func New() *Fingerprint {
	return &Fingerprint{
		ClassPrefixes:   NewStringSet(),
		NativeLibs:      NewStringSet(),
		AssetDirs:       NewStringSet(),
		AssetFiles:      NewStringSet(),
		ManifestMarkers: NewStringSet(),
	}
}

// Merge 把另一个成员的指纹并入本指纹，用于 Bundle 级证据汇聚
func (f *Fingerprint) Merge(other *Fingerprint) {
	if other == nil {
		return
	}
	if f.PackageName == "" {
		f.PackageName = other.PackageName
	}
	f.ClassPrefixes.Merge(other.ClassPrefixes)
	f.NativeLibs.Merge(other.NativeLibs)
	f.AssetDirs.Merge(other.AssetDirs)
	f.AssetFiles.Merge(other.AssetFiles)
	f.ManifestMarkers.Merge(other.ManifestMarkers)
}
