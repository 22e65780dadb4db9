package detect

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/sdk-detect/sdk-detect-go/internal/archive"
	"github.com/sdk-detect/sdk-detect-go/internal/catalog"
	"github.com/sdk-detect/sdk-detect-go/internal/fingerprint"
)

// DetectionResult 整个 Package 的有序、去重 SDK 标识符序列。
// 顺序是目录特异度排序的纯函数，对同一输入可重复得到。
type DetectionResult []catalog.SDK

// Strings 标识符的字符串形式，供展示层使用
func (r DetectionResult) Strings() []string {
	out := make([]string, len(r))
	for i, sdk := range r {
		out[i] = string(sdk)
	}
	return out
}

// Aggregator 跨成员汇聚指纹后做一次匹配。
// 汇聚先于匹配是 split-bundle 检测正确性的关键：清单标记可能在
// base 成员、对应原生库在 split 成员，合取语义必须看到全部证据。
type Aggregator struct {
	extractor     *fingerprint.Extractor
	matcher       *Matcher
	catalog       *catalog.Catalog
	logger        *logrus.Logger
	memberWorkers int
}

// NewAggregator 创建聚合器。memberWorkers > 1 时 Bundle 成员并行提取
// （纯吞吐优化，汇聚前有 join barrier，结果与串行一致）。
func NewAggregator(extractor *fingerprint.Extractor, matcher *Matcher, cat *catalog.Catalog, logger *logrus.Logger, memberWorkers int) *Aggregator {
	if memberWorkers <= 0 {
		memberWorkers = 1
	}
	return &Aggregator{
		extractor:     extractor,
		matcher:       matcher,
		catalog:       cat,
		logger:        logger,
		memberWorkers: memberWorkers,
	}
}

// Analysis 一次检测的完整输出：结果序列加上描述性字段
type Analysis struct {
	PackageName string
	Kind        archive.Kind
	MemberCount int
	SDKs        DetectionResult
}

// Aggregate 对一个已打开的 Package 执行完整检测管线，
// 返回有序去重的 SDK 标识符序列。
func (a *Aggregator) Aggregate(ctx context.Context, pkg *archive.Package) (DetectionResult, error) {
	analysis, err := a.Analyze(ctx, pkg)
	if err != nil {
		return nil, err
	}
	return analysis.SDKs, nil
}

// Analyze 同 Aggregate，附带包名等描述性字段。
// 任一成员提取失败都使整个 Package 的检测失败：缺失的 split 可能
// 隐藏合取语义所需的证据，静默跳过会产出与真阴性无法区分的假阴性。
func (a *Aggregator) Analyze(ctx context.Context, pkg *archive.Package) (*Analysis, error) {
	members := pkg.Members()

	fps, err := a.extractAll(ctx, members)
	if err != nil {
		return nil, err
	}

	// 证据汇聚：成员指纹按序并入，集合字段保证重复并入幂等
	pooled := fingerprint.New()
	for _, fp := range fps {
		pooled.Merge(fp)
	}

	matched := a.matcher.Match(pooled, a.catalog)

	a.logger.WithFields(logrus.Fields{
		"package":  pkg.Path,
		"kind":     pkg.Kind,
		"members":  len(members),
		"detected": len(matched),
	}).Info("Detection completed")

	return &Analysis{
		PackageName: pooled.PackageName,
		Kind:        pkg.Kind,
		MemberCount: len(members),
		SDKs:        DetectionResult(matched),
	}, nil
}

// DetectFile 打开、检测并在所有退出路径上关闭一个包文件
func (a *Aggregator) DetectFile(ctx context.Context, path string) (*Analysis, error) {
	pkg, err := archive.Open(path)
	if err != nil {
		return nil, err
	}
	defer pkg.Close()

	return a.Analyze(ctx, pkg)
}

// extractAll 按成员顺序提取指纹。并行模式下错误取成员序最小者，
// 保证失败也是确定性的。
func (a *Aggregator) extractAll(ctx context.Context, members []archive.MemberArchive) ([]*fingerprint.Fingerprint, error) {
	fps := make([]*fingerprint.Fingerprint, len(members))

	if a.memberWorkers <= 1 || len(members) <= 1 {
		for i, member := range members {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			fp, err := a.extractor.Extract(member)
			if err != nil {
				return nil, err
			}
			fps[i] = fp
		}
		return fps, nil
	}

	var (
		wg   sync.WaitGroup
		errs = make([]error, len(members))
		sem  = make(chan struct{}, a.memberWorkers)
	)
	for i, member := range members {
		wg.Add(1)
		go func(i int, member archive.MemberArchive) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := ctx.Err(); err != nil {
				errs[i] = err
				return
			}
			fps[i], errs[i] = a.extractor.Extract(member)
		}(i, member)
	}
	wg.Wait() // join barrier：匹配必须等全部成员提取完成

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return fps, nil
}
