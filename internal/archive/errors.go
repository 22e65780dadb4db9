package archive

import (
	"errors"
	"fmt"
)

// ErrUnsupportedFormat 输入既不是单体 APK 也不是 XAPK Bundle
var ErrUnsupportedFormat = errors.New("unsupported package format")

// CorruptArchiveError 成员容器无法索引或缺少必备条目
type CorruptArchiveError struct {
	Member string // 出错的成员名（单体包时为包文件名）
	Err    error
}

func (e *CorruptArchiveError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("corrupt archive %q: %v", e.Member, e.Err)
	}
	return fmt.Sprintf("corrupt archive %q", e.Member)
}

func (e *CorruptArchiveError) Unwrap() error {
	return e.Err
}

// IsCorrupt 判断错误是否为 CorruptArchiveError
func IsCorrupt(err error) bool {
	var ce *CorruptArchiveError
	return errors.As(err, &ce)
}
