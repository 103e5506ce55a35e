package parser

import (
	"errors"
	"fmt"
)

// 输入类错误，会中止当前操作
var (
	ErrUnsupportedFormat = errors.New("不支持的文件格式")
	ErrFileNotFound      = errors.New("简历文件不存在")
	ErrEmptyContent      = errors.New("简历内容为空")
)

// LoadError 加载简历时的错误，Err 为上面的哨兵错误之一或底层错误
type LoadError struct {
	Path   string
	Op     string
	Err    error
	Detail string
}

func (e *LoadError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (操作:%s, 文件:%s): %s", e.Err, e.Op, e.Path, e.Detail)
	}
	return fmt.Sprintf("%s (操作:%s, 文件:%s)", e.Err, e.Op, e.Path)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Is 支持 errors.Is 比较
func (e *LoadError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func newLoadError(path, op string, err error, detail string) error {
	return &LoadError{Path: path, Op: op, Err: err, Detail: detail}
}
