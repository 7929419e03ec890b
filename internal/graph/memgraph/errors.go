package memgraph

import "errors"

// 定义错误
var (
	// ErrNilHandler 订阅回调为 nil
	ErrNilHandler = errors.New("handler is nil")
)
