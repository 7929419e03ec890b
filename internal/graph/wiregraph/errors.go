package wiregraph

import "errors"

// 定义错误
var (
	// ErrNoEndpoints 未配置任何中继端点
	ErrNoEndpoints = errors.New("no relay endpoints configured")

	// ErrQueueFull 待发队列已满
	ErrQueueFull = errors.New("outbound queue is full")
)
