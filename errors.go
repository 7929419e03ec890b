package dechat

import (
	"errors"

	"github.com/dechat/go-dechat/pkg/interfaces"
)

// 公共错误定义
var (
	// ────────────────────────────────────────────────────────────────────────
	// 客户端生命周期错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrNotStarted 客户端未启动
	ErrNotStarted = errors.New("client not started")

	// ErrAlreadyStarted 客户端已启动
	ErrAlreadyStarted = errors.New("client already started")

	// ErrClientClosed 客户端已关闭
	ErrClientClosed = errors.New("client closed")
)

// 基底错误别名，调用方无需引入 pkg/interfaces
var (
	// ErrNotFound 叶子在期限内未收敛出值
	ErrNotFound = interfaces.ErrNotFound

	// ErrTimeout 写入确认超时
	ErrTimeout = interfaces.ErrTimeout

	// ErrClosed 基底已关闭
	ErrClosed = interfaces.ErrClosed
)
