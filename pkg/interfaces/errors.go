package interfaces

import "errors"

// 跨协议公共错误
var (
	// ErrNotFound 读取在超时窗口内未收敛出值
	ErrNotFound = errors.New("value not found")

	// ErrTimeout 读取或确认写入超出时限（可重试）
	ErrTimeout = errors.New("operation timed out")

	// ErrClosed 组件已关闭
	ErrClosed = errors.New("closed")

	// ErrAuthenticationRequired 无活跃身份时尝试写操作
	ErrAuthenticationRequired = errors.New("authentication required")

	// ErrAuthorizationDenied 尝试变更他人记录
	ErrAuthorizationDenied = errors.New("authorization denied")

	// ErrVerificationFailed 入站数据签名或解密校验失败
	//
	// 协议层从不把校验失败的内容上交应用层；此错误仅在
	// 主动操作（如读取单条）中出现，订阅路径上静默丢弃。
	ErrVerificationFailed = errors.New("verification failed")

	// ErrNotStarted 服务未启动
	ErrNotStarted = errors.New("service not started")

	// ErrAlreadyStarted 服务已启动
	ErrAlreadyStarted = errors.New("service already started")
)
