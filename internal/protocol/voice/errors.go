package voice

import "errors"

// 定义错误
var (
	// ErrNilGraph Graph 为 nil
	ErrNilGraph = errors.New("graph is nil")

	// ErrNilIdentity 身份为 nil
	ErrNilIdentity = errors.New("identity is nil")

	// ErrEmptyChannelID 频道 ID 为空
	ErrEmptyChannelID = errors.New("channel id is empty")

	// ErrEmptyTarget 命令目标为空
	ErrEmptyTarget = errors.New("command target is empty")

	// ErrCallClosed 通话已结束
	ErrCallClosed = errors.New("call already closed")

	// ErrRelayUnavailable 中继端点不可达
	ErrRelayUnavailable = errors.New("voice relay unavailable")
)
