package presence

import "errors"

// 定义错误
var (
	// ErrNilGraph Graph 为 nil
	ErrNilGraph = errors.New("graph is nil")

	// ErrNilIdentity 身份为 nil，在线状态必须有身份
	ErrNilIdentity = errors.New("identity is nil")

	// ErrInvalidStatus 状态值非法
	ErrInvalidStatus = errors.New("invalid status value")

	// ErrEmptyChannelID 频道 ID 为空
	ErrEmptyChannelID = errors.New("channel id is empty")

	// ErrNoSubscribers 订阅的身份列表为空
	ErrNoSubscribers = errors.New("no public keys to subscribe")
)
