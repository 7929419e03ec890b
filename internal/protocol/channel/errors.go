package channel

import "errors"

// 定义错误
var (
	// ErrNilGraph Graph 为 nil
	ErrNilGraph = errors.New("graph is nil")

	// ErrEmptyChannelID 频道 ID 为空
	ErrEmptyChannelID = errors.New("channel id is empty")

	// ErrEmptyMessageID 消息 ID 为空
	ErrEmptyMessageID = errors.New("message id is empty")

	// ErrEmptyContent 消息内容为空
	ErrEmptyContent = errors.New("content is empty")

	// ErrEmptyEmoji 表情为空
	ErrEmptyEmoji = errors.New("emoji is empty")

	// ErrMessageNotFound 消息不存在
	ErrMessageNotFound = errors.New("message not found")

	// ErrMessageDeleted 消息已删除，不可再编辑
	ErrMessageDeleted = errors.New("message already deleted")
)
