package dm

import "errors"

// 定义错误
var (
	// ErrNilGraph Graph 为 nil
	ErrNilGraph = errors.New("graph is nil")

	// ErrNilIdentity 身份为 nil，私信必须有身份
	ErrNilIdentity = errors.New("identity is nil")

	// ErrEmptyRecipient 接收方公钥为空
	ErrEmptyRecipient = errors.New("recipient key is empty")

	// ErrSelfConversation 不能与自己建立会话
	ErrSelfConversation = errors.New("cannot start conversation with self")

	// ErrEmptyContent 内容为空
	ErrEmptyContent = errors.New("content is empty")

	// ErrEmptyConversationID 会话 ID 为空
	ErrEmptyConversationID = errors.New("conversation id is empty")

	// ErrConversationNotFound 会话元数据不存在
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrExchangeKeyNotFound 对方尚未发布交换公钥
	ErrExchangeKeyNotFound = errors.New("recipient exchange key not found")

	// ErrNotParticipant 本地身份不是会话参与者
	ErrNotParticipant = errors.New("local identity is not a participant")
)
