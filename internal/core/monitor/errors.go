package monitor

import "errors"

// 定义错误
var (
	// ErrNilGraph Graph 为 nil
	ErrNilGraph = errors.New("graph is nil")

	// ErrNilIdentity 身份为 nil，探测路径由身份派生
	ErrNilIdentity = errors.New("identity is nil")

	// ErrAlreadyStarted 监视器已启动
	ErrAlreadyStarted = errors.New("monitor already started")

	// ErrNotStarted 监视器未启动
	ErrNotStarted = errors.New("monitor not started")
)
