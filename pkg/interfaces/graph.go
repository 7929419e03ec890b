package interfaces

import (
	"context"

	"github.com/dechat/go-dechat/pkg/types"
)

// GraphUpdate 共享图推送的一次收敛更新
//
// 同一逻辑值可能随底层存储反复收敛而多次推送，
// 订阅方必须自行做幂等合并。
type GraphUpdate struct {
	// Path 更新的叶子路径
	Path types.Path

	// Value 叶子当前值
	Value []byte

	// State 叶子状态时间戳（毫秒），last-write-wins 的比较键
	State int64
}

// UpdateHandler 图更新回调
type UpdateHandler func(GraphUpdate)

// CancelFunc 取消订阅/停止监听
type CancelFunc func()

// Graph 复制图客户端
//
// 对等端与中继节点共享的最终一致键值图的薄封装，
// 是任何状态跨越网络的唯一机制。
type Graph interface {
	// Put 写入叶子值（fire-and-forget，无超时，假定最终送达）
	Put(ctx context.Context, path types.Path, value []byte) error

	// PutAck 写入叶子值并等待确认，超时返回 ErrTimeout
	PutAck(ctx context.Context, path types.Path, value []byte) error

	// Get 读取一次；基底没有完成信号，读取与超时赛跑，
	// 未收敛出值返回 ErrNotFound
	Get(ctx context.Context, path types.Path) ([]byte, error)

	// Scan 限时枚举前缀下的所有叶子（基底没有原生范围查询）；
	// fn 返回 false 时提前终止
	Scan(ctx context.Context, prefix types.Path, fn func(path types.Path, value []byte) bool) error

	// Subscribe 持续订阅前缀下的收敛更新
	Subscribe(prefix types.Path, handler UpdateHandler) (CancelFunc, error)

	// Close 关闭客户端并释放所有订阅
	Close() error
}
