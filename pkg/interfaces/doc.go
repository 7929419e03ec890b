// Package interfaces 定义 DeChat 公共接口
//
// 上层协议（频道消息、在线状态、私信、语音）只依赖本包的契约，
// 不依赖具体实现。所有网络 I/O 都经由 Graph 接口完成 ——
// 共享图是系统唯一的网络基底。
package interfaces
