// Package presence 实现在线状态与输入状态协议
//
// 写入侧按心跳周期重写自己的在线记录；读取侧永不直接信任存储的
// 状态，按心跳新鲜度重算有效状态（过期即 offline），并周期性扫描
// 补偿丢失的离线/停止输入写入。心跳是会话级单一资源：同一会话
// 无论多少订阅者只有一个定时器。
package presence
