// Package wiregraph 实现经中继同步的复制图客户端
//
// 本地副本是一张 memgraph，读与订阅全部走本地；写入先合并进
// 本地副本（乐观收敛），再经 websocket 发往中继由其扇出给其他
// 对等端。连接断开时写入进入待发队列，重连后按序补发 ——
// 上层协议对断线无感，只是收敛变慢。
//
// 线协议是行分隔 JSON 帧：put / ack / update / hello。
// 状态时间戳随帧携带，叶子级 last-write-wins 在两端同样生效。
package wiregraph
