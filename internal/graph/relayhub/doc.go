// Package relayhub 实现复制图中继
//
// 中继是纯粹的收敛扇出点：维护全量叶子快照做叶子级
// last-write-wins 合并，把每次收敛广播给所有在线客户端，
// 对新连接按 hello 帧回放快照。它不理解任何上层协议 ——
// 消息、在场、语音名册对它都只是字节。
package relayhub
