// Package types 定义 DeChat 公共数据类型
//
// 每个路径族（消息、反应、在线状态、输入状态、私信、语音）对应一个
// 强类型记录，编解码集中在本包（见 codec.go），包括对历史版本记录的
// 显式迁移。共享图的冲突解决是叶子级 last-write-wins，记录的合并
// 策略同样集中在各记录的 Merge 函数中。
package types
