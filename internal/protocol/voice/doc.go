// Package voice 实现两级语音通话协议
//
// 加入时按存活参与者数选择拓扑：低于网状容量走全网状 WebRTC
// 点对点；达到容量且配置了中继端点则改走选择性转发星形拓扑。
// 中继不可用时仍回退网状并发出容量告警，通话继续。
//
// 参与者名册、WebRTC 信令与管理命令都走共享图：
//   - 名册叶子周期心跳，离开写墓碑；心跳超限即视为已离开
//   - 信令以唯一 ID 追加写入，多条 ICE candidate 必须全部送达
//   - 管理命令（静音/断开）由目标客户端自行观察并在本端执行，
//     没有中心执行者
package voice
