// Package dm 实现端到端加密私信协议
//
// 会话 ID 由双方公钥确定性派生，双方独立计算得到同一 ID。
// 会话被三处引用：共享元数据（真相源）、各自的私有指针、
// 对方的公开收件箱 —— 收件箱任何人可写，条目必须对照共享
// 元数据做参与者校验后才被采纳。
//
// 密文由 X25519 共享密钥加封，签名覆盖密文而非明文；
// 解密或验签任一失败都静默丢弃，绝不透出部分解密的内容。
package dm
