// Package crypto 提供 DeChat 身份密钥与消息加密原语
//
// 包含三部分能力：
//   - Ed25519 签名密钥对：身份的唯一凭证，公钥的 base58 编码即用户标识
//   - X25519 交换密钥对：从签名密钥种子派生，用于私信共享密钥协商
//   - 信封签名：对消息规范子集（id、内容、时间戳、作者、频道）的确定性签名
//
// 所有跨网络的真实性与机密性保障都建立在本包之上。
package crypto
