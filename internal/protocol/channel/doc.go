// Package channel 实现频道消息协议
//
// 发送/订阅/历史/编辑/删除/反应，构建在复制图之上：
//   - 出站消息经本地身份签名，入站消息按声称的作者公钥重新验签，
//     验签失败静默丢弃并撤销已见标记（等待纠正后的重发）
//   - 订阅端以状态摘要去重，基底的收敛抖动不会重复触发处理器
//   - 编辑/删除只允许作者本人（管理删除经 Moderation 协作方放行），
//     这是客户端侧检查 —— 没有服务器，真实性靠读取侧验签兜底
//   - 反应是 (message, emoji, user) 三元组独立叶子，并发反应者
//     互不冲突；移除写墓碑
package channel
