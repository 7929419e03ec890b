// Package dechat 提供去服务器聊天平台的实时传输核心
//
// DeChat 不依赖任何中心业务服务器：所有跨网络的状态都经由一张
// 最终一致的复制图收敛，身份即密钥对，消息靠签名自证真伪。
//
// # 核心概念
//
// DeChat 围绕三个核心概念构建：
//
//   - Graph: 复制图，唯一的跨网络状态通道（叶子级 last-write-wins）
//   - Identity: Ed25519 密钥对身份，公钥 base58 即用户标识
//   - Protocols: 频道消息、在场、私信、语音、连通性监视
//
// # 快速开始
//
//	import "github.com/dechat/go-dechat"
//
//	// 1. 创建并启动客户端
//	client, err := dechat.Start(ctx,
//	    dechat.WithRelayEndpoints("ws://relay.example.com:7420/graph"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// 2. 发频道消息
//	channels := client.Channels()
//	msg, _ := channels.Send(ctx, "general", dechat.Draft{Content: "hello"})
//
//	// 3. 订阅在场
//	presence := client.Presence()
//	cancel, _ := presence.SubscribePresence([]string{peerKey}, onPresence)
//	defer cancel()
//
// # API 层次结构
//
//	┌─────────────────────────────────────────────────────────────────┐
//	│  入口层                                                          │
//	│  ┌─────────┐                                                     │
//	│  │ Client  │  dechat.New() / dechat.Start()                     │
//	│  └─────────┘                                                     │
//	├─────────────────────────────────────────────────────────────────┤
//	│  协议层                                                          │
//	│  ┌──────────┐ ┌──────────┐ ┌──────┐ ┌───────┐ ┌─────────┐       │
//	│  │ Channels │ │ Presence │ │ DMs  │ │ Voice │ │ Monitor │       │
//	│  └──────────┘ └──────────┘ └──────┘ └───────┘ └─────────┘       │
//	│  client.Channels() / client.Presence() / ...                    │
//	├─────────────────────────────────────────────────────────────────┤
//	│  基底层                                                          │
//	│  ┌───────────┐ ┌──────────┐                                     │
//	│  │ wiregraph │ │ memgraph │  复制图（中继同步 / 进程内）          │
//	│  └───────────┘ └──────────┘                                     │
//	└─────────────────────────────────────────────────────────────────┘
//
// 未配置中继端点时使用进程内图，适合单进程测试与嵌入场景。
package dechat
