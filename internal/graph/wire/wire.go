// Package wire 定义复制图同步的线协议
//
// 客户端与中继之间交换 JSON 帧，叶子状态时间戳随帧携带，
// 两端各自做叶子级 last-write-wins 合并。
package wire

// 帧操作码
const (
	// OpHello 连接建立后由客户端发出，中继回放全量快照
	OpHello = "hello"

	// OpPut 客户端发出的一次叶子写入
	OpPut = "put"

	// OpAck 中继对带确认写入的回执
	OpAck = "ack"

	// OpUpdate 中继扇出的一次收敛更新
	OpUpdate = "update"
)

// Frame 线协议帧；Value 经 JSON 编码自动 base64
type Frame struct {
	// Op 操作码
	Op string `json:"op"`

	// ID 写入帧的去重/确认标识
	ID string `json:"id,omitempty"`

	// Path 叶子路径
	Path string `json:"path,omitempty"`

	// Value 叶子值
	Value []byte `json:"value,omitempty"`

	// State 叶子状态时间戳（毫秒）
	State int64 `json:"state,omitempty"`

	// Ack 是否要求确认回执
	Ack bool `json:"ack,omitempty"`

	// Error 回执携带的错误描述，空为成功
	Error string `json:"error,omitempty"`
}
