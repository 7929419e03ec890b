package voice

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/dechat/go-dechat/pkg/interfaces"
	"github.com/dechat/go-dechat/pkg/types"
)

// signaler WebRTC 信令的共享图传输
//
// 每条信令写到以唯一 ID 结尾的新叶子——覆盖写会吞掉并发的
// ICE candidate。接收端按叶子 ID 去重吸收收敛抖动。
type signaler struct {
	graph    interfaces.Graph
	identity interfaces.Identity
	clock    clock.Clock
	channel  string

	// since 本端加入时刻（毫秒）；更早的信封属于上一次会话
	since int64
}

// send 向对端写入一条信令
func (s *signaler) send(ctx context.Context, toKey string, typ types.SignalType, data string) error {
	env := &types.SignalingEnvelope{
		Type:      typ,
		Data:      data,
		From:      s.identity.PublicKey(),
		Channel:   s.channel,
		Timestamp: s.clock.Now().UnixMilli(),
	}
	raw, err := types.EncodeSignaling(env)
	if err != nil {
		return err
	}
	path := types.SignalingPath(toKey, env.From, uuid.NewString())
	return s.graph.Put(ctx, path, raw)
}

// subscribe 订阅发给自己的信令
//
// 只透出本频道、不早于加入时刻的信封；信令叶子永不删除，
// 重进通话时订阅会回放上一次会话的残留，按时间戳过滤掉。
// 同一叶子的重复推送被 ID 去重吸收。
func (s *signaler) subscribe(handler func(*types.SignalingEnvelope)) (interfaces.CancelFunc, error) {
	var mu sync.Mutex
	delivered := make(map[string]struct{})

	return s.graph.Subscribe(types.SignalingInboxPath(s.identity.PublicKey()), func(u interfaces.GraphUpdate) {
		id := u.Path.Base()
		mu.Lock()
		if _, ok := delivered[id]; ok {
			mu.Unlock()
			return
		}
		delivered[id] = struct{}{}
		mu.Unlock()

		env, err := types.DecodeSignaling(u.Value)
		if err != nil {
			logger.Debug("丢弃损坏的信令", "error", err)
			return
		}
		if env.Channel != s.channel || env.From == s.identity.PublicKey() {
			return
		}
		if env.Timestamp < s.since {
			return
		}
		handler(env)
	})
}
