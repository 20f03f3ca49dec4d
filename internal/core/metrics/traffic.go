package metrics

import (
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-peerkit/pkg/types"
)

// Stats 流量统计快照
type Stats struct {
	TotalIn  int64   // 累计入站字节
	TotalOut int64   // 累计出站字节
	RateIn   float64 // 入站速率（字节/秒）
	RateOut  float64 // 出站速率（字节/秒）
}

// ============================================================================
//                              Traffic - 流量计数
// ============================================================================

// Traffic 按节点统计经过会话的数据字节数
//
// 只统计 Send 与入站数据，不含资源传输。
type Traffic struct {
	clock clock.Clock

	totalIn  atomic.Int64
	totalOut atomic.Int64
	rateIn   *rateMeter
	rateOut  *rateMeter

	mu    sync.RWMutex
	peers map[types.PeerID]*peerTraffic
}

type peerTraffic struct {
	in, out         atomic.Int64
	rateIn, rateOut *rateMeter
}

// NewTraffic 创建流量计数器，c 为 nil 时使用系统时钟
func NewTraffic(c clock.Clock) *Traffic {
	if c == nil {
		c = clock.New()
	}
	return &Traffic{
		clock:   c,
		rateIn:  newRateMeter(c),
		rateOut: newRateMeter(c),
		peers:   make(map[types.PeerID]*peerTraffic),
	}
}

func (t *Traffic) peer(p types.PeerID) *peerTraffic {
	t.mu.RLock()
	pt := t.peers[p]
	t.mu.RUnlock()
	if pt != nil {
		return pt
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if pt = t.peers[p]; pt == nil {
		pt = &peerTraffic{rateIn: newRateMeter(t.clock), rateOut: newRateMeter(t.clock)}
		t.peers[p] = pt
	}
	return pt
}

// LogSent 记录发往 p 的字节数
func (t *Traffic) LogSent(p types.PeerID, n int) {
	size := int64(n)
	t.totalOut.Add(size)
	t.rateOut.add(size)

	pt := t.peer(p)
	pt.out.Add(size)
	pt.rateOut.add(size)
}

// LogReceived 记录来自 p 的字节数
func (t *Traffic) LogReceived(p types.PeerID, n int) {
	size := int64(n)
	t.totalIn.Add(size)
	t.rateIn.add(size)

	pt := t.peer(p)
	pt.in.Add(size)
	pt.rateIn.add(size)
}

// Totals 全部节点的合计
func (t *Traffic) Totals() Stats {
	return Stats{
		TotalIn:  t.totalIn.Load(),
		TotalOut: t.totalOut.Load(),
		RateIn:   t.rateIn.rate(),
		RateOut:  t.rateOut.rate(),
	}
}

// ForPeer 单个节点的统计，未见过的节点返回零值
func (t *Traffic) ForPeer(p types.PeerID) Stats {
	t.mu.RLock()
	pt := t.peers[p]
	t.mu.RUnlock()
	if pt == nil {
		return Stats{}
	}
	return pt.stats()
}

// ByPeer 所有节点的统计
func (t *Traffic) ByPeer() map[types.PeerID]Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[types.PeerID]Stats, len(t.peers))
	for p, pt := range t.peers {
		out[p] = pt.stats()
	}
	return out
}

// Reset 清空全部统计
func (t *Traffic) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.totalIn.Store(0)
	t.totalOut.Store(0)
	t.rateIn.reset()
	t.rateOut.reset()
	t.peers = make(map[types.PeerID]*peerTraffic)
}

func (pt *peerTraffic) stats() Stats {
	return Stats{
		TotalIn:  pt.in.Load(),
		TotalOut: pt.out.Load(),
		RateIn:   pt.rateIn.rate(),
		RateOut:  pt.rateOut.rate(),
	}
}
