package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-peerkit/pkg/types"
)

func newPeer(t *testing.T, name string) types.PeerID {
	t.Helper()
	p, err := types.NewPeerID(name)
	require.NoError(t, err)
	return p
}

func TestTraffic_Totals(t *testing.T) {
	mock := clock.NewMock()
	tr := NewTraffic(mock)
	alice, bob := newPeer(t, "alice"), newPeer(t, "bob")

	tr.LogSent(alice, 100)
	tr.LogSent(bob, 20)
	tr.LogReceived(alice, 60)

	totals := tr.Totals()
	assert.Equal(t, int64(120), totals.TotalOut)
	assert.Equal(t, int64(60), totals.TotalIn)
	assert.InDelta(t, 2.0, totals.RateOut, 1e-9)
	assert.InDelta(t, 1.0, totals.RateIn, 1e-9)

	assert.Equal(t, Stats{TotalIn: 60, TotalOut: 100, RateIn: 1, RateOut: 100.0 / 60}, tr.ForPeer(alice))
	assert.Equal(t, Stats{}, tr.ForPeer(newPeer(t, "carol")))

	byPeer := tr.ByPeer()
	assert.Len(t, byPeer, 2)
	assert.Equal(t, int64(20), byPeer[bob].TotalOut)
}

func TestTraffic_RateWindow(t *testing.T) {
	mock := clock.NewMock()
	tr := NewTraffic(mock)
	peer := newPeer(t, "alice")

	tr.LogSent(peer, 600)
	mock.Add(30 * time.Second)
	tr.LogSent(peer, 600)
	assert.InDelta(t, 20.0, tr.Totals().RateOut, 1e-9)

	// 第一个桶滑出窗口
	mock.Add(45 * time.Second)
	assert.InDelta(t, 10.0, tr.Totals().RateOut, 1e-9)

	// 超过整个窗口后速率归零，累计值不变
	mock.Add(2 * time.Minute)
	assert.Zero(t, tr.Totals().RateOut)
	assert.Equal(t, int64(1200), tr.Totals().TotalOut)
}

func TestTraffic_Reset(t *testing.T) {
	tr := NewTraffic(clock.NewMock())
	peer := newPeer(t, "alice")

	tr.LogReceived(peer, 10)
	tr.Reset()

	assert.Equal(t, Stats{}, tr.Totals())
	assert.Empty(t, tr.ByPeer())
}

func TestTraffic_Concurrent(t *testing.T) {
	tr := NewTraffic(nil)
	peers := []types.PeerID{newPeer(t, "a"), newPeer(t, "b"), newPeer(t, "c")}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				p := peers[(i+j)%len(peers)]
				tr.LogSent(p, 1)
				tr.LogReceived(p, 2)
				_ = tr.ForPeer(p)
			}
		}(i)
	}
	wg.Wait()

	totals := tr.Totals()
	assert.Equal(t, int64(800), totals.TotalOut)
	assert.Equal(t, int64(1600), totals.TotalIn)
}
