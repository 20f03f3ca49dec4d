package metrics

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// ============================================================================
//                              rateMeter - 速率计算
// ============================================================================

// rateWindow 速率窗口的桶数，每桶 1 秒
const rateWindow = 60

// rateMeter 基于 60 个 1 秒桶的滑动窗口速率
type rateMeter struct {
	clock clock.Clock

	mu       sync.Mutex
	buckets  [rateWindow]int64
	idx      int
	lastTime time.Time
}

func newRateMeter(c clock.Clock) *rateMeter {
	return &rateMeter{clock: c, lastTime: c.Now()}
}

// add 把 n 计入当前桶
func (r *rateMeter) add(n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.advanceLocked()
	r.buckets[r.idx] += n
}

// rate 最近 60 秒的平均速率（字节/秒）
func (r *rateMeter) rate() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.advanceLocked()
	var total int64
	for _, v := range r.buckets {
		total += v
	}
	return float64(total) / rateWindow
}

func (r *rateMeter) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buckets = [rateWindow]int64{}
	r.idx = 0
	r.lastTime = r.clock.Now()
}

// advanceLocked 按经过的整秒数滚动窗口，清空跨过的桶
func (r *rateMeter) advanceLocked() {
	elapsed := r.clock.Since(r.lastTime)
	if elapsed < time.Second {
		return
	}

	seconds := int(elapsed / time.Second)
	if seconds >= rateWindow {
		r.buckets = [rateWindow]int64{}
		r.idx = 0
	} else {
		for i := 0; i < seconds; i++ {
			r.idx = (r.idx + 1) % rateWindow
			r.buckets[r.idx] = 0
		}
	}
	r.lastTime = r.lastTime.Add(time.Duration(seconds) * time.Second)
}
