package signal

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"spreadflow/internal/consts"
)

const freqWindow = time.Hour

// MemoryFrequencyWindow 进程内的滑动窗口计数，redis不可用时的降级方案
type MemoryFrequencyWindow struct {
	mu     sync.Mutex
	events map[string][]time.Time
}

func NewMemoryFrequencyWindow() *MemoryFrequencyWindow {
	return &MemoryFrequencyWindow{events: make(map[string][]time.Time)}
}

func (w *MemoryFrequencyWindow) prune(symbol string, now time.Time) {
	cutoff := now.Add(-freqWindow)
	events := w.events[symbol]
	i := 0
	for ; i < len(events); i++ {
		if events[i].After(cutoff) {
			break
		}
	}
	w.events[symbol] = events[i:]
}

func (w *MemoryFrequencyWindow) Count(ctx context.Context, symbol string) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(symbol, time.Now())
	return len(w.events[symbol]), nil
}

func (w *MemoryFrequencyWindow) Record(ctx context.Context, symbol string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := time.Now()
	w.prune(symbol, now)
	w.events[symbol] = append(w.events[symbol], now)
	return nil
}

// RedisFrequencyWindow 基于redis zset的滑动窗口，多实例共享
type RedisFrequencyWindow struct {
	client *redis.Client
}

func NewRedisFrequencyWindow(client *redis.Client) *RedisFrequencyWindow {
	return &RedisFrequencyWindow{client: client}
}

func (w *RedisFrequencyWindow) key(symbol string) string {
	return consts.SignalFreqPrefix + symbol
}

func (w *RedisFrequencyWindow) Count(ctx context.Context, symbol string) (int, error) {
	cutoff := time.Now().Add(-freqWindow).UnixMilli()
	n, err := w.client.ZCount(ctx, w.key(symbol),
		strconv.FormatInt(cutoff, 10), "+inf").Result()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (w *RedisFrequencyWindow) Record(ctx context.Context, symbol string) error {
	now := time.Now()
	key := w.key(symbol)
	pipe := w.client.TxPipeline()
	pipe.ZAdd(ctx, key, &redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: uuid.NewString(),
	})
	pipe.ZRemRangeByScore(ctx, key, "0",
		strconv.FormatInt(now.Add(-freqWindow).UnixMilli(), 10))
	pipe.Expire(ctx, key, freqWindow)
	_, err := pipe.Exec(ctx)
	return err
}
