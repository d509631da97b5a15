package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"uhf-telemetry/internal/config"
)

const defaultWaitInterval = 300 * time.Millisecond

// Event 每次写入时发布到频道的变更通知
type Event struct {
	Path      string      `json:"path"`
	Value     interface{} `json:"value"`
	Timestamp int64       `json:"timestamp"`
}

// RedisSink 以 Redis 作为遥测远端存储
//
// 每个路径对应一个键保存最新值，同时发布变更事件并保留最近的历史。
type RedisSink struct {
	client        *redis.Client
	channel       string
	historyLength int64
	log           *logrus.Logger
	now           func() time.Time
}

// NewRedisSink 创建客户端，不检查连接，连接由 WaitReady 等待
func NewRedisSink(cfg config.RedisConfig, log *logrus.Logger) *RedisSink {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	return &RedisSink{
		client:        client,
		channel:       cfg.Channel,
		historyLength: cfg.HistoryLength,
		log:           log,
		now:           time.Now,
	}
}

// WaitReady 反复 PING 直到成功，没有次数上限，只能通过 ctx 取消
func (s *RedisSink) WaitReady(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = defaultWaitInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		err := s.client.Ping(ctx).Err()
		if err == nil {
			s.log.Infof("Redis连接成功 (第 %d 次尝试)", attempt)
			return nil
		}
		if attempt == 1 {
			s.log.Warnf("等待Redis就绪: %v", err)
		} else {
			s.log.Debugf("等待Redis就绪: %v", err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("等待Redis就绪被取消: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// Write 写入一个路径的最新值
func (s *RedisSink) Write(ctx context.Context, path string, value interface{}) error {
	if err := s.client.Set(ctx, path, value, 0).Err(); err != nil {
		return fmt.Errorf("写入Redis失败: %w", err)
	}

	event, err := json.Marshal(Event{
		Path:      path,
		Value:     value,
		Timestamp: s.now().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("序列化数据失败: %w", err)
	}

	// 通知和历史只是附带的，失败不影响最新值
	if s.channel != "" {
		if err := s.client.Publish(ctx, s.channel, event).Err(); err != nil {
			s.log.Warnf("发布消息失败: %v", err)
		}
	}

	if s.historyLength > 0 {
		listKey := HistoryKey(path)
		pipe := s.client.TxPipeline()
		pipe.LPush(ctx, listKey, event)
		pipe.LTrim(ctx, listKey, 0, s.historyLength-1)
		if _, err := pipe.Exec(ctx); err != nil {
			s.log.Warnf("保存到List失败: %v", err)
		}
	}

	return nil
}

// HistoryKey 路径对应的历史列表键
func HistoryKey(path string) string {
	return path + ":history"
}

// Close 关闭连接
func (s *RedisSink) Close() error {
	return s.client.Close()
}

// GetStats 获取连接池统计
func (s *RedisSink) GetStats() map[string]interface{} {
	stats := s.client.PoolStats()
	return map[string]interface{}{
		"hits":        stats.Hits,
		"misses":      stats.Misses,
		"timeouts":    stats.Timeouts,
		"total_conns": stats.TotalConns,
		"idle_conns":  stats.IdleConns,
	}
}
