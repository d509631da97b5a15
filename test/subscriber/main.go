package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"uhf-telemetry/internal/storage"
)

// 订阅遥测频道，打印每条变更并检查同一路径两次写入的间隔
func main() {
	addr := flag.String("redis", "localhost:6379", "Redis地址")
	channel := flag.String("channel", "rfid_telemetry", "订阅频道")
	interval := flag.Duration("interval", time.Second, "期望的最小发布间隔")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	client := redis.NewClient(&redis.Options{Addr: *addr})
	defer client.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sub := client.Subscribe(ctx, *channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		log.Fatalf("订阅失败: %v", err)
	}
	fmt.Printf("已订阅: %s/%s\n", *addr, *channel)

	last := make(map[string]int64)
	var received, violations int

	for {
		select {
		case <-ctx.Done():
			fmt.Printf("收到 %d 条, 间隔违规 %d 次\n", received, violations)
			if violations > 0 {
				os.Exit(1)
			}
			return
		case msg, ok := <-sub.Channel():
			if !ok {
				return
			}
			var event storage.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Warnf("无法解析消息: %v", err)
				continue
			}
			received++

			gap := ""
			if prev, seen := last[event.Path]; seen {
				d := time.Duration(event.Timestamp-prev) * time.Millisecond
				gap = d.String()
				if d <= *interval {
					violations++
					log.Warnf("%q 两次发布间隔 %v 不大于 %v", event.Path, d, *interval)
				}
			}
			last[event.Path] = event.Timestamp

			fmt.Printf("[%d] %-20q = %v  %s\n", received, event.Path, event.Value, gap)
		}
	}
}
