package monitor

import (
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

var (
	// 采集指标
	PollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rfid_polls_total",
			Help: "单次采集总数",
		},
		[]string{"outcome"},
	)

	PollDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "rfid_poll_duration_seconds",
		Help:    "单次采集耗时",
		Buckets: prometheus.DefBuckets,
	})

	TagRSSI = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rfid_tag_rssi_dbm",
		Help: "最近一次有效采集的 RSSI",
	})

	SensorCode = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rfid_sensor_code",
		Help: "最近一次有效采集的传感码",
	})

	// 发布指标
	PublishesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rfid_publishes_total",
		Help: "闸门打开并发布的次数",
	})

	PublishErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rfid_publish_errors_total",
		Help: "有字段写入失败的发布次数",
	})

	// 启动指标
	BringUpPath = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rfid_bringup_total",
			Help: "模块启动走过的分支",
		},
		[]string{"path"},
	)

	// Goroutine指标
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rfid_goroutines",
		Help: "当前Goroutine数量",
	})

	// 内存指标
	MemoryUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rfid_memory_usage_bytes",
		Help: "内存使用量",
	})
)

var registerOnce sync.Once

type Monitor struct {
	log    *logrus.Logger
	status *Status
}

func NewMonitor(log *logrus.Logger) *Monitor {
	// 注册指标
	registerOnce.Do(func() {
		prometheus.MustRegister(
			PollsTotal,
			PollDuration,
			TagRSSI,
			SensorCode,
			PublishesTotal,
			PublishErrors,
			BringUpPath,
			GoroutineCount,
			MemoryUsage,
		)
	})

	return &Monitor{
		log:    log,
		status: NewStatus(),
	}
}

// Status 返回共享的状态快照
func (m *Monitor) Status() *Status {
	return m.status
}

// StartMetricsServer 启动Metrics HTTP服务器
func (m *Monitor) StartMetricsServer(port int) *http.Server {
	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(m.status),
		ReadHeaderTimeout: 5 * time.Second,
	}
	m.log.Infof("Metrics服务器启动: %s", addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.log.Errorf("Metrics服务器错误: %v", err)
		}
	}()
	return srv
}

// StartRuntimeMonitor 启动运行时监控，stop 关闭后退出
func (m *Monitor) StartRuntimeMonitor(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				m.sampleRuntime()
			}
		}
	}()
}

func (m *Monitor) sampleRuntime() {
	GoroutineCount.Set(float64(runtime.NumGoroutine()))

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	MemoryUsage.Set(float64(memStats.Alloc))

	m.log.Debugf("Goroutines: %d, 内存: %.2f MB",
		runtime.NumGoroutine(),
		float64(memStats.Alloc)/1024/1024,
	)
}
