package monitor

import (
	"sync"
	"time"

	"uhf-telemetry/internal/acquisition"
)

// Snapshot 状态接口返回的内容
type Snapshot struct {
	StartedAt   time.Time `json:"started_at"`
	Ready       bool      `json:"ready"`
	Firmware    string    `json:"firmware,omitempty"`
	BringUpPath string    `json:"bringup_path,omitempty"`
	Baud        int       `json:"baud,omitempty"`
	Region      string    `json:"region,omitempty"`
	ReadPower   int       `json:"read_power,omitempty"`

	Polls         uint64    `json:"polls"`
	TagsFound     uint64    `json:"tags_found"`
	LastOutcome   string    `json:"last_outcome,omitempty"`
	LastReadAt    time.Time `json:"last_read_at,omitempty"`
	SensorCode    int       `json:"sensor_code"`
	RSSI          int       `json:"rssi"`
	Identity      string    `json:"identity,omitempty"`
	Publishes     uint64    `json:"publishes"`
	PublishErrors uint64    `json:"publish_errors"`
	LastPublishAt time.Time `json:"last_publish_at,omitempty"`
}

// Device 启动完成后的模块信息
type Device struct {
	Firmware    string
	BringUpPath string
	Baud        int
	Region      string
	ReadPower   int
}

// Status 采集循环写、HTTP 读的共享状态
type Status struct {
	mu   sync.RWMutex
	snap Snapshot
}

func NewStatus() *Status {
	return &Status{snap: Snapshot{StartedAt: time.Now()}}
}

func (s *Status) SetDevice(d Device) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snap.Ready = true
	s.snap.Firmware = d.Firmware
	s.snap.BringUpPath = d.BringUpPath
	s.snap.Baud = d.Baud
	s.snap.Region = d.Region
	s.snap.ReadPower = d.ReadPower
	BringUpPath.WithLabelValues(d.BringUpPath).Inc()
}

// RecordPoll 记录一次采集结果，未读到标签时保留上一次的读数
func (s *Status) RecordPoll(sample acquisition.Sample, elapsed time.Duration) {
	PollsTotal.WithLabelValues(sample.Outcome().String()).Inc()
	PollDuration.Observe(elapsed.Seconds())

	s.mu.Lock()
	defer s.mu.Unlock()

	s.snap.Polls++
	s.snap.LastOutcome = sample.Outcome().String()
	reading, ok := sample.Reading()
	if !ok {
		return
	}
	s.snap.TagsFound++
	s.snap.LastReadAt = reading.ReadAt
	s.snap.SensorCode = reading.SensorCode
	s.snap.RSSI = reading.RSSI
	s.snap.Identity = reading.Identity
	SensorCode.Set(float64(reading.SensorCode))
	TagRSSI.Set(float64(reading.RSSI))
}

func (s *Status) RecordPublish(at time.Time, err error) {
	PublishesTotal.Inc()
	if err != nil {
		PublishErrors.Inc()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.snap.Publishes++
	s.snap.LastPublishAt = at
	if err != nil {
		s.snap.PublishErrors++
	}
}

func (s *Status) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}
