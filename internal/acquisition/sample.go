package acquisition

import "time"

// Outcome 单次采集结果
type Outcome int

const (
	NotFound Outcome = iota
	Found
)

func (o Outcome) String() string {
	if o == Found {
		return "found"
	}
	return "not_found"
}

// Reading 读到标签时的数据
type Reading struct {
	SensorCode int       `json:"sensor_code"`
	RSSI       int       `json:"rssi"`
	Identity   string    `json:"identity,omitempty"`
	ReadAt     time.Time `json:"read_at"`
}

// Sample 一次采集的结果，未读到标签时没有任何数据可取
type Sample struct {
	outcome Outcome
	reading Reading
}

func FoundSample(r Reading) Sample {
	return Sample{outcome: Found, reading: r}
}

func NotFoundSample() Sample {
	return Sample{outcome: NotFound}
}

func (s Sample) Outcome() Outcome {
	return s.outcome
}

// Reading 仅在 Found 时返回 true
func (s Sample) Reading() (Reading, bool) {
	if s.outcome != Found {
		return Reading{}, false
	}
	return s.reading, true
}
