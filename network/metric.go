package network

import (
	"encoding/json"
	"sync/atomic"
)

type MetricPool struct {
	FramesReceived uint64 `json:"frames-received"`
	FramesEnqueued uint64 `json:"frames-enqueued"`
	FramesDropped  uint64 `json:"frames-dropped"`
	FramesSent     uint64 `json:"frames-sent"`
	BytesRead      uint64 `json:"bytes-read"`
	BytesWritten   uint64 `json:"bytes-written"`
	SendErrors     uint64 `json:"send-errors"`
}

func (mp *MetricPool) read(n int) {
	atomic.AddUint64(&mp.BytesRead, uint64(n))
}

func (mp *MetricPool) received(enqueued bool) {
	atomic.AddUint64(&mp.FramesReceived, 1)
	if enqueued {
		atomic.AddUint64(&mp.FramesEnqueued, 1)
	} else {
		atomic.AddUint64(&mp.FramesDropped, 1)
	}
}

func (mp *MetricPool) sent(n int, err error) {
	if err != nil {
		atomic.AddUint64(&mp.SendErrors, 1)
		return
	}
	atomic.AddUint64(&mp.FramesSent, 1)
	atomic.AddUint64(&mp.BytesWritten, uint64(n))
}

// Snapshot copies every counter atomically.
func (mp *MetricPool) Snapshot() MetricPool {
	return MetricPool{
		FramesReceived: atomic.LoadUint64(&mp.FramesReceived),
		FramesEnqueued: atomic.LoadUint64(&mp.FramesEnqueued),
		FramesDropped:  atomic.LoadUint64(&mp.FramesDropped),
		FramesSent:     atomic.LoadUint64(&mp.FramesSent),
		BytesRead:      atomic.LoadUint64(&mp.BytesRead),
		BytesWritten:   atomic.LoadUint64(&mp.BytesWritten),
		SendErrors:     atomic.LoadUint64(&mp.SendErrors),
	}
}

func (mp *MetricPool) String() string {
	snap := mp.Snapshot()
	b, err := json.Marshal(&snap)
	if err != nil {
		panic(err)
	}
	return string(b)
}
