package events

import (
	"sync"
	"time"

	"digitals.local/internal/platform/metrics"
)

// Reason 是一次访问尝试的结果。
type Reason string

const (
	ReasonGranted   Reason = "granted"
	ReasonExhausted Reason = "exhausted"
	ReasonExpired   Reason = "expired"
	ReasonNotFound  Reason = "not_found"
)

// AccessEvent 记录一次下载尝试。不包含 secret。
type AccessEvent struct {
	LinkID     int64     `json:"link_id,omitempty"`
	DigitalID  int64     `json:"digital_id,omitempty"`
	LineItemID int64     `json:"line_item_id,omitempty"`
	Granted    bool      `json:"granted"`
	Reason     Reason    `json:"reason"`
	IP         string    `json:"ip"`
	UserAgent  string    `json:"user_agent"`
	At         time.Time `json:"at"`
}

// Collector 收集访问事件，实现必须是非阻塞的。
type Collector interface {
	Collect(event AccessEvent)
	Close()
}

// ChannelCollector 基于 channel，缓冲满了直接丢弃。
type ChannelCollector struct {
	mu     sync.RWMutex
	ch     chan AccessEvent
	closed bool
}

func NewChannelCollector(bufferSize int) *ChannelCollector {
	return &ChannelCollector{ch: make(chan AccessEvent, bufferSize)}
}

func (c *ChannelCollector) Collect(event AccessEvent) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.ch <- event:
	default:
		metrics.AccessEventsDropped.Inc()
	}
}

func (c *ChannelCollector) Events() <-chan AccessEvent {
	return c.ch
}

func (c *ChannelCollector) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.ch)
}

// Discard 丢弃所有事件，用于测试或关闭事件记录时。
type Discard struct{}

func (Discard) Collect(AccessEvent) {}
func (Discard) Close()              {}
