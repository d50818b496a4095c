package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Channel 事件通道
type Channel string

const (
	// ChannelProgress agent 运行进度（开始/结束/工具调用）
	ChannelProgress Channel = "progress"
	// ChannelMonitor 基础设施状态（熔断器、安全闸门）
	ChannelMonitor Channel = "monitor"
)

// Event 事件接口
type Event interface {
	EventType() string
}

// Envelope 事件信封
type Envelope struct {
	ID        string    `json:"id"`
	Cursor    int64     `json:"cursor"`
	Timestamp time.Time `json:"timestamp"`
	Channel   Channel   `json:"channel"`
	Event     Event     `json:"event"`
}

// EventHandler 事件处理器函数
type EventHandler func(env Envelope)

// EventBus 双通道事件总线
type EventBus struct {
	mu sync.RWMutex

	cursor   int64
	subs     map[Channel]map[string]chan Envelope
	handlers map[string][]EventHandler
}

// NewEventBus 创建新的事件总线
func NewEventBus() *EventBus {
	return &EventBus{
		subs: map[Channel]map[string]chan Envelope{
			ChannelProgress: {},
			ChannelMonitor:  {},
		},
		handlers: make(map[string][]EventHandler),
	}
}

func (eb *EventBus) emit(channel Channel, event Event) Envelope {
	eb.mu.Lock()
	eb.cursor++
	env := Envelope{
		ID:        uuid.NewString(),
		Cursor:    eb.cursor,
		Timestamp: time.Now(),
		Channel:   channel,
		Event:     event,
	}

	for _, ch := range eb.subs[channel] {
		select {
		case ch <- env:
		default:
			// 非阻塞发送,如果channel满了则跳过
		}
	}

	var hs []EventHandler
	hs = append(hs, eb.handlers[event.EventType()]...)
	hs = append(hs, eb.handlers["*"]...)
	eb.mu.Unlock()

	for _, h := range hs {
		h(env)
	}
	return env
}

// EmitProgress 发送Progress事件
func (eb *EventBus) EmitProgress(event Event) Envelope {
	return eb.emit(ChannelProgress, event)
}

// EmitMonitor 发送Monitor事件
func (eb *EventBus) EmitMonitor(event Event) Envelope {
	return eb.emit(ChannelMonitor, event)
}

// Subscribe 订阅指定通道的事件，channels 为空时订阅全部
func (eb *EventBus) Subscribe(channels ...Channel) <-chan Envelope {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	ch := make(chan Envelope, 100)
	id := uuid.NewString()
	if len(channels) == 0 {
		channels = []Channel{ChannelProgress, ChannelMonitor}
	}
	for _, c := range channels {
		if _, ok := eb.subs[c]; ok {
			eb.subs[c][id] = ch
		}
	}
	return ch
}

// Unsubscribe 取消订阅并关闭channel
func (eb *EventBus) Unsubscribe(ch <-chan Envelope) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	var found chan Envelope
	for _, subs := range eb.subs {
		for id, sub := range subs {
			if sub == ch {
				delete(subs, id)
				found = sub
			}
		}
	}
	if found != nil {
		close(found)
	}
}

// On 注册同步事件处理器，eventType 为 "*" 时匹配所有事件
func (eb *EventBus) On(eventType string, handler EventHandler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.handlers[eventType] = append(eb.handlers[eventType], handler)
}
