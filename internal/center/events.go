package center

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/NowakAdmin/DeviceHub/internal/devices"
)

type Kind string

const (
	KindReceived    Kind = "received"
	KindTransmitted Kind = "transmitted"
	KindMessage     Kind = "message"
	KindStatus      Kind = "status"
	KindWeight      Kind = "weight"
	KindBarcode     Kind = "barcode"
)

// Event is everything the center reports to consumers. Only the fields
// relevant to Kind are set.
type Event struct {
	ID             string    `json:"id" msgpack:"id"`
	Kind           Kind      `json:"kind" msgpack:"kind"`
	Device         string    `json:"device" msgpack:"device"`
	ClientDeviceID *int16    `json:"client_device_id,omitempty" msgpack:"client_device_id,omitempty"`
	Time           time.Time `json:"time" msgpack:"time"`

	Text  string `json:"text,omitempty" msgpack:"text,omitempty"`
	Bytes []byte `json:"bytes,omitempty" msgpack:"bytes,omitempty"`

	Message  string `json:"message,omitempty" msgpack:"message,omitempty"`
	Severity string `json:"severity,omitempty" msgpack:"severity,omitempty"`
	Cause    string `json:"cause,omitempty" msgpack:"cause,omitempty"`

	Connected bool `json:"connected" msgpack:"connected"`

	Weight  *devices.WeightResult  `json:"weight,omitempty" msgpack:"weight,omitempty"`
	Barcode *devices.BarcodeResult `json:"barcode,omitempty" msgpack:"barcode,omitempty"`
}

func newEvent(kind Kind, device string, clientDeviceID *int16) Event {
	return Event{
		ID:             uuid.NewString(),
		Kind:           kind,
		Device:         device,
		ClientDeviceID: clientDeviceID,
		Time:           time.Now().UTC(),
	}
}

const defaultSubscriptionBuffer = 256

// Hub broadcasts events to all subscribers. A subscriber that falls behind
// loses events rather than stalling the devices.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[*Subscription]struct{}
	closed      bool
}

type Subscription struct {
	send chan Event
	hub  *Hub
	once sync.Once
}

func NewHub() *Hub {
	return &Hub{subscribers: make(map[*Subscription]struct{})}
}

func (h *Hub) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = defaultSubscriptionBuffer
	}
	sub := &Subscription{send: make(chan Event, buffer), hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(sub.send)
		sub.once.Do(func() {})
		return sub
	}
	h.subscribers[sub] = struct{}{}
	return sub
}

func (h *Hub) Broadcast(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subscribers {
		select {
		case sub.send <- event:
		default:
		}
	}
}

func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subscribers {
		sub.once.Do(func() { close(sub.send) })
		delete(h.subscribers, sub)
	}
}

// C returns the channel for receiving events. It is closed on Unsubscribe or
// when the hub shuts down.
func (s *Subscription) C() <-chan Event {
	return s.send
}

func (s *Subscription) Unsubscribe() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	delete(s.hub.subscribers, s)
	s.once.Do(func() { close(s.send) })
}
