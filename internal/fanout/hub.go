// Package fanout broadcasts domain events to live subscribers. Membership is
// transient: a subscription lives for the connection and there is no replay.
package fanout

import (
	"context"
	"encoding/json"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"machinepulse/internal/domain"
)

// Event kinds carried on the wire.
const (
	KindMachineUpdate = "machine:update"
	KindProductionNew = "production:new"
)

// Envelope is the wire shape of one event.
type Envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// sendBuffer bounds how far a slow subscriber may lag before it is dropped.
const sendBuffer = 64

// Subscriber is one live connection's receive side. Events arrive on Receive
// in emission order (FIFO per subscriber). The channel is closed when the
// subscriber is unregistered or the hub shuts down.
type Subscriber struct {
	id   string
	send chan []byte
}

func (s *Subscriber) ID() string             { return s.id }
func (s *Subscriber) Receive() <-chan []byte { return s.send }

// Hub maintains the subscriber registry and serializes membership changes and
// emission through one goroutine, so registration and unregistration are safe
// concurrently with broadcasts.
type Hub struct {
	register   chan *Subscriber
	unregister chan *Subscriber
	broadcast  chan []byte
	done       chan struct{}
	logger     *zap.Logger

	connected prometheus.Gauge
	events    *prometheus.CounterVec
	dropped   prometheus.Counter
}

// NewHub builds a hub. reg may be nil to skip metric registration (tests).
func NewHub(logger *zap.Logger, reg prometheus.Registerer) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)
	return &Hub{
		register:   make(chan *Subscriber),
		unregister: make(chan *Subscriber),
		broadcast:  make(chan []byte),
		done:       make(chan struct{}),
		logger:     logger,
		connected: factory.NewGauge(prometheus.GaugeOpts{
			Name: "machinepulse_fanout_subscribers",
			Help: "Currently connected fan-out subscribers.",
		}),
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "machinepulse_fanout_events_total",
			Help: "Events emitted to the fan-out, by kind.",
		}, []string{"kind"}),
		dropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "machinepulse_fanout_dropped_subscribers_total",
			Help: "Subscribers dropped because their send buffer filled.",
		}),
	}
}

// Run owns the subscriber set until ctx is done. Subscribe, Unsubscribe and
// the emit methods require a hub whose Run has been started; after Run
// returns they degrade to no-ops instead of blocking their callers.
func (h *Hub) Run(ctx context.Context) {
	subscribers := make(map[*Subscriber]bool)
	defer func() {
		for s := range subscribers {
			close(s.send)
		}
		close(h.done)
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-h.register:
			subscribers[s] = true
			h.connected.Set(float64(len(subscribers)))
			h.logger.Debug("subscriber registered", zap.String("subscriber", s.id))
		case s := <-h.unregister:
			if subscribers[s] {
				delete(subscribers, s)
				close(s.send)
				h.connected.Set(float64(len(subscribers)))
				h.logger.Debug("subscriber unregistered", zap.String("subscriber", s.id))
			}
		case message := <-h.broadcast:
			// Every subscriber present now gets the event exactly once;
			// later joiners get nothing for it.
			for s := range subscribers {
				select {
				case s.send <- message:
				default:
					delete(subscribers, s)
					close(s.send)
					h.dropped.Inc()
					h.connected.Set(float64(len(subscribers)))
					h.logger.Warn("subscriber dropped, send buffer full", zap.String("subscriber", s.id))
				}
			}
		}
	}
}

// Subscribe registers a new subscriber starting with an empty stream. After
// shutdown the returned subscriber's Receive channel is already closed.
func (h *Hub) Subscribe(id string) *Subscriber {
	s := &Subscriber{id: id, send: make(chan []byte, sendBuffer)}
	select {
	case h.register <- s:
	case <-h.done:
		close(s.send)
	}
	return s
}

// Unsubscribe removes a subscriber; its Receive channel is closed by the hub.
// Safe to call for an already-removed subscriber.
func (h *Hub) Unsubscribe(s *Subscriber) {
	select {
	case h.unregister <- s:
	case <-h.done:
	}
}

// MachineUpdated implements engine.Notifier.
func (h *Hub) MachineUpdated(m domain.Machine) {
	h.emit(KindMachineUpdate, m)
}

// ProductionRecorded implements engine.Notifier.
func (h *Hub) ProductionRecorded(v domain.ProductionView) {
	h.emit(KindProductionNew, v)
}

func (h *Hub) emit(kind string, payload any) {
	data, err := json.Marshal(Envelope{Type: kind, Payload: payload})
	if err != nil {
		h.logger.Error("marshal event", zap.String("kind", kind), zap.Error(err))
		return
	}
	h.events.WithLabelValues(kind).Inc()
	select {
	case h.broadcast <- data:
	case <-h.done:
	}
}
