// Package signal carries the signaling packets between command issuers
// and the session host over websocket.
package signal

import (
	"encoding/json"
	"sync/atomic"

	"github.com/castline/screencast/pkg/api"
	"github.com/castline/screencast/pkg/com"
	"github.com/castline/screencast/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var relayed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "screencast",
	Subsystem: "relay",
	Name:      "events_total",
	Help:      "Session events by the delivery result.",
}, []string{"event", "result"})

// Listener gets the encoded event packets.
// Write must not block, false means the packet is dropped.
type Listener interface {
	Id() com.Uid
	Write(data []byte) bool
}

// Relay delivers session events to every attached listener
// and drops them when there is none.
type Relay struct {
	listeners *com.Map[com.Uid, Listener]
	dropped   atomic.Uint64
	log       *logger.Logger
}

func NewRelay(log *logger.Logger) *Relay {
	return &Relay{
		listeners: com.NewMap[com.Uid, Listener](),
		log:       log.Extend(log.With().Str("c", "relay")),
	}
}

func (r *Relay) Attach(l Listener) { r.listeners.Put(l.Id(), l) }
func (r *Relay) Detach(id com.Uid) { r.listeners.RemoveByKey(id) }
func (r *Relay) Listeners() int    { return r.listeners.Len() }
func (r *Relay) Dropped() uint64   { return r.dropped.Load() }

// Emit sends the event to the listeners, it never blocks.
func (r *Relay) Emit(t api.PT, payload any) {
	data, err := json.Marshal(api.Out{T: t, Payload: payload})
	if err != nil {
		r.log.Error().Err(err).Str("event", t.String()).Msg("encode")
		return
	}
	listeners := r.listeners.Values()
	if len(listeners) == 0 {
		r.drop(t, "no_listener")
		return
	}
	for _, l := range listeners {
		if l.Write(data) {
			relayed.WithLabelValues(t.String(), "sent").Inc()
			continue
		}
		r.drop(t, "slow_listener")
	}
}

func (r *Relay) drop(t api.PT, why string) {
	r.dropped.Add(1)
	relayed.WithLabelValues(t.String(), why).Inc()
	r.log.Debug().Str("event", t.String()).Str("why", why).Msg("event dropped")
}
