package metric

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WS метрики - количество активных соединений
	wsActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_active_connections",
			Help: "Количество активных WebSocket соединений",
		},
	)

	// Комнаты и участники
	activeRooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_active_rooms",
			Help: "Количество активных комнат",
		},
	)

	activeMembers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_active_members",
			Help: "Количество участников во всех комнатах",
		},
	)

	signalsRelayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_signals_total",
			Help: "Количество пересланных signal сообщений",
		},
		[]string{"outcome"},
	)

	messagesRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_rejected_messages_total",
			Help: "Количество отклоненных сообщений",
		},
		[]string{"reason"},
	)
)

func IncrementWSActiveConnections() {
	wsActiveConnections.Inc()
}

func DecrementWSActiveConnections() {
	wsActiveConnections.Dec()
}

// SetRegistrySize записывает размер реестра комнат.
func SetRegistrySize(rooms, members int) {
	activeRooms.Set(float64(rooms))
	activeMembers.Set(float64(members))
}

// RecordSignal записывает результат пересылки signal сообщения.
// outcome: "forwarded" или "dropped".
func RecordSignal(outcome string) {
	signalsRelayed.WithLabelValues(outcome).Inc()
}

// RecordRejected записывает отклоненное сообщение.
func RecordRejected(reason string) {
	messagesRejected.WithLabelValues(reason).Inc()
}
