package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ConversationMetrics exposes counters/histograms for the booking assistant.
type ConversationMetrics struct {
	turnsTotal         *prometheus.CounterVec
	bookingsTotal      *prometheus.CounterVec
	cancellationsTotal *prometheus.CounterVec
	capacityRejections *prometheus.CounterVec
	storeLatency       *prometheus.HistogramVec
}

func NewConversationMetrics(reg prometheus.Registerer) *ConversationMetrics {
	m := &ConversationMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medicare",
			Subsystem: "conversation",
			Name:      "turns_total",
			Help:      "Chat turns processed, by stage reached and outcome",
		}, []string{"stage", "outcome"}),
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medicare",
			Subsystem: "appointments",
			Name:      "bookings_total",
			Help:      "Appointments persisted as confirmed",
		}, []string{"appointment_type"}),
		cancellationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medicare",
			Subsystem: "appointments",
			Name:      "cancellations_total",
			Help:      "Cancellation attempts by result",
		}, []string{"result"}),
		capacityRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medicare",
			Subsystem: "capacity",
			Name:      "rejections_total",
			Help:      "Reservations refused because a department was full",
		}, []string{"department"}),
		storeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "medicare",
			Subsystem: "store",
			Name:      "operation_seconds",
			Help:      "Latency of appointment and capacity store calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.bookingsTotal, m.cancellationsTotal, m.capacityRejections, m.storeLatency)
	return m
}

func (m *ConversationMetrics) ObserveTurn(stage, outcome string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(stage, outcome).Inc()
}

func (m *ConversationMetrics) ObserveBooking(appointmentType string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(appointmentType).Inc()
}

func (m *ConversationMetrics) ObserveCancellation(result string) {
	if m == nil {
		return
	}
	m.cancellationsTotal.WithLabelValues(result).Inc()
}

func (m *ConversationMetrics) ObserveCapacityRejection(department string) {
	if m == nil {
		return
	}
	m.capacityRejections.WithLabelValues(department).Inc()
}

// ObserveStore records how long a store operation took since start.
func (m *ConversationMetrics) ObserveStore(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.storeLatency.WithLabelValues(operation, status).Observe(time.Since(start).Seconds())
}
