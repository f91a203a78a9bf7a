package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"rewardnet/core/events"
)

// CampaignMetrics tracks registry activity for operators: event volume per
// type plus a dedicated counter for tolerated fee-transfer failures, which
// are the one failure mode that does not surface as a call error.
type CampaignMetrics struct {
	eventsTotal      *prometheus.CounterVec
	transferFailures prometheus.Counter
}

var (
	campaignOnce     sync.Once
	campaignRegistry *CampaignMetrics
)

// Campaign returns the process-wide campaign metrics registry.
func Campaign() *CampaignMetrics {
	campaignOnce.Do(func() {
		campaignRegistry = &CampaignMetrics{
			eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "campaign_events_total",
				Help: "Count of campaign registry events by type.",
			}, []string{"type"}),
			transferFailures: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "campaign_fee_transfer_failures_total",
				Help: "Count of fee transfers converted into ledger reservations.",
			}),
		}
		prometheus.MustRegister(campaignRegistry.eventsTotal, campaignRegistry.transferFailures)
	})
	return campaignRegistry
}

// ObserveEvent records one emitted registry event.
func (m *CampaignMetrics) ObserveEvent(eventType string) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(eventType).Inc()
	if eventType == "campaign.fee.transfer_failed" {
		m.transferFailures.Inc()
	}
}

// Collector decorates an events.Emitter with metrics observation. A nil next
// emitter just counts.
type Collector struct {
	next events.Emitter
}

// NewCollector wraps next so every event is counted before being forwarded.
func NewCollector(next events.Emitter) *Collector {
	return &Collector{next: next}
}

// Emit implements events.Emitter.
func (c *Collector) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	Campaign().ObserveEvent(evt.EventType())
	if c != nil && c.next != nil {
		c.next.Emit(evt)
	}
}
