package tenantdb

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/tendant/school-crm/pkg/domain"
)

var (
	// clientsOpened counts tenant pools built by the router.
	clientsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tenantdb_clients_opened_total",
		Help: "Total number of tenant database pools opened",
	})

	// clientsOpen tracks pools that are open, cached or draining.
	clientsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tenantdb_clients_open",
		Help: "Number of tenant database pools currently open",
	})

	// evictions counts pools removed from the cache.
	// Labels:
	//   - reason: "capacity", "idle", "invalidated", "shutdown"
	evictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantdb_evictions_total",
			Help: "Total number of tenant pools evicted from the router cache",
		},
		[]string{"reason"},
	)

	// acquires counts Acquire outcomes.
	// Labels:
	//   - result: "hit", "miss", "error"
	acquires = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantdb_acquires_total",
			Help: "Total number of tenant client acquisitions",
		},
		[]string{"result"},
	)

	// acquireErrors breaks failed acquisitions down by cause.
	acquireErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenantdb_acquire_errors_total",
			Help: "Total number of failed tenant client acquisitions by reason",
		},
		[]string{"reason"},
	)
)

func recordAcquireError(err error) {
	acquires.WithLabelValues("error").Inc()
	acquireErrors.WithLabelValues(errorReason(err)).Inc()
}

func errorReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrTenantNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrTenantNotProvisioned):
		return "not_provisioned"
	case errors.Is(err, domain.ErrTenantSuspended):
		return "suspended"
	case errors.Is(err, domain.ErrTenantPendingDeletion):
		return "pending_deletion"
	case errors.Is(err, domain.ErrRouterClosed):
		return "closed"
	default:
		return "internal"
	}
}
