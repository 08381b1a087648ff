package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LocksGrantedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lockerdesk_locks_granted_total",
		Help: "Total number of locker locks granted (including same-owner re-entries).",
	})

	LocksDeniedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lockerdesk_locks_denied_total",
		Help: "Total number of lock acquisitions denied because another actor holds the lease.",
	})

	LocksExpiredReclaimedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lockerdesk_locks_expired_reclaimed_total",
		Help: "Total number of expired lock rows reclaimed by cleanup.",
	})

	VersionConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lockerdesk_version_conflicts_total",
		Help: "Total number of locker updates rejected by the version guard.",
	})

	LockersUpdatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lockerdesk_lockers_updated_total",
		Help: "Total number of successful locker mutations.",
	})

	ImportRowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lockerdesk_import_rows_total",
		Help: "Bulk import rows by outcome.",
	},
		[]string{"outcome"},
	)

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lockerdesk_active_sessions",
		Help: "Current number of live sessions.",
	})

	OperationErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lockerdesk_operation_errors_total",
		Help: "Total number of errors encountered during specific operations.",
	},
		[]string{"operation"},
	)
)
