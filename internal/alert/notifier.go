// Package alert raises the user-visible notifications the engine emits.
package alert

import (
	"log/slog"

	"github.com/halvely/push-relay-agent/pkg/metrics"
)

// Notifier logs alerts and counts them; a headless deployment surfaces them
// through the metrics and log stream.
type Notifier struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func New(logger *slog.Logger, m *metrics.Metrics) *Notifier {
	return &Notifier{
		logger:  logger,
		metrics: m,
	}
}

// RegistrationChanged reports that an established relay registration
// silently broke and delivery fell back.
func (n *Notifier) RegistrationChanged() {
	n.logger.Warn("relay server registration changed, delivery fell back")
	if n.metrics != nil {
		n.metrics.IncAlerts()
	}
}

// DistributorRegistrationFailed reports that the distributor rejected the
// app registration (for example, no network during registration).
func (n *Notifier) DistributorRegistrationFailed() {
	n.logger.Warn("distributor could not register this app")
	if n.metrics != nil {
		n.metrics.IncAlerts()
	}
}
