package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/halvely/push-relay-agent/internal/errs"
	"github.com/halvely/push-relay-agent/internal/model"
)

// runOnce performs a single reconciliation pass. It reads the latest
// persisted fields, drives the distributor, linked device and relay server
// toward a consistent status, and re-activates the fallback path whenever
// the distributor-push path is unusable. A non-nil return means the
// mailbox's retry policy should run the pass again.
func (e *Engine) runOnce(ctx context.Context) error {
	if e.metrics != nil {
		e.metrics.IncRuns()
	}
	// Observers resynchronize after every run, whatever happened.
	defer e.events.Publish()

	e.mu.Lock()
	snap := e.state.Clone()
	e.mu.Unlock()

	// The user switched away from distributor push entirely: this is a
	// cleanup run, not a registration run.
	if snap.Method != model.MethodDistributor {
		e.logger.Info("delivery method changed, reinitializing fallback delivery",
			slog.String("method", string(snap.Method)))
		e.clearPending(ctx)
		e.reactivateFallback(ctx)
		return nil
	}

	e.checkDistributorPresence(ctx, snap)

	e.ensureDevice(ctx, snap)

	switch status := snap.Derive(); status {
	case model.StatusDisabled, model.StatusUnknown:
		// Defensive: not reachable when this job runs.
		e.logger.Error("reconciliation should not run in this state",
			slog.String("status", string(status)))

	case model.StatusMissingEndpoint, model.StatusNoDistributor,
		model.StatusLinkDeviceError, model.StatusServerNotFound:
		e.logger.Info("distributor push enabled but currently unavailable",
			slog.String("status", string(status)))
		e.commit(ctx, snap)
		e.reactivateFallback(ctx)

	case model.StatusAirGaped:
		// Self-sufficient, but message retrieval still rides the local
		// long-poll loop.
		e.logger.Info("distributor push available in air-gapped mode")
		e.commit(ctx, snap)
		e.reactivateFallback(ctx)

	case model.StatusPending, model.StatusForbiddenUUID,
		model.StatusForbiddenEndpoint, model.StatusInternalError:
		snap.Pending = false
		return e.establishRegistration(ctx, snap)

	case model.StatusOK:
		return e.refreshRegistration(ctx, snap)
	}

	return nil
}

// establishRegistration attempts to (re)register a path that is not yet
// active.
func (e *Engine) establishRegistration(ctx context.Context, snap *model.RegistrationState) error {
	e.logger.Info("registering with relay server")
	outcome, err := e.register(ctx, snap)
	if err != nil {
		e.commit(ctx, snap)
		return err
	}

	e.applyOutcome(snap, outcome)
	e.commit(ctx, snap)

	switch outcome {
	case model.OutcomeOK:
		e.logger.Info("registered with relay server")
		if e.metrics != nil {
			e.metrics.IncRegistrations()
		}
		e.reactivateFallback(ctx)
	case model.OutcomeInternalError:
		// Likely transient; leave delivery activation untouched.
		e.logger.Warn("relay registration failed with an internal error")
	default:
		e.logger.Warn("still unable to register with relay server",
			slog.String("outcome", string(outcome)))
		e.reactivateFallback(ctx)
	}
	return nil
}

// refreshRegistration re-registers a path that is already active, treating
// any definitive non-OK answer as a regression.
func (e *Engine) refreshRegistration(ctx context.Context, snap *model.RegistrationState) error {
	e.logger.Debug("refreshing relay server registration")
	outcome, err := e.register(ctx, snap)
	if err != nil {
		e.commit(ctx, snap)
		return err
	}

	switch outcome {
	case model.OutcomeOK:
		e.logger.Debug("relay server registration refreshed")
		e.commit(ctx, snap)
	case model.OutcomeInternalError:
		// May be a bad connection; the path stays active unchanged.
		e.logger.Warn("relay refresh failed with an internal error, ignoring")
		e.commit(ctx, snap)
	default:
		e.logger.Warn("relay server registration regressed",
			slog.String("outcome", string(outcome)))
		e.applyOutcome(snap, outcome)
		e.commit(ctx, snap)
		e.reactivateFallback(ctx)
		e.notifier.RegistrationChanged()
	}
	return nil
}

func (e *Engine) register(ctx context.Context, snap *model.RegistrationState) (model.RegistrationOutcome, error) {
	if snap.Device == nil {
		return model.OutcomeInternalError, errs.ErrLinkDevice
	}
	return e.relay.Register(ctx, snap.Relay.URL, *snap.Device, snap.Endpoint)
}

// applyOutcome folds a registration outcome into the snapshot fields.
func (e *Engine) applyOutcome(snap *model.RegistrationState, outcome model.RegistrationOutcome) {
	snap.Status = outcome.Status()
	switch outcome {
	case model.OutcomeOK:
		snap.Relay.Reachable = true
		snap.Relay.InternalError = false
	case model.OutcomeServerNotFound:
		snap.Relay.Reachable = false
		snap.Relay.InternalError = false
	}
}

// checkDistributorPresence clears the endpoint when the connector no longer
// acknowledges a distributor, and nudges the selected distributor to
// register the app when it has not acknowledged yet.
func (e *Engine) checkDistributorPresence(ctx context.Context, snap *model.RegistrationState) {
	acked := e.connector.AckDistributor()
	snap.DistributorPresent = acked != ""
	if acked == "" {
		if snap.Distributor != "" {
			if err := e.connector.RegisterApp(ctx); err != nil {
				e.logger.Warn("distributor registration request failed", slog.Any("error", err))
			}
		}
		if snap.Endpoint != "" {
			e.logger.Info("no acknowledged distributor, clearing endpoint")
			snap.Endpoint = ""
		}
	}
}

// ensureDevice provisions or verifies the linked relay device when the run
// will need it.
func (e *Engine) ensureDevice(ctx context.Context, snap *model.RegistrationState) {
	if snap.AirGaped || !snap.DistributorPresent || snap.Endpoint == "" {
		return
	}
	dev, err := e.provisioner.EnsureDevice(ctx, snap.Device)
	snap.DeviceError = err != nil
	if err != nil {
		if errors.Is(err, errs.ErrIndeterminate) {
			// Keep the existing record; liveness could not be confirmed.
			e.logger.Warn("linked device liveness indeterminate", slog.Any("error", err))
			return
		}
		e.logger.Error("linked device provisioning failed", slog.Any("error", err))
		return
	}
	snap.Device = dev
}

// commit merges the run's results back into the owned state and persists.
func (e *Engine) commit(ctx context.Context, snap *model.RegistrationState) {
	e.mu.Lock()
	e.state.DistributorPresent = snap.DistributorPresent
	e.state.Endpoint = snap.Endpoint
	e.state.Device = snap.Device
	e.state.DeviceError = snap.DeviceError
	e.state.Pending = snap.Pending
	e.state.Status = snap.Status
	e.state.Relay.Reachable = snap.Relay.Reachable
	e.state.Relay.InternalError = snap.Relay.InternalError
	e.persistLocked(ctx)
	e.mu.Unlock()
}

func (e *Engine) clearPending(ctx context.Context) {
	e.mu.Lock()
	e.state.Pending = false
	e.persistLocked(ctx)
	e.mu.Unlock()
}

func (e *Engine) reactivateFallback(ctx context.Context) {
	if e.metrics != nil {
		e.metrics.IncFallbacks()
	}
	if err := e.fallback.Reactivate(ctx); err != nil {
		e.logger.Error("fallback delivery reactivation failed", slog.Any("error", err))
	}
}
