// Package engine drives the registration reconciliation: it observes
// distributor callbacks and configuration edits, keeps the persisted
// registration state consistent with the relay server and the linked
// device, and decides when the websocket fallback takes over.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/halvely/push-relay-agent/internal/connector"
	"github.com/halvely/push-relay-agent/internal/model"
	"github.com/halvely/push-relay-agent/internal/store"
	"github.com/halvely/push-relay-agent/pkg/metrics"
	"github.com/halvely/push-relay-agent/pkg/retry"
)

// RelayClient is the slice of the relay server API the engine needs.
type RelayClient interface {
	ProbeReachability(ctx context.Context, url string) bool
	Register(ctx context.Context, url string, device model.LinkedDevice, endpoint string) (model.RegistrationOutcome, error)
}

// Provisioner creates or verifies the linked relay device.
type Provisioner interface {
	EnsureDevice(ctx context.Context, current *model.LinkedDevice) (*model.LinkedDevice, error)
}

// Fallback re-establishes the alternative delivery path. Implementations
// must be idempotent; the engine calls it redundantly by design of the
// reconciliation algorithm.
type Fallback interface {
	Reactivate(ctx context.Context) error
}

// Notifier raises user-visible alerts.
type Notifier interface {
	// RegistrationChanged reports that an established registration silently
	// broke.
	RegistrationChanged()
	// DistributorRegistrationFailed reports that the distributor rejected
	// the app registration.
	DistributorRegistrationFailed()
}

// ProbeCache remembers recent relay reachability results. A nil cache
// disables caching.
type ProbeCache interface {
	Get(ctx context.Context, url string) (result bool, ok bool)
	Put(ctx context.Context, url string, reachable bool) error
}

// Options collects the engine's collaborators.
type Options struct {
	Store       store.Store
	Relay       RelayClient
	ProbeCache  ProbeCache
	Provisioner Provisioner
	Connector   connector.Connector
	Fallback    Fallback
	Notifier    Notifier
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
	RetryCfg    retry.Config
	JobLifespan time.Duration
}

// Engine owns the registration state. All mutations go through its signal
// handlers; the reconcile job reads a snapshot at the start of each run.
type Engine struct {
	mu    sync.Mutex
	state *model.RegistrationState

	store       store.Store
	relay       RelayClient
	probeCache  ProbeCache
	provisioner Provisioner
	connector   connector.Connector
	fallback    Fallback
	notifier    Notifier
	metrics     *metrics.Metrics
	logger      *slog.Logger
	events      *Broadcaster

	jobs   *Mailbox
	probes *Mailbox
}

// New loads the persisted state and wires the mailboxes. Call Run to start
// the workers.
func New(ctx context.Context, opts Options) (*Engine, error) {
	state, err := opts.Store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if opts.RetryCfg.MaxAttempts <= 0 {
		opts.RetryCfg.MaxAttempts = 3
	}
	e := &Engine{
		state:       state,
		store:       opts.Store,
		relay:       opts.Relay,
		probeCache:  opts.ProbeCache,
		provisioner: opts.Provisioner,
		connector:   opts.Connector,
		fallback:    opts.Fallback,
		notifier:    opts.Notifier,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
		events:      NewBroadcaster(),
	}
	e.jobs = NewMailbox("reconcile", opts.RetryCfg, opts.JobLifespan, opts.Logger)
	// Probes run once; superseding edits replace them before they start.
	e.probes = NewMailbox("probe", retry.Config{MaxAttempts: 1}, opts.JobLifespan, opts.Logger)
	return e, nil
}

// Run starts the serialized job worker and the probe worker, blocking until
// the context is cancelled.
func (e *Engine) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		e.jobs.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		e.probes.Run(ctx)
	}()
	wg.Wait()
}

// Subscribe returns the status-refreshed signal channel.
func (e *Engine) Subscribe() (<-chan struct{}, func()) {
	return e.events.Subscribe()
}

// Status derives the current user-facing status from the latest fields.
func (e *Engine) Status() model.PushStatus {
	e.mu.Lock()
	snap := e.state.Clone()
	e.mu.Unlock()

	if snap.Method == model.MethodDistributor && !snap.AirGaped && len(e.connector.Distributors()) == 0 {
		// No distributor installed at all; presented ahead of derivation.
		return model.StatusNoDistributor
	}
	snap.DistributorPresent = e.connector.AckDistributor() != ""
	return snap.Derive()
}

// State returns a snapshot of the registration state.
func (e *Engine) State() *model.RegistrationState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone()
}

// EnqueueReconcile schedules a reconciliation run.
func (e *Engine) EnqueueReconcile() {
	e.jobs.Enqueue(e.runOnce)
}

// --- signal sources -------------------------------------------------------
// Handlers mutate a single field and enqueue work; they perform no network
// IO so the delivery callback path never blocks.

// OnNewEndpoint records a distributor-issued endpoint.
func (e *Engine) OnNewEndpoint(ctx context.Context, endpoint, instance string) {
	e.mu.Lock()
	changed := e.state.Endpoint != endpoint
	if changed {
		e.state.Endpoint = endpoint
		e.persistLocked(ctx)
	}
	e.mu.Unlock()

	if changed {
		e.logger.Debug("new endpoint received", slog.String("instance", instance))
		e.EnqueueReconcile()
	}
}

// OnUnregistered clears the endpoint after the distributor dropped the app.
func (e *Engine) OnUnregistered(ctx context.Context, instance string) {
	e.mu.Lock()
	e.state.Endpoint = ""
	e.persistLocked(ctx)
	e.mu.Unlock()

	e.logger.Info("distributor unregistered this app", slog.String("instance", instance))
	e.EnqueueReconcile()
}

// OnRegistrationFailed surfaces a distributor-side registration failure.
func (e *Engine) OnRegistrationFailed(ctx context.Context, instance string) {
	e.logger.Warn("distributor registration failed", slog.String("instance", instance))
	e.notifier.DistributorRegistrationFailed()
}

// SetAirGapped toggles air-gapped mode.
func (e *Engine) SetAirGapped(ctx context.Context, airGaped bool) {
	e.mu.Lock()
	e.state.AirGaped = airGaped
	e.mu.Unlock()
	e.processNewStatus(ctx)
}

// SetDeliveryMethod switches the notification delivery preference.
func (e *Engine) SetDeliveryMethod(ctx context.Context, method model.DeliveryMethod) {
	e.mu.Lock()
	e.state.Method = method
	e.mu.Unlock()
	e.processNewStatus(ctx)
}

// SelectDistributor chooses the distributor used for future registrations.
func (e *Engine) SelectDistributor(ctx context.Context, id string) {
	e.connector.SaveDistributor(id)
	e.mu.Lock()
	e.state.Distributor = id
	e.mu.Unlock()
	e.processNewStatus(ctx)
}

// SetRelayURL normalizes and stores the relay URL, then schedules a
// reachability probe. A newer edit replaces a probe that has not started;
// an in-flight probe finishes first and the newer result wins because it
// runs strictly after.
func (e *Engine) SetRelayURL(ctx context.Context, raw string) {
	url := model.NormalizeRelayURL(raw)
	e.mu.Lock()
	e.state.Relay = model.RelayConfig{URL: url}
	e.persistLocked(ctx)
	e.mu.Unlock()
	e.events.Publish()

	e.probes.Enqueue(func(ctx context.Context) error {
		e.probeRelay(ctx, url)
		return nil
	})
}

func (e *Engine) probeRelay(ctx context.Context, url string) {
	reachable := false
	if url != "" {
		cached, ok := false, false
		if e.probeCache != nil {
			cached, ok = e.probeCache.Get(ctx, url)
		}
		if ok {
			reachable = cached
		} else {
			if e.metrics != nil {
				e.metrics.IncProbes()
			}
			reachable = e.relay.ProbeReachability(ctx, url)
			if e.probeCache != nil {
				if err := e.probeCache.Put(ctx, url, reachable); err != nil {
					e.logger.Debug("probe cache write failed", slog.Any("error", err))
				}
			}
		}
	}

	e.mu.Lock()
	if e.state.Relay.URL == url {
		e.state.Relay.Reachable = reachable
		e.state.Relay.InternalError = false
	}
	e.mu.Unlock()
	e.processNewStatus(ctx)
}

// processNewStatus marks a reconciliation as owed and schedules it.
func (e *Engine) processNewStatus(ctx context.Context) {
	e.mu.Lock()
	e.state.Pending = true
	e.persistLocked(ctx)
	e.mu.Unlock()

	e.events.Publish()
	e.EnqueueReconcile()
}

// persistLocked saves the current state; callers hold e.mu.
func (e *Engine) persistLocked(ctx context.Context) {
	if err := e.store.Save(ctx, e.state); err != nil {
		e.logger.Error("failed to persist registration state", slog.Any("error", err))
	}
}
