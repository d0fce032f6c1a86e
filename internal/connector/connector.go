// Package connector bridges the agent to the locally installed distributor
// applications that broker push messages.
package connector

import "context"

// Callback types delivered by a distributor.
const (
	CallbackNewEndpoint        = "new_endpoint"
	CallbackUnregistered       = "unregistered"
	CallbackRegistrationFailed = "registration_failed"
)

// Callback is one distributor-to-agent message.
type Callback struct {
	Type        string `json:"type"`
	Instance    string `json:"instance"`
	Endpoint    string `json:"endpoint,omitempty"`
	Distributor string `json:"distributor,omitempty"`
}

// Handler consumes distributor callbacks. Implementations must only mutate
// state and enqueue work; no network IO on the callback path.
type Handler interface {
	OnNewEndpoint(ctx context.Context, endpoint, instance string)
	OnUnregistered(ctx context.Context, instance string)
	OnRegistrationFailed(ctx context.Context, instance string)
}

// Connector exposes distributor discovery and app registration.
type Connector interface {
	// Distributors lists the distributor applications known to the agent.
	Distributors() []string
	// AckDistributor returns the distributor that currently acknowledges
	// this app, or "" when none does.
	AckDistributor() string
	// SaveDistributor selects the distributor used for future registrations.
	SaveDistributor(id string)
	// RegisterApp asks the selected distributor to (re)register this app.
	// The distributor answers asynchronously through a callback.
	RegisterApp(ctx context.Context) error
}
