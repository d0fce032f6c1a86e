// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

var (
	// ErrNotRegistered indicates the account is not registered with the
	// messaging service, so no device can be linked.
	ErrNotRegistered = errors.New("account not registered")

	// ErrIndeterminate indicates the device-list query failed, so device
	// liveness could not be confirmed either way.
	ErrIndeterminate = errors.New("device liveness indeterminate")

	// ErrLinkDevice indicates linked-device provisioning failed.
	ErrLinkDevice = errors.New("link device failed")

	// ErrNoAckDistributor indicates no distributor currently acknowledges
	// this application.
	ErrNoAckDistributor = errors.New("no acknowledged distributor")
)
