package model

// PushStatus is the observable state of the distributor-push delivery path.
// Exactly one value is active at any time; only StatusOK and StatusAirGaped
// mean the path is usable, every other value implies the websocket fallback.
type PushStatus string

const (
	// StatusDisabled means the user selected a delivery method other than
	// distributor push.
	StatusDisabled PushStatus = "DISABLED"
	// StatusUnknown is the uninitialized default and never derived.
	StatusUnknown PushStatus = "UNKNOWN"
	// StatusMissingEndpoint means no endpoint has been received from the
	// distributor yet.
	StatusMissingEndpoint PushStatus = "MISSING_ENDPOINT"
	// StatusNoDistributor means no distributor is acknowledged by the
	// connector.
	StatusNoDistributor PushStatus = "NO_DISTRIBUTOR"
	// StatusLinkDeviceError means the linked relay device could not be
	// provisioned.
	StatusLinkDeviceError PushStatus = "LINK_DEVICE_ERROR"
	// StatusServerNotFound means the relay server is not reachable at the
	// configured URL, or no URL is configured.
	StatusServerNotFound PushStatus = "SERVER_NOT_FOUND_AT_URL"
	// StatusAirGaped means no relay server is used; the distributor path is
	// sufficient on its own.
	StatusAirGaped PushStatus = "AIR_GAPED"
	// StatusPending means a reconciliation pass is owed.
	StatusPending PushStatus = "PENDING"
	// StatusForbiddenUUID means the relay server rejected the device identity.
	StatusForbiddenUUID PushStatus = "FORBIDDEN_UUID"
	// StatusForbiddenEndpoint means the relay server rejected the endpoint.
	StatusForbiddenEndpoint PushStatus = "FORBIDDEN_ENDPOINT"
	// StatusInternalError means the last registration failed ambiguously.
	StatusInternalError PushStatus = "INTERNAL_ERROR"
	// StatusOK means the relay server accepted the registration.
	StatusOK PushStatus = "OK"
)

// Usable reports whether the distributor-push path can deliver messages in
// this status.
func (s PushStatus) Usable() bool {
	return s == StatusOK || s == StatusAirGaped
}

// RegistrationOutcome is the result of a single relay registration attempt.
type RegistrationOutcome string

const (
	OutcomeOK                RegistrationOutcome = "ok"
	OutcomeForbiddenUUID     RegistrationOutcome = "forbidden_uuid"
	OutcomeForbiddenEndpoint RegistrationOutcome = "forbidden_endpoint"
	OutcomeInternalError     RegistrationOutcome = "internal_error"
	OutcomeServerNotFound    RegistrationOutcome = "server_not_found"
	OutcomeNoEndpoint        RegistrationOutcome = "no_endpoint"
)

// Status translates a registration outcome into its push status.
func (o RegistrationOutcome) Status() PushStatus {
	switch o {
	case OutcomeOK:
		return StatusOK
	case OutcomeForbiddenUUID:
		return StatusForbiddenUUID
	case OutcomeForbiddenEndpoint:
		return StatusForbiddenEndpoint
	case OutcomeServerNotFound:
		return StatusServerNotFound
	case OutcomeNoEndpoint:
		return StatusMissingEndpoint
	default:
		return StatusInternalError
	}
}

// DeliveryMethod is the user's notification delivery preference.
type DeliveryMethod string

const (
	// MethodDistributor delivers through a local distributor application and
	// the relay server.
	MethodDistributor DeliveryMethod = "distributor"
	// MethodWebsocket delivers through the account server's websocket.
	MethodWebsocket DeliveryMethod = "websocket"
)
