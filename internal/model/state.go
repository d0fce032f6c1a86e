package model

import "strings"

// LinkedDevice is the secondary device identity the relay server uses to
// authenticate against the messaging account. Created at most once per
// account lifetime unless externally invalidated.
type LinkedDevice struct {
	AccountID string `json:"account_id"`
	DeviceID  int    `json:"device_id"`
	Password  string `json:"password"`
}

// RelayConfig holds the relay server location and the result of the last
// reachability probe.
type RelayConfig struct {
	URL           string `json:"url"`
	Reachable     bool   `json:"reachable"`
	InternalError bool   `json:"internal_error"`
}

// NormalizeRelayURL canonicalizes a user-entered relay URL: blank input
// means "not configured", anything else gains a trailing slash.
func NormalizeRelayURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	if !strings.HasSuffix(trimmed, "/") {
		return trimmed + "/"
	}
	return trimmed
}

// RegistrationState is the full set of fields the reconciliation engine
// reads and writes. Signal sources mutate single fields before enqueueing a
// run; the run itself reads a consistent snapshot.
type RegistrationState struct {
	Method             DeliveryMethod `json:"method"`
	AirGaped           bool           `json:"air_gaped"`
	Device             *LinkedDevice  `json:"device,omitempty"`
	DeviceError        bool           `json:"device_error"`
	Endpoint           string         `json:"endpoint"`
	Distributor        string         `json:"distributor"`
	DistributorPresent bool           `json:"distributor_present"`
	Relay              RelayConfig    `json:"relay"`
	Pending            bool           `json:"pending"`
	// Status is the last outcome-translated registration status; the
	// user-facing status is always Derive().
	Status PushStatus `json:"status"`
}

// NewRegistrationState returns the defaults used at first start.
func NewRegistrationState() *RegistrationState {
	return &RegistrationState{
		Method: MethodDistributor,
		Status: StatusUnknown,
	}
}

// Derive computes the current push status from the state fields. Pure and
// total; first matching rule wins.
func (s *RegistrationState) Derive() PushStatus {
	switch {
	case s.Method != MethodDistributor:
		return StatusDisabled
	case s.AirGaped:
		return StatusAirGaped
	case !s.DistributorPresent:
		return StatusNoDistributor
	case s.Endpoint == "":
		return StatusMissingEndpoint
	case s.DeviceError:
		return StatusLinkDeviceError
	case s.Pending:
		return StatusPending
	case s.Relay.URL == "" || !s.Relay.Reachable:
		if s.Relay.InternalError {
			return StatusInternalError
		}
		return StatusServerNotFound
	default:
		switch s.Status {
		case StatusOK, StatusForbiddenUUID, StatusForbiddenEndpoint,
			StatusInternalError, StatusServerNotFound:
			return s.Status
		default:
			// No registration attempt recorded yet.
			return StatusPending
		}
	}
}

// Clone returns a deep copy so a run can persist a snapshot without racing
// later signal-source edits.
func (s *RegistrationState) Clone() *RegistrationState {
	out := *s
	if s.Device != nil {
		dev := *s.Device
		out.Device = &dev
	}
	return &out
}
