package beacon

import "time"

// ServiceUUID is the fixed 128-bit service identifier shared by every
// participant of a deployment. Transports advertise under it and scan for it;
// it is configuration-level and never re-derived at runtime.
var ServiceUUID = [16]byte{
	0xbe, 0xac, 0x0c, 0x47, 0x51, 0x3e, 0x4a, 0x6f,
	0x9d, 0x12, 0x7c, 0x58, 0x21, 0xe0, 0x4b, 0xd1,
}

// PayloadNone is the sentinel stored for peers that advertise no payload.
const PayloadNone = "(none)"

// PowerState mirrors the radio power states reported by the transport.
type PowerState int

const (
	PowerStateUnknown PowerState = iota
	PowerStateResetting
	PowerStateUnsupported
	PowerStateUnauthorized
	PowerStatePoweredOff
	PowerStatePoweredOn
)

func (s PowerState) String() string {
	switch s {
	case PowerStateResetting:
		return "resetting"
	case PowerStateUnsupported:
		return "unsupported"
	case PowerStateUnauthorized:
		return "unauthorized"
	case PowerStatePoweredOff:
		return "poweredOff"
	case PowerStatePoweredOn:
		return "poweredOn"
	default:
		return "unknown"
	}
}

// Role distinguishes the two radio roles a transport reports state for.
type Role int

const (
	// RoleAdvertiser is the outgoing-payload side of the radio.
	RoleAdvertiser Role = iota
	// RoleScanner is the peer-discovery side of the radio.
	RoleScanner
)

func (r Role) String() string {
	if r == RoleScanner {
		return "scanner"
	}
	return "advertiser"
}

// EventType identifies transport event kinds.
type EventType string

const (
	// EventPowerState reports a radio power-state transition for one role.
	EventPowerState EventType = "power_state"
	// EventPeerObserved reports one raw scan callback. The transport performs
	// no deduplication; the same peer may be reported repeatedly.
	EventPeerObserved EventType = "peer_observed"
)

// Observation is one normalized scan callback from the transport.
type Observation struct {
	ID          string
	DisplayName string
	Payload     string
	RSSI        int16
}

// TransportEvent carries one transport callback into the dispatcher.
type TransportEvent struct {
	Type        EventType
	Role        Role
	State       PowerState
	Observation Observation
}

// Peer is one discovered device. ID is immutable for the record's lifetime;
// the remaining fields track the latest observation.
type Peer struct {
	ID          string
	DisplayName string
	Payload     string
	RSSI        int16
	FirstSeen   time.Time
}

// Transport is the radio capability the core depends on. Commands are
// fire-and-forget and must not block; failures surface through later
// power-state events rather than retries.
type Transport interface {
	StartAdvertising(payload string) error
	StopAdvertising() error
	StartScan(allowDuplicates bool) error
	Events() <-chan TransportEvent
	Close() error
}
