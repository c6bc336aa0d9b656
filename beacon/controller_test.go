package beacon

import (
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeTransport struct {
	mu     sync.Mutex
	starts []string
	stops  int
	scans  []bool

	events chan TransportEvent
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{events: make(chan TransportEvent, 32)}
}

func (f *fakeTransport) StartAdvertising(payload string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, payload)
	return nil
}

func (f *fakeTransport) StopAdvertising() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakeTransport) StartScan(allowDuplicates bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scans = append(f.scans, allowDuplicates)
	return nil
}

func (f *fakeTransport) Events() <-chan TransportEvent { return f.events }

func (f *fakeTransport) Close() error { return nil }

func (f *fakeTransport) startCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.starts...)
}

func (f *fakeTransport) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

func (f *fakeTransport) scanCalls() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.scans...)
}

func (f *fakeTransport) power(role Role, state PowerState) {
	f.events <- TransportEvent{Type: EventPowerState, Role: role, State: state}
}

func (f *fakeTransport) observe(id, name, payload string, rssi int16) {
	f.events <- TransportEvent{
		Type: EventPeerObserved,
		Role: RoleScanner,
		Observation: Observation{
			ID:          id,
			DisplayName: name,
			Payload:     payload,
			RSSI:        rssi,
		},
	}
}

func startedController(t *testing.T) (*Controller, *fakeTransport) {
	t.Helper()
	transport := newFakeTransport()
	controller := New(transport, Options{})
	controller.Start()
	t.Cleanup(controller.Stop)
	return controller, transport
}

func waitForCondition(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before timeout %s", timeout)
}

func TestReconcileAdvertisesOnceForUnchangedPayload(t *testing.T) {
	controller, transport := startedController(t)

	// Payload set before power-on must not reach the transport.
	controller.SetPayload("HELLO")
	waitForCondition(t, time.Second, func() bool { return controller.log.Len() >= 1 })
	if got := transport.startCalls(); len(got) != 0 {
		t.Fatalf("expected no start before poweredOn, got %v", got)
	}

	transport.power(RoleAdvertiser, PowerStatePoweredOn)
	waitForCondition(t, time.Second, func() bool { return len(transport.startCalls()) == 1 })
	if got := transport.startCalls()[0]; got != "HELLO" {
		t.Fatalf("expected to advertise HELLO, got %q", got)
	}
	if transport.stopCount() != 1 {
		t.Fatalf("expected one stop before the start, got %d", transport.stopCount())
	}

	// Re-submitting the identical payload is a no-op beyond the stop.
	logLen := controller.log.Len()
	controller.SetPayload("HELLO")
	waitForCondition(t, time.Second, func() bool { return controller.log.Len() > logLen })
	if got := transport.startCalls(); len(got) != 1 {
		t.Fatalf("expected no additional start for an unchanged payload, got %v", got)
	}
}

func TestReconcileEmptyPayloadStopsWithoutStarting(t *testing.T) {
	controller, transport := startedController(t)

	controller.SetPayload("HI")
	waitForCondition(t, time.Second, func() bool { return controller.log.Len() >= 1 })
	transport.power(RoleAdvertiser, PowerStatePoweredOn)
	waitForCondition(t, time.Second, func() bool { return len(transport.startCalls()) == 1 })

	controller.SetPayload("")
	waitForCondition(t, time.Second, func() bool { return transport.stopCount() == 2 })
	if got := transport.startCalls(); len(got) != 1 {
		t.Fatalf("expected no start for an empty payload, got %v", got)
	}
}

func TestReconcilePowerCycleDoesNotReAdvertise(t *testing.T) {
	controller, transport := startedController(t)

	controller.SetPayload("HELLO")
	waitForCondition(t, time.Second, func() bool { return controller.log.Len() >= 1 })
	transport.power(RoleAdvertiser, PowerStatePoweredOn)
	waitForCondition(t, time.Second, func() bool { return len(transport.startCalls()) == 1 })

	// Power loss issues no commands at all.
	logLen := controller.log.Len()
	transport.power(RoleAdvertiser, PowerStatePoweredOff)
	waitForCondition(t, time.Second, func() bool { return controller.log.Len() > logLen })
	if transport.stopCount() != 1 {
		t.Fatalf("expected no stop while powered off, got %d", transport.stopCount())
	}

	// The return to poweredOn stops, but the active payload was never
	// cleared, so the unchanged payload is not re-advertised.
	transport.power(RoleAdvertiser, PowerStatePoweredOn)
	waitForCondition(t, time.Second, func() bool { return transport.stopCount() == 2 })
	if got := transport.startCalls(); len(got) != 1 {
		t.Fatalf("expected no re-advertise after a power cycle, got %v", got)
	}
}

func TestScannerPowerOnBeginsScanWithDuplicateDelivery(t *testing.T) {
	controller, transport := startedController(t)

	transport.power(RoleScanner, PowerStatePoweredOn)
	waitForCondition(t, time.Second, func() bool { return len(transport.scanCalls()) == 1 })
	if !transport.scanCalls()[0] {
		t.Fatalf("expected scan to request duplicate delivery")
	}

	// Losing power needs no teardown and must not trigger another scan.
	logLen := controller.log.Len()
	transport.power(RoleScanner, PowerStatePoweredOff)
	waitForCondition(t, time.Second, func() bool { return controller.log.Len() > logLen })
	if got := transport.scanCalls(); len(got) != 1 {
		t.Fatalf("expected a single scan command, got %d", len(got))
	}
}

func TestObservationLoggingAndSilentRSSIRefresh(t *testing.T) {
	controller, transport := startedController(t)

	// A peer with no payload joins the roster without a log entry.
	transport.observe("A1B2C3D4E5", "Phone", PayloadNone, -60)
	waitForCondition(t, time.Second, func() bool { return controller.PeerCount() == 1 })
	if got := controller.LogEntries(); len(got) != 0 {
		t.Fatalf("expected no log entry for the %s sentinel, got %v", PayloadNone, got)
	}

	// First real payload produces exactly one entry.
	transport.observe("A1B2C3D4E5", "Phone", "HI123456", -60)
	waitForCondition(t, time.Second, func() bool { return controller.log.Len() == 1 })
	entry := controller.LogEntries()[0]
	for _, want := range []string{"HI123456", "Phone", "(A1B2C3D4...)", "RSSI -60 dBm"} {
		if !strings.Contains(entry, want) {
			t.Fatalf("expected log entry to contain %q, got %q", want, entry)
		}
	}

	// Signal drift updates the record but never the log.
	transport.observe("A1B2C3D4E5", "Phone", "HI123456", -75)
	waitForCondition(t, time.Second, func() bool {
		peer, ok := controller.Peer("A1B2C3D4E5")
		return ok && peer.RSSI == -75
	})
	if got := controller.log.Len(); got != 1 {
		t.Fatalf("expected RSSI drift to add no log entries, got %d", got)
	}
}

func TestObservationBlankPayloadIsTreatedAsNone(t *testing.T) {
	controller, transport := startedController(t)

	transport.observe("FFEEDDCC", "Tablet", "   ", -50)
	waitForCondition(t, time.Second, func() bool { return controller.PeerCount() == 1 })

	peer, ok := controller.Peer("FFEEDDCC")
	if !ok {
		t.Fatalf("expected record for FFEEDDCC")
	}
	if peer.Payload != PayloadNone {
		t.Fatalf("expected blank payload to normalize to %q, got %q", PayloadNone, peer.Payload)
	}
	if got := controller.LogEntries(); len(got) != 0 {
		t.Fatalf("expected no log entry for a blank payload, got %v", got)
	}
}

func TestRosterNoticeEmittedOnChange(t *testing.T) {
	controller, transport := startedController(t)

	transport.observe("A1", "Phone", "HI", -40)
	waitForCondition(t, time.Second, func() bool { return controller.PeerCount() == 1 })

	deadline := time.After(time.Second)
	for {
		select {
		case notice := <-controller.Notices():
			if notice.Type == NoticeRoster {
				return
			}
		case <-deadline:
			t.Fatalf("expected a roster notice")
		}
	}
}
