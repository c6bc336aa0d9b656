package beacon

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// NoticeType identifies controller change notifications.
type NoticeType string

const (
	// NoticeRoster is emitted when the peer roster gains or changes a record.
	NoticeRoster NoticeType = "roster"
	// NoticeLog is emitted when the event log gains an entry.
	NoticeLog NoticeType = "log"
)

// Notice tells the presentation layer that a snapshot went stale.
type Notice struct {
	Type NoticeType
}

// Options adjust controller construction.
type Options struct {
	// Now overrides the clock used for log timestamps and first-seen times.
	Now func() time.Time
	// NoticeBuffer sizes the notification channel.
	NoticeBuffer int
}

// Controller owns the outgoing payload state machine and the discovered-peer
// roster. It consumes typed transport events on a single dispatcher
// goroutine, so every mutation of the registry, the event log, and the
// advertising state is serialized; payload changes from other goroutines are
// marshaled onto the dispatcher through a channel.
type Controller struct {
	transport Transport
	registry  *Registry
	log       *EventLog
	now       func() time.Time

	// Advertising state, touched only by the dispatcher goroutine.
	requested       string
	active          string
	advertiserState PowerState
	scannerState    PowerState

	payloadCh chan string
	notices   chan Notice

	startOnce sync.Once
	stopOnce  sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New creates a controller for the given transport.
func New(transport Transport, opts Options) *Controller {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	buffer := opts.NoticeBuffer
	if buffer <= 0 {
		buffer = 64
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		transport: transport,
		registry:  NewRegistry(),
		log:       NewEventLog(),
		now:       now,
		payloadCh: make(chan string, 16),
		notices:   make(chan Notice, buffer),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start launches the dispatcher goroutine.
func (c *Controller) Start() {
	c.startOnce.Do(func() {
		c.wg.Add(1)
		go c.run()
	})
}

// Stop terminates the dispatcher and closes the notice channel.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		c.cancel()
		c.wg.Wait()
		close(c.notices)
	})
}

// SetPayload records the desired outgoing payload and triggers a reconcile.
// Safe to call from any goroutine; when changes outrun the dispatcher the
// oldest pending value is dropped, the latest payload always wins.
func (c *Controller) SetPayload(text string) {
	payload := strings.TrimSpace(text)
	for {
		select {
		case c.payloadCh <- payload:
			return
		case <-c.ctx.Done():
			return
		default:
		}
		select {
		case <-c.payloadCh:
		default:
		}
	}
}

// Peers returns the roster snapshot in first-seen order.
func (c *Controller) Peers() []Peer {
	return c.registry.Peers()
}

// PeerCount returns the number of known peers.
func (c *Controller) PeerCount() int {
	return c.registry.Len()
}

// Peer returns the record for one identity.
func (c *Controller) Peer(id string) (Peer, bool) {
	return c.registry.Get(id)
}

// LogEntries returns the event log snapshot.
func (c *Controller) LogEntries() []string {
	return c.log.Entries()
}

// Notices provides change notifications for the presentation layer. Emission
// never blocks the dispatcher; a lagging consumer misses notices, not state.
func (c *Controller) Notices() <-chan Notice {
	return c.notices
}

func (c *Controller) run() {
	defer c.wg.Done()

	events := c.transport.Events()
	for {
		select {
		case <-c.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.handleEvent(ev)
		case payload := <-c.payloadCh:
			c.requested = payload
			c.reconcile()
		}
	}
}

func (c *Controller) handleEvent(ev TransportEvent) {
	switch ev.Type {
	case EventPowerState:
		c.handlePowerState(ev.Role, ev.State)
	case EventPeerObserved:
		c.handleObservation(ev.Observation)
	}
}

// handlePowerState coordinates both radio roles. The advertiser side funnels
// every transition through reconcile; the scanner side begins scanning once
// powered on. Leaving poweredOn needs no teardown, the radio stack already
// stopped on its own.
func (c *Controller) handlePowerState(role Role, state PowerState) {
	switch role {
	case RoleAdvertiser:
		c.advertiserState = state
		c.reconcile()
	case RoleScanner:
		c.scannerState = state
		if state != PowerStatePoweredOn {
			c.appendLog(fmt.Sprintf("scanner state: %s", state))
			return
		}
		// Duplicate delivery is required: RSSI refresh and payload updates
		// from known peers arrive as repeated callbacks.
		if err := c.transport.StartScan(true); err != nil {
			c.appendLog(fmt.Sprintf("scan start failed: %v", err))
			return
		}
		c.appendLog("scanning for peers")
	}
}

// reconcile drives the transport toward the requested payload. At most one
// stop and one start command are issued per invocation; there are no retries,
// the next power-state or payload event is the retry.
func (c *Controller) reconcile() {
	c.appendLog(fmt.Sprintf("advertiser state: %s", c.advertiserState))
	if c.advertiserState != PowerStatePoweredOn {
		return
	}

	// Idempotent on the transport, safe when nothing was active.
	if err := c.transport.StopAdvertising(); err != nil {
		c.appendLog(fmt.Sprintf("advertise stop failed: %v", err))
	}

	if c.requested == "" {
		return
	}
	// Guards the rapid payload-change race: a stale reconcile must not
	// re-issue an old payload after a newer one was commanded. Also means a
	// power cycle with an unchanged payload does not re-advertise.
	if c.requested == c.active {
		return
	}

	c.active = c.requested
	c.appendLog(fmt.Sprintf("advertising %q", c.active))
	if err := c.transport.StartAdvertising(c.active); err != nil {
		c.appendLog(fmt.Sprintf("advertise start failed: %v", err))
	}
}

// handleObservation normalizes one raw scan callback, updates the registry,
// and appends a received-message entry when the observation was newsworthy.
func (c *Controller) handleObservation(obs Observation) {
	obs.Payload = strings.TrimSpace(obs.Payload)
	if obs.Payload == "" {
		obs.Payload = PayloadNone
	}

	if !c.registry.Upsert(obs, c.now()) {
		// Repeated identical advertisement; RSSI was refreshed silently.
		return
	}
	c.emit(Notice{Type: NoticeRoster})

	if obs.Payload == PayloadNone {
		return
	}
	c.appendLog(fmt.Sprintf("%s | %s | from %s (%s...) | RSSI %d dBm",
		c.now().Format("15:04:05"), obs.Payload, obs.DisplayName, shortIdentity(obs.ID), obs.RSSI))
}

func (c *Controller) appendLog(entry string) {
	c.log.Append(entry)
	c.emit(Notice{Type: NoticeLog})
}

func (c *Controller) emit(notice Notice) {
	select {
	case c.notices <- notice:
	default:
	}
}

func shortIdentity(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
