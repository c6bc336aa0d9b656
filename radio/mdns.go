package radio

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"

	"beaconchat/beacon"
)

const (
	// MDNSService is the mDNS service type without domain suffix.
	MDNSService = "_beaconchat._tcp"
	// MDNSDomain is the mDNS domain.
	MDNSDomain = "local."
	// DefaultBrowseInterval is the background browse interval.
	DefaultBrowseInterval = 10 * time.Second
	// DefaultBrowseTimeout bounds each browse window.
	DefaultBrowseTimeout = 3 * time.Second
	// DefaultMDNSPort is registered with the service record; the adapter
	// never accepts connections on it.
	DefaultMDNSPort = 42424
)

type registerFunc func(instance, service, domain string, port int, text []string, ifaces []net.Interface) (*zeroconf.Server, error)
type browseFunc func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error

// MDNSConfig controls the LAN adapter.
type MDNSConfig struct {
	SelfDeviceID string
	DeviceName   string
	Port         int

	Service        string
	Domain         string
	BrowseInterval time.Duration
	BrowseTimeout  time.Duration

	registerFn registerFunc
	browseFn   browseFunc
}

func (c MDNSConfig) withDefaults() MDNSConfig {
	out := c
	if out.Service == "" {
		out.Service = MDNSService
	}
	if out.Domain == "" {
		out.Domain = MDNSDomain
	}
	if out.Port <= 0 {
		out.Port = DefaultMDNSPort
	}
	if out.BrowseInterval <= 0 {
		out.BrowseInterval = DefaultBrowseInterval
	}
	if out.BrowseTimeout <= 0 {
		out.BrowseTimeout = DefaultBrowseTimeout
	}
	if out.registerFn == nil {
		out.registerFn = zeroconf.Register
	}
	return out
}

func (c MDNSConfig) validate() error {
	if strings.TrimSpace(c.SelfDeviceID) == "" {
		return errors.New("self device ID is required")
	}
	if strings.TrimSpace(c.DeviceName) == "" {
		return errors.New("device name is required")
	}
	return nil
}

// MDNS adapts zeroconf to the beacon transport boundary for LANs: the
// payload rides in a TXT record instead of an advertising packet, and each
// browse window re-reports every reachable peer, which stands in for the
// duplicate-delivery scan callbacks of a real radio. RSSI does not exist on
// this transport and is reported as 0.
type MDNS struct {
	cfg    MDNSConfig
	browse browseFunc
	events chan beacon.TransportEvent

	mu     sync.Mutex
	server *zeroconf.Server

	startOnce sync.Once
	stopOnce  sync.Once
	scanOnce  sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewMDNS creates an adapter with config defaults applied.
func NewMDNS(config MDNSConfig) (*MDNS, error) {
	cfg := config.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	browse := cfg.browseFn
	if browse == nil {
		resolver, err := zeroconf.NewResolver(nil)
		if err != nil {
			return nil, err
		}
		browse = resolver.Browse
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &MDNS{
		cfg:    cfg,
		browse: browse,
		events: make(chan beacon.TransportEvent, 256),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Start reports poweredOn for both roles. The LAN is assumed reachable; a
// failing register or browse surfaces later through trace entries.
func (m *MDNS) Start() error {
	m.startOnce.Do(func() {
		for _, role := range []beacon.Role{beacon.RoleAdvertiser, beacon.RoleScanner} {
			m.emit(beacon.TransportEvent{Type: beacon.EventPowerState, Role: role, State: beacon.PowerStatePoweredOn})
		}
	})
	return nil
}

// StartAdvertising registers the service record carrying payload in TXT.
// Any previous registration is replaced.
func (m *MDNS) StartAdvertising(payload string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.server != nil {
		m.server.Shutdown()
		m.server = nil
	}

	txt := []string{
		"device_id=" + m.cfg.SelfDeviceID,
		"payload=" + payload,
	}
	server, err := m.cfg.registerFn(m.cfg.DeviceName, m.cfg.Service, m.cfg.Domain, m.cfg.Port, txt, nil)
	if err != nil {
		return err
	}
	m.server = server
	return nil
}

// StopAdvertising shuts the registration down. Safe when nothing is active.
func (m *MDNS) StopAdvertising() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.server != nil {
		m.server.Shutdown()
		m.server = nil
	}
	return nil
}

// StartScan launches the periodic browse loop. Duplicate delivery is
// inherent: every window re-emits all visible peers.
func (m *MDNS) StartScan(allowDuplicates bool) error {
	m.scanOnce.Do(func() {
		m.wg.Add(1)
		go m.browseLoop()
	})
	return nil
}

// Events provides power-state and peer-observed events.
func (m *MDNS) Events() <-chan beacon.TransportEvent {
	return m.events
}

// Close stops the browse loop and the registration.
func (m *MDNS) Close() error {
	m.stopOnce.Do(func() {
		m.cancel()
		m.wg.Wait()
	})
	return m.StopAdvertising()
}

func (m *MDNS) browseLoop() {
	defer m.wg.Done()

	// Prime observations immediately.
	m.runBrowse()

	ticker := time.NewTicker(m.cfg.BrowseInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.runBrowse()
		case <-m.ctx.Done():
			return
		}
	}
}

func (m *MDNS) runBrowse() {
	browseCtx, cancel := context.WithTimeout(m.ctx, m.cfg.BrowseTimeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 32)
	collectorDone := make(chan struct{})

	go func() {
		defer close(collectorDone)
		for {
			select {
			case <-browseCtx.Done():
				return
			case entry := <-entries:
				if entry == nil {
					continue
				}
				if obs, ok := m.parseEntry(entry); ok {
					m.emit(beacon.TransportEvent{
						Type:        beacon.EventPeerObserved,
						Role:        beacon.RoleScanner,
						Observation: obs,
					})
				}
			}
		}
	}()

	if err := m.browse(browseCtx, m.cfg.Service, m.cfg.Domain, entries); err != nil {
		cancel()
		<-collectorDone
		return
	}

	<-browseCtx.Done()
	<-collectorDone
}

func (m *MDNS) parseEntry(entry *zeroconf.ServiceEntry) (beacon.Observation, bool) {
	txt := txtToMap(entry.Text)

	deviceID := strings.TrimSpace(txt["device_id"])
	if deviceID == "" || deviceID == m.cfg.SelfDeviceID {
		return beacon.Observation{}, false
	}

	name := strings.TrimSpace(entry.Instance)
	if name == "" {
		name = strings.TrimSpace(entry.HostName)
	}
	if name == "" {
		name = deviceID
	}

	return beacon.Observation{
		ID:          deviceID,
		DisplayName: name,
		Payload:     txt["payload"],
		RSSI:        0,
	}, true
}

func (m *MDNS) emit(ev beacon.TransportEvent) {
	select {
	case m.events <- ev:
	default:
	}
}

func txtToMap(text []string) map[string]string {
	out := make(map[string]string, len(text))
	for _, entry := range text {
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		if key == "" {
			continue
		}
		out[key] = strings.TrimSpace(parts[1])
	}
	return out
}
