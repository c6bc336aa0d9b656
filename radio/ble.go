// Package radio provides the transport adapters behind the core's
// advertising/discovery boundary: a Bluetooth Low Energy adapter and an mDNS
// adapter for LANs without usable BLE hardware.
package radio

import (
	"errors"
	"fmt"

	"tinygo.org/x/bluetooth"

	"beaconchat/beacon"
)

// BLE adapts the tinygo bluetooth stack to the beacon transport boundary.
// The payload travels in the advertisement local-name field next to the
// shared service UUID.
type BLE struct {
	adapter     *bluetooth.Adapter
	adv         *bluetooth.Advertisement
	serviceUUID bluetooth.UUID
	events      chan beacon.TransportEvent
}

// NewBLE creates an adapter around the default system Bluetooth adapter.
func NewBLE() *BLE {
	return &BLE{
		adapter:     bluetooth.DefaultAdapter,
		serviceUUID: bluetooth.NewUUID(beacon.ServiceUUID),
		events:      make(chan beacon.TransportEvent, 256),
	}
}

// Start enables the adapter and reports the resulting power state for both
// roles. tinygo exposes no ongoing state callbacks, so enabling is the single
// transition source; an enable failure is reported as poweredOff.
func (b *BLE) Start() error {
	if err := b.adapter.Enable(); err != nil {
		b.emitState(beacon.PowerStatePoweredOff)
		return fmt.Errorf("enable bluetooth adapter: %w", err)
	}
	b.adv = b.adapter.DefaultAdvertisement()
	b.emitState(beacon.PowerStatePoweredOn)
	return nil
}

// StartAdvertising configures and starts the advertisement carrying payload.
func (b *BLE) StartAdvertising(payload string) error {
	if b.adv == nil {
		return errors.New("bluetooth adapter is not enabled")
	}
	err := b.adv.Configure(bluetooth.AdvertisementOptions{
		LocalName:    payload,
		ServiceUUIDs: []bluetooth.UUID{b.serviceUUID},
	})
	if err != nil {
		return fmt.Errorf("configure advertisement: %w", err)
	}
	if err := b.adv.Start(); err != nil {
		return fmt.Errorf("start advertisement: %w", err)
	}
	return nil
}

// StopAdvertising stops the advertisement. Safe when nothing is active.
func (b *BLE) StopAdvertising() error {
	if b.adv == nil {
		return nil
	}
	return b.adv.Stop()
}

// StartScan begins scanning for peers advertising the shared service UUID.
// The tinygo scan loop blocks, so it runs on its own goroutine; tinygo
// delivers every advertisement it hears, which satisfies the duplicate
// delivery the core asks for.
func (b *BLE) StartScan(allowDuplicates bool) error {
	go func() {
		err := b.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			if !result.HasServiceUUID(b.serviceUUID) {
				return
			}
			identity := result.Address.String()
			display := result.LocalName()
			if display == "" {
				display = identity
			}
			b.emit(beacon.TransportEvent{
				Type: beacon.EventPeerObserved,
				Role: beacon.RoleScanner,
				Observation: beacon.Observation{
					ID:          identity,
					DisplayName: display,
					Payload:     result.LocalName(),
					RSSI:        result.RSSI,
				},
			})
		})
		if err != nil {
			b.emit(beacon.TransportEvent{
				Type:  beacon.EventPowerState,
				Role:  beacon.RoleScanner,
				State: beacon.PowerStatePoweredOff,
			})
		}
	}()
	return nil
}

// Events provides power-state and peer-observed events.
func (b *BLE) Events() <-chan beacon.TransportEvent {
	return b.events
}

// Close stops scanning and advertising.
func (b *BLE) Close() error {
	_ = b.adapter.StopScan()
	return b.StopAdvertising()
}

func (b *BLE) emitState(state beacon.PowerState) {
	for _, role := range []beacon.Role{beacon.RoleAdvertiser, beacon.RoleScanner} {
		b.emit(beacon.TransportEvent{Type: beacon.EventPowerState, Role: role, State: state})
	}
}

// emit never blocks the radio stack; when the consumer lags, the event is
// dropped and the next callback carries fresher data anyway.
func (b *BLE) emit(ev beacon.TransportEvent) {
	select {
	case b.events <- ev:
	default:
	}
}
