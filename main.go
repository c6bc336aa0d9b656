package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"beaconchat/beacon"
	"beaconchat/config"
	"beaconchat/radio"
	"beaconchat/ui"
)

func main() {
	headless := flag.Bool("headless", false, "run without the terminal UI, reading payloads from stdin")
	flag.Parse()

	cfg, cfgPath, err := config.LoadOrCreate()
	if err != nil {
		log.Fatalf("startup failed while loading config: %v", err)
	}

	fmt.Printf("Device ID:     %s\n", cfg.DeviceID)
	fmt.Printf("Device Name:   %s\n", cfg.DeviceName)
	fmt.Printf("Transport:     %s\n", cfg.Transport)
	fmt.Printf("Config File:   %s\n", cfgPath)

	transport, start, err := buildTransport(cfg)
	if err != nil {
		log.Fatalf("startup failed while building transport: %v", err)
	}

	controller := beacon.New(transport, beacon.Options{})
	controller.Start()
	defer controller.Stop()

	if err := start(); err != nil {
		log.Fatalf("transport startup failed: %v", err)
	}
	defer func() {
		if err := transport.Close(); err != nil {
			log.Printf("transport close error: %v", err)
		}
	}()

	if *headless {
		runHeadless(controller, cfg.PayloadLimit)
		return
	}

	if err := ui.Run(controller, cfg.DeviceName, cfg.PayloadLimit); err != nil {
		log.Fatalf("ui failed: %v", err)
	}
}

func buildTransport(cfg *config.DeviceConfig) (beacon.Transport, func() error, error) {
	switch cfg.Transport {
	case config.TransportMDNS:
		adapter, err := radio.NewMDNS(radio.MDNSConfig{
			SelfDeviceID: cfg.DeviceID,
			DeviceName:   cfg.DeviceName,
			Port:         cfg.MDNSPort,
		})
		if err != nil {
			return nil, nil, err
		}
		return adapter, adapter.Start, nil
	default:
		adapter := radio.NewBLE()
		return adapter, adapter.Start, nil
	}
}

// runHeadless prints log entries as they arrive and reads broadcast payloads
// line by line from stdin.
func runHeadless(controller *beacon.Controller, payloadLimit int) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			payload := strings.TrimSpace(scanner.Text())
			if runes := []rune(payload); len(runes) > payloadLimit {
				payload = string(runes[:payloadLimit])
			}
			controller.SetPayload(payload)
		}
	}()

	go func() {
		printed := 0
		for notice := range controller.Notices() {
			if notice.Type != beacon.NoticeLog {
				continue
			}
			entries := controller.LogEntries()
			for ; printed < len(entries); printed++ {
				log.Printf("beacon: %s", entries[printed])
			}
		}
	}()

	fmt.Println("Status:        running (press Ctrl+C to stop)")
	<-ctx.Done()
	fmt.Println("Status:        shutting down")
}
