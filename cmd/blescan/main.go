package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"tinygo.org/x/bluetooth"

	"attensync/internal/config"
	"attensync/internal/logger"
)

// blescan surveys nearby BLE advertisements and flags the ESP32 reader.
// Useful for finding the device address to put in DEVICE_ADDRESS.
func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, "console")
	log := logger.Get()

	adapter := bluetooth.DefaultAdapter
	if err := adapter.Enable(); err != nil {
		log.Fatal().Err(err).Msg("bluetooth adapter enable failed")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		_ = adapter.StopScan()
	}()

	log.Info().
		Str("target_address", cfg.DeviceAddress).
		Str("target_name", cfg.DeviceName).
		Msg("scanning for BLE devices, press ctrl+c to stop")

	seen := make(map[string]bool)
	err := adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
		addr := result.Address.String()
		if seen[addr] {
			return
		}
		seen[addr] = true

		name := result.LocalName()
		if name == "" {
			name = "Unknown"
		}
		evt := log.Info().Str("address", addr).Str("name", name).Int("rssi", int(result.RSSI))
		if strings.EqualFold(addr, cfg.DeviceAddress) ||
			(cfg.DeviceName != "" && strings.Contains(name, cfg.DeviceName)) {
			evt.Msg("reader device found, use this address in DEVICE_ADDRESS")
			return
		}
		evt.Msg("device")
	})
	if err != nil {
		log.Fatal().Err(err).Msg("scan failed")
	}
	log.Info().Int("devices", len(seen)).Msg("scan stopped")
}
