package ble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"tinygo.org/x/bluetooth"
)

// ErrNotFound reports that discovery exhausted all attempts without seeing
// the target device. Callers treat it as retryable.
var ErrNotFound = errors.New("ble: target device not found")

// Peripheral identifies a discovered BLE device.
type Peripheral struct {
	Address bluetooth.Address
	Name    string
	RSSI    int16
}

// LocatorConfig selects the target device. Address takes priority; the
// name pattern is a substring match on the advertised local name.
type LocatorConfig struct {
	Address     string
	NamePattern string
	Attempts    int
	Timeout     time.Duration
}

// Locator scans the local radio for the reader device with bounded
// attempts and per-attempt timeouts.
type Locator struct {
	adapter *bluetooth.Adapter
	cfg     LocatorConfig
	log     zerolog.Logger
}

func NewLocator(adapter *bluetooth.Adapter, cfg LocatorConfig, log zerolog.Logger) *Locator {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	return &Locator{adapter: adapter, cfg: cfg, log: log}
}

// Locate performs up to Attempts discovery scans and returns the first
// match. The first matching advertisement wins; RSSI is reported but not
// ranked.
func (l *Locator) Locate(ctx context.Context) (Peripheral, error) {
	for attempt := 1; attempt <= l.cfg.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Peripheral{}, err
		}
		l.log.Info().Int("attempt", attempt).Int("max", l.cfg.Attempts).Msg("scanning for reader device")

		p, err := l.scanOnce(ctx)
		if err == nil {
			l.log.Info().Str("address", p.Address.String()).Str("name", p.Name).Int("rssi", int(p.RSSI)).Msg("target device found")
			return p, nil
		}
		if !errors.Is(err, ErrNotFound) {
			if ctx.Err() != nil {
				return Peripheral{}, ctx.Err()
			}
			l.log.Warn().Err(err).Int("attempt", attempt).Msg("scan attempt failed")
		}
		if attempt < l.cfg.Attempts {
			if err := sleepCtx(ctx, 2*time.Second); err != nil {
				return Peripheral{}, err
			}
		}
	}
	return Peripheral{}, ErrNotFound
}

func (l *Locator) scanOnce(ctx context.Context) (Peripheral, error) {
	var (
		mu    sync.Mutex
		found *Peripheral
	)
	stop := func() { _ = l.adapter.StopScan() }
	timer := time.AfterFunc(l.cfg.Timeout, stop)
	defer timer.Stop()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			stop()
		case <-done:
		}
	}()

	err := l.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
		name := result.LocalName()
		l.log.Debug().Str("address", result.Address.String()).Str("name", name).Msg("advertisement")
		if !l.matches(result.Address.String(), name) {
			return
		}
		mu.Lock()
		if found == nil {
			found = &Peripheral{Address: result.Address, Name: name, RSSI: result.RSSI}
		}
		mu.Unlock()
		stop()
	})

	mu.Lock()
	defer mu.Unlock()
	if found != nil {
		return *found, nil
	}
	if err != nil {
		return Peripheral{}, fmt.Errorf("ble: scan: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return Peripheral{}, err
	}
	return Peripheral{}, ErrNotFound
}

func (l *Locator) matches(addr, name string) bool {
	if l.cfg.Address != "" && strings.EqualFold(addr, l.cfg.Address) {
		return true
	}
	return l.cfg.NamePattern != "" && name != "" && strings.Contains(name, l.cfg.NamePattern)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
