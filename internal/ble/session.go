package ble

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"tinygo.org/x/bluetooth"
)

var (
	// ErrCharacteristicNotFound means the connected device does not
	// expose the expected RFID notification characteristic. The session
	// does not retry in place; control returns to the supervisor.
	ErrCharacteristicNotFound = errors.New("ble: rfid characteristic not found")

	// ErrSubscribeFailed means notification registration was rejected.
	ErrSubscribeFailed = errors.New("ble: notification subscribe failed")

	// ErrDisconnected means the peer or the radio dropped an established
	// connection while listening.
	ErrDisconnected = errors.New("ble: connection lost")
)

// State is the session's position in its connection lifecycle. Transitions
// happen only inside Run; nothing mutates state from callbacks.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateServiceDiscovery
	StateSubscribing
	StateListening
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateServiceDiscovery:
		return "service_discovery"
	case StateSubscribing:
		return "subscribing"
	case StateListening:
		return "listening"
	default:
		return "unknown"
	}
}

// TagEvent is one decoded notification. Err is set when the payload could
// not produce a usable tag (it must still be audit-logged downstream).
type TagEvent struct {
	Tag string
	Raw []byte
	At  time.Time
	Err error
}

// SessionConfig identifies the RFID service and characteristic.
type SessionConfig struct {
	ServiceUUID    bluetooth.UUID
	CharUUID       bluetooth.UUID
	ConnectTimeout time.Duration
}

// Session owns one live connection to the reader device: connect, discover
// the RFID characteristic, subscribe, then wait passively until a stop
// request or a disconnect. Decoded events are pushed to the events channel
// in delivery order. The radio handle is never reused across runs.
type Session struct {
	adapter *bluetooth.Adapter
	cfg     SessionConfig
	events  chan<- TagEvent
	log     zerolog.Logger

	state State

	mu   sync.Mutex
	stop chan struct{}
}

func NewSession(adapter *bluetooth.Adapter, cfg SessionConfig, events chan<- TagEvent, log zerolog.Logger) *Session {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 15 * time.Second
	}
	return &Session{adapter: adapter, cfg: cfg, events: events, log: log}
}

func (s *Session) setState(next State) {
	s.state = next
	s.log.Debug().Str("state", next.String()).Msg("session state")
}

// Run drives one full connection lifecycle against a located peripheral
// and blocks until stop, disconnect, or a setup failure. Teardown of the
// radio handle is unconditional on every exit path. Returns nil on an
// externally requested stop, ErrDisconnected when the link dropped, and a
// setup error otherwise.
func (s *Session) Run(ctx context.Context, p Peripheral) error {
	stop := make(chan struct{})
	s.mu.Lock()
	s.stop = stop
	s.mu.Unlock()
	defer close(stop)

	lost := make(chan struct{})
	var once sync.Once
	s.adapter.SetConnectHandler(func(dev bluetooth.Device, connected bool) {
		if !connected {
			once.Do(func() { close(lost) })
		}
	})

	s.setState(StateConnecting)
	device, err := s.adapter.Connect(p.Address, bluetooth.ConnectionParams{
		ConnectionTimeout: bluetooth.NewDuration(s.cfg.ConnectTimeout),
	})
	if err != nil {
		s.setState(StateDisconnected)
		return fmt.Errorf("ble: connect %s: %w", p.Address.String(), err)
	}
	defer func() {
		if derr := device.Disconnect(); derr != nil {
			s.log.Warn().Err(derr).Msg("disconnect failed during teardown")
		}
		s.setState(StateDisconnected)
	}()
	s.log.Info().Str("address", p.Address.String()).Msg("connected to reader")

	s.setState(StateServiceDiscovery)
	svcs, err := device.DiscoverServices([]bluetooth.UUID{s.cfg.ServiceUUID})
	if err != nil {
		return fmt.Errorf("%w: service discovery: %v", ErrCharacteristicNotFound, err)
	}
	if len(svcs) == 0 {
		return fmt.Errorf("%w: service %s missing", ErrCharacteristicNotFound, s.cfg.ServiceUUID.String())
	}
	chars, err := svcs[0].DiscoverCharacteristics([]bluetooth.UUID{s.cfg.CharUUID})
	if err != nil {
		return fmt.Errorf("%w: characteristic discovery: %v", ErrCharacteristicNotFound, err)
	}
	if len(chars) == 0 {
		return fmt.Errorf("%w: characteristic %s missing", ErrCharacteristicNotFound, s.cfg.CharUUID.String())
	}
	char := chars[0]

	s.setState(StateSubscribing)
	if err := char.EnableNotifications(s.handleNotification); err != nil {
		return fmt.Errorf("%w: %v", ErrSubscribeFailed, err)
	}

	s.setState(StateListening)
	s.log.Info().Msg("rfid notifications active, waiting for scans")

	select {
	case <-ctx.Done():
		return nil
	case <-lost:
		return ErrDisconnected
	}
}

// handleNotification runs on the radio stack's callback goroutine. It must
// never panic out and must not block the stack indefinitely, so the send
// races against session shutdown.
func (s *Session) handleNotification(buf []byte) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("notification handler recovered")
		}
	}()

	raw := make([]byte, len(buf))
	copy(raw, buf)

	ev := TagEvent{Raw: raw, At: time.Now()}
	tag, err := DecodeTag(raw)
	if err != nil {
		ev.Err = err
	} else {
		ev.Tag = tag
	}

	s.mu.Lock()
	stop := s.stop
	s.mu.Unlock()

	select {
	case s.events <- ev:
	case <-stop:
		s.log.Warn().Msg("session stopping, notification dropped")
	}
}
