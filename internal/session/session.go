// Package session owns the per-probe connection state machine: connect,
// subscribe, stream, and reconnect with bounded backoff. One session
// exclusively owns one radio link; sessions never share state except
// through the telemetry cache.
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teosibileau/grillgauge/internal/logger"
	"github.com/teosibileau/grillgauge/internal/probe"
	"github.com/teosibileau/grillgauge/internal/transport"
)

// State of the session machine.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateSubscribing
	StateStreaming
	StateReconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSubscribing:
		return "subscribing"
	case StateStreaming:
		return "streaming"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Recorder is what a session needs from the telemetry cache.
type Recorder interface {
	RecordReading(id probe.DeviceID, r probe.Reading)
	RecordFailure(id probe.DeviceID)
}

// Config carries the session tunables.
type Config struct {
	ConnectTimeout   time.Duration
	SubscribeTimeout time.Duration
	BackoffBase      time.Duration
	MaxAttempts      int
	Characteristic   string
	FrameBuffer      int
}

func DefaultConfig() Config {
	return Config{
		ConnectTimeout:   10 * time.Second,
		SubscribeTimeout: 5 * time.Second,
		BackoffBase:      5 * time.Second,
		MaxAttempts:      5,
		Characteristic:   probe.TempCharacteristicUUID,
		FrameBuffer:      16,
	}
}

// Session drives one probe's connection lifecycle and feeds its decoded
// readings into the cache.
type Session struct {
	id    probe.DeviceID
	name  string
	dev   transport.Device
	cache Recorder
	cfg   Config

	ctx    context.Context
	cancel context.CancelFunc
	frames chan []byte
	wg     sync.WaitGroup

	reconnecting atomic.Bool

	mu          sync.Mutex
	state       State
	handle      *transport.DiscoveredDevice
	lastReading probe.Reading
	hasReading  bool
}

// New creates a session in the Disconnected state and starts its frame
// consumer. The session lives until Disconnect or until ctx ends.
func New(ctx context.Context, id probe.DeviceID, name string, dev transport.Device, cache Recorder, cfg Config) *Session {
	if cfg.FrameBuffer <= 0 {
		cfg.FrameBuffer = DefaultConfig().FrameBuffer
	}
	if cfg.Characteristic == "" {
		cfg.Characteristic = probe.TempCharacteristicUUID
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &Session{
		id:     id,
		name:   name,
		dev:    dev,
		cache:  cache,
		cfg:    cfg,
		ctx:    sctx,
		cancel: cancel,
		frames: make(chan []byte, cfg.FrameBuffer),
	}

	s.wg.Add(1)
	go s.consumeFrames()

	return s
}

func (s *Session) ID() probe.DeviceID { return s.id }
func (s *Session) Name() string       { return s.name }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connected reports whether the session is streaming over a live link.
func (s *Session) Connected() bool {
	return s.State() == StateStreaming && s.dev.IsConnected()
}

// LastReading returns the most recent decoded reading, if any.
func (s *Session) LastReading() (probe.Reading, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReading, s.hasReading
}

// SetHandle records the best-known discovered reference for this probe.
// Connect tries it first and falls back to the bare address when the
// handle is reported stale.
func (s *Session) SetHandle(h *transport.DiscoveredDevice) {
	s.mu.Lock()
	s.handle = h
	s.mu.Unlock()
}

// Connect establishes the link and subscription. On failure the session
// records the probe offline and keeps retrying in the background with
// backoff; the first error is returned so bootstrap can log it.
func (s *Session) Connect(ctx context.Context) error {
	err := s.establish(ctx)
	if err == nil {
		logger.Info().Str("device", string(s.id)).Str("probe", s.name).Msg("streaming")
		return nil
	}

	logger.Warn().Err(err).
		Str("device", string(s.id)).
		Str("kind", transport.KindOf(err).String()).
		Msg("connect failed")
	s.cache.RecordFailure(s.id)
	s.setState(StateReconnecting)
	s.triggerReconnect()

	return err
}

// EnsureConnected verifies the transport link and, when it has dropped,
// starts a reconnect in the background. It never blocks and is safe to
// call repeatedly; stopped and terminally failed sessions are left
// alone until the next bootstrap.
func (s *Session) EnsureConnected() {
	switch s.State() {
	case StateStreaming:
	default:
		return
	}
	if s.dev.IsConnected() {
		return
	}

	logger.Info().Str("device", string(s.id)).Msg("transport reports disconnected")
	s.cache.RecordFailure(s.id)
	s.setState(StateReconnecting)
	s.triggerReconnect()
}

// Disconnect stops the session: pending backoff waits and in-flight
// connect attempts are cancelled, the subscription dropped and the
// transport closed. Safe on an already-stopped session.
func (s *Session) Disconnect() error {
	s.cancel()

	if err := s.dev.Unsubscribe(s.cfg.Characteristic); err != nil {
		logger.Debug().Err(err).Str("device", string(s.id)).Msg("unsubscribe during teardown")
	}
	if err := s.dev.Disconnect(); err != nil {
		logger.Debug().Err(err).Str("device", string(s.id)).Msg("disconnect during teardown")
	}

	s.setState(StateDisconnected)
	s.wg.Wait()

	return nil
}

// establish runs one connect+subscribe cycle.
func (s *Session) establish(ctx context.Context) error {
	s.setState(StateConnecting)
	if err := s.connectTransport(ctx); err != nil {
		return err
	}

	s.setState(StateSubscribing)
	if err := s.subscribe(ctx); err != nil {
		return err
	}

	s.setState(StateStreaming)
	return nil
}

func (s *Session) connectTransport(ctx context.Context) error {
	s.mu.Lock()
	handle := s.handle
	s.mu.Unlock()

	cctx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	err := s.dev.Connect(cctx, transport.Target{Address: string(s.id), Handle: handle})
	if err == nil {
		return nil
	}

	// A discovered handle can outlive the adapter's cache of it. When
	// the transport reports the device unavailable, retry once with
	// just the hardware address.
	if handle != nil && transport.KindOf(err) == transport.KindDeviceUnavailable {
		logger.Debug().Str("device", string(s.id)).Msg("stale device handle, retrying with bare address")
		s.mu.Lock()
		s.handle = nil
		s.mu.Unlock()

		rctx, rcancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
		defer rcancel()
		err = s.dev.Connect(rctx, transport.Target{Address: string(s.id)})
	}

	return err
}

func (s *Session) subscribe(ctx context.Context) error {
	sctx, cancel := context.WithTimeout(ctx, s.cfg.SubscribeTimeout)
	defer cancel()

	// Clear any subscription left behind by a previous attempt.
	if err := s.dev.Unsubscribe(s.cfg.Characteristic); err != nil {
		logger.Debug().Err(err).Str("device", string(s.id)).Msg("pre-subscribe cleanup")
	}

	return s.dev.Subscribe(sctx, s.cfg.Characteristic, s.enqueueFrame)
}

// enqueueFrame runs on the radio layer's callback. It must not block:
// frames are copied onto the bounded channel and dropped with a warning
// when the consumer is behind.
func (s *Session) enqueueFrame(raw []byte) {
	frame := make([]byte, len(raw))
	copy(frame, raw)

	select {
	case s.frames <- frame:
	default:
		logger.Warn().Str("device", string(s.id)).Msg("frame buffer full, dropping notification")
	}
}

// consumeFrames decodes and forwards notifications strictly in arrival
// order. It is the only reader of the frames channel and survives
// reconnect cycles.
func (s *Session) consumeFrames() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case frame := <-s.frames:
			s.handleFrame(frame)
		}
	}
}

func (s *Session) handleFrame(frame []byte) {
	reading, err := probe.Decode(frame)
	if err != nil {
		logger.Warn().Err(err).
			Str("device", string(s.id)).
			Hex("frame", frame).
			Msg("discarding malformed notification")
		return
	}

	s.mu.Lock()
	s.lastReading = reading
	s.hasReading = true
	s.mu.Unlock()

	s.forward(reading)
}

// forward hands a reading to the cache. Whatever goes wrong downstream
// must not be able to tear down the radio path.
func (s *Session) forward(reading probe.Reading) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Str("device", string(s.id)).
				Interface("panic", r).
				Msg("telemetry forwarding failed")
		}
	}()
	s.cache.RecordReading(s.id, reading)
}

// triggerReconnect starts the reconnect loop unless one is already
// running.
func (s *Session) triggerReconnect() {
	if !s.reconnecting.CompareAndSwap(false, true) {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.reconnecting.Store(false)
		s.reconnect()
	}()
}

// reconnect loops connect+subscribe under the backoff policy. The first
// attempt is immediate; teardown between attempts is defensive and its
// errors ignored. Exhaustion parks the session in Failed until the next
// supervisor bootstrap.
func (s *Session) reconnect() {
	backoff := NewBackoff(s.cfg.BackoffBase, s.cfg.MaxAttempts)

	for {
		delay, ok := backoff.Next()
		if !ok {
			logger.Error().
				Str("device", string(s.id)).
				Int("attempts", backoff.Attempts()).
				Msg("reconnect attempts exhausted, giving up")
			s.cache.RecordFailure(s.id)
			s.setState(StateFailed)
			return
		}

		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-s.ctx.Done():
				timer.Stop()
				s.setState(StateDisconnected)
				return
			case <-timer.C:
			}
		}

		// Drop whatever is left of the previous link before dialing
		// again.
		_ = s.dev.Unsubscribe(s.cfg.Characteristic)
		_ = s.dev.Disconnect()

		err := s.establish(s.ctx)
		if err == nil {
			logger.Info().
				Str("device", string(s.id)).
				Int("attempt", backoff.Attempts()).
				Msg("reconnected")
			return
		}
		if s.ctx.Err() != nil {
			s.setState(StateDisconnected)
			return
		}

		logger.Warn().Err(err).
			Str("device", string(s.id)).
			Str("kind", transport.KindOf(err).String()).
			Int("attempt", backoff.Attempts()).
			Msg("reconnect attempt failed")
		s.cache.RecordFailure(s.id)
		s.setState(StateReconnecting)
	}
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	prev := s.state
	s.state = state
	s.mu.Unlock()

	if prev != state {
		logger.Debug().
			Str("device", string(s.id)).
			Str("from", prev.String()).
			Str("to", state.String()).
			Msg("session state")
	}
}
