// Package supervisor owns the set of device sessions: it bootstraps
// them from the registry (or a discovery pass when the registry is
// empty), drives the periodic health check, and tears everything down
// on shutdown. A failing probe never affects the handling of another.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/teosibileau/grillgauge/internal/errors"
	"github.com/teosibileau/grillgauge/internal/logger"
	"github.com/teosibileau/grillgauge/internal/probe"
	"github.com/teosibileau/grillgauge/internal/session"
	"github.com/teosibileau/grillgauge/internal/telemetry"
	"github.com/teosibileau/grillgauge/internal/transport"
)

// Registry is the probe registry collaborator read at bootstrap.
type Registry interface {
	ListProbes(ctx context.Context) ([]probe.Info, error)
	AddProbe(ctx context.Context, id probe.DeviceID, name string) error
}

// Config carries the supervisor tunables.
type Config struct {
	HealthInterval   time.Duration
	DiscoveryTimeout time.Duration
	ServiceFilter    string
	Session          session.Config
}

func DefaultConfig() Config {
	return Config{
		HealthInterval:   30 * time.Second,
		DiscoveryTimeout: 10 * time.Second,
		ServiceFilter:    probe.DataServiceUUID,
		Session:          session.DefaultConfig(),
	}
}

// Supervisor manages one session per registered probe.
type Supervisor struct {
	registry Registry
	scanner  transport.Discoverer
	dialer   transport.Dialer
	cache    *telemetry.Cache
	cfg      Config

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[probe.DeviceID]*session.Session
}

func New(registry Registry, scanner transport.Discoverer, dialer transport.Dialer, cache *telemetry.Cache, cfg Config) *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		registry: registry,
		scanner:  scanner,
		dialer:   dialer,
		cache:    cache,
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[probe.DeviceID]*session.Session),
	}
}

// Bootstrap reads the registry (falling back to one discovery pass when
// it is empty), creates a session per probe, revives terminally failed
// ones, and connects everything concurrently. One slow probe never
// delays the others' startup.
func (s *Supervisor) Bootstrap(ctx context.Context) error {
	probes, err := s.registry.ListProbes(ctx)
	if err != nil {
		return errors.Wrap(ErrRegistryUnavailable, err)
	}

	handles := make(map[probe.DeviceID]*transport.DiscoveredDevice)
	if len(probes) == 0 {
		logger.Info().Msg("registry empty, running discovery")
		probes, handles, err = s.discoverProbes(ctx)
		if err != nil {
			return err
		}
	}
	if len(probes) == 0 {
		logger.Warn().Msg("no probes registered or discovered")
		return nil
	}

	connecting := s.prepareSessions(probes, handles)

	var wg sync.WaitGroup
	for _, sess := range connecting {
		wg.Add(1)
		go func(ss *session.Session) {
			defer wg.Done()
			if err := ss.Connect(ctx); err != nil {
				logger.Warn().Err(err).Str("device", string(ss.ID())).Msg("initial connect failed")
			}
		}(sess)
	}
	wg.Wait()

	return nil
}

// discoverProbes runs one scan, registers what it finds, and returns
// the resulting probe list plus the discovered handles so the first
// connect can use them.
func (s *Supervisor) discoverProbes(ctx context.Context) ([]probe.Info, map[probe.DeviceID]*transport.DiscoveredDevice, error) {
	found, err := s.scanner.Discover(ctx, s.cfg.DiscoveryTimeout, s.cfg.ServiceFilter)
	if err != nil {
		return nil, nil, errors.Wrap(ErrDiscoveryFailed, err)
	}

	var probes []probe.Info
	handles := make(map[probe.DeviceID]*transport.DiscoveredDevice)
	for i := range found {
		d := found[i]
		id := probe.DeviceID(d.Address)
		name := d.Name
		if name == "" {
			name = fmt.Sprintf("Probe%d", len(probes)+1)
		}
		if err := s.registry.AddProbe(ctx, id, name); err != nil {
			logger.Warn().Err(err).Str("device", d.Address).Msg("could not register discovered probe")
		}
		probes = append(probes, probe.Info{Address: id, Name: name})
		handles[id] = &d
	}

	logger.Info().Int("count", len(probes)).Msg("discovery finished")
	return probes, handles, nil
}

// prepareSessions creates missing sessions and replaces terminally
// failed ones, returning the set that needs an initial connect.
func (s *Supervisor) prepareSessions(probes []probe.Info, handles map[probe.DeviceID]*transport.DiscoveredDevice) []*session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	var connecting []*session.Session
	for _, p := range probes {
		if existing, ok := s.sessions[p.Address]; ok {
			if existing.State() != session.StateFailed {
				continue
			}
			// A failed session is only revived here, by replacing it.
			logger.Info().Str("device", string(p.Address)).Msg("restarting failed session")
			_ = existing.Disconnect()
		}

		s.cache.Register(p.Address, p.Name)
		sess := session.New(s.ctx, p.Address, p.Name, s.dialer.Dial(string(p.Address)), s.cache, s.cfg.Session)
		if h := handles[p.Address]; h != nil {
			sess.SetHandle(h)
		}
		s.sessions[p.Address] = sess
		connecting = append(connecting, sess)
	}

	return connecting
}

// Run drives the periodic health check until ctx is cancelled or the
// supervisor shuts down.
func (s *Supervisor) Run(ctx context.Context) error {
	if s.cfg.HealthInterval <= 0 {
		return errors.WithData(ErrInvalidInterval, s.cfg.HealthInterval)
	}

	ticker := time.NewTicker(s.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.ctx.Done():
			return nil
		case <-ticker.C:
			s.HealthCheck()
		}
	}
}

// HealthCheck sweeps every session once. Each check runs in its own
// goroutine so a misbehaving device cannot stall or fail the sweep for
// the others.
func (s *Supervisor) HealthCheck() {
	s.mu.Lock()
	sessions := make([]*session.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		go func(ss *session.Session) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error().
						Str("device", string(ss.ID())).
						Interface("panic", r).
						Msg("health check failed")
				}
			}()
			ss.EnsureConnected()
		}(sess)
	}
}

// StatusSnapshot reports per-device connectivity for the health
// surface.
func (s *Supervisor) StatusSnapshot() map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]bool, len(s.sessions))
	for id, sess := range s.sessions {
		out[string(id)] = sess.Connected()
	}
	return out
}

// Shutdown disconnects every session and waits, up to timeout, for
// teardown to finish.
func (s *Supervisor) Shutdown(timeout time.Duration) error {
	s.cancel()

	s.mu.Lock()
	sessions := make([]*session.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		for _, sess := range sessions {
			wg.Add(1)
			go func(ss *session.Session) {
				defer wg.Done()
				if err := ss.Disconnect(); err != nil {
					logger.Debug().Err(err).Str("device", string(ss.ID())).Msg("session teardown")
				}
			}(sess)
		}
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("all sessions disconnected")
		return nil
	case <-time.After(timeout):
		return errors.New(ErrShutdownTimeout)
	}
}
