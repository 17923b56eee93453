package rda

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// =====================================
// Connection Management
// =====================================

// defaultProbeCollections is the stock candidate chain for connectivity probes.
var defaultProbeCollections = []string{"profiles", "users", "settings"}

// Manager owns a single store handle and tracks its health. The handle
// is shared read-only by every Repository bound to the Manager.
//
// Manager methods are not synchronized. Reset swaps the handle without
// coordination; in-flight operations complete against the stale handle
// and the replaced handle is left open for them.
type Manager struct {
	config  ConnectionConfig
	factory StoreFactory
	clock   Clock
	logger  zerolog.Logger

	store         Store
	state         ConnState
	lastCheckedAt time.Time
	responseTime  time.Duration
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithClock swaps the Manager's time source, mainly for tests
func WithClock(clock Clock) ManagerOption {
	return func(m *Manager) {
		m.clock = clock
	}
}

// WithLogger attaches a logger for lifecycle and probe events
func WithLogger(logger zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager builds a Manager and connects it. When config carries an
// ExistingStore the handle is adopted as-is and trusted to be live.
// Otherwise endpoint and credential are validated, a handle is built
// through the factory, and one synchronous connectivity probe decides
// the initial state. A failed probe still returns a usable Manager in
// the disconnected state.
func NewManager(ctx context.Context, config ConnectionConfig, factory StoreFactory, opts ...ManagerOption) (*Manager, error) {
	m := &Manager{
		config:  config,
		factory: factory,
		clock:   SystemClock(),
		logger:  zerolog.Nop(),
		state:   StateDisconnected,
	}
	for _, opt := range opts {
		opt(m)
	}
	if len(m.config.ProbeCollections) == 0 {
		m.config.ProbeCollections = defaultProbeCollections
	}

	if config.ExistingStore != nil {
		m.store = config.ExistingStore
		m.state = StateConnected
		m.logger.Info().Str("endpoint", config.Endpoint).Msg("adopted existing store handle")
		return m, nil
	}

	if config.Endpoint == "" || config.Credential == "" {
		return nil, NewValidationError("endpoint and credential are required")
	}
	if factory == nil {
		return nil, NewValidationError("store factory is required")
	}

	store, err := factory(m.config)
	if err != nil {
		return nil, NewDatabaseError("building store handle failed", err)
	}
	m.store = store
	m.state = StateConnecting
	m.logger.Info().Str("endpoint", config.Endpoint).Msg("store handle created, probing")

	m.TestConnectivity(ctx)
	return m, nil
}

// Store returns the current handle without blocking. Right after Reset
// the previous handle may still be in use elsewhere; both stay valid.
func (m *Manager) Store() Store {
	return m.store
}

// Status returns the current connection state
func (m *Manager) Status() ConnState {
	return m.state
}

// Config returns the connection configuration the Manager was built with
func (m *Manager) Config() ConnectionConfig {
	return m.config
}

// TestConnectivity probes the configured candidate collections in
// order. A missing collection advances the chain; if every candidate
// is missing but nothing else failed the remote answered, which is
// proof enough of connectivity. Any other failure marks the Manager
// disconnected. Never returns an error.
func (m *Manager) TestConnectivity(ctx context.Context) bool {
	m.lastCheckedAt = m.clock.Now()
	if m.store == nil {
		m.state = StateDisconnected
		m.responseTime = 0
		return false
	}

	start := m.clock.Now()
	for _, collection := range m.config.ProbeCollections {
		err := m.store.Probe(ctx, collection)
		if err == nil {
			m.markConnected(start, collection)
			return true
		}
		if isMissingRelation(err) {
			continue
		}

		m.state = StateDisconnected
		m.responseTime = 0
		m.lastCheckedAt = m.clock.Now()
		m.logger.Warn().
			Err(err).
			Str("collection", collection).
			Str("code", string(Classify(err))).
			Msg("connectivity probe failed")
		return false
	}

	// Every candidate was missing, but the remote kept answering.
	m.markConnected(start, "")
	return true
}

func (m *Manager) markConnected(start time.Time, collection string) {
	now := m.clock.Now()
	m.responseTime = now.Sub(start)
	m.lastCheckedAt = now
	m.state = StateConnected
	evt := m.logger.Debug().Dur("response_time", m.responseTime)
	if collection == "" {
		evt.Msg("remote reachable, no probe collection exists")
		return
	}
	evt.Str("collection", collection).Msg("connectivity probe succeeded")
}

// rebuild swaps in a fresh handle from the factory and moves to the
// connecting state. Managers adopted around an existing handle have no
// factory and keep re-probing the handle they were given.
func (m *Manager) rebuild() bool {
	if m.factory == nil {
		if m.store == nil {
			m.state = StateDisconnected
			return false
		}
		m.state = StateConnecting
		return true
	}

	store, err := m.factory(m.config)
	if err != nil {
		m.state = StateDisconnected
		m.logger.Warn().Err(err).Msg("rebuilding store handle failed")
		return false
	}
	m.store = store
	m.state = StateConnecting
	return true
}

// Reconnect rebuilds the handle and probes it up to maxAttempts times
// with a fixed delay between attempts. Unlike the retry executor's
// exponential schedule, reconnection paces itself evenly. Returns true
// as soon as a probe succeeds, false once every attempt is spent.
func (m *Manager) Reconnect(ctx context.Context, maxAttempts int, delay time.Duration) bool {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		m.logger.Info().
			Int("attempt", attempt).
			Int("max_attempts", maxAttempts).
			Msg("reconnecting")

		if m.rebuild() && m.TestConnectivity(ctx) {
			m.logger.Info().Int("attempt", attempt).Msg("reconnected")
			return true
		}
		if attempt < maxAttempts {
			m.clock.Sleep(delay)
		}
	}

	m.logger.Error().Int("attempts", maxAttempts).Msg("reconnect exhausted all attempts")
	return false
}

// Stats returns a point-in-time snapshot. Response time is only
// reported while connected; the credential class is a best-effort
// decode of the configured credential's JWT role claim. Never fails.
func (m *Manager) Stats() ConnStats {
	stats := ConnStats{
		Status:          m.state,
		LastCheckedAt:   m.lastCheckedAt,
		Endpoint:        m.config.Endpoint,
		CredentialClass: classifyCredential(m.config.Credential),
	}
	if m.state == StateConnected {
		stats.ResponseTime = m.responseTime
	}
	return stats
}

// Reset discards the current handle reference, builds a fresh one, and
// re-probes. The replaced handle is deliberately not closed so that
// operations already holding it can finish.
func (m *Manager) Reset(ctx context.Context) {
	m.logger.Info().Msg("resetting store handle")
	if m.factory != nil {
		m.store = nil
	}
	if m.rebuild() {
		m.TestConnectivity(ctx)
	}
}

// Close shuts down the current handle and disconnects the Manager.
// Handles replaced by earlier Reset calls are not tracked here.
func (m *Manager) Close() error {
	if m.store == nil {
		return nil
	}
	err := m.store.Close()
	m.store = nil
	m.state = StateDisconnected
	return err
}

// classifyCredential decodes the role claim of a JWT-shaped credential.
// Anything that does not decode reads as unknown.
func classifyCredential(credential string) CredentialClass {
	parts := strings.Split(credential, ".")
	if len(parts) != 3 {
		return CredentialUnknown
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return CredentialUnknown
	}
	var claims struct {
		Role string `json:"role"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return CredentialUnknown
	}
	switch claims.Role {
	case "anon":
		return CredentialAnon
	case "service_role":
		return CredentialServiceRole
	default:
		return CredentialUnknown
	}
}
