package rda

import (
	"context"
	"encoding/base64"
	"fmt"
	"testing"
	"time"
)

// probeStore is a Store stub whose probe outcomes are scripted per
// call; the last script entry repeats. Probing advances the shared
// fake clock by latency.
type probeStore struct {
	results []error
	calls   []string
	latency time.Duration
	clock   *fakeClock
	closed  bool
}

func (s *probeStore) Probe(ctx context.Context, collection string) error {
	s.calls = append(s.calls, collection)
	if s.clock != nil && s.latency > 0 {
		s.clock.advance(s.latency)
	}
	if len(s.results) == 0 {
		return nil
	}
	idx := len(s.calls) - 1
	if idx >= len(s.results) {
		idx = len(s.results) - 1
	}
	return s.results[idx]
}

func (s *probeStore) Select(ctx context.Context, q *Query, dest interface{}) (int64, error) {
	return 0, nil
}
func (s *probeStore) SelectOne(ctx context.Context, q *Query, dest interface{}) error { return nil }
func (s *probeStore) Insert(ctx context.Context, collection string, row map[string]interface{}, dest interface{}) error {
	return nil
}
func (s *probeStore) Update(ctx context.Context, q *Query, changes map[string]interface{}, dest interface{}) error {
	return nil
}
func (s *probeStore) Delete(ctx context.Context, q *Query) (int64, error) { return 0, nil }
func (s *probeStore) Count(ctx context.Context, q *Query) (int64, error) { return 0, nil }
func (s *probeStore) Close() error {
	s.closed = true
	return nil
}

func makeJWT(role string) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(fmt.Sprintf(`{"role":"%s"}`, role)))
	return header + "." + payload + ".sig"
}

func missingRelationErr() error {
	return &RemoteError{Code: "42P01", Message: `relation "public.profiles" does not exist`}
}

func outageErr() error {
	return &RemoteError{Code: "08006", Message: "connection terminated"}
}

func testConnConfig() ConnectionConfig {
	return ConnectionConfig{
		Endpoint:   "https://db.example.test",
		Credential: makeJWT("service_role"),
	}
}

func TestNewManagerAdoptsExistingStore(t *testing.T) {
	st := &probeStore{}
	m, err := NewManager(context.Background(), ConnectionConfig{ExistingStore: st}, nil)
	if err != nil {
		t.Fatalf("Expected adoption to succeed, got %v", err)
	}

	if m.Status() != StateConnected {
		t.Errorf("Expected connected state, got %s", m.Status())
	}
	if len(st.calls) != 0 {
		t.Errorf("Expected no probe for an adopted handle, got %v", st.calls)
	}
	if m.Store() != Store(st) {
		t.Error("Expected the adopted handle back from Store()")
	}
}

func TestNewManagerValidatesConfig(t *testing.T) {
	factory := func(ConnectionConfig) (Store, error) { return &probeStore{}, nil }

	_, err := NewManager(context.Background(), ConnectionConfig{Credential: "key"}, factory)
	if !IsValidation(err) {
		t.Errorf("Expected validation error for missing endpoint, got %v", err)
	}

	_, err = NewManager(context.Background(), ConnectionConfig{Endpoint: "https://db"}, factory)
	if !IsValidation(err) {
		t.Errorf("Expected validation error for missing credential, got %v", err)
	}

	_, err = NewManager(context.Background(), testConnConfig(), nil)
	if !IsValidation(err) {
		t.Errorf("Expected validation error for missing factory, got %v", err)
	}
}

func TestNewManagerProbesOnConstruction(t *testing.T) {
	clk := newFakeClock()
	st := &probeStore{clock: clk, latency: 5 * time.Millisecond}
	m, err := NewManager(context.Background(), testConnConfig(),
		func(ConnectionConfig) (Store, error) { return st, nil },
		WithClock(clk))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if m.Status() != StateConnected {
		t.Errorf("Expected connected after successful probe, got %s", m.Status())
	}
	if len(st.calls) != 1 || st.calls[0] != "profiles" {
		t.Errorf("Expected one probe of 'profiles', got %v", st.calls)
	}
}

func TestNewManagerProbeFailureLeavesDisconnected(t *testing.T) {
	st := &probeStore{results: []error{outageErr()}}
	m, err := NewManager(context.Background(), testConnConfig(),
		func(ConnectionConfig) (Store, error) { return st, nil },
		WithClock(newFakeClock()))
	if err != nil {
		t.Fatalf("A failed probe must not fail construction, got %v", err)
	}

	if m.Status() != StateDisconnected {
		t.Errorf("Expected disconnected state, got %s", m.Status())
	}
	if m.Store() == nil {
		t.Error("Expected the handle to stay available for later reconnects")
	}
}

func TestConnectivityAdvancesProbeChain(t *testing.T) {
	clk := newFakeClock()
	st := &probeStore{results: []error{missingRelationErr(), missingRelationErr(), nil}}
	m, _ := NewManager(context.Background(), testConnConfig(),
		func(ConnectionConfig) (Store, error) { return st, nil },
		WithClock(clk))

	if m.Status() != StateConnected {
		t.Errorf("Expected connected, got %s", m.Status())
	}
	want := []string{"profiles", "users", "settings"}
	if len(st.calls) != 3 {
		t.Fatalf("Expected the full candidate chain, got %v", st.calls)
	}
	for i, c := range want {
		if st.calls[i] != c {
			t.Errorf("Probe %d: expected %s, got %s", i, c, st.calls[i])
		}
	}
}

func TestConnectivityAllCandidatesMissingStillConnected(t *testing.T) {
	st := &probeStore{results: []error{missingRelationErr()}}
	m, _ := NewManager(context.Background(), testConnConfig(),
		func(ConnectionConfig) (Store, error) { return st, nil },
		WithClock(newFakeClock()))

	// Every candidate table is absent, but the remote answered each time.
	if m.Status() != StateConnected {
		t.Errorf("Expected connected when only relations are missing, got %s", m.Status())
	}
	if len(st.calls) != 3 {
		t.Errorf("Expected 3 probes, got %d", len(st.calls))
	}
}

func TestConnectivityRealFailureStopsChain(t *testing.T) {
	st := &probeStore{results: []error{missingRelationErr(), outageErr()}}
	m, _ := NewManager(context.Background(), testConnConfig(),
		func(ConnectionConfig) (Store, error) { return st, nil },
		WithClock(newFakeClock()))

	if m.Status() != StateDisconnected {
		t.Errorf("Expected disconnected, got %s", m.Status())
	}
	if len(st.calls) != 2 {
		t.Errorf("Expected the chain to stop at the real failure, got %v", st.calls)
	}
	if m.TestConnectivity(context.Background()) {
		t.Error("Expected connectivity check to report false")
	}
}

func TestConnectivityCustomProbeCollections(t *testing.T) {
	cfg := testConnConfig()
	cfg.ProbeCollections = []string{"things"}
	st := &probeStore{}
	NewManager(context.Background(), cfg,
		func(ConnectionConfig) (Store, error) { return st, nil },
		WithClock(newFakeClock()))

	if len(st.calls) != 1 || st.calls[0] != "things" {
		t.Errorf("Expected a single probe of 'things', got %v", st.calls)
	}
}

func TestReconnectSucceedsEarly(t *testing.T) {
	clk := newFakeClock()
	builds := 0
	factory := func(ConnectionConfig) (Store, error) {
		builds++
		if builds <= 2 {
			// initial build and first reconnect attempt keep failing
			return &probeStore{results: []error{outageErr()}}, nil
		}
		return &probeStore{}, nil
	}

	m, _ := NewManager(context.Background(), testConnConfig(), factory, WithClock(clk))
	if m.Status() != StateDisconnected {
		t.Fatalf("Precondition: expected disconnected, got %s", m.Status())
	}

	ok := m.Reconnect(context.Background(), 5, time.Second)
	if !ok {
		t.Fatal("Expected reconnect to succeed")
	}
	if m.Status() != StateConnected {
		t.Errorf("Expected connected, got %s", m.Status())
	}
	if builds != 3 {
		t.Errorf("Expected 3 handle builds (1 initial + 2 reconnects), got %d", builds)
	}
	if len(clk.sleeps) != 1 || clk.sleeps[0] != time.Second {
		t.Errorf("Expected one fixed 1s delay, got %v", clk.sleeps)
	}
}

func TestReconnectExhaustsAttempts(t *testing.T) {
	clk := newFakeClock()
	builds := 0
	probes := 0
	factory := func(ConnectionConfig) (Store, error) {
		builds++
		st := &probeStore{results: []error{outageErr()}}
		st.clock = clk
		return &countingProbeStore{probeStore: st, probes: &probes}, nil
	}

	m, _ := NewManager(context.Background(), testConnConfig(), factory, WithClock(clk))
	probesBefore := probes

	ok := m.Reconnect(context.Background(), 3, time.Second)
	if ok {
		t.Fatal("Expected reconnect to fail")
	}
	if m.Status() != StateDisconnected {
		t.Errorf("Expected disconnected, got %s", m.Status())
	}
	if got := probes - probesBefore; got != 3 {
		t.Errorf("Expected exactly 3 probe rounds, got %d", got)
	}
	// fixed pacing: two sleeps between three attempts, both 1s
	if len(clk.sleeps) != 2 {
		t.Fatalf("Expected 2 sleeps, got %d", len(clk.sleeps))
	}
	for i, d := range clk.sleeps {
		if d != time.Second {
			t.Errorf("Sleep %d: expected fixed 1s, got %v", i, d)
		}
	}
}

// countingProbeStore counts probes across handle rebuilds
type countingProbeStore struct {
	*probeStore
	probes *int
}

func (s *countingProbeStore) Probe(ctx context.Context, collection string) error {
	*s.probes++
	return s.probeStore.Probe(ctx, collection)
}

func TestStatsReportsLatencyOnlyWhileConnected(t *testing.T) {
	clk := newFakeClock()
	st := &probeStore{clock: clk, latency: 5 * time.Millisecond}
	m, _ := NewManager(context.Background(), testConnConfig(),
		func(ConnectionConfig) (Store, error) { return st, nil },
		WithClock(clk))

	stats := m.Stats()
	if stats.Status != StateConnected {
		t.Fatalf("Expected connected, got %s", stats.Status)
	}
	if stats.ResponseTime != 5*time.Millisecond {
		t.Errorf("Expected 5ms response time, got %v", stats.ResponseTime)
	}
	if stats.Endpoint != "https://db.example.test" {
		t.Errorf("Unexpected endpoint: %s", stats.Endpoint)
	}
	if stats.CredentialClass != CredentialServiceRole {
		t.Errorf("Expected service_role credential class, got %s", stats.CredentialClass)
	}
	if stats.LastCheckedAt.IsZero() {
		t.Error("Expected a probe timestamp")
	}

	// knock the connection over, response time must disappear
	st.results = []error{outageErr()}
	m.TestConnectivity(context.Background())
	stats = m.Stats()
	if stats.Status != StateDisconnected {
		t.Fatalf("Expected disconnected, got %s", stats.Status)
	}
	if stats.ResponseTime != 0 {
		t.Errorf("Expected no response time while disconnected, got %v", stats.ResponseTime)
	}
}

func TestCredentialClassification(t *testing.T) {
	tests := []struct {
		credential string
		want       CredentialClass
	}{
		{makeJWT("anon"), CredentialAnon},
		{makeJWT("service_role"), CredentialServiceRole},
		{makeJWT("postgres"), CredentialUnknown},
		{"not-a-jwt", CredentialUnknown},
		{"a.b.c", CredentialUnknown},
		{"", CredentialUnknown},
	}

	for _, tt := range tests {
		if got := classifyCredential(tt.credential); got != tt.want {
			t.Errorf("classifyCredential(%q): expected %s, got %s", tt.credential, tt.want, got)
		}
	}
}

func TestResetSwapsHandleWithoutClosingOld(t *testing.T) {
	clk := newFakeClock()
	first := &probeStore{}
	second := &probeStore{}
	builds := 0
	factory := func(ConnectionConfig) (Store, error) {
		builds++
		if builds == 1 {
			return first, nil
		}
		return second, nil
	}

	m, _ := NewManager(context.Background(), testConnConfig(), factory, WithClock(clk))
	if m.Store() != Store(first) {
		t.Fatal("Precondition: expected the first handle")
	}

	m.Reset(context.Background())

	if m.Store() != Store(second) {
		t.Error("Expected a fresh handle after reset")
	}
	if first.closed {
		t.Error("Reset must leave the replaced handle open for in-flight holders")
	}
	if m.Status() != StateConnected {
		t.Errorf("Expected connected after re-probe, got %s", m.Status())
	}
	if len(second.calls) != 1 {
		t.Errorf("Expected one probe against the new handle, got %v", second.calls)
	}
}

func TestManagerClose(t *testing.T) {
	st := &probeStore{}
	m, _ := NewManager(context.Background(), testConnConfig(),
		func(ConnectionConfig) (Store, error) { return st, nil },
		WithClock(newFakeClock()))

	if err := m.Close(); err != nil {
		t.Fatalf("Unexpected close error: %v", err)
	}
	if !st.closed {
		t.Error("Expected the handle to be closed")
	}
	if m.Store() != nil {
		t.Error("Expected no handle after close")
	}
	if m.Status() != StateDisconnected {
		t.Errorf("Expected disconnected, got %s", m.Status())
	}
	if err := m.Close(); err != nil {
		t.Errorf("Second close must be a no-op, got %v", err)
	}
}
