package discovery

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ailee-network/ailee-core/internal/domain"
)

type fakePeerSource struct {
	peers []domain.NodeID
	err   error
}

func (f *fakePeerSource) DiscoverPeers(ctx context.Context) ([]domain.NodeID, error) {
	return f.peers, f.err
}

type fakeRegistrar struct {
	mu        sync.Mutex
	registered []domain.NodeID
}

func (f *fakeRegistrar) Register(nodeID domain.NodeID) domain.Reputation {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered = append(f.registered, nodeID)
	return domain.Reputation{NodeID: nodeID}
}

type fakeRegionSource struct {
	regions []domain.RegionID
}

func (f *fakeRegionSource) Regions() []domain.RegionID { return f.regions }

type fakeProbe struct {
	mu     sync.Mutex
	called []domain.RegionID
	ms     float64
	err    error
}

func (f *fakeProbe) Probe(ctx context.Context, region domain.RegionID) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called = append(f.called, region)
	return f.ms, f.err
}

type fakeRecorder struct {
	mu      sync.Mutex
	records []float64
}

func (f *fakeRecorder) Record(a, b domain.RegionID, ms float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, ms)
}

type fakeDecayer struct {
	called int
}

func (f *fakeDecayer) DecayInactive(ctx context.Context) { f.called++ }

func TestScheduler_RunDiscoveryRegistersFoundPeers(t *testing.T) {
	peers := &fakePeerSource{peers: []domain.NodeID{"node-a", "node-b"}}
	registrar := &fakeRegistrar{}
	s := New(DefaultConfig(), "us-east", peers, registrar, nil, nil, nil, nil)

	s.runDiscovery()

	registrar.mu.Lock()
	defer registrar.mu.Unlock()
	if len(registrar.registered) != 2 {
		t.Fatalf("expected 2 registrations, got %d", len(registrar.registered))
	}
}

func TestScheduler_RunDiscoverySkipsRegistrationOnError(t *testing.T) {
	peers := &fakePeerSource{err: errors.New("bootstrap unreachable")}
	registrar := &fakeRegistrar{}
	s := New(DefaultConfig(), "us-east", peers, registrar, nil, nil, nil, nil)

	s.runDiscovery()

	registrar.mu.Lock()
	defer registrar.mu.Unlock()
	if len(registrar.registered) != 0 {
		t.Errorf("expected no registrations on discovery error, got %d", len(registrar.registered))
	}
}

func TestScheduler_RunLatencyProbeSkipsSelfRegion(t *testing.T) {
	regions := &fakeRegionSource{regions: []domain.RegionID{"us-east", "eu-west"}}
	probe := &fakeProbe{ms: 42}
	recorder := &fakeRecorder{}
	s := New(DefaultConfig(), "us-east", nil, nil, regions, probe, recorder, nil)

	s.runLatencyProbe()

	probe.mu.Lock()
	defer probe.mu.Unlock()
	if len(probe.called) != 1 || probe.called[0] != "eu-west" {
		t.Errorf("expected probe called once for eu-west only, got %v", probe.called)
	}
	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	if len(recorder.records) != 1 || recorder.records[0] != 42 {
		t.Errorf("expected one recorded sample of 42ms, got %v", recorder.records)
	}
}

func TestScheduler_RunLatencyProbeSkipsRecordOnError(t *testing.T) {
	regions := &fakeRegionSource{regions: []domain.RegionID{"eu-west"}}
	probe := &fakeProbe{err: errors.New("timeout")}
	recorder := &fakeRecorder{}
	s := New(DefaultConfig(), "us-east", nil, nil, regions, probe, recorder, nil)

	s.runLatencyProbe()

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	if len(recorder.records) != 0 {
		t.Errorf("expected no recorded sample on probe error, got %v", recorder.records)
	}
}

func TestScheduler_RunReputationDecayCallsDecayer(t *testing.T) {
	decayer := &fakeDecayer{}
	s := New(DefaultConfig(), "us-east", nil, nil, nil, nil, nil, decayer)

	s.runReputationDecay()

	if decayer.called != 1 {
		t.Errorf("expected DecayInactive called once, got %d", decayer.called)
	}
}

func TestScheduler_StartSkipsJobsWithNilCollaborators(t *testing.T) {
	s := New(DefaultConfig(), "us-east", nil, nil, nil, nil, nil, nil)
	if err := s.Start(); err != nil {
		t.Fatalf("Start with all-nil collaborators: %v", err)
	}
	defer s.cron.Stop()

	if len(s.cron.Entries()) != 0 {
		t.Errorf("expected no cron entries registered, got %d", len(s.cron.Entries()))
	}
}

func TestScheduler_StartRegistersConfiguredJobs(t *testing.T) {
	s := New(DefaultConfig(), "us-east",
		&fakePeerSource{}, &fakeRegistrar{},
		&fakeRegionSource{}, &fakeProbe{}, &fakeRecorder{},
		&fakeDecayer{},
	)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.cron.Stop()

	if len(s.cron.Entries()) != 3 {
		t.Errorf("expected 3 cron entries registered, got %d", len(s.cron.Entries()))
	}
}
