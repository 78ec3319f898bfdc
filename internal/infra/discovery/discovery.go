// Package discovery runs the mesh's periodic maintenance jobs: pulling
// in newly discovered peers, probing latency to known regions, and
// aging out inactive nodes' reputation. Grounded on
// services/orchestrator/scheduler.go's cron.New(cron.WithSeconds())
// scheduler, generalized from one scheduler-of-workflows into a
// scheduler of three independent mesh-maintenance jobs, each on its own
// cron expression rather than sharing a single fixed ticker.
package discovery

import (
	"context"
	"log"

	"github.com/robfig/cron/v3"

	"github.com/ailee-network/ailee-core/internal/domain"
)

// PeerSource acquires newly visible candidate peers from whatever
// bootstrap or gossip transport the deployment uses. The mesh engine
// treats it as an opaque source of new participants.
type PeerSource interface {
	DiscoverPeers(ctx context.Context) ([]domain.NodeID, error)
}

// PeerRegistrar admits a discovered node into the reputation ledger so
// it's eligible for candidate scoring once it starts advertising
// telemetry. Satisfied directly by *reputation.Ledger.
type PeerRegistrar interface {
	Register(nodeID domain.NodeID) domain.Reputation
}

// RegionSource lists the regions of every node currently known to this
// process. Satisfied directly by *node.Registry.
type RegionSource interface {
	Regions() []domain.RegionID
}

// LatencyProbe measures round-trip latency to a region. Implemented by
// the deployment's transport layer (a ping over the message bus, a
// direct dial); this package only schedules the call and records the
// result.
type LatencyProbe interface {
	Probe(ctx context.Context, region domain.RegionID) (ms float64, err error)
}

// LatencyRecorder stores a measured sample for later lookup. Satisfied
// directly by *latency.Service.
type LatencyRecorder interface {
	Record(a, b domain.RegionID, ms float64)
}

// ReputationDecayer ages out inactive nodes' reputation scores.
// Satisfied directly by *reputation.Ledger.
type ReputationDecayer interface {
	DecayInactive(ctx context.Context)
}

// Config controls the three jobs' independent cron schedules, each in
// standard cron-with-seconds syntax ("0 */5 * * * *" = every 5 minutes).
type Config struct {
	DiscoveryCron   string
	LatencyProbeCron string
	ReputationDecayCron string
}

// DefaultConfig runs discovery every 30s, latency probing every minute,
// and reputation decay hourly.
func DefaultConfig() Config {
	return Config{
		DiscoveryCron:       "*/30 * * * * *",
		LatencyProbeCron:    "0 * * * * *",
		ReputationDecayCron: "0 0 * * * *",
	}
}

// Scheduler runs the mesh's discovery, latency-probing, and
// reputation-decay jobs on independent cron schedules. Errors from any
// job are logged and never stop the schedule.
type Scheduler struct {
	cron   *cron.Cron
	config Config

	selfRegion domain.RegionID
	peers      PeerSource
	registrar  PeerRegistrar
	regions    RegionSource
	prober     LatencyProbe
	recorder   LatencyRecorder
	decayer    ReputationDecayer
}

// New builds a Scheduler. Any collaborator may be nil, in which case
// its job is skipped entirely (useful for a node that has no discovery
// transport configured, for instance).
func New(cfg Config, selfRegion domain.RegionID, peers PeerSource, registrar PeerRegistrar, regions RegionSource, prober LatencyProbe, recorder LatencyRecorder, decayer ReputationDecayer) *Scheduler {
	return &Scheduler{
		cron:       cron.New(cron.WithSeconds()),
		config:     cfg,
		selfRegion: selfRegion,
		peers:      peers,
		registrar:  registrar,
		regions:    regions,
		prober:     prober,
		recorder:   recorder,
		decayer:    decayer,
	}
}

// Start registers every configured job and starts the cron scheduler.
func (s *Scheduler) Start() error {
	if s.peers != nil && s.registrar != nil {
		if _, err := s.cron.AddFunc(s.config.DiscoveryCron, s.runDiscovery); err != nil {
			return err
		}
	}
	if s.regions != nil && s.prober != nil && s.recorder != nil {
		if _, err := s.cron.AddFunc(s.config.LatencyProbeCron, s.runLatencyProbe); err != nil {
			return err
		}
	}
	if s.decayer != nil {
		if _, err := s.cron.AddFunc(s.config.ReputationDecayCron, s.runReputationDecay); err != nil {
			return err
		}
	}
	s.cron.Start()
	return nil
}

// Stop halts the scheduler and blocks until any in-flight job finishes
// or ctx is cancelled, whichever comes first.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) runDiscovery() {
	ctx := context.Background()
	found, err := s.peers.DiscoverPeers(ctx)
	if err != nil {
		log.Printf("discovery: peer discovery failed: %v", err)
		return
	}
	for _, nodeID := range found {
		s.registrar.Register(nodeID)
	}
}

func (s *Scheduler) runLatencyProbe() {
	ctx := context.Background()
	for _, region := range s.regions.Regions() {
		if region == s.selfRegion {
			continue
		}
		ms, err := s.prober.Probe(ctx, region)
		if err != nil {
			log.Printf("discovery: latency probe to region %s failed: %v", region, err)
			continue
		}
		s.recorder.Record(s.selfRegion, region, ms)
	}
}

func (s *Scheduler) runReputationDecay() {
	s.decayer.DecayInactive(context.Background())
}
