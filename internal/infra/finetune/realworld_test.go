package finetune

import (
	"fmt"
	"math"
	"sync"
	"testing"
	"time"
)

// ─── Real-World Training Scenario Tests ─────────────────────────────────────
// These tests simulate real-world distributed training workflows including
// multi-epoch training, partial node failures, loss convergence validation,
// and concurrent round management.

// TestScenario_FullTrainingRun simulates a complete distributed training
// round with 3 nodes across 5 epochs, verifying loss convergence via FedAvg.
func TestScenario_FullTrainingRun(t *testing.T) {
	c := NewCoordinator(CoordinatorConfig{
		MaxConcurrentRounds: 5,
		EpochTimeout:        30 * time.Minute,
	})

	round := TrainingRound{
		ID:         "medical-qa-v1",
		BaseModel:  "llama-3.2-7b",
		DatasetURI: "s3://datasets/medical-qa-50k.jsonl",
		Method:     MethodLoRA,
		Config:     DefaultLoRAConfig(),
		Epochs:     5,
		MinNodes:   3,
		MaxNodes:   5,
	}

	if err := c.SubmitRound(round); err != nil {
		t.Fatalf("submit: %v", err)
	}

	shards := []DataShard{
		{ShardIndex: 0, NodeID: "gpu-node-us-1", SampleCount: 17000, SizeBytes: 50 * 1024 * 1024},
		{ShardIndex: 1, NodeID: "gpu-node-eu-1", SampleCount: 17000, SizeBytes: 50 * 1024 * 1024},
		{ShardIndex: 2, NodeID: "gpu-node-ap-1", SampleCount: 16000, SizeBytes: 48 * 1024 * 1024},
	}
	if err := c.AssignShards(round.ID, shards); err != nil {
		t.Fatalf("assign shards: %v", err)
	}

	if err := c.StartTraining(round.ID); err != nil {
		t.Fatalf("start training: %v", err)
	}

	epochLosses := []float64{2.5, 1.8, 1.2, 0.9, 0.7}
	previousLoss := math.Inf(1)

	for epoch := 1; epoch <= 5; epoch++ {
		baseLoss := epochLosses[epoch-1]

		for i, shard := range shards {
			jitter := float64(i) * 0.05
			c.RecordGradient(GradientUpdate{
				RoundID:    round.ID,
				NodeID:     shard.NodeID,
				ShardIndex: shard.ShardIndex,
				Epoch:      epoch,
				Loss:       baseLoss + jitter,
				Samples:    shard.SampleCount,
				Timestamp:  time.Now(),
			})
		}

		avgLoss, err := c.AggregateEpoch(round.ID, epoch)
		if err != nil {
			t.Fatalf("aggregate epoch %d: %v", epoch, err)
		}

		if avgLoss >= previousLoss {
			t.Errorf("epoch %d: loss %.4f >= previous %.4f (not converging)", epoch, avgLoss, previousLoss)
		}
		previousLoss = avgLoss

		t.Logf("Epoch %d: avg_loss=%.4f", epoch, avgLoss)
	}

	if err := c.CompleteRound(round.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	checks := c.Checkpoints(round.ID)
	if len(checks) != 5 {
		t.Errorf("expected 5 checkpoints, got %d", len(checks))
	}

	lastCheck := checks[len(checks)-1]
	if lastCheck.Loss >= 1.0 {
		t.Errorf("final checkpoint loss %.4f should be < 1.0", lastCheck.Loss)
	}
	if lastCheck.NodeCount != 3 {
		t.Errorf("final checkpoint nodes = %d, want 3", lastCheck.NodeCount)
	}

	finalRound, _ := c.GetRound(round.ID)
	if finalRound.Status != RoundCompleted {
		t.Errorf("final status = %s, want COMPLETED", finalRound.Status)
	}
}

// TestScenario_NodeFailureDuringTraining simulates a node dropping out
// mid-training and the coordinator handling it gracefully.
func TestScenario_NodeFailureDuringTraining(t *testing.T) {
	c := NewCoordinator(DefaultCoordinatorConfig())

	round := TrainingRound{
		ID:        "fail-recovery",
		BaseModel: "llama-3.2-1b",
		MinNodes:  2,
		Epochs:    3,
	}
	c.SubmitRound(round)
	c.AssignShards(round.ID, []DataShard{
		{ShardIndex: 0, NodeID: "healthy-node", SampleCount: 500},
		{ShardIndex: 1, NodeID: "failing-node", SampleCount: 500},
	})
	c.StartTraining(round.ID)

	c.RecordGradient(GradientUpdate{
		RoundID: round.ID, NodeID: "healthy-node", Epoch: 1, Loss: 2.0, Samples: 500,
	})
	c.RecordGradient(GradientUpdate{
		RoundID: round.ID, NodeID: "failing-node", Epoch: 1, Loss: 2.2, Samples: 500,
	})
	loss1, _ := c.AggregateEpoch(round.ID, 1)

	c.RecordGradient(GradientUpdate{
		RoundID: round.ID, NodeID: "healthy-node", Epoch: 2, Loss: 1.5, Samples: 500,
	})
	loss2, _ := c.AggregateEpoch(round.ID, 2)

	if loss2 >= loss1 {
		t.Logf("Note: loss increased after node failure (epoch1=%.2f, epoch2=%.2f) — expected in degraded mode", loss1, loss2)
	}

	checks := c.Checkpoints(round.ID)
	epoch2Check := checks[len(checks)-1]
	if epoch2Check.NodeCount != 1 {
		t.Errorf("epoch 2 checkpoint nodes = %d, want 1 (after failure)", epoch2Check.NodeCount)
	}
}

// TestScenario_QLoRAFourBit tests QLoRA (4-bit quantized) training flow.
func TestScenario_QLoRAFourBit(t *testing.T) {
	c := NewCoordinator(DefaultCoordinatorConfig())

	round := TrainingRound{
		ID:         "qlora-sentiment",
		BaseModel:  "llama-3.2-7b",
		DatasetURI: "gs://training/sentiment-1m.jsonl",
		Method:     MethodQLoRA,
		Config: LoRAConfig{
			Rank:           8,
			Alpha:          16,
			Dropout:        0.1,
			TargetModules:  []string{"q_proj", "k_proj", "v_proj", "o_proj"},
			LearningRate:   1e-4,
			BatchSize:      2, // Smaller batch for 4-bit
			GradAccumSteps: 8,
		},
		Epochs:   3,
		MinNodes: 2,
	}

	if err := c.SubmitRound(round); err != nil {
		t.Fatalf("submit QLoRA round: %v", err)
	}

	got, _ := c.GetRound(round.ID)
	if got.Method != MethodQLoRA {
		t.Errorf("method = %s, want qlora", got.Method)
	}
	if got.Config.Rank != 8 {
		t.Errorf("rank = %d, want 8", got.Config.Rank)
	}
}

// TestScenario_ConcurrentRounds tests multiple training rounds running
// simultaneously without interference.
func TestScenario_ConcurrentRounds(t *testing.T) {
	c := NewCoordinator(CoordinatorConfig{
		MaxConcurrentRounds: 10,
		EpochTimeout:        30 * time.Minute,
	})

	const numRounds = 5
	var wg sync.WaitGroup
	errs := make(chan error, numRounds*10)

	for i := 0; i < numRounds; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			roundID := fmt.Sprintf("parallel-round-%d", idx)

			if err := c.SubmitRound(TrainingRound{
				ID:        roundID,
				BaseModel: fmt.Sprintf("model-%d", idx),
				MinNodes:  1,
				Epochs:    2,
			}); err != nil {
				errs <- fmt.Errorf("submit %s: %w", roundID, err)
				return
			}

			if err := c.AssignShards(roundID, []DataShard{
				{ShardIndex: 0, NodeID: fmt.Sprintf("node-%d", idx), SampleCount: 100},
			}); err != nil {
				errs <- fmt.Errorf("assign %s: %w", roundID, err)
				return
			}

			if err := c.StartTraining(roundID); err != nil {
				errs <- fmt.Errorf("start %s: %w", roundID, err)
				return
			}

			for epoch := 1; epoch <= 2; epoch++ {
				if err := c.RecordGradient(GradientUpdate{
					RoundID: roundID, NodeID: fmt.Sprintf("node-%d", idx),
					Epoch: epoch, Loss: float64(3-epoch) * 0.5, Samples: 100,
				}); err != nil {
					errs <- fmt.Errorf("gradient %s epoch %d: %w", roundID, epoch, err)
					return
				}
				if _, err := c.AggregateEpoch(roundID, epoch); err != nil {
					errs <- fmt.Errorf("aggregate %s epoch %d: %w", roundID, epoch, err)
					return
				}
			}

			if err := c.CompleteRound(roundID); err != nil {
				errs <- fmt.Errorf("complete %s: %w", roundID, err)
			}
		}(i)
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent error: %v", err)
	}

	stats := c.Stats()
	if stats.CompletedRounds != numRounds {
		t.Errorf("completed = %d, want %d", stats.CompletedRounds, numRounds)
	}
	if stats.ActiveRounds != 0 {
		t.Errorf("active = %d, want 0", stats.ActiveRounds)
	}
}

// TestScenario_RoundCapacityThrottling tests that the coordinator enforces
// max concurrent round limits under load.
func TestScenario_RoundCapacityThrottling(t *testing.T) {
	c := NewCoordinator(CoordinatorConfig{
		MaxConcurrentRounds: 2,
		EpochTimeout:        5 * time.Minute,
	})

	c.SubmitRound(TrainingRound{ID: "cap-1"})
	c.SubmitRound(TrainingRound{ID: "cap-2"})

	err := c.SubmitRound(TrainingRound{ID: "cap-3"})
	if err == nil {
		t.Error("expected capacity error")
	}

	c.CompleteRound("cap-1")

	err = c.SubmitRound(TrainingRound{ID: "cap-3"})
	if err != nil {
		t.Errorf("after freeing slot, submit should work: %v", err)
	}
}

// TestScenario_FedAvgUnbalancedShards tests FedAvg with very unbalanced
// data distribution (one node has 10x more data than another).
func TestScenario_FedAvgUnbalancedShards(t *testing.T) {
	c := NewCoordinator(DefaultCoordinatorConfig())

	c.SubmitRound(TrainingRound{ID: "unbalanced", MinNodes: 1})

	c.RecordGradient(GradientUpdate{
		RoundID: "unbalanced", NodeID: "A", Epoch: 1, Loss: 1.0, Samples: 100,
	})
	c.RecordGradient(GradientUpdate{
		RoundID: "unbalanced", NodeID: "B", Epoch: 1, Loss: 3.0, Samples: 1000,
	})

	avgLoss, err := c.AggregateEpoch("unbalanced", 1)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}

	expected := (1.0*100 + 3.0*1000) / 1100.0 // ≈ 2.818
	if math.Abs(avgLoss-expected) > 0.01 {
		t.Errorf("FedAvg unbalanced: got %.4f, want %.4f", avgLoss, expected)
	}
}

// TestScenario_RoundLifecycleStates verifies that a round passes through
// all expected states in the correct order.
func TestScenario_RoundLifecycleStates(t *testing.T) {
	c := NewCoordinator(DefaultCoordinatorConfig())

	c.SubmitRound(TrainingRound{ID: "lifecycle", MinNodes: 1})

	r, _ := c.GetRound("lifecycle")
	if r.Status != RoundPending {
		t.Errorf("state 1: %s, want PENDING", r.Status)
	}

	c.AssignShards("lifecycle", []DataShard{{NodeID: "n1", SampleCount: 100}})
	r, _ = c.GetRound("lifecycle")
	if r.Status != RoundSharding {
		t.Errorf("state 2: %s, want SHARDING", r.Status)
	}

	c.StartTraining("lifecycle")
	r, _ = c.GetRound("lifecycle")
	if r.Status != RoundTraining {
		t.Errorf("state 3: %s, want TRAINING", r.Status)
	}

	c.CompleteRound("lifecycle")
	r, _ = c.GetRound("lifecycle")
	if r.Status != RoundCompleted {
		t.Errorf("state 4: %s, want COMPLETED", r.Status)
	}
	if r.IsTerminal() != true {
		t.Error("completed round should be terminal")
	}
}
