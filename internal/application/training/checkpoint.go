package training

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	policyinfra "github.com/Ashirog1/rl4co/internal/infrastructure/policy"
	"github.com/Ashirog1/rl4co/internal/infrastructure/tensor"
)

// tensorDump is one serialized parameter tensor.
type tensorDump struct {
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	Data []float64 `json:"data"`
}

// Checkpoint is a saved policy/critic parameter snapshot.
type Checkpoint struct {
	ID           string             `json:"id"`
	RunID        string             `json:"runId"`
	PolicyConfig policyinfra.Config `json:"policyConfig"`
	Policy       []tensorDump       `json:"policy"`
	Critic       []tensorDump       `json:"critic"`
	CreatedAt    time.Time          `json:"createdAt"`
}

// SaveCheckpoint writes the parameters of a policy/critic pair to path.
func SaveCheckpoint(path, runID string, pol *policyinfra.AttentionPolicy, critic *policyinfra.ValueCritic) error {
	cp := Checkpoint{
		ID:           uuid.NewString(),
		RunID:        runID,
		PolicyConfig: pol.Config(),
		Policy:       dumpParams(pol.Parameters()),
		Critic:       dumpParams(critic.Parameters()),
		CreatedAt:    time.Now(),
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("training: failed to create checkpoint directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("training: failed to encode checkpoint: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("training: failed to write checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint reconstructs a policy/critic pair from a checkpoint file.
func LoadCheckpoint(path string) (*policyinfra.AttentionPolicy, *policyinfra.ValueCritic, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("training: failed to read checkpoint: %w", err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, nil, fmt.Errorf("training: failed to parse checkpoint: %w", err)
	}

	pol := policyinfra.New(cp.PolicyConfig, 0)
	if err := loadParams(pol.Parameters(), cp.Policy); err != nil {
		return nil, nil, fmt.Errorf("training: policy checkpoint: %w", err)
	}
	critic := policyinfra.NewCriticFromPolicy(pol)
	if err := loadParams(critic.Parameters(), cp.Critic); err != nil {
		return nil, nil, fmt.Errorf("training: critic checkpoint: %w", err)
	}
	return pol, critic, nil
}

func dumpParams(params []*tensor.Tensor) []tensorDump {
	dumps := make([]tensorDump, len(params))
	for i, p := range params {
		data := make([]float64, len(p.Data))
		copy(data, p.Data)
		dumps[i] = tensorDump{Rows: p.Rows(), Cols: p.Cols(), Data: data}
	}
	return dumps
}

func loadParams(params []*tensor.Tensor, dumps []tensorDump) error {
	if len(params) != len(dumps) {
		return fmt.Errorf("expected %d tensors, got %d", len(params), len(dumps))
	}
	for i, p := range params {
		d := dumps[i]
		if d.Rows != p.Rows() || d.Cols != p.Cols() || len(d.Data) != len(p.Data) {
			return fmt.Errorf("tensor %d shape mismatch: %dx%d vs %dx%d", i, d.Rows, d.Cols, p.Rows(), p.Cols())
		}
		copy(p.Data, d.Data)
	}
	return nil
}
