package agent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Checkpoint is everything that survives a restart: both networks, the
// optimizer moments and the exploration rate. The replay buffer is not kept.
type Checkpoint struct {
	Online     []LayerState `json:"online"`
	Target     []LayerState `json:"target"`
	AdamM      []LayerState `json:"adam_m"`
	AdamV      []LayerState `json:"adam_v"`
	AdamStep   int          `json:"adam_step"`
	Epsilon    float64      `json:"epsilon"`
	LearnSteps int          `json:"learn_steps"`
	SavedAt    time.Time    `json:"saved_at"`
}

// LoadCheckpoint reads a checkpoint file. Returns nil without error if the file doesn't exist.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	return &cp, nil
}

// SaveCheckpoint writes cp as JSON, creating parent directories.
func SaveCheckpoint(path string, cp *Checkpoint) error {
	cp.SavedAt = time.Now()
	data, err := json.Marshal(cp)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Checkpoint captures the persistent state of d.
func (d *DQN) Checkpoint() *Checkpoint {
	d.mu.Lock()
	defer d.mu.Unlock()
	return &Checkpoint{
		Online:     exportLayers(d.online.layers),
		Target:     exportLayers(d.target.layers),
		AdamM:      exportLayers(d.opt.m),
		AdamV:      exportLayers(d.opt.v),
		AdamStep:   d.opt.t,
		Epsilon:    d.epsilon,
		LearnSteps: d.steps,
	}
}

// Restore loads cp into d. Shapes must match the configured network; on a
// mismatch d is left untouched.
func (d *DQN) Restore(cp *Checkpoint) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	parts := []struct {
		name string
		dst  []layer
		src  []LayerState
	}{
		{"online network", d.online.layers, cp.Online},
		{"target network", d.target.layers, cp.Target},
		{"adam first moment", d.opt.m, cp.AdamM},
		{"adam second moment", d.opt.v, cp.AdamV},
	}
	for _, p := range parts {
		if err := checkLayers(p.dst, p.src); err != nil {
			return fmt.Errorf("%s: %w", p.name, err)
		}
	}
	for _, p := range parts {
		importLayers(p.dst, p.src)
	}
	d.opt.t = cp.AdamStep
	d.epsilon = cp.Epsilon
	d.steps = cp.LearnSteps
	return nil
}

// Save writes d's checkpoint to path.
func (d *DQN) Save(path string) error {
	return SaveCheckpoint(path, d.Checkpoint())
}

// Load restores d from path. It reports false if no checkpoint exists.
func (d *DQN) Load(path string) (bool, error) {
	cp, err := LoadCheckpoint(path)
	if err != nil {
		return false, err
	}
	if cp == nil {
		return false, nil
	}
	if err := d.Restore(cp); err != nil {
		return false, err
	}
	return true, nil
}
