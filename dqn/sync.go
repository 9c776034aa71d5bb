package dqn

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// SyncMode selects how the target estimator follows the online one
type SyncMode string

const (
	HardSyncMode SyncMode = "hard"
	SoftSyncMode SyncMode = "soft"
)

// HardSync copies the online parameters into the target
func HardSync(target, online Estimator) error {
	tParams := target.Parameters()
	oParams := online.Parameters()
	if err := checkLayout(tParams, oParams); err != nil {
		return err
	}
	for i, tp := range tParams {
		if tp == oParams[i] {
			continue
		}
		tp.Copy(oParams[i])
	}
	return nil
}

// SoftSync moves the target parameters towards the online ones,
// target = tau * online + (1 - tau) * target
func SoftSync(target, online Estimator, tau float64) error {
	if tau < 0 || tau > 1 {
		return fmt.Errorf("tau must be in [0, 1], got %f", tau)
	}
	tParams := target.Parameters()
	oParams := online.Parameters()
	if err := checkLayout(tParams, oParams); err != nil {
		return err
	}
	for i, tp := range tParams {
		op := oParams[i]
		if tp == op {
			continue
		}
		var scaled mat.Dense
		scaled.Scale(tau, op)
		tp.Scale(1-tau, tp)
		tp.Add(tp, &scaled)
	}
	return nil
}

// TargetSynchronizer decides when and how the target estimator follows the online one
type TargetSynchronizer struct {
	Mode SyncMode
	// number of optimizer updates between two synchronizations
	Every int
	// only used in soft mode
	Tau float64
}

// Validate the synchronizer configuration
func (s TargetSynchronizer) Validate() error {
	switch s.Mode {
	case HardSyncMode, SoftSyncMode:
	default:
		return fmt.Errorf("unknown target sync mode %q", s.Mode)
	}
	if s.Every <= 0 {
		return fmt.Errorf("target sync interval must be positive, got %d", s.Every)
	}
	if s.Mode == SoftSyncMode && (s.Tau < 0 || s.Tau > 1) {
		return fmt.Errorf("tau must be in [0, 1], got %f", s.Tau)
	}
	return nil
}

// Step synchronizes if updates is a multiple of the interval, returns true if it did
func (s TargetSynchronizer) Step(updates int, target, online Estimator) (bool, error) {
	if s.Every <= 0 || updates%s.Every != 0 {
		return false, nil
	}
	switch s.Mode {
	case SoftSyncMode:
		return true, SoftSync(target, online, s.Tau)
	default:
		return true, HardSync(target, online)
	}
}
