package pricing

import "sync"

// Estimator prices openings against a rate table that can be swapped at
// runtime when the configuration file changes.
type Estimator struct {
	mu    sync.RWMutex
	rates Rates
}

// NewEstimator returns an Estimator using r. Invalid rates fall back to
// DefaultRates.
func NewEstimator(r Rates) *Estimator {
	if r.Validate() != nil {
		r = DefaultRates()
	}
	return &Estimator{rates: r.Clone()}
}

// Rates returns a copy of the live rate table.
func (e *Estimator) Rates() Rates {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rates.Clone()
}

// SetRates replaces the rate table. The old table stays in place if r is invalid.
func (e *Estimator) SetRates(r Rates) error {
	if err := r.Validate(); err != nil {
		return err
	}
	r = r.Clone()
	e.mu.Lock()
	e.rates = r
	e.mu.Unlock()
	return nil
}

// Estimate prices o against the live rate table.
func (e *Estimator) Estimate(o Opening) (Breakdown, error) {
	e.mu.RLock()
	r := e.rates
	e.mu.RUnlock()
	return Estimate(r, o)
}
