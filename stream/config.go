package stream

import "time"

// Config is the engine's tuning surface. Every field is consumed as given;
// zero values fall back to the defaults below.
type Config struct {
	// PointBudget caps the sum of declared point counts across all
	// loaded nodes.
	PointBudget int

	// MaxDepth is a hard stop on refinement depth. MinDepth forces
	// refinement through the first levels so initial paints are never
	// coarse-only.
	MaxDepth int
	MinDepth int

	// RefineThreshold is the screen-space-error bound: a node refines
	// into its children while diagonal/distance exceeds the threshold.
	// RefineFalloff scales the threshold per depth level; 1 keeps it
	// constant.
	RefineThreshold float64
	RefineFalloff   float64

	// FrustumCulling enables camera-frustum rejection of nodes.
	FrustumCulling bool

	// FetchBatchSize bounds how many node fetches run concurrently
	// within one scheduling pass.
	FetchBatchSize int

	// CameraEpsilon is the minimum camera movement that triggers a new
	// traversal pass; CameraDebounce coalesces bursts of movement.
	CameraEpsilon  float64
	CameraDebounce time.Duration
}

// Default tuning, sized for a browser-scale viewer feeding a renderer.
const (
	DefaultPointBudget     = 1_000_000
	DefaultMaxDepth        = 16
	DefaultMinDepth        = 2
	DefaultRefineThreshold = 0.7
	DefaultFetchBatchSize  = 50
	DefaultCameraEpsilon   = 1e-3
	DefaultCameraDebounce  = 150 * time.Millisecond
)

func (c Config) withDefaults() Config {
	if c.PointBudget <= 0 {
		c.PointBudget = DefaultPointBudget
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = DefaultMaxDepth
	}
	switch {
	case c.MinDepth == 0:
		c.MinDepth = DefaultMinDepth
	case c.MinDepth < 0:
		// explicit opt-out of forced refinement
		c.MinDepth = 0
	}
	if c.RefineThreshold <= 0 {
		c.RefineThreshold = DefaultRefineThreshold
	}
	if c.RefineFalloff <= 0 {
		c.RefineFalloff = 1
	}
	if c.FetchBatchSize <= 0 {
		c.FetchBatchSize = DefaultFetchBatchSize
	}
	if c.CameraEpsilon <= 0 {
		c.CameraEpsilon = DefaultCameraEpsilon
	}
	if c.CameraDebounce <= 0 {
		c.CameraDebounce = DefaultCameraDebounce
	}
	return c
}
