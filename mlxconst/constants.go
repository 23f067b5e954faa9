// Package mlxconst
// Author: momentics <momentics@gmail.com>
//
// Implementation constants shared by the Tx ring, Rx ring, and flow
// engine, mirroring the #defines in the original mlx4 PMD.

package mlxconst

const (
	// MaxSGEWR is the maximum number of scatter/gather elements per work
	// request this core builds for. Tx descriptor counts must be a
	// multiple of this value (§4.2 "Setup"); Rx scattered-variant slot
	// counts divide the requested descriptor count by it as well.
	MaxSGEWR = 4

	// TxPerCompReq is the target number of posted WRs between signaled
	// completions (§3 "comp_countdown_init = min(TX_PER_COMP_REQ, n/4)").
	TxPerCompReq = 32

	// DefaultMRCacheCapacity is N, the MR-cache capacity (§3).
	DefaultMRCacheCapacity = 8

	// MaxRSSTableSize bounds the RSS action's queue count (§4.5).
	MaxRSSTableSize = 128

	// LinkDebounceDelayMillis is the single-pending-recheck delay, in
	// milliseconds, for an inconsistent link event (§5).
	LinkDebounceDelayMillis = 100
)
