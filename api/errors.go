// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error sentinels shared across the core's data-plane and
// control-plane packages.

package api

import "errors"

// Errors returned by control-path operations (queue setup/release, flow
// create/destroy, MTU/MAC change, start/stop). These map to a negative
// errno at the device-ops boundary (§6); they never appear on the data
// path, where soft failures are recorded as counters instead (§7).
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrResourceExhausted = errors.New("resource exhausted")
	ErrNotSupported      = errors.New("operation not supported")
	ErrAlreadyExists     = errors.New("resource already exists")
	ErrNotFound          = errors.New("resource not found")
	ErrTransportFailure  = errors.New("verbs transport failure")
	ErrNonContiguousPool = errors.New("mempool is not virtually contiguous")
)
