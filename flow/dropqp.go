// File: flow/dropqp.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Shared drop QP lifecycle (§4.5 "Drop QP management"): created
// unconditionally by the port-start path so any pending drop flow can
// be installed against it, destroyed on port stop.

package flow

import (
	"fmt"

	"github.com/momentics/mlx4-core/api"
)

func (t *Table) ensureDropQP() error {
	if t.dropQP != nil {
		return nil
	}
	qp, err := t.dev.CreateQP(t.pd, api.QPInitAttr{Type: api.QPTypeRawPacket})
	if err != nil {
		return fmt.Errorf("create drop qp: %w", err)
	}
	t.dropQP = qp
	return nil
}

func (t *Table) destroyDropQP() error {
	if t.dropQP == nil {
		return nil
	}
	err := t.dev.DestroyQP(t.dropQP)
	t.dropQP = nil
	return err
}
