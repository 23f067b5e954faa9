// File: flow/macflow.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The port's MAC-match flow (§4.5 "MAC flow"): a single IBV flow
// matching the port's current MAC address, installed on queue 0
// whenever the port is started and not isolated, destroyed and
// recreated on start, stop, or MAC change.

package flow

import (
	"fmt"

	"github.com/momentics/mlx4-core/api"
)

// SetMAC records the port's current primary MAC address. If the MAC
// flow is currently installed, it is torn down and reinstalled against
// the new address (§4.5 "destroyed and recreated whenever... the
// primary MAC changes").
func (t *Table) SetMAC(mac [6]byte) error {
	t.mac = mac
	if t.macFlow == nil {
		return nil
	}
	if err := t.removeMACFlowLocked(); err != nil {
		return err
	}
	return t.installMACFlowLocked()
}

// InstallMACFlow matches qlifecycle.Port's InstallMACFlow hook shape.
func (t *Table) InstallMACFlow() error {
	if t.isolated {
		return nil
	}
	return t.installMACFlowLocked()
}

// RemoveMACFlow matches qlifecycle.Port's RemoveMACFlow hook shape.
func (t *Table) RemoveMACFlow() error {
	return t.removeMACFlowLocked()
}

func (t *Table) installMACFlowLocked() error {
	if t.QueueQP == nil {
		return fmt.Errorf("%w: no queue-0 qp resolver wired", api.ErrNotSupported)
	}
	qp := t.QueueQP(0)
	if qp == nil {
		return fmt.Errorf("%w: queue 0 has no qp", api.ErrNotFound)
	}

	pattern := []Item{{
		Type: ItemETH,
		Spec: append([]byte{}, t.mac[0], t.mac[1], t.mac[2], t.mac[3], t.mac[4], t.mac[5], 0, 0, 0, 0, 0, 0, 0, 0, 0, 0),
		Mask: macOnlyMask(),
	}}
	attr := Attr{Ingress: true}
	actions := []Action{{Type: ActionQueue, Queue: 0}, {Type: ActionEnd}}

	compiled, _, err := Compile(attr, pattern, actions, t.portNum, t.rxQueueCount, t.maxRSSTblSize, t.isolated)
	if err != nil {
		return fmt.Errorf("compile mac flow: %w", err)
	}
	handle, err := t.dev.CreateFlow(qp, compiled)
	if err != nil {
		return fmt.Errorf("install mac flow: %w", err)
	}
	t.macFlow = &Rule{Compiled: compiled, TargetQP: qp, Handle: handle}
	return nil
}

func (t *Table) removeMACFlowLocked() error {
	if t.macFlow == nil {
		return nil
	}
	var err error
	if t.macFlow.Handle != nil {
		err = t.dev.DestroyFlow(t.macFlow.Handle)
	}
	t.macFlow = nil
	return err
}

// macOnlyMask is an eth mask matching only the destination MAC,
// leaving src mac / ethertype / vlan_tci wildcarded.
func macOnlyMask() []byte {
	m := make([]byte, ethMaskSize)
	for i := 0; i < 6; i++ {
		m[i] = 0xFF
	}
	return m
}
