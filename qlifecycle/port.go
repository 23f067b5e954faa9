// File: qlifecycle/port.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Port start/stop (§4.4). The flow-table and MAC-flow bodies are not
// owned by this package (C5 owns them); Port exposes them as hooks so
// the flow package can wire itself in without an import cycle, the same
// way control/hotreload.go lets unrelated components register reload
// hooks without control owning their implementations.

package qlifecycle

// Port orchestrates start/stop for one physical port's queues and
// installed flows.
type Port struct {
	Lock ControlLock

	Started bool

	RxQueues []*Queue
	TxQueues []*Queue

	// InstallMACFlow installs queue 0's MAC-match flow; nil if the flow
	// engine has not been wired in yet.
	InstallMACFlow func() error
	// RemoveMACFlow tears down the MAC-match flow.
	RemoveMACFlow func() error
	// ActivateFlows reinstalls every stored flow rule's Verbs handle.
	ActivateFlows func() error
	// DeactivateFlows destroys every installed flow rule's Verbs handle
	// while keeping the rule descriptors for a later restart.
	DeactivateFlows func() error
	// EnableRxIntr enables the per-queue Rx interrupt vector, if
	// per-queue Rx interrupts were requested at setup.
	EnableRxIntr func() error
}

// Start implements "Port start" (§4.4): install the MAC flow for queue
// 0, enable the Rx interrupt vector if requested, then reactivate every
// installed flow rule. Idempotent: starting an already-started port is
// a no-op returning success (§8 "Idempotence").
func (p *Port) Start() error {
	p.Lock.Lock()
	defer p.Lock.Unlock()

	if p.Started {
		return nil
	}
	if p.InstallMACFlow != nil {
		if err := p.InstallMACFlow(); err != nil {
			return err
		}
	}
	if p.EnableRxIntr != nil {
		if err := p.EnableRxIntr(); err != nil {
			return err
		}
	}
	if p.ActivateFlows != nil {
		if err := p.ActivateFlows(); err != nil {
			return err
		}
	}
	p.Started = true
	return nil
}

// Stop implements "Port stop" (§4.4): deactivate every installed flow
// rule (destroying its Verbs handle but keeping the descriptor), then
// remove the MAC flow. Idempotent (§8).
func (p *Port) Stop() error {
	p.Lock.Lock()
	defer p.Lock.Unlock()

	if !p.Started {
		return nil
	}
	if p.DeactivateFlows != nil {
		if err := p.DeactivateFlows(); err != nil {
			return err
		}
	}
	if p.RemoveMACFlow != nil {
		if err := p.RemoveMACFlow(); err != nil {
			return err
		}
	}
	p.Started = false
	return nil
}
