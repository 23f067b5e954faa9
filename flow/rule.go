// File: flow/rule.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The per-port flow table: user-created rule list, install/uninstall,
// and the activate/deactivate hooks wired into qlifecycle.Port the same
// way control/hotreload.go lets an unrelated package register behavior
// without the owner importing it (§9 "the port the single owner of both
// the rule list and the RSS-parent list").

package flow

import (
	"fmt"

	"github.com/momentics/mlx4-core/api"
)

// Rule is one installed (or pending) flow-steering rule.
type Rule struct {
	ID       int
	Attr     Attr
	Pattern  []Item
	Actions  []Action
	Target   Target
	Compiled api.FlowAttr
	TargetQP *api.QP
	Handle   *api.Flow
}

// Table owns every user flow rule plus the RSS-parent list for one
// port (§9 "cyclic references... resolve by making the port the single
// owner").
type Table struct {
	dev           api.Device
	pd            *api.PD
	portNum       uint8
	rxQueueCount  int
	maxRSSTblSize int
	isolated      bool

	nextID     int
	rules      []*Rule
	rssParents []*rssParent
	standalone map[int]bool

	dropQP  *api.QP
	macFlow *Rule
	mac     [6]byte

	// QueueQP resolves an Rx queue index to its Verbs QP handle. Wired
	// by the port orchestrator; nil until then.
	QueueQP func(idx int) *api.QP

	started bool
}

// NewTable constructs an empty flow table for one port.
func NewTable(dev api.Device, pd *api.PD, portNum uint8, rxQueueCount, maxRSSTblSize int, isolated bool) *Table {
	return &Table{
		dev:           dev,
		pd:            pd,
		portNum:       portNum,
		rxQueueCount:  rxQueueCount,
		maxRSSTblSize: maxRSSTblSize,
		isolated:      isolated,
		standalone:    make(map[int]bool),
	}
}

// CreateRule validates and compiles attr/pattern/actions and appends a
// new rule to the table. If the port is currently started the flow is
// installed immediately; otherwise it is stored with a nil Handle and
// installed on the next ActivateFlows (§4.5 "Installation", §8
// scenario 6).
func (t *Table) CreateRule(attr Attr, pattern []Item, actions []Action) (*Rule, error) {
	compiled, target, err := Compile(attr, pattern, actions, t.portNum, t.rxQueueCount, t.maxRSSTblSize, t.isolated)
	if err != nil {
		return nil, err
	}

	targetQP, err := t.resolveTargetQP(target)
	if err != nil {
		return nil, err
	}

	t.nextID++
	rule := &Rule{
		ID:       t.nextID,
		Attr:     attr,
		Pattern:  pattern,
		Actions:  actions,
		Target:   target,
		Compiled: compiled,
		TargetQP: targetQP,
	}

	if t.started && targetQP != nil {
		handle, err := t.dev.CreateFlow(targetQP, compiled)
		if err != nil {
			return nil, fmt.Errorf("install flow: %w", err)
		}
		rule.Handle = handle
	}

	t.rules = append(t.rules, rule)
	if target.Kind == TargetQueue {
		t.standalone[target.Queue] = true
	}
	return rule, nil
}

// resolveTargetQP maps a resolved action Target onto a concrete Verbs
// QP, creating the drop QP or RSS parent as needed. A drop target
// before the drop QP exists (port not started) yields a nil QP, which
// CreateRule interprets as "defer installation" rather than an error.
func (t *Table) resolveTargetQP(target Target) (*api.QP, error) {
	switch target.Kind {
	case TargetDrop:
		return t.dropQP, nil
	case TargetRSS:
		return t.getOrCreateRSSParent(t.dev, t.pd, target.Queues)
	default: // TargetQueue
		if t.QueueQP == nil {
			return nil, nil
		}
		return t.QueueQP(target.Queue), nil
	}
}

// ActiveRuleCount returns the number of rules currently holding a live
// Verbs flow handle, for debug introspection.
func (t *Table) ActiveRuleCount() int {
	n := 0
	for _, r := range t.rules {
		if r.Handle != nil {
			n++
		}
	}
	return n
}

// DestroyRule removes a rule by id. Idempotent: destroying an unknown
// or already-removed id returns success without side effects (§8
// "Idempotence").
func (t *Table) DestroyRule(id int) error {
	for i, r := range t.rules {
		if r.ID != id {
			continue
		}
		var err error
		if r.Handle != nil {
			err = t.dev.DestroyFlow(r.Handle)
		}
		t.rules = append(t.rules[:i], t.rules[i+1:]...)
		return err
	}
	return nil
}

// ActivateFlows matches qlifecycle.Port's ActivateFlows hook: install
// every rule (and the drop QP, created unconditionally) that does not
// yet have a live Verbs handle.
func (t *Table) ActivateFlows() error {
	if err := t.ensureDropQP(); err != nil {
		return err
	}
	t.started = true

	for _, r := range t.rules {
		if r.Handle != nil {
			continue
		}
		if r.TargetQP == nil {
			qp, err := t.resolveTargetQP(r.Target)
			if err != nil {
				return err
			}
			r.TargetQP = qp
		}
		if r.TargetQP == nil {
			continue
		}
		handle, err := t.dev.CreateFlow(r.TargetQP, r.Compiled)
		if err != nil {
			return fmt.Errorf("activate flow %d: %w", r.ID, err)
		}
		r.Handle = handle
	}
	return nil
}

// DeactivateFlows matches qlifecycle.Port's DeactivateFlows hook:
// destroy every rule's live Verbs handle while keeping its descriptor
// (§4.5 "On port stop, destroy every handle but keep descriptors").
func (t *Table) DeactivateFlows() error {
	var firstErr error
	for _, r := range t.rules {
		if r.Handle == nil {
			continue
		}
		if err := t.dev.DestroyFlow(r.Handle); err != nil && firstErr == nil {
			firstErr = err
		}
		r.Handle = nil
	}
	if err := t.destroyDropQP(); err != nil && firstErr == nil {
		firstErr = err
	}
	t.started = false
	return firstErr
}
