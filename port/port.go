// File: port/port.go
// Package port is the top-level device-ops orchestrator (§6 "Upstream
// (to host framework)"), wiring C1-C5 into the full ops vector a host
// poll-mode framework expects.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Grounded on facade/hioload.go's Config/New(cfg) orchestration shape:
// a flat Config struct with a DefaultConfig constructor, and a facade
// type that owns every subsystem and exposes one cohesive API. Distinct
// from qlifecycle.Port, which only owns start/stop/control-lock/dispatch
// bookkeeping for one already-configured port; this package is the
// thing a caller actually constructs.

package port

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"

	"github.com/momentics/mlx4-core/affinity"
	"github.com/momentics/mlx4-core/api"
	"github.com/momentics/mlx4-core/control"
	"github.com/momentics/mlx4-core/devargs"
	"github.com/momentics/mlx4-core/flow"
	"github.com/momentics/mlx4-core/linkwatch"
	"github.com/momentics/mlx4-core/qlifecycle"
	"github.com/momentics/mlx4-core/rxring"
	"github.com/momentics/mlx4-core/stats"
)

// Config configures one physical port at device-configure time (§6
// "configure").
type Config struct {
	PortNum       uint8
	NumRxQueues   int
	NumTxQueues   int
	RxDescriptors int
	TxDescriptors int
	MaxRxPktLen   int
	ScatterOK     bool
	MaxInline     int
	CQSize        int
	MaxQPWR       uint32
	MaxRSSTblSize int
	Isolated      bool
	MAC           net.HardwareAddr
	InlineRecvEnv string // e.g. "MLX4_INLINE_RECV_SIZE"

	// RxCPUIDs/TxCPUIDs optionally pin each queue's worker thread to a
	// logical CPU (§5 "single OS thread per queue"), indexed by queue
	// index. A missing or negative entry leaves that queue unpinned.
	RxCPUIDs []int
	TxCPUIDs []int
}

// DefaultConfig returns sane defaults for a single-queue, non-isolated
// port.
func DefaultConfig() Config {
	return Config{
		NumRxQueues:   1,
		NumTxQueues:   1,
		RxDescriptors: 1024,
		TxDescriptors: 1024,
		MaxRxPktLen:   1518,
		CQSize:        1024,
		MaxQPWR:       4096,
		MaxRSSTblSize: 128,
		InlineRecvEnv: "MLX4_INLINE_RECV_SIZE",
	}
}

// Port owns every per-port resource: the control-plane state machine
// (qlifecycle.Port), the flow table (C5), per-queue rings (C2/C3 via
// C4), and the stats collector.
type Port struct {
	dev api.Device
	pd  *api.PD
	cfg Config

	lifecycle *qlifecycle.Port
	flows     *flow.Table
	metrics   *stats.Collector
	link      *linkwatch.Watcher
	debug     *control.DebugProbes

	linkUp atomic.Bool
}

// New allocates a PD and constructs an unconfigured Port. Configure
// must be called before queue setup.
func New(dev api.Device, cfg Config) (*Port, error) {
	pd, err := dev.AllocPD()
	if err != nil {
		return nil, fmt.Errorf("alloc pd: %w", err)
	}

	p := &Port{dev: dev, pd: pd, cfg: cfg}
	p.lifecycle = &qlifecycle.Port{}
	p.flows = flow.NewTable(dev, pd, cfg.PortNum, cfg.NumRxQueues, cfg.MaxRSSTblSize, cfg.Isolated)
	p.flows.QueueQP = p.rxQueueQP
	p.metrics = stats.NewCollector(fmt.Sprintf("port%d", cfg.PortNum), p.lifecycle)
	p.link = linkwatch.New(p.recheckLink)
	p.debug = control.NewDebugProbes()
	p.debug.RegisterProbe("link.up", func() any { return p.linkUp.Load() })
	p.debug.RegisterProbe("rx.queues", func() any { return len(p.lifecycle.RxQueues) })
	p.debug.RegisterProbe("tx.queues", func() any { return len(p.lifecycle.TxQueues) })
	p.debug.RegisterProbe("flows.active", func() any { return p.flows.ActiveRuleCount() })
	control.RegisterPlatformProbes(p.debug)

	p.lifecycle.InstallMACFlow = p.flows.InstallMACFlow
	p.lifecycle.RemoveMACFlow = p.flows.RemoveMACFlow
	p.lifecycle.ActivateFlows = p.flows.ActivateFlows
	p.lifecycle.DeactivateFlows = p.flows.DeactivateFlows

	if len(cfg.MAC) == 6 {
		var mac [6]byte
		copy(mac[:], cfg.MAC)
		p.flows.SetMAC(mac)
	}

	return p, nil
}

func (p *Port) rxQueueQP(idx int) *api.QP {
	if idx < 0 || idx >= len(p.lifecycle.RxQueues) {
		return nil
	}
	q := p.lifecycle.RxQueues[idx]
	if q == nil {
		return nil
	}
	return q.QP
}

// Configure runs "dev-configure": Rx/Tx queue setup for every
// configured queue index (§6 "rx-queue-setup", "tx-queue-setup").
func (p *Port) Configure(pool *api.Mempool) error {
	deviceAttr, err := p.dev.QueryDeviceAttr()
	if err != nil {
		return fmt.Errorf("query device attr: %w", err)
	}
	maxInline := devargs.InlineRecvSizeFromEnv(p.cfg.InlineRecvEnv, int(deviceAttr.MaxInlineData))
	if maxInline == 0 {
		maxInline = p.cfg.MaxInline
	}

	for i := 0; i < p.cfg.NumTxQueues; i++ {
		if err := p.TxQueueSetup(i, maxInline); err != nil {
			return fmt.Errorf("tx queue %d setup: %w", i, err)
		}
	}
	for i := 0; i < p.cfg.NumRxQueues; i++ {
		if err := p.RxQueueSetup(i, pool); err != nil {
			return fmt.Errorf("rx queue %d setup: %w", i, err)
		}
	}
	return nil
}

// TxQueueSetup implements "tx-queue-setup" for one queue index.
func (p *Port) TxQueueSetup(idx, maxInline int) error {
	q, err := qlifecycle.CreateTxQueue(p.dev, p.pd, qlifecycle.TxQueueConfig{
		CQSize:      p.cfg.CQSize,
		PortNum:     p.cfg.PortNum,
		MaxQPWR:     p.cfg.MaxQPWR,
		Descriptors: p.cfg.TxDescriptors,
		MaxInline:   maxInline,
	})
	if err != nil {
		return err
	}
	p.lifecycle.TxQueues = growQueues(p.lifecycle.TxQueues, idx)
	p.lifecycle.TxQueues[idx] = q
	return nil
}

// RxQueueSetup implements "rx-queue-setup" for one queue index.
func (p *Port) RxQueueSetup(idx int, pool *api.Mempool) error {
	q, err := qlifecycle.CreateRxQueue(p.dev, p.pd, pool, qlifecycle.RxQueueConfig{
		CQSize:      p.cfg.CQSize,
		PortNum:     p.cfg.PortNum,
		Descriptors: p.cfg.RxDescriptors,
		MaxRxPktLen: p.cfg.MaxRxPktLen,
		ScatterOK:   p.cfg.ScatterOK,
	})
	if err != nil {
		return err
	}
	p.lifecycle.RxQueues = growQueues(p.lifecycle.RxQueues, idx)
	p.lifecycle.RxQueues[idx] = q
	return nil
}

// TxQueueRelease implements "tx-queue-release".
func (p *Port) TxQueueRelease(idx int) error {
	if idx < 0 || idx >= len(p.lifecycle.TxQueues) || p.lifecycle.TxQueues[idx] == nil {
		return nil
	}
	err := p.lifecycle.TxQueues[idx].Destroy(p.dev)
	p.lifecycle.TxQueues[idx] = nil
	return err
}

// RxQueueRelease implements "rx-queue-release".
func (p *Port) RxQueueRelease(idx int) error {
	if idx < 0 || idx >= len(p.lifecycle.RxQueues) || p.lifecycle.RxQueues[idx] == nil {
		return nil
	}
	err := p.lifecycle.RxQueues[idx].Destroy(p.dev)
	p.lifecycle.RxQueues[idx] = nil
	return err
}

func growQueues(qs []*qlifecycle.Queue, idx int) []*qlifecycle.Queue {
	if idx < len(qs) {
		return qs
	}
	grown := make([]*qlifecycle.Queue, idx+1)
	copy(grown, qs)
	return grown
}

// Start implements "start": delegates to qlifecycle.Port.Start, which
// installs the MAC flow and reactivates the flow table.
func (p *Port) Start() error { return p.lifecycle.Start() }

// Stop implements "stop".
func (p *Port) Stop() error { return p.lifecycle.Stop() }

// Close implements "close": stops the port (idempotent) and releases
// every queue.
func (p *Port) Close() error {
	if err := p.Stop(); err != nil {
		return err
	}
	var firstErr error
	for i := range p.lifecycle.TxQueues {
		if err := p.TxQueueRelease(i); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for i := range p.lifecycle.RxQueues {
		if err := p.RxQueueRelease(i); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// SetLinkUp implements "set-link-up".
func (p *Port) SetLinkUp() error {
	p.linkUp.Store(true)
	return nil
}

// SetLinkDown implements "set-link-down".
func (p *Port) SetLinkDown() error {
	p.linkUp.Store(false)
	return nil
}

// LinkUpdate implements "link-update": reports the current link state,
// debouncing an inconsistent reading (§5).
func (p *Port) LinkUpdate(speedPresent, statusUp bool) bool {
	if speedPresent != statusUp {
		p.link.NotifyInconsistent()
	}
	return p.linkUp.Load()
}

func (p *Port) recheckLink() {}

// DebugDump returns a point-in-time snapshot of every registered debug
// probe, keyed by probe name.
func (p *Port) DebugDump() map[string]any { return p.debug.DumpState() }

// StatsGet implements "stats-get".
func (p *Port) StatsGet() stats.Snapshot { return p.metrics.Get() }

// StatsReset implements "stats-reset".
func (p *Port) StatsReset() { p.metrics.Reset() }

// MACSet implements "mac-add/set": updates the primary MAC and
// reinstalls the MAC flow if the port is started (§4.5 "MAC flow").
func (p *Port) MACSet(mac net.HardwareAddr) error {
	if len(mac) != 6 {
		return fmt.Errorf("%w: mac address must be 6 bytes", api.ErrInvalidArgument)
	}
	var m [6]byte
	copy(m[:], mac)
	return p.flows.SetMAC(m)
}

// MTUSet implements "mtu-set": rehashes every Rx queue in place (§4.3
// "rxq_rehash") without touching Tx. After a successful rehash the
// queue's dispatch mode is DispatchScattered or DispatchReal to match
// the ring's new variant.
func (p *Port) MTUSet(newMaxRxPktLen int) error {
	p.cfg.MaxRxPktLen = newMaxRxPktLen
	for _, q := range p.lifecycle.RxQueues {
		if q == nil || q.Rx == nil {
			continue
		}
		prev := q.Dispatch.Quiesce()
		err := q.Rx.Rehash(rxring.Config{
			Descriptors: p.cfg.RxDescriptors,
			MaxRxPktLen: p.cfg.MaxRxPktLen,
			ScatterOK:   p.cfg.ScatterOK,
		}, p.cfg.CQSize)
		if err == nil {
			prev = qlifecycle.DispatchReal
			if q.Rx.Variant() == rxring.VariantScattered {
				prev = qlifecycle.DispatchScattered
			}
		}
		q.Dispatch.Resume(prev)
		if err != nil {
			return fmt.Errorf("rx queue rehash: %w", err)
		}
	}
	return nil
}

// FlowCreate installs a new flow rule (§4.5), backing "filter-ctrl".
func (p *Port) FlowCreate(attr flow.Attr, pattern []flow.Item, actions []flow.Action) (*flow.Rule, error) {
	return p.flows.CreateRule(attr, pattern, actions)
}

// FlowDestroy backs "filter-ctrl" flow destruction.
func (p *Port) FlowDestroy(id int) error { return p.flows.DestroyRule(id) }

// RxIntrEnable implements "rx-intr-enable" for one queue.
func (p *Port) RxIntrEnable(idx int) error {
	if idx < 0 || idx >= len(p.lifecycle.RxQueues) || p.lifecycle.RxQueues[idx] == nil {
		return fmt.Errorf("%w: no such rx queue", api.ErrNotFound)
	}
	q := p.lifecycle.RxQueues[idx]
	if q.Channel == nil {
		return fmt.Errorf("%w: rx queue was not created with an interrupt channel", api.ErrNotSupported)
	}
	return p.dev.ReqNotifyCQ(q.CQ)
}

// RxIntrDisable implements "rx-intr-disable"; the core has no
// standing notification to cancel once armed, so this is a no-op that
// validates the queue exists.
func (p *Port) RxIntrDisable(idx int) error {
	if idx < 0 || idx >= len(p.lifecycle.RxQueues) || p.lifecycle.RxQueues[idx] == nil {
		return fmt.Errorf("%w: no such rx queue", api.ErrNotFound)
	}
	return nil
}

// PinRxQueue sets the CPU affinity of the OS thread currently running
// the caller to the CPU configured for Rx queue idx, through the
// affinity package. It does not call runtime.LockOSThread, so the
// calling goroutine is not bound to that thread by this call. A queue
// with no configured CPU is a no-op.
func (p *Port) PinRxQueue(idx int) error {
	return pinQueue(p.cfg.RxCPUIDs, idx)
}

// PinTxQueue is PinRxQueue's Tx counterpart.
func (p *Port) PinTxQueue(idx int) error {
	return pinQueue(p.cfg.TxCPUIDs, idx)
}

func pinQueue(cpuIDs []int, idx int) error {
	if idx < 0 || idx >= len(cpuIDs) {
		return nil
	}
	cpu := cpuIDs[idx]
	if cpu < 0 {
		return nil
	}
	return affinity.SetAffinity(cpu)
}

// WaitAsyncEvent blocks for the next async event (§6 "get_async_event"),
// used by the host framework's event loop.
func (p *Port) WaitAsyncEvent(ctx context.Context) (*api.AsyncEvent, error) {
	ev, err := p.dev.GetAsyncEvent(ctx)
	if err != nil {
		return nil, err
	}
	switch ev.Type {
	case api.EventPortActive:
		p.linkUp.Store(true)
	case api.EventPortErr:
		p.linkUp.Store(false)
	}
	p.dev.AckAsyncEvent(ev)
	return ev, nil
}
