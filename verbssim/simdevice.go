// File: verbssim/simdevice.go
// Package verbssim provides a software reference implementation of
// api.Device, used by tests and by standalone operation without a real
// libibverbs binding.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Modeled on fake/transport.go: predictable, controllable, mutex-guarded
// behavior standing in for a real kernel transport, with Set*Error hooks
// the control-path and data-path tests use to exercise the taxonomy in
// spec §7.

package verbssim

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/momentics/mlx4-core/api"
)

// Device is a deterministic in-process stand-in for the Verbs kernel
// transport. A real binding would issue ibv_* syscalls; this one moves
// bytes between Go slices and models completions synchronously: every
// PostSend immediately produces one pending WC per signaled WR, and every
// PostRecv chain is retained until "delivered" by the test driving DeliverRecv.
type Device struct {
	mu sync.Mutex

	attr api.DeviceAttr

	nextHandle uintptr
	mrs        map[uintptr]*api.MR
	cqs        map[uintptr]*cqState
	qps        map[uintptr]*qpState
	flows      map[uintptr]*api.Flow

	regMRErr    error
	postSendErr error
	postRecvErr error
	pollCQErr   error

	asyncEvents chan api.AsyncEvent
	closed      atomic.Bool
}

type cqState struct {
	pending []api.WC
	channel *api.CompChannel
}

type qpState struct {
	state   api.QPState
	portNum uint8
	sendCQ  *api.CQ
	recvCQ  *api.CQ
	recvWRs []*api.RecvWR // currently posted chain, flattened
}

// New creates a simulator reporting the given device attributes.
func New(attr api.DeviceAttr) *Device {
	return &Device{
		attr:        attr,
		mrs:         make(map[uintptr]*api.MR),
		cqs:         make(map[uintptr]*cqState),
		qps:         make(map[uintptr]*qpState),
		flows:       make(map[uintptr]*api.Flow),
		asyncEvents: make(chan api.AsyncEvent, 16),
	}
}

func (d *Device) handle() uintptr {
	d.nextHandle++
	return d.nextHandle
}

func (d *Device) AllocPD() (*api.PD, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return &api.PD{Handle: d.handle()}, nil
}

func (d *Device) QueryDeviceAttr() (api.DeviceAttr, error) {
	return d.attr, nil
}

func (d *Device) AllocResourceDomain() (*api.ResourceDomain, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return &api.ResourceDomain{Handle: d.handle()}, nil
}

func (d *Device) DestroyResourceDomain(rd *api.ResourceDomain) error { return nil }

func (d *Device) SetRegMRError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.regMRErr = err
}

func (d *Device) RegMR(pd *api.PD, addr, length uintptr, access api.AccessFlags) (*api.MR, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.regMRErr != nil {
		return nil, d.regMRErr
	}
	h := d.handle()
	mr := &api.MR{Handle: h, Lkey: uint32(h), Addr: addr, Len: length}
	d.mrs[h] = mr
	return mr, nil
}

func (d *Device) DeregMR(mr *api.MR) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.mrs, mr.Handle)
	return nil
}

func (d *Device) CreateCQ(size int, channel *api.CompChannel) (*api.CQ, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.handle()
	cq := &api.CQ{Handle: h, Size: size, Channel: channel}
	d.cqs[h] = &cqState{channel: channel}
	return cq, nil
}

func (d *Device) ResizeCQ(cq *api.CQ, size int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cq.Size = size
	return nil
}

func (d *Device) DestroyCQ(cq *api.CQ) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.cqs, cq.Handle)
	return nil
}

func (d *Device) SetPollCQError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pollCQErr = err
}

func (d *Device) PollCQ(cq *api.CQ, max int) ([]api.WC, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pollCQErr != nil {
		return nil, d.pollCQErr
	}
	st, ok := d.cqs[cq.Handle]
	if !ok {
		return nil, api.ErrNotFound
	}
	n := len(st.pending)
	if n > max {
		n = max
	}
	out := append([]api.WC(nil), st.pending[:n]...)
	st.pending = st.pending[n:]
	return out, nil
}

func (d *Device) CreateCompChannel() (*api.CompChannel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return &api.CompChannel{Handle: d.handle()}, nil
}

func (d *Device) DestroyCompChannel(ch *api.CompChannel) error { return nil }

func (d *Device) GetCQEvent(ch *api.CompChannel) (*api.CQ, error) {
	return nil, api.ErrNotSupported
}

func (d *Device) AckCQEvents(cq *api.CQ, n int) error { return nil }
func (d *Device) ReqNotifyCQ(cq *api.CQ) error        { return nil }

func (d *Device) CreateQP(pd *api.PD, attr api.QPInitAttr) (*api.QP, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.handle()
	effInline := attr.MaxInlineData
	qp := &api.QP{Handle: h, State: api.QPReset, EffectiveMaxInline: effInline}
	d.qps[h] = &qpState{state: api.QPReset, sendCQ: attr.SendCQ, recvCQ: attr.RecvCQ}
	return qp, nil
}

func (d *Device) ModifyQP(qp *api.QP, state api.QPState, portNum uint8) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.qps[qp.Handle]
	if !ok {
		return api.ErrNotFound
	}
	st.state = state
	if portNum != 0 {
		st.portNum = portNum
	}
	qp.State = state
	qp.PortNum = st.portNum
	return nil
}

func (d *Device) DestroyQP(qp *api.QP) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.qps, qp.Handle)
	return nil
}

func (d *Device) SetPostSendError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.postSendErr = err
}

// PostSend posts wrs and immediately completes every signaled one,
// mirroring §4.2.2's trusted-successful completion model: the simulator
// has no real hardware pipeline to delay completions behind, so it
// delivers them synchronously in the order posted.
func (d *Device) PostSend(qp *api.QP, wrs []api.SendWR) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.postSendErr != nil {
		return d.postSendErr
	}
	st, ok := d.qps[qp.Handle]
	if !ok || st.sendCQ == nil {
		return api.ErrNotFound
	}
	cq := d.cqs[st.sendCQ.Handle]
	for _, wr := range wrs {
		if wr.Flags&api.WRSignaled != 0 {
			cq.pending = append(cq.pending, api.WC{WRID: wr.ID, Status: api.WCSuccess})
		}
	}
	return nil
}

func (d *Device) SetPostRecvError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.postRecvErr = err
}

// PostRecv records the posted chain. Completions are injected for tests
// via DeliverRecv rather than generated automatically, since real arrival
// is driven by the network, not by posting.
func (d *Device) PostRecv(qp *api.QP, chain *api.RecvWR) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.postRecvErr != nil {
		return d.postRecvErr
	}
	st, ok := d.qps[qp.Handle]
	if !ok {
		return api.ErrNotFound
	}
	st.recvWRs = st.recvWRs[:0]
	for wr := chain; wr != nil; wr = wr.Next {
		st.recvWRs = append(st.recvWRs, wr)
	}
	return nil
}

// DeliverRecv injects a completion for the n'th currently-posted recv WR
// of qp (simulating hardware packet arrival) with the given byte count.
func (d *Device) DeliverRecv(qp *api.QP, n int, bytes uint32, status api.WCStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st := d.qps[qp.Handle]
	if st == nil || st.recvCQ == nil || n >= len(st.recvWRs) {
		return
	}
	cq := d.cqs[st.recvCQ.Handle]
	cq.pending = append(cq.pending, api.WC{WRID: st.recvWRs[n].ID, Status: status, Bytes: bytes})
}

func (d *Device) CreateFlow(qp *api.QP, attr api.FlowAttr) (*api.Flow, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.handle()
	f := &api.Flow{Handle: h}
	d.flows[h] = f
	return f, nil
}

func (d *Device) DestroyFlow(flow *api.Flow) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.flows, flow.Handle)
	return nil
}

// PushAsyncEvent injects an async event for tests; GetAsyncEvent blocks
// until one is available or ctx is cancelled.
func (d *Device) PushAsyncEvent(ev api.AsyncEvent) {
	select {
	case d.asyncEvents <- ev:
	default:
	}
}

func (d *Device) GetAsyncEvent(ctx context.Context) (*api.AsyncEvent, error) {
	select {
	case ev := <-d.asyncEvents:
		return &ev, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *Device) AckAsyncEvent(ev *api.AsyncEvent) {}

var _ api.Device = (*Device)(nil)
