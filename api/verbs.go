// File: api/verbs.go
// Package api defines the downstream Verbs transport contract (§6).
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// These are the primitives the core core requires from the Verbs kernel
// transport, modeled the same way api/interfaces.go modeled the Reactor
// and NetConn boundary in the teacher: a small set of interfaces the core
// programs against, with a concrete implementation supplied elsewhere
// (verbssim, or a real cgo libibverbs binding outside this module's scope).

package api

import "context"

// AccessFlags mirrors ibv_access_flags bits relevant to this core.
type AccessFlags uint32

const (
	AccessLocalWrite AccessFlags = 1 << iota
)

// MR is an opaque memory-region handle carrying the lkey used in SGEs.
type MR struct {
	Handle uintptr
	Lkey   uint32
	Addr   uintptr
	Len    uintptr
}

// SGE is one scatter/gather element of a work request.
type SGE struct {
	Addr   uintptr
	Length uint32
	Lkey   uint32
}

// WRFlags mirrors ibv_send_flags bits this core cares about.
type WRFlags uint32

const (
	WRSignaled WRFlags = 1 << iota
	WRInline
)

// SendWR is a posted send work request.
type SendWR struct {
	ID      uint64
	SGEs    []SGE
	Inline  []byte
	Flags   WRFlags
}

// RecvWR is a posted receive work request, chained via Next the way the
// Verbs ABI chains ibv_recv_wr.
type RecvWR struct {
	ID   uint64
	SGEs []SGE
	Next *RecvWR
}

// WCStatus mirrors ibv_wc_status: zero is success.
type WCStatus uint32

const (
	WCSuccess WCStatus = iota
	WCError
)

// WC is one completion-queue entry.
type WC struct {
	WRID   uint64
	Status WCStatus
	Bytes  uint32
}

// QPState mirrors the ibv_qp_state machine driven in §4.4.
type QPState int

const (
	QPReset QPState = iota
	QPInit
	QPRTR
	QPRTS
	QPError
)

// QPType mirrors ibv_qp_type; this core only ever creates raw-packet QPs.
type QPType int

const (
	QPTypeRawPacket QPType = iota
)

// QPInitAttr configures queue-pair creation (§4.4 step 3).
type QPInitAttr struct {
	Type           QPType
	MaxSendWR      uint32
	MaxRecvWR      uint32
	MaxSendSGE     uint32
	MaxRecvSGE     uint32
	MaxInlineData  uint32
	SendCQ         *CQ
	RecvCQ         *CQ
}

// QP is a created queue pair. EffectiveMaxInline records what the
// transport actually granted, which §4.4 says may be smaller than
// requested.
type QP struct {
	Handle            uintptr
	State             QPState
	EffectiveMaxInline uint32
	PortNum           uint8
}

// CQ is a completion queue.
type CQ struct {
	Handle  uintptr
	Size    int
	Channel *CompChannel
}

// CompChannel is a completion event channel for interrupt-driven Rx.
type CompChannel struct {
	Handle uintptr
}

// PD is a protection domain.
type PD struct {
	Handle uintptr
}

// ResourceDomain is a thread-single, high-bandwidth-message-model
// resource domain (§4.4 "Queue creation sequence" step 1): one is
// created per queue before its CQ and QP, declaring to the transport
// that only one thread will ever touch them, and destroyed after both
// on teardown.
type ResourceDomain struct {
	Handle uintptr
}

// FlowAttr is the packed Verbs flow specification buffer described in §6
// ("Packed flow specification layout"). Bytes holds the header followed
// by one or more item records, byte-exact with no padding.
type FlowAttr struct {
	Bytes []byte
}

// Flow is an installed flow-steering rule handle.
type Flow struct {
	Handle uintptr
}

// AsyncEventType mirrors the async events this core reacts to (§6).
type AsyncEventType int

const (
	EventPortActive AsyncEventType = iota
	EventPortErr
	EventDeviceFatal
)

// AsyncEvent is one event delivered via get_async_event.
type AsyncEvent struct {
	Type    AsyncEventType
	PortNum uint8
}

// DeviceAttr mirrors the subset of ibv_device_attr this core consults.
type DeviceAttr struct {
	MaxQPWR       uint32
	MaxSGE        uint32
	MaxInlineData uint32
	MaxRSSTblSize uint32
}

// Device is the full downstream Verbs transport surface (§6 "Downstream
// (to Verbs transport)"). A software reference implementation lives in
// the sibling verbssim package; production builds would back this with a
// cgo libibverbs binding, which is out of this core's scope.
type Device interface {
	AllocPD() (*PD, error)
	QueryDeviceAttr() (DeviceAttr, error)

	AllocResourceDomain() (*ResourceDomain, error)
	DestroyResourceDomain(rd *ResourceDomain) error

	RegMR(pd *PD, addr, length uintptr, access AccessFlags) (*MR, error)
	DeregMR(mr *MR) error

	CreateCQ(size int, channel *CompChannel) (*CQ, error)
	ResizeCQ(cq *CQ, size int) error
	DestroyCQ(cq *CQ) error
	PollCQ(cq *CQ, max int) ([]WC, error)

	CreateCompChannel() (*CompChannel, error)
	DestroyCompChannel(ch *CompChannel) error
	GetCQEvent(ch *CompChannel) (*CQ, error)
	AckCQEvents(cq *CQ, n int) error
	ReqNotifyCQ(cq *CQ) error

	CreateQP(pd *PD, attr QPInitAttr) (*QP, error)
	ModifyQP(qp *QP, state QPState, portNum uint8) error
	DestroyQP(qp *QP) error
	PostSend(qp *QP, wrs []SendWR) error
	PostRecv(qp *QP, chain *RecvWR) error

	CreateFlow(qp *QP, attr FlowAttr) (*Flow, error)
	DestroyFlow(flow *Flow) error

	GetAsyncEvent(ctx context.Context) (*AsyncEvent, error)
	AckAsyncEvent(ev *AsyncEvent)
}
