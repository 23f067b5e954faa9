// File: qlifecycle/queue.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The queue creation/destruction sequence and QP state machine (§4.4).

package qlifecycle

import (
	"fmt"

	"github.com/momentics/mlx4-core/api"
	"github.com/momentics/mlx4-core/rxring"
	"github.com/momentics/mlx4-core/txring"
)

// Kind distinguishes a Tx queue (drives the QP through RTS) from an Rx
// queue (stops at RTR).
type Kind int

const (
	KindTx Kind = iota
	KindRx
)

// Queue bundles the Verbs resources and ring state for one Tx or Rx
// queue, plus the dispatch cell the data-path worker consults before
// every burst (§9 "Function-pointer dispatch").
type Queue struct {
	Kind     Kind
	PortNum  uint8
	RD       *api.ResourceDomain
	QP       *api.QP
	CQ       *api.CQ
	Channel  *api.CompChannel
	Dispatch Dispatch

	Tx *txring.Ring
	Rx *rxring.Ring
}

// TxQueueConfig configures Tx queue creation.
type TxQueueConfig struct {
	CQSize      int
	PortNum     uint8
	MaxQPWR     uint32
	Descriptors int
	MaxInline   int
}

// RxQueueConfig configures Rx queue creation.
type RxQueueConfig struct {
	CQSize      int
	PortNum     uint8
	Descriptors int
	MaxRxPktLen int
	ScatterOK   bool
	WantIntr    bool
}

// CreateTxQueue runs the §4.4 "Queue creation sequence" for a Tx queue:
// resource domain, CQ, raw-packet QP with Tx attributes, INIT, ring
// allocation (C2), then INIT -> RTR -> RTS.
func CreateTxQueue(dev api.Device, pd *api.PD, cfg TxQueueConfig) (*Queue, error) {
	rd, err := dev.AllocResourceDomain()
	if err != nil {
		return nil, fmt.Errorf("alloc tx resource domain: %w", err)
	}

	cq, err := dev.CreateCQ(cfg.CQSize, nil)
	if err != nil {
		_ = dev.DestroyResourceDomain(rd)
		return nil, fmt.Errorf("create tx cq: %w", err)
	}

	qp, err := dev.CreateQP(pd, api.QPInitAttr{
		Type:          api.QPTypeRawPacket,
		MaxSendWR:     uint32(cfg.Descriptors),
		MaxSendSGE:    4,
		MaxInlineData: uint32(cfg.MaxInline),
		SendCQ:        cq,
	})
	if err != nil {
		_ = dev.DestroyCQ(cq)
		_ = dev.DestroyResourceDomain(rd)
		return nil, fmt.Errorf("create tx qp: %w", err)
	}

	if err := dev.ModifyQP(qp, api.QPInit, cfg.PortNum); err != nil {
		_ = dev.DestroyQP(qp)
		_ = dev.DestroyCQ(cq)
		_ = dev.DestroyResourceDomain(rd)
		return nil, fmt.Errorf("tx qp to init: %w", err)
	}

	ring, err := txring.Setup(dev, pd, qp, cq, cfg.MaxQPWR, txring.Config{
		Descriptors: cfg.Descriptors,
		MaxInline:   int(qp.EffectiveMaxInline),
	})
	if err != nil {
		_ = dev.DestroyQP(qp)
		_ = dev.DestroyCQ(cq)
		_ = dev.DestroyResourceDomain(rd)
		return nil, fmt.Errorf("tx ring setup: %w", err)
	}

	if err := dev.ModifyQP(qp, api.QPRTR, cfg.PortNum); err != nil {
		_ = ring.Close()
		_ = dev.DestroyQP(qp)
		_ = dev.DestroyCQ(cq)
		_ = dev.DestroyResourceDomain(rd)
		return nil, fmt.Errorf("tx qp to rtr: %w", err)
	}
	if err := dev.ModifyQP(qp, api.QPRTS, cfg.PortNum); err != nil {
		_ = ring.Close()
		_ = dev.DestroyQP(qp)
		_ = dev.DestroyCQ(cq)
		_ = dev.DestroyResourceDomain(rd)
		return nil, fmt.Errorf("tx qp to rts: %w", err)
	}

	q := &Queue{Kind: KindTx, PortNum: cfg.PortNum, RD: rd, QP: qp, CQ: cq, Tx: ring}
	q.Dispatch.set(DispatchReal)
	return q, nil
}

// CreateRxQueue runs the §4.4 sequence for an Rx queue: resource domain,
// optional comp channel, CQ, raw-packet QP with Rx attributes, INIT,
// ring allocation (C3, which itself posts the initial chain and
// transitions to RTR).
func CreateRxQueue(dev api.Device, pd *api.PD, pool *api.Mempool, cfg RxQueueConfig) (*Queue, error) {
	rd, err := dev.AllocResourceDomain()
	if err != nil {
		return nil, fmt.Errorf("alloc rx resource domain: %w", err)
	}

	var channel *api.CompChannel
	if cfg.WantIntr {
		channel, err = dev.CreateCompChannel()
		if err != nil {
			_ = dev.DestroyResourceDomain(rd)
			return nil, fmt.Errorf("create comp channel: %w", err)
		}
	}

	cq, err := dev.CreateCQ(cfg.CQSize, channel)
	if err != nil {
		if channel != nil {
			_ = dev.DestroyCompChannel(channel)
		}
		_ = dev.DestroyResourceDomain(rd)
		return nil, fmt.Errorf("create rx cq: %w", err)
	}

	qp, err := dev.CreateQP(pd, api.QPInitAttr{
		Type:       api.QPTypeRawPacket,
		MaxRecvWR:  uint32(cfg.Descriptors),
		MaxRecvSGE: 4,
		RecvCQ:     cq,
	})
	if err != nil {
		_ = dev.DestroyCQ(cq)
		if channel != nil {
			_ = dev.DestroyCompChannel(channel)
		}
		_ = dev.DestroyResourceDomain(rd)
		return nil, fmt.Errorf("create rx qp: %w", err)
	}

	if err := dev.ModifyQP(qp, api.QPInit, cfg.PortNum); err != nil {
		_ = dev.DestroyQP(qp)
		_ = dev.DestroyCQ(cq)
		if channel != nil {
			_ = dev.DestroyCompChannel(channel)
		}
		_ = dev.DestroyResourceDomain(rd)
		return nil, fmt.Errorf("rx qp to init: %w", err)
	}

	ring, err := rxring.Setup(dev, pd, qp, cq, pool, rxring.Config{
		Descriptors: cfg.Descriptors,
		MaxRxPktLen: cfg.MaxRxPktLen,
		ScatterOK:   cfg.ScatterOK,
	})
	if err != nil {
		_ = dev.DestroyQP(qp)
		_ = dev.DestroyCQ(cq)
		if channel != nil {
			_ = dev.DestroyCompChannel(channel)
		}
		_ = dev.DestroyResourceDomain(rd)
		return nil, fmt.Errorf("rx ring setup: %w", err)
	}

	q := &Queue{Kind: KindRx, PortNum: cfg.PortNum, RD: rd, QP: qp, CQ: cq, Channel: channel, Rx: ring}
	q.Dispatch.set(DispatchReal)
	return q, nil
}

// Destroy tears down a queue's resources in reverse creation order.
// Every step tolerates a nil handle, matching the spec's "partial setup
// cleanup" tolerance (§4.4 "Queue destruction is the reverse...").
func (q *Queue) Destroy(dev api.Device) error {
	if q == nil {
		return nil
	}
	prev := q.Dispatch.Quiesce()
	_ = prev

	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if q.Tx != nil {
		record(q.Tx.Close())
	}
	if q.Rx != nil {
		record(q.Rx.Close())
	}
	if q.QP != nil {
		record(dev.DestroyQP(q.QP))
	}
	if q.CQ != nil {
		record(dev.DestroyCQ(q.CQ))
	}
	if q.Channel != nil {
		record(dev.DestroyCompChannel(q.Channel))
	}
	if q.RD != nil {
		record(dev.DestroyResourceDomain(q.RD))
	}
	return firstErr
}
