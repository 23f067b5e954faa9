// File: flow/rssparent.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// RSS parent QP management (§4.5 "RSS parent management"). Grounded on
// the same owned-vector-keyed-by-insertion-order idiom §9 specifies for
// the rule list ("represent as owned vectors... not intrusive lists").

package flow

import (
	"fmt"
	"sort"

	"github.com/momentics/mlx4-core/api"
)

type rssParent struct {
	queues map[int]bool
	qp     *api.QP
}

func normalizeQueueSet(queues []int) map[int]bool {
	s := make(map[int]bool, len(queues))
	for _, q := range queues {
		s[q] = true
	}
	return s
}

func sameSet(a, b map[int]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

func overlaps(a, b map[int]bool) bool {
	for k := range a {
		if b[k] {
			return true
		}
	}
	return false
}

// getOrCreateRSSParent implements get_or_create_parent(queues[]): reuse
// an existing parent over an identical queue set, reject overlapping
// non-equal requests and requests touching a queue already used
// stand-alone, else create a new parent QP.
func (t *Table) getOrCreateRSSParent(dev api.Device, pd *api.PD, queues []int) (*api.QP, error) {
	requested := normalizeQueueSet(queues)

	for _, p := range t.rssParents {
		if sameSet(p.queues, requested) {
			return p.qp, nil
		}
		if overlaps(p.queues, requested) {
			return nil, fmt.Errorf("%w: sharing a queue between several RSS groups is not supported", api.ErrInvalidArgument)
		}
	}
	for q := range requested {
		if t.standalone[q] {
			return nil, fmt.Errorf("%w: queue %d already created stand-alone, cannot join an RSS group", api.ErrInvalidArgument, q)
		}
	}

	qp, err := dev.CreateQP(pd, api.QPInitAttr{Type: api.QPTypeRawPacket})
	if err != nil {
		return nil, fmt.Errorf("create rss parent qp: %w", err)
	}
	t.rssParents = append(t.rssParents, &rssParent{queues: requested, qp: qp})
	return qp, nil
}

// sortedQueues returns a deterministic ordering of a queue set. Nothing
// in the module calls it.
func sortedQueues(s map[int]bool) []int {
	out := make([]int, 0, len(s))
	for q := range s {
		out = append(out, q)
	}
	sort.Ints(out)
	return out
}
