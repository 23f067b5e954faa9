// File: devargs/devargs.go
// Package devargs parses the core's device-level configuration knobs
// (§6 "Port device arguments", "Environment variables").
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Ported from mlx4_args()/mlx4_arg_parse()/mlx4_getenv_int() in
// original_source/drivers/net/mlx4/mlx4.c, restructured around a small
// key/value store in the style of control/config.go's ConfigStore
// rather than a C kvarg list: a map populated by ParseKVArgs, consulted
// by PortMask. InlineRecvSizeFromEnv reads the environment directly and
// does not use the map.

package devargs

import (
	"fmt"
	"math/bits"
	"os"
	"strconv"
	"strings"

	"github.com/momentics/mlx4-core/api"
)

// PortKVArg is the one recognized kvarg key (§6 "Port device arguments").
const PortKVArg = "port"

// Args holds the parsed device arguments for one PCI device.
type Args struct {
	values map[string][]string
}

// ParseKVArgs parses a comma-separated "key=value[,key=value...]"
// device argument string the way rte_kvargs_parse does, keeping every
// occurrence of a repeated key (mlx4_args walks `port=` once per
// occurrence via rte_kvargs_process).
func ParseKVArgs(raw string) (*Args, error) {
	a := &Args{values: make(map[string][]string)}
	if raw == "" {
		return a, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("%w: malformed device argument %q", api.ErrInvalidArgument, pair)
		}
		key := strings.TrimSpace(kv[0])
		val := strings.TrimSpace(kv[1])
		a.values[key] = append(a.values[key], val)
	}
	return a, nil
}

// PortMask resolves the "port=<index>" kvarg(s) against presentPorts (a
// bitmask of physical ports the card reports) into an enabled-ports
// bitmask. Every occurrence of "port=N" sets bit N; absence of the
// kvarg enables every present port (§6 "absence enables all present
// ports").
func (a *Args) PortMask(presentPorts uint32) (uint32, error) {
	occurrences, ok := a.values[PortKVArg]
	if !ok || len(occurrences) == 0 {
		return presentPorts, nil
	}

	numPorts := bits.Len32(presentPorts)
	var enabled uint32
	for _, raw := range occurrences {
		idx, err := strconv.ParseUint(raw, 0, 32)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a valid integer for %s", api.ErrInvalidArgument, raw, PortKVArg)
		}
		if int(idx) >= numPorts {
			return 0, fmt.Errorf("%w: port index %d outside range [0,%d)", api.ErrInvalidArgument, idx, numPorts)
		}
		bit := uint32(1) << idx
		if presentPorts&bit == 0 {
			return 0, fmt.Errorf("%w: invalid port index %d", api.ErrInvalidArgument, idx)
		}
		enabled |= bit
	}
	return enabled, nil
}

// InlineRecvSizeFromEnv reads the inline-receive size requested via the
// environment (§6 "*INLINE_RECV_SIZE"), clamped to [0, deviceMax].
// Unset or non-integer values are treated as 0, matching
// mlx4_getenv_int's "return 0" fallback.
func InlineRecvSizeFromEnv(envVar string, deviceMax int) int {
	val := os.Getenv(envVar)
	if val == "" {
		return 0
	}
	n, err := strconv.Atoi(val)
	if err != nil || n < 0 {
		return 0
	}
	if n > deviceMax {
		return deviceMax
	}
	return n
}
