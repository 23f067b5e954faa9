// File: rdmadev/rdmadev.go
// Package rdmadev discovers the Verbs device backing a PCI network
// function (§6 "alloc_pd, open_device... get_device_list").
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A thin wrapper over github.com/Mellanox/rdmamap, which already does
// the sysfs walking real device discovery requires; this core has no
// business reimplementing it.

package rdmadev

import (
	"fmt"

	"github.com/Mellanox/rdmamap"

	"github.com/momentics/mlx4-core/api"
)

// PortInfo is what the core needs to open a Verbs context for one PCI
// network function: the ibverbs device name and the /dev character
// device nodes backing it (needed when the caller runs inside a
// container and must bind-mount them in).
type PortInfo struct {
	PCIAddr     string
	VerbsName   string
	CharDevices []string
}

// Discover resolves the ibverbs device name(s) for a PCI address and
// the character devices they expose. Returns api.ErrNotFound if the PCI
// address has no associated RDMA device.
func Discover(pciAddr string) (*PortInfo, error) {
	names := rdmamap.GetRdmaDevicesForPcidev(pciAddr)
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no rdma device bound to %s", api.ErrNotFound, pciAddr)
	}

	verbsName := names[0]
	chardevs := rdmamap.GetRdmaCharDevices(verbsName)

	return &PortInfo{
		PCIAddr:     pciAddr,
		VerbsName:   verbsName,
		CharDevices: chardevs,
	}, nil
}
