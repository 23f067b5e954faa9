// File: api/port.go
// Package api defines the Port external collaborator (§3, §6).
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

import "net"

// Port carries everything the core needs about the physical port it is
// driving, most of which is owned by the higher-level framework's port
// registry (an external collaborator per §1).
type Port struct {
	PD         *PD
	Ctx        Device
	PortNum    uint8
	DeviceAttr DeviceAttr

	VF       bool
	Isolated bool
	Started  bool

	MAC net.HardwareAddr

	NumRxQueues int
	NumTxQueues int
}
