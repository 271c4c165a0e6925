//go:build go1.22

package slsi

import "net"

// NetFlags returns the net.Flags for the vif, either net.FlagUp or net.FlagRunning.
func (v *VIF) NetFlags() (flags net.Flags) {
	if v.portOpen.Load() {
		flags |= net.FlagRunning
	}
	if v.Activated() {
		flags |= net.FlagUp
	}
	return flags
}
