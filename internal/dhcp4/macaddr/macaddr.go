// Package macaddr resolves the hardware address of a named network
// interface. This is bootstrap-layer work, not core protocol logic: the
// state machine only ever sees a net.HardwareAddr, never an interface
// name.
package macaddr

import (
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/AdguardTeam/golibs/errors"
)

// ErrInterfaceInvalid is the sentinel cause returned when the named
// interface does not exist or its address file cannot be read.
const ErrInterfaceInvalid errors.Error = "macaddr: interface invalid"

// ErrMacParse is the sentinel cause returned when an interface's address
// file exists but does not parse as a MAC address.
const ErrMacParse errors.Error = "macaddr: could not parse hardware address"

// sysClassNetAddress is overridden in tests.
var sysClassNetAddress = func(ifaceName string) string {
	return fmt.Sprintf("/sys/class/net/%s/address", ifaceName)
}

// Lookup reads the hardware address of ifaceName from
// /sys/class/net/<interface>/address. On platforms without that path, or
// when the kernel has not populated it, it falls back to
// [net.InterfaceByName].
func Lookup(ifaceName string) (net.HardwareAddr, error) {
	path := sysClassNetAddress(ifaceName)

	raw, err := os.ReadFile(path)
	if err == nil {
		mac, parseErr := net.ParseMAC(strings.TrimSpace(string(raw)))
		if parseErr != nil {
			return nil, fmt.Errorf("interface %q: %s: %w", ifaceName, parseErr, ErrMacParse)
		}

		return mac, nil
	}

	iface, ifErr := net.InterfaceByName(ifaceName)
	if ifErr != nil {
		return nil, fmt.Errorf("interface %q: %s: %w", ifaceName, ifErr, ErrInterfaceInvalid)
	}

	if len(iface.HardwareAddr) == 0 {
		return nil, fmt.Errorf("interface %q: no hardware address: %w", ifaceName, ErrInterfaceInvalid)
	}

	return iface.HardwareAddr, nil
}
