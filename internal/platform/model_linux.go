//go:build linux

package platform

import (
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

const dmiProductName = "/sys/class/dmi/id/product_name"

// HardwareModel returns the DMI product name, falling back to the machine
// architecture so boards without DMI still get a stable record.
func HardwareModel() string {
	if b, err := os.ReadFile(dmiProductName); err == nil {
		if model := strings.TrimSpace(string(b)); model != "" {
			return model
		}
	}
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		log.Debugf("failed to read uname: %v", err)
		return ""
	}
	return unix.ByteSliceToString(uts.Machine[:])
}
