//go:build darwin

package platform

import "golang.org/x/sys/unix"

// HardwareModel returns the hw.model sysctl, e.g. "MacBookPro18,3".
func HardwareModel() string {
	model, err := unix.Sysctl("hw.model")
	if err != nil {
		log.Debugf("failed to read hw.model: %v", err)
		return ""
	}
	return model
}
