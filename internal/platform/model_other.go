//go:build !darwin && !linux

package platform

// HardwareModel is unknown here, calibration uses the global record.
func HardwareModel() string {
	return ""
}
