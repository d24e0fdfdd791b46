//go:build !darwin || !cgo

package ecrequest

// AppleSMC is only available on macOS. Every call fails so the reader
// reports no data.
type AppleSMC struct{}

func NewAppleSMC() *AppleSMC {
	return &AppleSMC{}
}

func (a *AppleSMC) Open() error {
	return ErrUnsupported
}

func (a *AppleSMC) Close() error {
	return nil
}

func (a *AppleSMC) ReadKeyInfo(key string) (KeyInfo, error) {
	return KeyInfo{}, ErrUnsupported
}

func (a *AppleSMC) ReadKeyBytes(key string, size int) ([]byte, error) {
	return nil, ErrUnsupported
}
