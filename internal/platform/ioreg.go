package platform

import (
	"context"
	"errors"
	"fmt"
	"os/exec"

	"howett.net/plist"
)

var errNoBattery = errors.New("no battery found")

// IORegSource reads the AppleSmartBattery registry entry through ioreg's
// plist output.
type IORegSource struct {
	run func(ctx context.Context) ([]byte, error)
}

func NewIORegSource() *IORegSource {
	return &IORegSource{run: runIOReg}
}

func runIOReg(ctx context.Context) ([]byte, error) {
	out, err := exec.CommandContext(ctx, "ioreg", "-r", "-c", "AppleSmartBattery", "-a").Output()
	if err != nil {
		return nil, fmt.Errorf("ioreg failed: %w", err)
	}
	return out, nil
}

func (s *IORegSource) Properties(ctx context.Context) (Props, error) {
	out, err := s.run(ctx)
	if err != nil {
		return nil, err
	}
	return ParseIORegPlist(out)
}

// ParseIORegPlist decodes ioreg -a output: an array with one dictionary per
// matching registry entry. The first entry is used.
func ParseIORegPlist(data []byte) (Props, error) {
	if len(data) == 0 {
		return nil, errNoBattery
	}
	var entries []map[string]interface{}
	if _, err := plist.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse ioreg plist: %w", err)
	}
	if len(entries) == 0 {
		return nil, errNoBattery
	}
	return Props(entries[0]), nil
}
