package monitor

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	config "github.com/TheCacophonyProject/go-config"
	"github.com/TheCacophonyProject/powerflow/ecrequest"
	"github.com/TheCacophonyProject/powerflow/internal/logging"
	"github.com/TheCacophonyProject/powerflow/internal/power"
	"github.com/TheCacophonyProject/powerflow/internal/smcreader"
)

type ReadArgs struct {
	ConfigDir string   `arg:"-c,--config" help:"configuration folder"`
	Transport string   `arg:"--transport" help:"override the configured transport"`
	Keys      []string `arg:"positional,required" help:"controller keys to read, e.g. PPBR B0AV"`
	logging.LogArgs
}

func (ReadArgs) Version() string {
	return version
}

/*
powerflow read PPBR B0AV RPlt
*/

// RunRead prints the raw and decoded value of each key.
func RunRead(inputArgs []string, ver string) error {
	version = ver
	args := ReadArgs{ConfigDir: config.DefaultConfigDir}
	if err := procArgs(inputArgs, &args); err != nil {
		return fmt.Errorf("failed to parse args: %w", err)
	}
	setLoggers(logging.NewLogger(args.LogLevel))

	conf, err := ParseConfig(args.ConfigDir)
	if err != nil {
		return err
	}
	if args.Transport != "" {
		conf.Transport = args.Transport
	}
	transport, err := ecrequest.New(conf.Transport, conf.SMBus)
	if err != nil {
		return err
	}
	if transport == nil {
		return fmt.Errorf("no transport configured")
	}
	reader := smcreader.NewReader(transport, 0)
	defer reader.Close()
	return printKeys(os.Stdout, reader, args.Keys)
}

func printKeys(w io.Writer, reader *smcreader.Reader, keys []string) error {
	for _, key := range keys {
		v, ok := reader.Read(key)
		if !ok {
			fmt.Fprintf(w, "%s: not available\n", key)
			continue
		}
		decoded := "no value"
		if text, ok := v.Text(); ok {
			decoded = strconv.Quote(text)
		} else if f, ok := v.Float(); ok {
			decoded = strconv.FormatFloat(f, 'g', -1, 64)
		}
		fmt.Fprintf(w, "%s [%s, %d bytes] % x = %s\n", key, v.Type, v.Size, v.Raw(), decoded)
	}
	return nil
}

type SnapshotArgs struct {
	ConfigDir string `arg:"-c,--config" help:"configuration folder"`
	logging.LogArgs
}

func (SnapshotArgs) Version() string {
	return version
}

// RunSnapshot takes one full sample and prints it. The gatekeeper is skipped,
// so an inconsistent reading is shown as read.
func RunSnapshot(inputArgs []string, ver string) error {
	version = ver
	args := SnapshotArgs{ConfigDir: config.DefaultConfigDir}
	if err := procArgs(inputArgs, &args); err != nil {
		return fmt.Errorf("failed to parse args: %w", err)
	}
	setLoggers(logging.NewLogger(args.LogLevel))

	conf, err := ParseConfig(args.ConfigDir)
	if err != nil {
		return err
	}
	d, closeFn, err := setup(conf)
	if err != nil {
		return err
	}
	defer closeFn()

	printSnapshot(os.Stdout, d.Read(context.Background(), power.Full))
	return nil
}

func printSnapshot(w io.Writer, s power.Snapshot) {
	fmt.Fprintf(w, "time: %s\n", s.Time.Format("2006-01-02 15:04:05"))
	printSorted(w, s.Labels())
	values := s.Values()
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "%s: %.3f\n", name, values[name])
	}
	if len(s.Diagnostics) > 0 {
		fmt.Fprintln(w, "diagnostics:")
		names = names[:0]
		for name := range s.Diagnostics {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(w, "  %s: %.3f\n", name, s.Diagnostics[name])
		}
	}
}

func printSorted(w io.Writer, m map[string]string) {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if m[name] != "" {
			fmt.Fprintf(w, "%s: %s\n", name, m[name])
		}
	}
}
