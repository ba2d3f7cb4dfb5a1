package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

const (
	minArgs      = 2
	consumedOne  = 1
	consumedTwo  = 2
	consumedNone = 0
	helpFlag     = "--help"
)

var (
	errFlagRequiresArg = fmt.Errorf("flag requires an argument")
	errUnknownFlag     = fmt.Errorf("unknown flag")
)

// Run is the main entry point. Returns exit code.
func Run(in io.Reader, out, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal, log *slog.Logger) int {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	if len(args) < minArgs {
		printUsage(out)

		return 0
	}

	flags, err := parseGlobalFlags(args[1:])
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	cfg, err := LoadConfig(LoadConfigInput{
		WorkDirOverride: flags.workDir,
		ConfigPath:      flags.configPath,
		DataDirOverride: flags.dataDir,
		Env:             env,
	})
	if err != nil {
		fprintln(errOut, "error:", err)
		printUsage(errOut)

		return 1
	}

	log.Debug("config resolved",
		"data_dir", cfg.DataDirAbs,
		"global", cfg.Sources.Global,
		"project", cfg.Sources.Project)

	if len(flags.remaining) == 0 {
		printUsage(out)

		return 0
	}

	name := flags.remaining[0]
	if name == "-h" || name == helpFlag {
		printUsage(out)

		return 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if sigCh != nil {
		go func() {
			select {
			case <-sigCh:
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	app := &app{cfg: cfg, log: log, in: in}
	ioCtx := NewIO(out, errOut)

	for _, cmd := range app.commands() {
		if cmd.Name() != name {
			continue
		}

		return cmd.Run(ctx, ioCtx, flags.remaining[1:])
	}

	fprintln(errOut, "error: unknown command:", name)
	printUsage(errOut)

	return 1
}

// app carries the resolved configuration into command constructors.
type app struct {
	cfg Config
	log *slog.Logger
	in  io.Reader
}

func (a *app) commands() []*Command {
	return []*Command{
		a.cmdGet(),
		a.cmdInsert(),
		a.cmdUpdate(),
		a.cmdDelete(),
		a.cmdImport(),
		a.cmdClear(),
		a.cmdRecover(),
		a.cmdStat(),
		a.cmdPrintConfig(),
	}
}

type globalFlags struct {
	workDir    string
	configPath string
	dataDir    string
	remaining  []string
}

func parseGlobalFlags(args []string) (globalFlags, error) {
	var flags globalFlags

	idx := 0
	for idx < len(args) {
		consumed, err := parseFlag(args, idx, &flags)
		if err != nil {
			return globalFlags{}, err
		}

		if consumed == 0 {
			// Not a flag, this is the command
			flags.remaining = args[idx:]

			break
		}

		idx += consumed
	}

	return flags, nil
}

// parseFlag tries to parse a flag at args[idx]. Returns number of args consumed (0 if not a flag).
func parseFlag(args []string, idx int, flags *globalFlags) (int, error) {
	arg := args[idx]

	// -C/--cwd flag (work directory)
	if (arg == "-C" || arg == "--cwd") && idx+1 < len(args) {
		flags.workDir = args[idx+1]

		return consumedTwo, nil
	}

	if after, ok := strings.CutPrefix(arg, "-C"); ok {
		flags.workDir = after

		return consumedOne, nil
	}

	if after, ok := strings.CutPrefix(arg, "--cwd="); ok {
		flags.workDir = after

		return consumedOne, nil
	}

	// -c/--config flag
	if arg == "-c" || arg == "--config" {
		if idx+1 >= len(args) {
			return consumedNone, fmt.Errorf("%w: %s", errFlagRequiresArg, arg)
		}

		flags.configPath = args[idx+1]

		return consumedTwo, nil
	}

	if after, ok := strings.CutPrefix(arg, "--config="); ok {
		flags.configPath = after

		return consumedOne, nil
	}

	// --data-dir flag
	if arg == "--data-dir" {
		if idx+1 >= len(args) {
			return consumedNone, fmt.Errorf("%w: %s", errFlagRequiresArg, arg)
		}

		flags.dataDir = args[idx+1]

		return consumedTwo, nil
	}

	if after, ok := strings.CutPrefix(arg, "--data-dir="); ok {
		flags.dataDir = after

		return consumedOne, nil
	}

	// -h/--help flags
	if arg == "-h" || arg == helpFlag {
		flags.remaining = []string{helpFlag}

		return len(args) - idx, nil
	}

	// Unknown flag
	if strings.HasPrefix(arg, "-") && arg != "-" {
		return consumedNone, fmt.Errorf("%w: %s", errUnknownFlag, arg)
	}

	// Not a flag
	return consumedNone, nil
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

func printUsage(writer io.Writer) {
	fprintln(writer, `luxdb - single-file JSON document store

Usage: luxdb [options] <command> [args]

Options:
  -C, --cwd <dir>      Run as if started in <dir>
  -c, --config <file>  Use specified config file
  --data-dir <dir>     Override the data directory

Commands:
  get <table> [flags]          Print records, one JSON object per line
  insert <table> <json>...     Insert records
  update <table> <patch>       Patch matching records
  delete <table>               Delete matching records
  import <table> [file|-]      Insert NDJSON records in one transaction
  clear <table>                Remove every record
  recover <table>              Replay pending log entries
  stat <table>                 Show table statistics
  print-config                 Show resolved configuration`)
}
