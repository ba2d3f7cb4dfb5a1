package cli

import (
	"context"

	flag "github.com/spf13/pflag"
)

func (a *app) cmdRecover() *Command {
	flags := flag.NewFlagSet("recover", flag.ContinueOnError)

	return &Command{
		Flags: flags,
		Usage: "recover <table>",
		Short: "Replay pending log entries",
		Long: `Replay pending write-ahead log entries into the table after a crash.

Entries from committed transactions are discarded; direct operations
and operations from transactions that never reached a terminal marker
are re-applied, then the log is truncated.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) < 1 {
				return errTableNameRequired
			}

			db, err := OpenTable(a.cfg, a.log, args[0])
			if err != nil {
				return err
			}

			defer func() { _ = db.Close() }()

			before := db.Count()

			err = db.Recover(ctx)
			if err != nil {
				return err
			}

			o.Printf("recovered %s: %d -> %d record(s)\n", args[0], before, db.Count())

			return nil
		},
	}
}
