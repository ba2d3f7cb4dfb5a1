package cli

import (
	"context"

	flag "github.com/spf13/pflag"
)

func (a *app) cmdStat() *Command {
	flags := flag.NewFlagSet("stat", flag.ContinueOnError)

	return &Command{
		Flags: flags,
		Usage: "stat <table>",
		Short: "Show table statistics",
		Exec: func(_ context.Context, o *IO, args []string) error {
			if len(args) < 1 {
				return errTableNameRequired
			}

			db, err := OpenTable(a.cfg, a.log, args[0])
			if err != nil {
				return err
			}

			defer func() { _ = db.Close() }()

			stats := db.Stats()

			o.Println("path:       ", a.cfg.TablePath(args[0]))
			o.Println("records:    ", stats.Records)
			o.Println("wal enabled:", stats.WALEnabled)
			o.Println("wal entries:", stats.WALEntries)
			o.Println("locked:     ", stats.Locked)

			return nil
		},
	}
}
