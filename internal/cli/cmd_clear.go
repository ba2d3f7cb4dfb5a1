package cli

import (
	"context"
	"errors"

	flag "github.com/spf13/pflag"
)

func (a *app) cmdClear() *Command {
	flags := flag.NewFlagSet("clear", flag.ContinueOnError)
	yes := flags.Bool("yes", false, "Skip the safety flag check")

	return &Command{
		Flags: flags,
		Usage: "clear <table> --yes",
		Short: "Remove every record",
		Long:  "Remove every record from a table and truncate its log. Requires --yes.",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) < 1 {
				return errTableNameRequired
			}

			if !*yes {
				return errors.New("clear removes all records; pass --yes to confirm")
			}

			db, err := OpenTable(a.cfg, a.log, args[0])
			if err != nil {
				return err
			}

			defer func() { _ = db.Close() }()

			err = db.Clear(ctx)
			if err != nil {
				return err
			}

			o.Println("cleared", args[0])

			return nil
		},
	}
}
