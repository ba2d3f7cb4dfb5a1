package cli

import (
	"context"

	flag "github.com/spf13/pflag"
)

func (a *app) cmdDelete() *Command {
	flags := flag.NewFlagSet("delete", flag.ContinueOnError)
	where := flags.StringArray("where", nil, "Filter expression (field<op>value), repeatable")
	first := flags.Bool("first", false, "Delete only the first match")
	all := flags.Bool("all", false, "Allow deleting without a filter")

	return &Command{
		Flags: flags,
		Usage: "delete <table> [flags]",
		Short: "Delete matching records",
		Long: `Delete every matching record:

  luxdb delete users --where 'status=closed'

Requires --where unless --all is given.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) < 1 {
				return errTableNameRequired
			}

			if len(*where) == 0 && !*all {
				return errWhereRequired
			}

			pred, err := ParseWhere(*where)
			if err != nil {
				return err
			}

			db, err := OpenTable(a.cfg, a.log, args[0])
			if err != nil {
				return err
			}

			defer func() { _ = db.Close() }()

			if *first {
				deleted, deleteErr := db.DeleteOne(ctx, pred)
				if deleteErr != nil {
					return deleteErr
				}

				if deleted {
					o.Println("deleted 1 record(s)")
				} else {
					o.Println("deleted 0 record(s)")
				}

				return nil
			}

			n, err := db.DeleteAll(ctx, pred)
			if err != nil {
				return err
			}

			o.Printf("deleted %d record(s)\n", n)

			return nil
		},
	}
}
