package cli

import (
	"context"

	flag "github.com/spf13/pflag"
)

func (a *app) cmdInsert() *Command {
	flags := flag.NewFlagSet("insert", flag.ContinueOnError)

	return &Command{
		Flags: flags,
		Usage: "insert <table> <json>...",
		Short: "Insert records",
		Long: `Insert one record per JSON object argument:

  luxdb insert users '{"id": "u1", "name": "Ada"}'`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) < 1 {
				return errTableNameRequired
			}

			records := make([]Record, 0, len(args)-1)

			for _, arg := range args[1:] {
				rec, err := parseRecord(arg)
				if err != nil {
					return err
				}

				records = append(records, rec)
			}

			if len(records) == 0 {
				o.Println("nothing to insert")

				return nil
			}

			db, err := OpenTable(a.cfg, a.log, args[0])
			if err != nil {
				return err
			}

			defer func() { _ = db.Close() }()

			err = db.Insert(ctx, records...)
			if err != nil {
				return err
			}

			o.Printf("inserted %d record(s)\n", len(records))

			return nil
		},
	}
}
