package cli

import (
	"context"
	"errors"

	flag "github.com/spf13/pflag"
)

var errWhereRequired = errors.New("at least one --where expression required (use --all to touch every record)")

func (a *app) cmdUpdate() *Command {
	flags := flag.NewFlagSet("update", flag.ContinueOnError)
	where := flags.StringArray("where", nil, "Filter expression (field<op>value), repeatable")
	first := flags.Bool("first", false, "Patch only the first match")
	all := flags.Bool("all", false, "Allow patching without a filter")

	return &Command{
		Flags: flags,
		Usage: "update <table> <patch> [flags]",
		Short: "Patch matching records",
		Long: `Shallow-merge a JSON patch into every matching record:

  luxdb update users '{"status": "inactive"}' --where 'status=active'

Fields present in the patch replace the record's fields; everything
else is preserved. Requires --where unless --all is given.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) < 1 {
				return errTableNameRequired
			}

			if len(args) < 2 {
				return errors.New("patch JSON required")
			}

			patch, err := parseRecord(args[1])
			if err != nil {
				return err
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
				updated, updateErr := db.UpdateOne(ctx, pred, patch)
				if updateErr != nil {
					return updateErr
				}

				if !updated {
					o.Println("updated 0 record(s)")

					return nil
				}

				o.Println("updated 1 record(s)")

				return nil
			}

			n, err := db.UpdateAll(ctx, pred, patch)
			if err != nil {
				return err
			}

			o.Printf("updated %d record(s)\n", n)

			return nil
		},
	}
}
