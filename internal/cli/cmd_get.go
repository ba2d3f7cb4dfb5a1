package cli

import (
	"context"

	flag "github.com/spf13/pflag"
)

func (a *app) cmdGet() *Command {
	flags := flag.NewFlagSet("get", flag.ContinueOnError)
	where := flags.StringArray("where", nil, "Filter expression (field<op>value), repeatable")
	fields := flags.StringSlice("fields", nil, "Project records to these fields")
	limit := flags.Int("limit", 0, "Maximum records to print (0 = all)")
	count := flags.Bool("count", false, "Print only the number of matches")

	return &Command{
		Flags: flags,
		Usage: "get <table> [flags]",
		Short: "Print records, one JSON object per line",
		Long: `Print records from a table, one JSON object per line.

Filter expressions support =, !=, >, >=, <, <= and ~= (contains).
Values are parsed as JSON when possible, otherwise as strings:

  luxdb get users --where 'status=active' --where 'age>=30'`,
		Exec: func(_ context.Context, o *IO, args []string) error {
			if len(args) < 1 {
				return errTableNameRequired
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

			var matches []Record

			for _, rec := range db.GetAll() {
				if !pred(rec) {
					continue
				}

				matches = append(matches, rec)

				if *limit > 0 && len(matches) == *limit {
					break
				}
			}

			if *count {
				o.Println(len(matches))

				return nil
			}

			return printRecords(o, matches, *fields)
		},
	}
}
