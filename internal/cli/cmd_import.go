package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	flag "github.com/spf13/pflag"
)

func (a *app) cmdImport() *Command {
	flags := flag.NewFlagSet("import", flag.ContinueOnError)

	return &Command{
		Flags: flags,
		Usage: "import <table> [file|-]",
		Short: "Insert NDJSON records in one transaction",
		Long: `Read newline-delimited JSON objects from a file (or stdin with "-")
and insert them atomically: either every record lands or none do.

  luxdb import users fixtures.ndjson
  cat fixtures.ndjson | luxdb import users -`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) < 1 {
				return errTableNameRequired
			}

			source := "-"
			if len(args) > 1 {
				source = args[1]
			}

			records, err := a.readImportRecords(source)
			if err != nil {
				return err
			}

			if len(records) == 0 {
				o.Println("nothing to import")

				return nil
			}

			db, err := OpenTable(a.cfg, a.log, args[0])
			if err != nil {
				return err
			}

			defer func() { _ = db.Close() }()

			tx, err := db.Begin(ctx)
			if err != nil {
				return err
			}

			err = tx.Insert(records...)
			if err != nil {
				rollbackErr := tx.Rollback()

				return errors.Join(err, rollbackErr)
			}

			err = tx.Commit(ctx)
			if err != nil {
				return err
			}

			o.Printf("imported %d record(s)\n", len(records))

			return nil
		},
	}
}

// readImportRecords reads NDJSON from a file or the process stdin.
// Blank lines and lines starting with # are skipped.
func (a *app) readImportRecords(source string) ([]Record, error) {
	var reader io.Reader

	if source == "-" {
		reader = a.in
	} else {
		f, err := os.Open(source)
		if err != nil {
			return nil, fmt.Errorf("open import file: %w", err)
		}

		defer func() { _ = f.Close() }()

		reader = f
	}

	var records []Record

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		rec, err := parseRecord(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}

		records = append(records, rec)
	}

	err := scanner.Err()
	if err != nil {
		return nil, fmt.Errorf("read import source: %w", err)
	}

	return records, nil
}
