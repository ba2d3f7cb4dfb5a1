// luxdb-shell is an interactive REPL for a single luxdb table.
//
// Usage:
//
//	luxdb-shell [opts] <table>
//
// Options:
//
//	-C, --cwd         Run as if started in the given directory
//	--data-dir        Override the data directory
//
// Commands (in REPL):
//
//	all [limit]                    List records
//	find <where>...                List matching records
//	count [<where>...]             Count matching records
//	insert <json>...               Insert records
//	update <where> <patch-json>    Patch matching records
//	del <where>...                 Delete matching records
//	begin                          Start a transaction
//	commit / rollback              Finish the open transaction
//	recover                        Replay pending log entries
//	stat                           Show table statistics
//	clear                          Remove every record
//	help                           Show this help
//	exit / quit / q                Exit
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/abubalo/luxdb/internal/cli"
	"github.com/abubalo/luxdb/pkg/luxdb"
	"github.com/peterh/liner"
)

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	fs := flag.NewFlagSet("luxdb-shell", flag.ContinueOnError)

	workDir := fs.StringP("cwd", "C", "", "run as if started in this directory")
	dataDir := fs.String("data-dir", "", "override the data directory")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: luxdb-shell [options] <table>\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}

		return err
	}

	if fs.NArg() < 1 {
		fs.Usage()

		return errors.New("missing table name")
	}

	environ := os.Environ()
	env := make(map[string]string, len(environ))

	for _, e := range environ {
		if k, v, ok := strings.Cut(e, "="); ok {
			env[k] = v
		}
	}

	cfg, err := cli.LoadConfig(cli.LoadConfigInput{
		WorkDirOverride: *workDir,
		DataDirOverride: *dataDir,
		Env:             env,
	})
	if err != nil {
		return err
	}

	table := fs.Arg(0)

	db, err := cli.OpenTable(cfg, slog.New(slog.DiscardHandler), table)
	if err != nil {
		return err
	}

	defer func() { _ = db.Close() }()

	repl := &REPL{db: db, table: table}

	return repl.Run()
}

// REPL is the interactive command loop over one table.
type REPL struct {
	db    *luxdb.DB[cli.Record]
	table string
	tx    *luxdb.Tx[cli.Record]
	liner *liner.State
}

var replCommands = []string{
	"all", "find", "count", "insert", "update", "del", "delete",
	"begin", "commit", "rollback", "recover", "stat", "clear",
	"help", "exit", "quit",
}

// historyFile returns the path to the history file.
func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".luxdb_history")
}

// Run starts the REPL loop.
func (r *REPL) Run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(func(line string) []string {
		var matches []string

		for _, cmd := range replCommands {
			if strings.HasPrefix(cmd, strings.ToLower(line)) {
				matches = append(matches, cmd)
			}
		}

		return matches
	})

	if f, err := os.Open(historyFile()); err == nil {
		_, _ = r.liner.ReadHistory(f)
		_ = f.Close()
	}

	fmt.Printf("luxdb-shell - table %q (%d records)\n", r.table, r.db.Count())
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	for {
		line, err := r.liner.Prompt(r.prompt())
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Println("\nBye!")

				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		r.liner.AppendHistory(line)

		if r.dispatch(line) {
			break
		}
	}

	r.saveHistory()

	return nil
}

func (r *REPL) prompt() string {
	if r.tx != nil {
		return r.table + " (tx)> "
	}

	return r.table + "> "
}

// dispatch runs one REPL line. Returns true when the loop should exit.
func (r *REPL) dispatch(line string) bool {
	parts := strings.Fields(line)
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "exit", "quit", "q":
		if r.tx != nil {
			fmt.Println("rolling back open transaction")

			_ = r.tx.Rollback()
		}

		fmt.Println("Bye!")

		return true

	case "help", "?":
		r.printHelp()

	case "all", "ls", "list":
		r.cmdAll(args)

	case "find":
		r.cmdFind(args)

	case "count":
		r.cmdCount(args)

	case "insert", "put":
		r.cmdInsert(line)

	case "update":
		r.cmdUpdate(args, line)

	case "del", "delete":
		r.cmdDelete(args)

	case "begin":
		r.cmdBegin()

	case "commit":
		r.cmdCommit()

	case "rollback":
		r.cmdRollback()

	case "recover":
		r.cmdRecover()

	case "stat", "info":
		r.cmdStat()

	case "clear":
		r.cmdClear()

	case "cls":
		fmt.Print("\033[H\033[2J")

	default:
		fmt.Printf("Unknown command: %s (type 'help' for commands)\n", cmd)
	}

	return false
}

func (r *REPL) printHelp() {
	fmt.Println(`Commands:
  all [limit]                    List records
  find <where>...                List matching records (field<op>value)
  count [<where>...]             Count matching records
  insert <json>...               Insert records
  update <where> <patch-json>    Patch matching records
  del <where>...                 Delete matching records
  begin                          Start a transaction
  commit / rollback              Finish the open transaction
  recover                        Replay pending log entries
  stat                           Show table statistics
  clear                          Remove every record
  exit / quit / q                Exit`)
}

func (r *REPL) cmdAll(args []string) {
	limit := 0

	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 0 {
			fmt.Println("usage: all [limit]")

			return
		}

		limit = n
	}

	records := r.db.GetAll()
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	r.printRecords(records)
}

func (r *REPL) cmdFind(args []string) {
	if len(args) == 0 {
		fmt.Println("usage: find <where>...")

		return
	}

	pred, err := cli.ParseWhere(args)
	if err != nil {
		fmt.Println("error:", err)

		return
	}

	var matches []cli.Record

	for _, rec := range r.db.GetAll() {
		if pred(rec) {
			matches = append(matches, rec)
		}
	}

	r.printRecords(matches)
}

func (r *REPL) cmdCount(args []string) {
	pred, err := cli.ParseWhere(args)
	if err != nil {
		fmt.Println("error:", err)

		return
	}

	count := 0

	for _, rec := range r.db.GetAll() {
		if pred(rec) {
			count++
		}
	}

	fmt.Println(count)
}

// cmdInsert re-splits the raw line so JSON objects with spaces survive.
func (r *REPL) cmdInsert(line string) {
	_, rest, _ := strings.Cut(line, " ")

	records, err := splitJSONObjects(rest)
	if err != nil {
		fmt.Println("error:", err)

		return
	}

	if len(records) == 0 {
		fmt.Println("usage: insert <json>...")

		return
	}

	if r.tx != nil {
		err = r.tx.Insert(records...)
	} else {
		err = r.db.Insert(context.Background(), records...)
	}

	if err != nil {
		fmt.Println("error:", err)

		return
	}

	fmt.Printf("inserted %d record(s)\n", len(records))
}

func (r *REPL) cmdUpdate(args []string, line string) {
	if len(args) < 2 {
		fmt.Println("usage: update <where> <patch-json>")

		return
	}

	pred, err := cli.ParseWhere(args[:1])
	if err != nil {
		fmt.Println("error:", err)

		return
	}

	// The patch is everything after the where expression.
	idx := strings.Index(line, args[0])
	patchText := strings.TrimSpace(line[idx+len(args[0]):])

	var patch map[string]any

	err = json.Unmarshal([]byte(patchText), &patch)
	if err != nil {
		fmt.Println("error: invalid patch JSON:", err)

		return
	}

	if r.tx != nil {
		err = r.tx.Update(pred, patch)
		if err != nil {
			fmt.Println("error:", err)

			return
		}

		fmt.Println("staged update")

		return
	}

	n, err := r.db.UpdateAll(context.Background(), pred, patch)
	if err != nil {
		fmt.Println("error:", err)

		return
	}

	fmt.Printf("updated %d record(s)\n", n)
}

func (r *REPL) cmdDelete(args []string) {
	if len(args) == 0 {
		fmt.Println("usage: del <where>...")

		return
	}

	pred, err := cli.ParseWhere(args)
	if err != nil {
		fmt.Println("error:", err)

		return
	}

	if r.tx != nil {
		err = r.tx.Delete(pred)
		if err != nil {
			fmt.Println("error:", err)

			return
		}

		fmt.Println("staged delete")

		return
	}

	n, err := r.db.DeleteAll(context.Background(), pred)
	if err != nil {
		fmt.Println("error:", err)

		return
	}

	fmt.Printf("deleted %d record(s)\n", n)
}

func (r *REPL) cmdBegin() {
	if r.tx != nil {
		fmt.Println("transaction already open")

		return
	}

	tx, err := r.db.Begin(context.Background())
	if err != nil {
		fmt.Println("error:", err)

		return
	}

	r.tx = tx

	fmt.Println("transaction started; writes are staged until commit")
}

func (r *REPL) cmdCommit() {
	if r.tx == nil {
		fmt.Println("no open transaction")

		return
	}

	err := r.tx.Commit(context.Background())
	r.tx = nil

	if err != nil {
		fmt.Println("error:", err)

		return
	}

	fmt.Println("committed")
}

func (r *REPL) cmdRollback() {
	if r.tx == nil {
		fmt.Println("no open transaction")

		return
	}

	err := r.tx.Rollback()
	r.tx = nil

	if err != nil {
		fmt.Println("error:", err)

		return
	}

	fmt.Println("rolled back")
}

func (r *REPL) cmdRecover() {
	before := r.db.Count()

	err := r.db.Recover(context.Background())
	if err != nil {
		fmt.Println("error:", err)

		return
	}

	fmt.Printf("recovered: %d -> %d record(s)\n", before, r.db.Count())
}

func (r *REPL) cmdStat() {
	stats := r.db.Stats()

	fmt.Println("records:    ", stats.Records)
	fmt.Println("wal enabled:", stats.WALEnabled)
	fmt.Println("wal entries:", stats.WALEntries)
	fmt.Println("locked:     ", stats.Locked)
	fmt.Println("queue depth:", stats.QueueDepth)
}

func (r *REPL) cmdClear() {
	if r.tx != nil {
		fmt.Println("finish the open transaction first")

		return
	}

	err := r.db.Clear(context.Background())
	if err != nil {
		fmt.Println("error:", err)

		return
	}

	fmt.Println("cleared")
}

func (r *REPL) printRecords(records []cli.Record) {
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			fmt.Println("error:", err)

			return
		}

		fmt.Println(string(data))
	}

	fmt.Printf("(%d record(s))\n", len(records))
}

// splitJSONObjects decodes a stream of concatenated JSON objects.
func splitJSONObjects(text string) ([]cli.Record, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	dec := json.NewDecoder(strings.NewReader(text))

	var records []cli.Record

	for dec.More() {
		var rec cli.Record

		err := dec.Decode(&rec)
		if err != nil {
			return nil, fmt.Errorf("invalid JSON object: %w", err)
		}

		records = append(records, rec)
	}

	return records, nil
}

// saveHistory persists command history to disk.
func (r *REPL) saveHistory() {
	path := historyFile()
	if path == "" {
		return
	}

	f, err := os.Create(path)
	if err != nil {
		return
	}

	_, _ = r.liner.WriteHistory(f)
	_ = f.Close()
}
