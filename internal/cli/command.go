package cli

import (
	"context"
	"errors"
	"strings"

	flag "github.com/spf13/pflag"
)

// Command is one luxdb subcommand: a flag set, help text, and the
// function that does the work.
type Command struct {
	// Flags defines command-specific flags.
	// The FlagSet name is not used - command identity comes from Usage.
	Flags *flag.FlagSet

	// Usage is the freeform usage string shown after "luxdb" in help.
	// Includes the command name and arguments/flags.
	// Examples: "get <table> [flags]", "insert <table> <json>..."
	Usage string

	// Short is a one-line description for the global help listing.
	Short string

	// Long is the full description shown in command help.
	// If empty, Short is used instead.
	Long string

	// Exec runs the command after flags are parsed.
	Exec func(ctx context.Context, o *IO, args []string) error
}

// Name returns the command name (first word of Usage).
func (c *Command) Name() string {
	name, _, _ := strings.Cut(c.Usage, " ")

	return name
}

// helpText renders the full help for "luxdb <cmd> --help".
func (c *Command) helpText() string {
	var b strings.Builder

	b.WriteString("Usage: luxdb ")
	b.WriteString(c.Usage)
	b.WriteString("\n\n")

	if c.Long != "" {
		b.WriteString(c.Long)
	} else {
		b.WriteString(c.Short)
	}

	b.WriteString("\n")

	if c.Flags != nil && c.Flags.HasFlags() {
		b.WriteString("\nFlags:\n")
		b.WriteString(c.Flags.FlagUsages())
	}

	return strings.TrimRight(b.String(), "\n")
}

// Run parses flags and executes the command. Returns exit code.
// Handles error printing internally for consistent output ordering.
func (c *Command) Run(ctx context.Context, o *IO, args []string) int {
	c.Flags.SetOutput(&strings.Builder{}) // discard pflag output

	err := c.Flags.Parse(args)

	switch {
	case errors.Is(err, flag.ErrHelp):
		o.Println(c.helpText())

		return 0

	case err != nil:
		o.ErrPrintln("error:", err)
		o.ErrPrintln()
		o.ErrPrintln(c.helpText())

		return 1
	}

	err = c.Exec(ctx, o, c.Flags.Args())
	if err != nil {
		o.ErrPrintln("error:", err)

		return 1
	}

	return o.Finish()
}
