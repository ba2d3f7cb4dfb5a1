package cli

import (
	"fmt"
	"io"
)

// IO is the output sink for a command invocation. Normal output goes to
// stdout; warnings collect separately and surface on stderr twice, once
// before the first line of output and once after the last, so they stay
// visible when stdout is piped through head or tail.
type IO struct {
	stdout   io.Writer
	stderr   io.Writer
	notes    []string
	preamble bool
}

// NewIO wires an IO to the given writers.
func NewIO(out, errOut io.Writer) *IO {
	return &IO{stdout: out, stderr: errOut}
}

// Warn records a non-fatal problem. The command still produces its
// normal output, but the process exits non-zero.
func (o *IO) Warn(issue string, detail string) {
	o.notes = append(o.notes, issue+": "+detail)
}

// Println writes a line to stdout, emitting any pending warnings first.
func (o *IO) Println(a ...any) {
	o.preambleOnce()

	_, _ = fmt.Fprintln(o.stdout, a...)
}

// Printf writes formatted output to stdout, emitting any pending
// warnings first.
func (o *IO) Printf(format string, a ...any) {
	o.preambleOnce()

	_, _ = fmt.Fprintf(o.stdout, format, a...)
}

// ErrPrintln writes a line to stderr.
func (o *IO) ErrPrintln(a ...any) {
	_, _ = fmt.Fprintln(o.stderr, a...)
}

// Finish emits the trailing copy of the warnings and returns the exit
// code: 1 when any warning was recorded, 0 otherwise.
func (o *IO) Finish() int {
	o.preambleOnce() // a command may warn without ever printing

	o.dumpNotes()

	if len(o.notes) > 0 {
		return 1
	}

	return 0
}

// preambleOnce prints the leading copy of the warnings before the first
// stdout write.
func (o *IO) preambleOnce() {
	if o.preamble {
		return
	}

	o.preamble = true

	o.dumpNotes()
}

func (o *IO) dumpNotes() {
	for _, note := range o.notes {
		_, _ = fmt.Fprintln(o.stderr, "warning:", note)
	}
}
