package logger

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/term"
)

type destinationStdout struct {
	out      io.Writer
	useColor bool
	buf      bytes.Buffer
}

func newDestionationStdout(out io.Writer) destination {
	useColor := false
	if f, ok := out.(*os.File); ok {
		useColor = term.IsTerminal(int(f.Fd()))
	}

	return &destinationStdout{
		out:      out,
		useColor: useColor,
	}
}

func (d *destinationStdout) log(t time.Time, level Level, format string, args ...interface{}) {
	d.buf.Reset()
	writeTime(&d.buf, t, d.useColor)
	writeLevel(&d.buf, level, d.useColor)
	fmt.Fprintf(&d.buf, format, args...)
	d.buf.WriteByte('\n')
	d.out.Write(d.buf.Bytes()) //nolint:errcheck
}

func (d *destinationStdout) close() {
}
