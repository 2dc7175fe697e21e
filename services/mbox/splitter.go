package mbox

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
)

// separator is long and implausible enough to never occur in real
// mail. formail appends it after each message so the stream can be
// cut back apart here.
var separator = strings.Repeat("ABCARCHBREAK123", 50)

// Splitter yields the individual messages of an mbox file. Naive
// From-line splitting gets enough malformed mailboxes wrong that
// the actual splitting is delegated to formail, which has seen
// every mbox quirk in existence.
type Splitter struct {
	cmd    *exec.Cmd
	stdout *bufio.Reader
	stderr bytes.Buffer
	done   bool
	reaped bool
}

// NewSplitter starts the formail pipeline over the given mbox file.
// Files ending in .gz are decompressed on the fly. Call Wait after
// draining to reap the subprocess and check its exit status.
func NewSplitter(ctx context.Context, path string) (*Splitter, error) {
	cat := "cat"
	if strings.HasSuffix(path, ".gz") {
		cat = "zcat"
	}
	pipeline := fmt.Sprintf("%s %s | formail -s /bin/sh -c 'cat && echo %s'",
		cat, shellQuote(path), separator)

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", pipeline)
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "creating mbox pipe")
	}

	s := &Splitter{cmd: cmd, stdout: bufio.NewReader(out)}
	cmd.Stderr = &s.stderr
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(err, "starting mbox splitter")
	}
	return s, nil
}

// Next returns the next message, or io.EOF once the stream is
// drained.
func (s *Splitter) Next() ([]byte, error) {
	if s.done {
		return nil, io.EOF
	}

	var buf bytes.Buffer
	for {
		line, err := s.stdout.ReadBytes('\n')
		if len(line) > 0 {
			if string(bytes.TrimRight(line, "\r\n")) == separator {
				return buf.Bytes(), nil
			}
			buf.Write(line)
		}
		if err != nil {
			s.done = true
			if buf.Len() == 0 {
				return nil, io.EOF
			}
			// Trailing data without a separator, probably a
			// truncated stream. Hand it over and let the parser
			// decide.
			return buf.Bytes(), nil
		}
	}
}

// Wait reaps the subprocess and returns its exit code along with
// anything it wrote to stderr. A nonzero code means the mbox was
// not fully read and the run should be treated as failed.
func (s *Splitter) Wait() (int, string) {
	s.reaped = true
	err := s.cmd.Wait()
	if err == nil {
		return 0, s.stderr.String()
	}
	if ee, ok := err.(*exec.ExitError); ok {
		return ee.ExitCode(), s.stderr.String()
	}
	return -1, s.stderr.String()
}

// Close kills and reaps the subprocess if Wait has not run. Callers
// that bail out mid-stream must not leave formail blocked on a full
// pipe. Safe to call after Wait.
func (s *Splitter) Close() {
	if s.cmd == nil || s.reaped {
		return
	}
	s.reaped = true
	_ = s.cmd.Process.Kill()
	_ = s.cmd.Wait()
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
