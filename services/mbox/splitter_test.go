package mbox

import (
	"bufio"
	"io"
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func splitterOver(stream string) *Splitter {
	return &Splitter{stdout: bufio.NewReader(strings.NewReader(stream))}
}

func TestNextSplitsOnSeparator(t *testing.T) {
	stream := "From: a@example.com\n\nfirst message\n" + separator + "\n" +
		"From: b@example.com\n\nsecond message\n" + separator + "\n"
	s := splitterOver(stream)

	first, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "From: a@example.com\n\nfirst message\n", string(first))

	second, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "From: b@example.com\n\nsecond message\n", string(second))

	_, err = s.Next()
	assert.Equal(t, io.EOF, err)
}

func TestNextHandlesTruncatedStream(t *testing.T) {
	s := splitterOver("From: a@example.com\n\ncut off mid-messa")

	msg, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "From: a@example.com\n\ncut off mid-messa", string(msg))

	_, err = s.Next()
	assert.Equal(t, io.EOF, err)
}

func TestNextEmptyStream(t *testing.T) {
	s := splitterOver("")
	_, err := s.Next()
	assert.Equal(t, io.EOF, err)
}

func TestSeparatorIsImplausible(t *testing.T) {
	assert.Len(t, separator, 15*50)
	assert.NotContains(t, separator, "\n")
}

func TestCloseReapsAbandonedProcess(t *testing.T) {
	cmd := exec.Command("/bin/sh", "-c", "sleep 60")
	out, err := cmd.StdoutPipe()
	require.NoError(t, err)
	require.NoError(t, cmd.Start())

	s := &Splitter{cmd: cmd, stdout: bufio.NewReader(out)}
	s.Close()

	// A reaped process has its state recorded.
	require.NotNil(t, cmd.ProcessState)

	// A second Close and a Close without a process are no-ops.
	s.Close()
	splitterOver("").Close()
}
