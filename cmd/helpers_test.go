// File: cmd/helpers_test.go
package cmd

import (
	"bytes"
	"io"
	"strings"
	"sync"
)

// syncBuffer is a bytes.Buffer safe for the concurrent writes of the agent
// goroutine and the command.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newStringReader(s string) io.Reader {
	return strings.NewReader(s)
}
