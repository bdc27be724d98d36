package execution

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
)

const (
	// scannerInitialBufferSize is the initial buffer size for the line scanner.
	scannerInitialBufferSize = 64 * 1024 // 64KB

	// scannerMaxBufferSize is the longest line a reader accepts before reporting a read error.
	scannerMaxBufferSize = 1024 * 1024 // 1MB
)

// StreamReader moves one pipe into one LineQueue. All outcomes, including read
// failures, are expressed as queue content: lines, at most one synthetic error
// line, and exactly one end-of-stream marker.
type StreamReader struct {
	stream Stream
	src    io.Reader
	queue  *LineQueue
	done   chan struct{}
}

// NewStreamReader prepares a reader; Start launches its goroutine.
func NewStreamReader(stream Stream, src io.Reader, queue *LineQueue) *StreamReader {
	return &StreamReader{
		stream: stream,
		src:    src,
		queue:  queue,
		done:   make(chan struct{}),
	}
}

// Start runs the reader in its own goroutine. wg, when non-nil, is marked done
// when the reader exits.
func (r *StreamReader) Start(wg *sync.WaitGroup) {
	if wg != nil {
		wg.Add(1)
	}
	go func() {
		if wg != nil {
			defer wg.Done()
		}
		r.run()
	}()
}

// Done is closed once the reader has pushed its end-of-stream marker and exited.
func (r *StreamReader) Done() <-chan struct{} {
	return r.done
}

func (r *StreamReader) run() {
	defer close(r.done)
	defer r.queue.Close()

	scanner := bufio.NewScanner(r.src)
	scanner.Buffer(make([]byte, 0, scannerInitialBufferSize), scannerMaxBufferSize)
	scanner.Split(scanUniversalLines)

	index := 0
	for scanner.Scan() {
		r.queue.Push(Line{Stream: r.stream, Text: sanitize(scanner.Text()), Index: index})
		index++
	}

	err := scanner.Err()
	if err == nil || isClosedPipe(err) {
		return
	}
	readErr := &StreamReadError{Stream: r.stream, Err: err}
	r.queue.Push(Line{Stream: r.stream, Text: readErr.Error(), Index: index})

	// Keep the pipe drained so the child never blocks on a full pipe buffer.
	_, _ = io.Copy(io.Discard, r.src)
}

// scanUniversalLines splits on "\n", "\r\n" and a lone "\r", dropping the
// terminator. A final line without terminator is returned at EOF.
func scanUniversalLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\n' {
			return i + 1, data[:i], nil
		}
		if i+1 < len(data) {
			if data[i+1] == '\n' {
				return i + 2, data[:i], nil
			}
			return i + 1, data[:i], nil
		}
		if !atEOF {
			// A trailing '\r' may be the first half of "\r\n".
			return 0, nil, nil
		}
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func sanitize(s string) string {
	return strings.ToValidUTF8(s, "�")
}

// isClosedPipe reports errors caused by the read end being closed after the
// process was reaped. These end the stream like EOF does.
func isClosedPipe(err error) bool {
	return errors.Is(err, os.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}
