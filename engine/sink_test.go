package engine

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	submitted = time.Unix(1700000000, 5000)
	completed = time.Unix(1700000001, 123456000)
)

func TestResultString(t *testing.T) {
	tests := []struct {
		name    string
		outcome Outcome
		want    string
	}{
		{"Balance", Outcome{Status: OutcomeBalance, Balance: 0}, "3 BAL 0 TIME 1700000000.000005 1700000001.123456"},
		{"Committed", Outcome{Status: OutcomeCommitted}, "3 OK TIME 1700000000.000005 1700000001.123456"},
		{"Aborted", Outcome{Status: OutcomeAborted, Account: 1}, "3 ISF 1 TIME 1700000000.000005 1700000001.123456"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Result{RequestID: 3, Outcome: tt.outcome, SubmittedAt: submitted, CompletedAt: completed}
			assert.Equal(t, tt.want, r.String())
		})
	}
}

func TestFormatTimestamp(t *testing.T) {
	assert.Equal(t, "12.000000", FormatTimestamp(time.Unix(12, 0)))
	assert.Equal(t, "12.000999", FormatTimestamp(time.Unix(12, 999999)))
	assert.Equal(t, "12.999999", FormatTimestamp(time.Unix(12, 999999999)))
}

type closingBuffer struct {
	bytes.Buffer
	closed bool
}

func (b *closingBuffer) Close() error {
	b.closed = true
	return nil
}

func TestTextSinkWritesLines(t *testing.T) {
	buf := &closingBuffer{}
	sink := NewTextSink(buf)

	require.NoError(t, sink.Write(Result{RequestID: 1, Outcome: Outcome{Status: OutcomeCommitted}, SubmittedAt: submitted, CompletedAt: completed}))
	require.NoError(t, sink.Write(Result{RequestID: 2, Outcome: Outcome{Status: OutcomeAborted, Account: 4}, SubmittedAt: submitted, CompletedAt: completed}))
	require.NoError(t, sink.Close())

	assert.True(t, buf.closed)
	assert.Equal(t,
		"1 OK TIME 1700000000.000005 1700000001.123456\n"+
			"2 ISF 4 TIME 1700000000.000005 1700000001.123456\n",
		buf.String())

	assert.Equal(t, ErrSinkClosed, sink.Write(Result{RequestID: 3}))
	assert.NoError(t, sink.Close())
}

func TestTextSinkConcurrentLinesStayWhole(t *testing.T) {
	var buf bytes.Buffer
	sink := NewTextSink(&buf)

	const writers, perWriter = 8, 200
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				r := Result{
					RequestID:   w*perWriter + i + 1,
					Outcome:     Outcome{Status: OutcomeBalance, Balance: int64(i)},
					SubmittedAt: submitted,
					CompletedAt: completed,
				}
				if err := sink.Write(r); err != nil {
					t.Error(err)
				}
			}
		}(w)
	}
	wg.Wait()
	require.NoError(t, sink.Flush())

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, writers*perWriter)
	seen := make(map[string]bool)
	for _, line := range lines {
		fields := strings.Fields(line)
		require.Len(t, fields, 6, "line %q", line)
		assert.Equal(t, "BAL", fields[1])
		assert.Equal(t, "TIME", fields[3])
		seen[fields[0]] = true
	}
	assert.Len(t, seen, writers*perWriter)
}

func TestTextSinkLineWriterSharesLock(t *testing.T) {
	var buf bytes.Buffer
	sink := NewTextSink(&buf)
	acks := sink.LineWriter()

	const n = 3000
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 1; i <= n; i++ {
			if _, err := fmt.Fprintf(acks, "< ID %d\n", i); err != nil {
				t.Error(err)
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 1; i <= n; i++ {
			r := Result{RequestID: i, Outcome: Outcome{Status: OutcomeCommitted}, SubmittedAt: submitted, CompletedAt: completed}
			if err := sink.Write(r); err != nil {
				t.Error(err)
			}
		}
	}()
	wg.Wait()
	require.NoError(t, sink.Close())

	var ackLines, resultLines int
	for _, line := range strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n") {
		fields := strings.Fields(line)
		switch {
		case strings.HasPrefix(line, "< ID "):
			require.Len(t, fields, 3, "line %q", line)
			ackLines++
		default:
			require.Len(t, fields, 5, "line %q", line)
			assert.Equal(t, "OK", fields[1])
			resultLines++
		}
	}
	assert.Equal(t, n, ackLines)
	assert.Equal(t, n, resultLines)

	_, err := fmt.Fprintln(acks, "< ID 0")
	assert.Equal(t, ErrSinkClosed, err)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("no space left on device") }

func TestTextSinkCloseReportsLostLines(t *testing.T) {
	sink := NewTextSink(failingWriter{})
	require.NoError(t, sink.Write(Result{RequestID: 1, Outcome: Outcome{Status: OutcomeCommitted}}))
	assert.Error(t, sink.Close())
}

type errSink struct{ closeErr error }

func (s errSink) Write(Result) error { return fmt.Errorf("write failed") }
func (s errSink) Close() error { return s.closeErr }

func TestMultiSink(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	m := MultiSink{a, errSink{closeErr: errors.New("close failed")}, b}

	err := m.Write(Result{RequestID: 9})
	require.Error(t, err)
	assert.Len(t, a.Results(), 1)
	assert.Len(t, b.Results(), 1, "later sinks still receive the result")

	require.Error(t, m.Close())
	assert.True(t, a.closed)
	assert.True(t, b.closed)

	assert.NoError(t, MultiSink{a, b}.Write(Result{RequestID: 10}))
}
