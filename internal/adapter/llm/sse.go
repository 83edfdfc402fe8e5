package llm

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"

	"agentforge/internal/domain"
)

// doneSentinel terminates an SSE stream on OpenAI-compatible APIs.
var doneSentinel = []byte("[DONE]")

// parseSSEStream reads server-sent events from body and converts each event's
// data payload into a StreamDelta using the provider-specific parseRecord
// function. Events are record-based: consecutive data lines accumulate until
// a blank line dispatches the record, with multi-line payloads joined by a
// newline. Comment lines and non-data fields are ignored.
//
// Protocol violations — an unparseable data payload, or the body ending in
// the middle of a record — surface as a final delta carrying
// domain.ErrStreamProtocol in Err. The channel is closed when the stream
// ends, an error is emitted, or ctx is cancelled.
func parseSSEStream(ctx context.Context, body io.ReadCloser, parseRecord func(data []byte) (*domain.StreamDelta, error)) <-chan domain.StreamDelta {
	ch := make(chan domain.StreamDelta, 16)
	go func() {
		defer close(ch)
		defer body.Close()

		emit := func(delta domain.StreamDelta) bool {
			select {
			case ch <- delta:
				return true
			case <-ctx.Done():
				return false
			}
		}
		fail := func(err error) {
			emit(domain.StreamDelta{Err: fmt.Errorf("%w: %v", domain.ErrStreamProtocol, err)})
		}

		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), maxResponseBody)

		var record [][]byte
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				return
			default:
			}

			line := scanner.Bytes()

			// A blank line dispatches the accumulated record.
			if len(line) == 0 {
				if len(record) == 0 {
					continue
				}
				data := bytes.Join(record, []byte("\n"))
				record = record[:0]

				if bytes.Equal(data, doneSentinel) {
					emit(domain.StreamDelta{Done: true})
					return
				}

				delta, err := parseRecord(data)
				if err != nil {
					fail(fmt.Errorf("malformed event payload: %v", err))
					return
				}
				if delta == nil {
					continue
				}
				if !emit(*delta) {
					return
				}
				continue
			}

			// Comments keep the connection alive; other fields (event, id,
			// retry) carry nothing we use.
			if line[0] == ':' {
				continue
			}
			if !bytes.HasPrefix(line, []byte("data:")) {
				continue
			}
			value := bytes.TrimPrefix(line, []byte("data:"))
			if len(value) > 0 && value[0] == ' ' {
				value = value[1:]
			}
			// Copy out of the scanner's reusable buffer.
			record = append(record, append([]byte(nil), value...))
		}

		if err := scanner.Err(); err != nil {
			fail(fmt.Errorf("read stream: %v", err))
			return
		}
		// EOF inside a record means the upstream connection was cut mid-event.
		if len(record) > 0 {
			fail(fmt.Errorf("stream ended mid-record"))
		}
	}()
	return ch
}
