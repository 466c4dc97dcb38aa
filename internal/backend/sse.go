// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
)

// MaxEventSize is the maximum allowed size for a single SSE event (64KB).
const MaxEventSize = 64 * 1024

// SSEReader parses Server-Sent Events from a response body. Every streaming
// provider speaks SSE with minor dialect differences; the reader handles the
// common framing and leaves payload interpretation to the caller.
type SSEReader struct {
	reader *bufio.Reader
}

// NewSSEReader creates an SSE reader over r.
func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{reader: bufio.NewReader(r)}
}

// ReadEvent reads the next event's data payload. Multi-line data fields are
// joined with newlines per the SSE spec. Returns io.EOF when the stream
// ends, flushing any pending data first.
func (s *SSEReader) ReadEvent() ([]byte, error) {
	var dataLines [][]byte
	var total int

	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				if len(dataLines) > 0 {
					return bytes.Join(dataLines, []byte("\n")), nil
				}
				return nil, io.EOF
			}
			return nil, err
		}

		line = bytes.TrimRight(line, "\r\n")

		// Empty line signals end of event.
		if len(line) == 0 {
			if len(dataLines) > 0 {
				return bytes.Join(dataLines, []byte("\n")), nil
			}
			continue
		}

		if bytes.HasPrefix(line, []byte("data:")) {
			data := bytes.TrimSpace(line[5:])
			total += len(data)
			if total > MaxEventSize {
				return nil, fmt.Errorf("SSE event too large: %d bytes", total)
			}
			dataLines = append(dataLines, data)
		}
		// Ignore other fields (event:, id:, retry:, comments).
	}
}
