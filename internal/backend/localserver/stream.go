// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package localserver

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
)

// streamReader handles line-by-line JSON parsing of a streaming chat
// response. Each line is one JSON object; the final one has done=true.
type streamReader struct {
	reader *bufio.Reader
}

func newStreamReader(r io.Reader) *streamReader {
	return &streamReader{reader: bufio.NewReader(r)}
}

// wireStreamLine is one NDJSON line of the chat stream.
type wireStreamLine struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error"`
}

// process reads the stream and hands each text delta to emit. Returning
// false from emit aborts the loop (consumer gone). Blocks until the stream
// completes, errors, or the context is cancelled.
func (s *streamReader) process(ctx context.Context, emit func(delta string) bool) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := s.reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF && len(line) == 0 {
				return nil
			}
			if err != io.EOF {
				return err
			}
			// Fall through to process a final unterminated line.
		}
		if len(line) == 0 {
			continue
		}

		var parsed wireStreamLine
		if jerr := json.Unmarshal(line, &parsed); jerr != nil {
			// Skip malformed lines.
			if err == io.EOF {
				return nil
			}
			continue
		}

		if parsed.Error != "" {
			return &ClientError{Type: ErrTypeInvalidResponse, Message: parsed.Error}
		}
		if parsed.Message.Content != "" {
			if !emit(parsed.Message.Content) {
				return nil
			}
		}
		if parsed.Done || err == io.EOF {
			return nil
		}
	}
}
