// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"io"
	"strings"
	"testing"
)

func TestSSEReaderBasicEvents(t *testing.T) {
	input := "data: {\"a\":1}\n\ndata: {\"b\":2}\n\n"
	r := NewSSEReader(strings.NewReader(input))

	ev, err := r.ReadEvent()
	if err != nil {
		t.Fatal(err)
	}
	if string(ev) != `{"a":1}` {
		t.Fatalf("first event = %q", ev)
	}

	ev, err = r.ReadEvent()
	if err != nil {
		t.Fatal(err)
	}
	if string(ev) != `{"b":2}` {
		t.Fatalf("second event = %q", ev)
	}

	if _, err := r.ReadEvent(); err != io.EOF {
		t.Fatalf("want EOF, got %v", err)
	}
}

func TestSSEReaderMultiLineData(t *testing.T) {
	input := "data: line1\ndata: line2\n\n"
	r := NewSSEReader(strings.NewReader(input))

	ev, err := r.ReadEvent()
	if err != nil {
		t.Fatal(err)
	}
	if string(ev) != "line1\nline2" {
		t.Fatalf("event = %q", ev)
	}
}

func TestSSEReaderIgnoresOtherFields(t *testing.T) {
	input := ": comment\nevent: message\nid: 7\ndata: payload\n\n"
	r := NewSSEReader(strings.NewReader(input))

	ev, err := r.ReadEvent()
	if err != nil {
		t.Fatal(err)
	}
	if string(ev) != "payload" {
		t.Fatalf("event = %q", ev)
	}
}

func TestSSEReaderCRLFAndTrailingData(t *testing.T) {
	// Trailing data without a final blank line still flushes at EOF.
	input := "data: {\"x\":1}\r\n\r\ndata: tail"
	r := NewSSEReader(strings.NewReader(input))

	ev, err := r.ReadEvent()
	if err != nil {
		t.Fatal(err)
	}
	if string(ev) != `{"x":1}` {
		t.Fatalf("first event = %q", ev)
	}

	ev, err = r.ReadEvent()
	if err != nil {
		t.Fatal(err)
	}
	if string(ev) != "tail" {
		t.Fatalf("tail event = %q", ev)
	}
}

func TestSSEReaderOversizedEvent(t *testing.T) {
	input := "data: " + strings.Repeat("x", MaxEventSize+1) + "\n\n"
	r := NewSSEReader(strings.NewReader(input))

	if _, err := r.ReadEvent(); err == nil {
		t.Fatal("want size error")
	}
}
