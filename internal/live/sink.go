// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package live

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"time"
)

// FileSink records scheduled playback into a WAV file. Terminals have no
// speaker API, so the live conversation's model audio lands on disk where
// the user can play it with any audio player. Gaps between scheduled starts
// become silence so the recording preserves conversational pacing.
//
// Audio is 16-bit little-endian mono PCM, the wire format live connections
// deliver.
type FileSink struct {
	mu         sync.Mutex
	path       string
	f          *os.File
	sampleRate int
	dataLen    int
	end        time.Time
	stopped    bool
}

// NewFileSink creates a sink that records to path. The file is created on
// the first PlayAt call, so an unused sink leaves nothing behind.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

// Path returns the recording destination.
func (s *FileSink) Path() string {
	return s.path
}

// PlayAt appends pcm to the recording at its scheduled position.
func (s *FileSink) PlayAt(pcm []byte, sampleRate int, start time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || len(pcm) == 0 {
		return
	}

	if s.f == nil {
		if err := s.open(sampleRate); err != nil {
			return
		}
		s.end = start
	}

	// A later start than the current tail means the model paused; keep the
	// pause in the recording.
	if gap := start.Sub(s.end); gap > 0 {
		silence := make([]byte, pcmBytes(gap, s.sampleRate))
		s.write(silence)
	}

	s.write(pcm)
	s.end = start.Add(pcmDuration(len(pcm), sampleRate))
}

// Stop finalizes the WAV header and closes the file. Safe to call more than
// once and before any audio arrived.
func (s *FileSink) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	if s.f == nil {
		return
	}
	s.patchHeader()
	s.f.Close()
	s.f = nil
}

// open creates the file and writes a provisional WAV header. The size fields
// are patched in Stop once the data length is known.
func (s *FileSink) open(sampleRate int) error {
	f, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("create recording: %w", err)
	}
	s.f = f
	s.sampleRate = sampleRate
	s.dataLen = 0
	// The provisional header goes through Write so PCM data lands after it;
	// Stop patches the size fields in place.
	hdr := s.headerBytes(0)
	_, err = f.Write(hdr[:])
	return err
}

func (s *FileSink) headerBytes(dataLen int) [44]byte {
	var hdr [44]byte
	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(36+dataLen))
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16) // PCM chunk size
	binary.LittleEndian.PutUint16(hdr[20:22], 1)  // PCM format
	binary.LittleEndian.PutUint16(hdr[22:24], 1)  // mono
	binary.LittleEndian.PutUint32(hdr[24:28], uint32(s.sampleRate))
	binary.LittleEndian.PutUint32(hdr[28:32], uint32(s.sampleRate*2)) // byte rate
	binary.LittleEndian.PutUint16(hdr[32:34], 2)                      // block align
	binary.LittleEndian.PutUint16(hdr[34:36], 16)                     // bits per sample
	copy(hdr[36:40], "data")
	binary.LittleEndian.PutUint32(hdr[40:44], uint32(dataLen))
	return hdr
}

func (s *FileSink) write(pcm []byte) {
	if _, err := s.f.Write(pcm); err != nil {
		return
	}
	s.dataLen += len(pcm)
}

func (s *FileSink) patchHeader() {
	hdr := s.headerBytes(s.dataLen)
	s.f.WriteAt(hdr[:], 0)
}

// pcmBytes converts a duration to an even 16-bit mono PCM byte count.
func pcmBytes(d time.Duration, sampleRate int) int {
	if d <= 0 || sampleRate <= 0 {
		return 0
	}
	samples := int(d * time.Duration(sampleRate) / time.Second)
	return samples * 2
}
