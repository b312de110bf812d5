package tic

import (
	"bytes"
	"testing"
)

func TestAssemblerEndWithoutStartIsIgnored(t *testing.T) {
	a := NewAssembler(0)
	if frames := a.Feed([]byte("garbage\r\x03")); len(frames) != 0 {
		t.Fatalf("expected no frame before synchronisation, got %d", len(frames))
	}
	if a.Pending() {
		t.Fatalf("assembler should not hold an open frame")
	}
}

func TestAssemblerSingleChunkFrame(t *testing.T) {
	a := NewAssembler(0)
	frames := a.Feed([]byte("\x02abcdef\x03"))
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	if string(frames[0]) != "abcde" {
		t.Fatalf("frame = %q, want %q", frames[0], "abcde")
	}
}

func TestAssemblerFrameAcrossChunks(t *testing.T) {
	a := NewAssembler(0)
	if frames := a.Feed([]byte("\x02AAAA")); len(frames) != 0 {
		t.Fatalf("unexpected frame after first chunk")
	}
	if frames := a.Feed([]byte("MIDDLE")); len(frames) != 0 {
		t.Fatalf("unexpected frame after middle chunk")
	}
	frames := a.Feed([]byte("BBBB\x03"))
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	if want := "AAAAMIDDLEBBB"; string(frames[0]) != want {
		t.Fatalf("frame = %q, want %q", frames[0], want)
	}
}

func TestAssemblerEndThenStartInOneChunk(t *testing.T) {
	a := NewAssembler(0)
	a.Feed([]byte("\x02first"))
	frames := a.Feed([]byte("-tail\r\x03\x02second"))
	if len(frames) != 1 || string(frames[0]) != "first-tail" {
		t.Fatalf("frames = %q, want [first-tail]", frames)
	}
	if !a.Pending() {
		t.Fatalf("start marker should open a new frame")
	}
	frames = a.Feed([]byte("-end\r\x03"))
	if len(frames) != 1 || string(frames[0]) != "second-end" {
		t.Fatalf("frames = %q, want [second-end]", frames)
	}
}

func TestAssemblerStartDiscardsOpenFrame(t *testing.T) {
	a := NewAssembler(0)
	a.Feed([]byte("\x02stale"))
	a.Feed([]byte("xx\x02fresh"))
	frames := a.Feed([]byte("!\x03"))
	if len(frames) != 1 || string(frames[0]) != "fresh" {
		t.Fatalf("frames = %q, want [fresh]", frames)
	}
}

func TestAssemblerEndAtChunkStartDropsBufferedByte(t *testing.T) {
	a := NewAssembler(0)
	a.Feed([]byte("\x02payload\r"))
	frames := a.Feed([]byte("\x03"))
	if len(frames) != 1 || string(frames[0]) != "payload" {
		t.Fatalf("frames = %q, want [payload]", frames)
	}
}

func TestAssemblerEmptyFrame(t *testing.T) {
	a := NewAssembler(0)
	frames := a.Feed([]byte("\x02\x03"))
	if len(frames) != 1 || len(frames[0]) != 0 {
		t.Fatalf("frames = %q, want one empty frame", frames)
	}
}

func TestAssemblerByteAtATime(t *testing.T) {
	a := NewAssembler(0)
	stream := []byte("noise\x03\x02\nIINST 003 Z\r\x03\x02\nPAPP 00750 (\r\x03")
	var got [][]byte
	for _, b := range stream {
		got = append(got, a.Feed([]byte{b})...)
	}
	want := [][]byte{[]byte("\nIINST 003 Z"), []byte("\nPAPP 00750 (")}
	if len(got) != len(want) {
		t.Fatalf("got %d frames, want %d", len(got), len(want))
	}
	for i := range want {
		if !bytes.Equal(got[i], want[i]) {
			t.Errorf("frame %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestAssemblerFramesDoNotAliasInput(t *testing.T) {
	a := NewAssembler(0)
	chunk := []byte("\x02abc\r\x03")
	frames := a.Feed(chunk)
	chunk[1] = 'X'
	if string(frames[0]) != "abc" {
		t.Fatalf("frame changed with input buffer: %q", frames[0])
	}
}

func TestAssemblerOversizedFrameIsAbandoned(t *testing.T) {
	a := NewAssembler(8)
	a.Feed([]byte("\x020123456789"))
	if a.Pending() {
		t.Fatalf("oversized frame should be abandoned")
	}
	if frames := a.Feed([]byte("ab\x03")); len(frames) != 0 {
		t.Fatalf("expected no frame after abandon, got %q", frames)
	}
}
