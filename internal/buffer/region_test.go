package buffer

import (
	"bytes"
	"errors"
	"testing"

	"github.com/danmuck/packetwire/internal/testutil/testlog"
)

func TestNewRegionStartsWritableAndEmpty(t *testing.T) {
	testlog.Start(t)
	r := New(16)
	defer r.Release()

	if r.Mode() != WriteMode {
		t.Fatalf("unexpected mode: %s", r.Mode())
	}
	if r.Position() != 0 || r.Limit() != 16 || r.Cap() != 16 {
		t.Fatalf("unexpected cursors: %s", r)
	}
	if r.Buffered() != 0 {
		t.Fatalf("expected empty region, buffered=%d", r.Buffered())
	}
}

func TestWriteStopsAtCapacity(t *testing.T) {
	testlog.Start(t)
	r := New(4)
	defer r.Release()

	n, err := r.Write([]byte{1, 2, 3, 4, 5, 6})
	if !errors.Is(err, ErrRegionFull) {
		t.Fatalf("expected ErrRegionFull, got %v", err)
	}
	if n != 4 {
		t.Fatalf("expected 4 bytes written, got %d", n)
	}
	if r.Remaining() != 0 {
		t.Fatalf("expected no free space, remaining=%d", r.Remaining())
	}
}

func TestEnterDrainModeFreezesLimit(t *testing.T) {
	testlog.Start(t)
	r := New(8)
	defer r.Release()

	if _, err := r.Write([]byte("abc")); err != nil {
		t.Fatalf("write: %v", err)
	}
	r.EnterDrainMode()
	if r.Mode() != DrainMode || r.Position() != 0 || r.Limit() != 3 {
		t.Fatalf("unexpected drain cursors: %s", r)
	}
	if got := string(r.Peek(3)); got != "abc" {
		t.Fatalf("peek mismatch: %q", got)
	}
	if r.Peek(4) != nil {
		t.Fatalf("peek beyond limit should return nil")
	}
	if got := string(r.Next(2)); got != "ab" {
		t.Fatalf("next mismatch: %q", got)
	}
	if r.Remaining() != 1 {
		t.Fatalf("expected 1 unread byte, got %d", r.Remaining())
	}
	if _, err := r.Write([]byte("x")); !errors.Is(err, ErrWrongMode) {
		t.Fatalf("expected ErrWrongMode, got %v", err)
	}
}

func TestRestoreWriteModeCompactsUnreadBytes(t *testing.T) {
	testlog.Start(t)
	r := New(8)
	defer r.Release()

	if _, err := r.Write([]byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}
	r.EnterDrainMode()
	r.Next(2)
	r.RestoreWriteMode()

	if r.Mode() != WriteMode {
		t.Fatalf("unexpected mode: %s", r.Mode())
	}
	if r.Position() != 3 || r.Limit() != 8 {
		t.Fatalf("unexpected cursors after compact: %s", r)
	}
	if _, err := r.Write([]byte("!")); err != nil {
		t.Fatalf("write after compact: %v", err)
	}
	r.EnterDrainMode()
	if got := string(r.Unread()); got != "llo!" {
		t.Fatalf("compacted bytes mismatch: %q", got)
	}
	r.RestoreWriteMode()
}

func TestRestoreWriteModeClearsWhenFullyConsumed(t *testing.T) {
	testlog.Start(t)
	r := New(8)
	defer r.Release()

	if _, err := r.Write([]byte("done")); err != nil {
		t.Fatalf("write: %v", err)
	}
	r.EnterDrainMode()
	r.Next(4)
	r.RestoreWriteMode()

	if r.Position() != 0 || r.Limit() != 8 || r.Buffered() != 0 {
		t.Fatalf("expected cleared region: %s", r)
	}
}

func TestRestoreWriteModeOnEmptyRegion(t *testing.T) {
	testlog.Start(t)
	r := New(8)
	defer r.Release()

	r.EnterDrainMode()
	if r.HasRemaining() {
		t.Fatalf("empty region should have nothing to drain")
	}
	r.RestoreWriteMode()
	if r.Position() != 0 || r.Limit() != 8 {
		t.Fatalf("unexpected cursors: %s", r)
	}
}

func TestWritableAndCommit(t *testing.T) {
	testlog.Start(t)
	r := New(8)
	defer r.Release()

	if _, err := r.Write([]byte{0xaa}); err != nil {
		t.Fatalf("write: %v", err)
	}
	w := r.Writable()
	if len(w) != 7 {
		t.Fatalf("expected 7 writable bytes, got %d", len(w))
	}
	copy(w, []byte{0xbb, 0xcc})
	r.Commit(2)

	r.EnterDrainMode()
	if !bytes.Equal(r.Unread(), []byte{0xaa, 0xbb, 0xcc}) {
		t.Fatalf("unexpected unread bytes: %x", r.Unread())
	}
	if r.Writable() != nil {
		t.Fatalf("writable should be nil in drain mode")
	}
	r.RestoreWriteMode()
}

func TestCommitOutOfRangePanics(t *testing.T) {
	testlog.Start(t)
	r := New(4)
	defer r.Release()
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	r.Commit(5)
}

func TestModeSwitchMisusePanics(t *testing.T) {
	testlog.Start(t)
	r := New(4)
	defer r.Release()

	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("RestoreWriteMode in write mode should panic")
			}
		}()
		r.RestoreWriteMode()
	}()

	r.EnterDrainMode()
	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("EnterDrainMode in drain mode should panic")
			}
		}()
		r.EnterDrainMode()
	}()
	r.RestoreWriteMode()
}

func TestReleaseIsIdempotent(t *testing.T) {
	testlog.Start(t)
	r := New(4)
	r.Release()
	r.Release()
	if !r.Released() {
		t.Fatalf("expected released region")
	}
	if _, err := r.Write([]byte{1}); !errors.Is(err, ErrReleased) {
		t.Fatalf("expected ErrReleased, got %v", err)
	}
}
