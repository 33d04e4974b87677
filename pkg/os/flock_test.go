package os

import (
	"path/filepath"
	"testing"
)

func TestFileLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "screencast.lock")

	a, err := NewFileLock(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.TryLock(); err != nil {
		t.Fatalf("the first lock should be taken, %v", err)
	}

	b, err := NewFileLock(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.TryLock(); err != ErrLocked {
		t.Errorf("expected the lock error, got %v", err)
	}

	if err := a.Unlock(); err != nil {
		t.Fatal(err)
	}
	if err := b.TryLock(); err != nil {
		t.Errorf("the released lock should be taken, %v", err)
	}
	_ = b.Unlock()
}

func TestDefaultLockPath(t *testing.T) {
	l, err := NewFileLock("")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(l.Path()) != "screencast.lock" {
		t.Errorf("unexpected lock path %v", l.Path())
	}
}
