//go:build windows || linux || darwin

package singleinstance

import (
	"errors"
	"testing"
)

func TestTryLock(t *testing.T) {
	tests := []struct {
		name string
		run  func(t *testing.T, lockName string)
	}{
		{
			name: "first lock succeeds",
			run: func(t *testing.T, lockName string) {
				lock, err := TryLock(lockName)
				if err != nil {
					t.Fatalf("TryLock failed: %v", err)
				}
				if lock.Name() != lockName {
					t.Fatalf("Name() = %q, want %q", lock.Name(), lockName)
				}
				if err := lock.Release(); err != nil {
					t.Fatalf("Release failed: %v", err)
				}
			},
		},
		{
			name: "second lock returns ErrAlreadyRunning",
			run: func(t *testing.T, lockName string) {
				first, err := TryLock(lockName)
				if err != nil {
					t.Fatalf("first TryLock failed: %v", err)
				}
				defer first.Release()

				second, err := TryLock(lockName)
				if !errors.Is(err, ErrAlreadyRunning) {
					t.Fatalf("second TryLock: got err=%v, want ErrAlreadyRunning", err)
				}
				if second != nil {
					t.Fatal("second TryLock returned non-nil lock on ErrAlreadyRunning")
				}
			},
		},
		{
			name: "lock reacquirable after release",
			run: func(t *testing.T, lockName string) {
				first, err := TryLock(lockName)
				if err != nil {
					t.Fatalf("first TryLock failed: %v", err)
				}
				if err := first.Release(); err != nil {
					t.Fatalf("Release failed: %v", err)
				}
				again, err := TryLock(lockName)
				if err != nil {
					t.Fatalf("TryLock after release failed: %v", err)
				}
				defer again.Release()
			},
		},
		{
			name: "release idempotent",
			run: func(t *testing.T, lockName string) {
				lock, err := TryLock(lockName)
				if err != nil {
					t.Fatalf("TryLock failed: %v", err)
				}
				if err := lock.Release(); err != nil {
					t.Fatalf("first Release failed: %v", err)
				}
				if err := lock.Release(); err != nil {
					t.Fatalf("second Release should be no-op, got: %v", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.run(t, testLockName(t))
		})
	}
}
