//go:build !unix

package storage

// fileLock is a no-op where flock is unavailable; run a single writer.
type fileLock struct{}

func acquireLock(string) (*fileLock, error) { return &fileLock{}, nil }

func (*fileLock) release() error { return nil }
