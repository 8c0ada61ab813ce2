package exporter

import (
	"errors"
	"fmt"
	"os"

	"github.com/gofrs/flock"

	"github.com/YKarmar/JobTracker/internal/types"
)

// Exporter is one output format.
type Exporter interface {
	Path() string
	ExportJobApplications(records []types.ApplicationRecord) error
}

// ErrLocked is returned when another run holds the output lock.
var ErrLocked = errors.New("output is locked by another run")

// Export writes records with every exporter while holding an exclusive lock
// next to lockPath. It stops at the first failure and leaves any files
// already written in place. The lock file is removed on release.
func Export(lockPath string, records []types.ApplicationRecord, exporters ...Exporter) error {
	lock := flock.New(lockPath + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return &types.WriteError{Path: lock.Path(), Err: fmt.Errorf("acquire lock: %w", err)}
	}
	if !locked {
		return &types.WriteError{Path: lock.Path(), Err: ErrLocked}
	}
	defer func() {
		if err := lock.Unlock(); err == nil {
			os.Remove(lock.Path())
		}
	}()

	for _, e := range exporters {
		if err := e.ExportJobApplications(records); err != nil {
			return err
		}
	}
	return nil
}
