package monitor

import (
	"fmt"

	"github.com/gofrs/flock"
)

// AcquireRunLock takes the cross-process lock serializing run execution
// against one database. Every run trigger must hold it, the daemon and
// one-shot runs alike; otherwise two processes can check the same job
// between its snapshot read and commit and record the change twice. The
// second process fails fast instead of waiting.
//
// The caller unlocks when its runs are done.
func AcquireRunLock(dbPath string) (*flock.Flock, error) {
	lock := flock.New(dbPath + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring run lock %s: %w", lock.Path(), err)
	}
	if !locked {
		return nil, fmt.Errorf("run lock %s is held by another jobwatch process", lock.Path())
	}
	return lock, nil
}
