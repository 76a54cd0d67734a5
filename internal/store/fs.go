package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"

	"foldermcp/internal/model"
)

// removalCeiling bounds how long RemoveStateDir keeps retrying. Windows can
// hold file handles briefly after Close; anything still locked after this is
// a real leak.
const removalCeiling = 20 * time.Second

// VerifyClosed probes that the state directory accepts file creation and
// deletion, which fails while another process still holds the database open
// with an exclusive lock on some platforms.
func VerifyClosed(stateDir string) error {
	probe := filepath.Join(stateDir, ".close-probe")
	if err := os.WriteFile(probe, []byte("probe"), 0o600); err != nil {
		return fmt.Errorf("%w: state dir probe write: %v", model.ErrStoreUnavailable, err)
	}
	if err := os.Remove(probe); err != nil {
		return fmt.Errorf("%w: state dir probe remove: %v", model.ErrStoreUnavailable, err)
	}
	return nil
}

// RemoveStateDir deletes the folder's state directory, retrying with
// exponential backoff while the OS releases file handles. Missing directories
// are not an error.
func RemoveStateDir(ctx context.Context, stateDir string) error {
	if stateDir == "" {
		return fmt.Errorf("%w: empty state dir", model.ErrInvalidInput)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 50 * time.Millisecond
	policy.MaxInterval = 2 * time.Second
	policy.MaxElapsedTime = removalCeiling

	operation := func() error {
		err := os.RemoveAll(stateDir)
		if err == nil || os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return backoff.Retry(operation, backoff.WithContext(policy, ctx))
}
