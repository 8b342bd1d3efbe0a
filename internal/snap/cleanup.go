package snap

import (
	"errors"
	"fmt"
	"os"
)

// Cleanup removes the job's staging root and archive file. Paths that are
// already gone are not an error.
func Cleanup(job *SnapshotJob) error {
	var errs []error
	for _, p := range []string{job.StagingRoot, job.ArchivePath} {
		if err := os.RemoveAll(p); err != nil {
			errs = append(errs, fmt.Errorf("removing %s: %w", p, err))
		}
	}
	return errors.Join(errs...)
}
