// Package upload archives raw benchmark run directories in object storage.
package upload

import "context"

// Uploader uploads a local run directory to remote storage.
type Uploader interface {
	// Preflight verifies that the remote storage is reachable and writable.
	// Writes a small test object to the bucket to fail fast on misconfiguration.
	Preflight(ctx context.Context) error

	// Upload copies every file under localDir to a location derived from
	// buildIdentifier and returns the URI of that location.
	Upload(ctx context.Context, localDir, buildIdentifier string) (string, error)
}
