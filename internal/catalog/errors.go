package catalog

import "errors"

var (
	// ErrCatalogUnavailable means the manifest could not be read; an admin
	// must run a refresh before anything can be compared.
	ErrCatalogUnavailable = errors.New("achievement catalog unavailable")

	// ErrCatalogFormat means a manifest or category file parsed but has the
	// wrong structure, which points at systemic corruption.
	ErrCatalogFormat = errors.New("achievement catalog malformed")

	// ErrNotFound means no achievement matches an ID or name.
	ErrNotFound = errors.New("achievement not found")

	// ErrNothingDownloaded is returned by Refresh when no category file is
	// available locally afterwards.
	ErrNothingDownloaded = errors.New("no category files available after refresh")
)
