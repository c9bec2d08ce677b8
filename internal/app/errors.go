package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mCat-0/mCat-ac/internal/catalog"
	"github.com/mCat-0/mCat-ac/internal/fetch"
	"github.com/mCat-0/mCat-ac/internal/progress"
	"github.com/mCat-0/mCat-ac/internal/reconcile"
	"github.com/mCat-0/mCat-ac/internal/sharecode"
)

var (
	// ErrNothingExtracted means an import payload held no recognizable IDs.
	// Nothing is written.
	ErrNothingExtracted = errors.New("no achievement IDs found in the data")

	// ErrNothingRecorded means the user has never recorded progress.
	ErrNothingRecorded = errors.New("no progress recorded yet")

	// ErrRefreshRunning rejects a refresh while another one is in flight.
	ErrRefreshRunning = errors.New("a catalog refresh is already running")

	// ErrNoTokens rejects a record request with nothing to record.
	ErrNoTokens = errors.New("no achievement IDs or names given")
)

// NotFoundError lists tokens that matched nothing when none matched at all.
type NotFoundError struct {
	Items []NotFoundItem
}

func (e *NotFoundError) Error() string {
	tokens := make([]string, len(e.Items))
	for i, it := range e.Items {
		tokens[i] = it.Token
	}
	return fmt.Sprintf("achievement not found: %s", strings.Join(tokens, ", "))
}

func (e *NotFoundError) Unwrap() error {
	return catalog.ErrNotFound
}

// UserMessage turns err into one sentence a user can act on.
func UserMessage(err error) string {
	var (
		nf     *NotFoundError
		status *fetch.ErrHTTPStatus
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &nf):
		msg := "No achievement matches " + strings.Join(quoted(nf.Items), ", ") + "."
		if len(nf.Items) == 1 && len(nf.Items[0].Suggestions) > 0 {
			msg += " Did you mean " + strings.Join(nf.Items[0].Suggestions, ", ") + "?"
		}
		return msg
	case errors.Is(err, catalog.ErrCatalogFormat):
		return "The achievement catalog is damaged. Ask an admin to run a forced catalog refresh."
	case errors.Is(err, reconcile.ErrNoCatalog), errors.Is(err, catalog.ErrCatalogUnavailable):
		return "The achievement catalog has not been downloaded yet. Ask an admin to refresh it."
	case errors.Is(err, catalog.ErrNothingDownloaded):
		return "No category files could be downloaded. Check the network and try the refresh again."
	case errors.Is(err, ErrRefreshRunning):
		return "A catalog refresh is already running. Try again when it finishes."
	case errors.Is(err, ErrNothingRecorded):
		return "You have not recorded any achievements yet. Import a share code or a file first."
	case errors.Is(err, progress.ErrNothingToReset):
		return "There is no progress to reset."
	case errors.Is(err, progress.ErrInvalidUser):
		return "That user ID cannot be used."
	case errors.Is(err, ErrNoTokens):
		return "Give at least one achievement ID or name."
	case errors.Is(err, ErrNothingExtracted):
		return "No achievement data was found. Check that this is a full achievement export."
	case errors.Is(err, sharecode.ErrInvalidCode):
		return "A share code is 9 letters or digits."
	case errors.Is(err, sharecode.ErrNotFound):
		return "That share code does not exist or has expired. Export a new one and try again."
	case errors.Is(err, sharecode.ErrRateLimited):
		return "Too many share-code requests. Wait a minute and try again."
	case errors.Is(err, sharecode.ErrNoPayload):
		return "That share code holds no achievement data."
	case errors.Is(err, sharecode.ErrNetwork), errors.Is(err, fetch.ErrAllMirrorsFailed):
		return "The network request failed. Try again later."
	case errors.As(err, &status):
		return fmt.Sprintf("The server answered with HTTP %d. Try again later.", status.Code)
	default:
		return "Something went wrong. Try again later."
	}
}

func quoted(items []NotFoundItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = fmt.Sprintf("%q", it.Token)
	}
	return out
}
