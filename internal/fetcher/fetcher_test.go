package fetcher

import (
	"context"
	"os"
	"testing"

	"github.com/pkg/errors"

	"github.com/kestrelgames/cytrus-updater/internal/repository"
)

func TestTempFileSizeMissingIsZero(t *testing.T) {
	n, err := tempFileSize(os.TempDir() + "/cytrus-updater-does-not-exist.tmp")
	if err != nil || n != 0 {
		t.Fatalf("expected (0, nil) for a missing temp file, got (%d, %v)", n, err)
	}
}

func TestIsTransientClassifiesNetworkErrors(t *testing.T) {
	if !isTransient(context.DeadlineExceeded) {
		t.Fatalf("expected a deadline exceeded error to be transient")
	}
	if isTransient(&repository.NetworkError{StatusCode: 404}) {
		t.Fatalf("did not expect a 404 to be treated as transient")
	}
	if !isTransient(&repository.NetworkError{StatusCode: 503}) {
		t.Fatalf("expected a 503 to be treated as transient")
	}
	if !isTransient(errors.New("connection reset")) {
		t.Fatalf("expected an unclassified error to default to transient")
	}
}
