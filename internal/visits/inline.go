package visits

import (
	"context"
	"time"

	"github.com/Siddarth2230/shortlink/internal/models"
)

// Inline records visits synchronously on the caller's goroutine. It is the
// fallback when no worker pool is configured and it adds the full store
// round trip to every redirect.
type Inline struct {
	Recorder *Recorder
	Timeout  time.Duration
}

func (in Inline) Submit(code string, rc *models.RequestContext) bool {
	timeout := in.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	in.Recorder.Record(ctx, code, rc)
	return true
}
