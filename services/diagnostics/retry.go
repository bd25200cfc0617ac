package diagnostics

import (
	"context"
	"time"

	"github.com/matanuska/fleetsync/utils"
)

// Retry defaults for outbound webhook sends
const (
	RetryAttempts = 3
	RetryInitial  = time.Second
)

// Retry calls fn up to RetryAttempts times, doubling the wait from RetryInitial
func Retry(ctx context.Context, fn func() error) error {
	return utils.Retry(ctx, RetryAttempts, RetryInitial, RetryInitial<<(RetryAttempts-1), fn)
}
