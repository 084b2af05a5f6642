package types

import "context"

// Consumer is the destination a spillover feeds.
//
// TrySend must not block: it returns false when the item was not taken and the
// caller still owns it. Flush pushes anything the consumer buffered, Close
// flushes and releases it. Errors from any method are passed back to the
// caller of the spillover untouched.
type Consumer[T any] interface {
	TrySend(ctx context.Context, item T) (bool, error)
	Flush(ctx context.Context) error
	Close(ctx context.Context) error
}

// ReadyNotifier is implemented by consumers that can signal when a rejected
// TrySend is worth retrying. Consumers without it are retried on a timer.
type ReadyNotifier interface {
	Ready() <-chan struct{}
}
