package disk

import "errors"

// ErrSegmentFull is returned by CappedWriter.Accept once the item cap is
// reached. The file is untouched and the caller still owns the item.
var ErrSegmentFull = errors.New("disk: segment item cap reached")

// CappedWriter limits how many items a segment may hold.
type CappedWriter[T any] struct {
	*Writer[T]
	count    int
	maxItems int
}

// NewCappedWriter wraps w. existing is the number of items already in the
// file, used when resuming a segment after a restart. maxItems <= 0 disables
// the cap.
func NewCappedWriter[T any](w *Writer[T], existing, maxItems int) *CappedWriter[T] {
	return &CappedWriter[T]{Writer: w, count: existing, maxItems: maxItems}
}

func (c *CappedWriter[T]) Accept(item T) (bool, error) {
	if c.Full() {
		return false, ErrSegmentFull
	}
	ok, err := c.Writer.Accept(item)
	if ok {
		c.count++
	}
	return ok, err
}

func (c *CappedWriter[T]) Full() bool {
	return c.maxItems > 0 && c.count >= c.maxItems
}

func (c *CappedWriter[T]) Count() int {
	return c.count
}
