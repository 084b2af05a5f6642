package types

import (
	"errors"
	"fmt"
)

// Kind classifies fatal spill failures.
type Kind int

const (
	KindCodec Kind = iota + 1
	KindStorage
	KindNotification
)

func (k Kind) String() string {
	switch k {
	case KindCodec:
		return "codec"
	case KindStorage:
		return "storage"
	case KindNotification:
		return "notification"
	default:
		return "unknown"
	}
}

// Error is returned by the segment store for every fatal failure. Consumer
// errors never get wrapped in it.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("%s error: %s %s: %v", e.Kind, e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func CodecError(op, path string, err error) error {
	return &Error{Kind: KindCodec, Op: op, Path: path, Err: err}
}

func StorageError(op, path string, err error) error {
	return &Error{Kind: KindStorage, Op: op, Path: path, Err: err}
}

func NotificationError(op, path string, err error) error {
	return &Error{Kind: KindNotification, Op: op, Path: path, Err: err}
}

func isKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

func IsCodec(err error) bool        { return isKind(err, KindCodec) }
func IsStorage(err error) bool      { return isKind(err, KindStorage) }
func IsNotification(err error) bool { return isKind(err, KindNotification) }
