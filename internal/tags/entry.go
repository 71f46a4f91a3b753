package tags

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

var (
	ErrDecode             = errors.New("mapcache: tag decode failed")
	ErrAmbiguousGlobalTag = errors.New("mapcache: ambiguous global tag")
	ErrTagNotFound        = errors.New("mapcache: tag not found")
)

// DecodeError reports a payload failure for one tag. It never affects other tags.
type DecodeError struct {
	ID    uint32
	Class ClassCode
	Name  string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding tag %#08x (%s) %q: %v", e.ID, e.Class, e.Name, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

// Unmarshaler is implemented by payload types that decode themselves.
type Unmarshaler interface {
	UnmarshalTag(r *Reader) error
}

// Entry is one tag in the directory.
type Entry struct {
	ID      uint32
	Index   int
	Class   ClassCode
	Parents [2]ClassCode
	// Pointer is the stored metadata pointer and Offset its file offset.
	Pointer  int64
	Offset   int64
	Name     string
	Size     int64
	External bool

	src *Source

	mu     sync.Mutex
	cached atomic.Pointer[memo]
}

type memo struct {
	value any
}

// IsA reports whether the entry's class or one of its parents is class.
func (e *Entry) IsA(class ClassCode) bool {
	return e.Class == class || e.Parents[0] == class || e.Parents[1] == class
}

func (e *Entry) String() string {
	if e.Name == "" {
		return fmt.Sprintf("%#08x.%s", e.ID, e.Class)
	}
	return e.Name + "." + e.Class.String()
}

// Reader returns a reader positioned at the start of the tag's payload.
func (e *Entry) Reader() (*Reader, error) {
	if e.src == nil {
		return nil, e.fail(errors.New("entry is not attached to a container"))
	}
	if e.External {
		return nil, e.fail(errors.New("payload is stored in a shared container"))
	}
	if e.Offset <= 0 {
		return nil, e.fail(errors.New("entry has no payload"))
	}
	return e.src.At(e.Offset), nil
}

func (e *Entry) fail(err error) *DecodeError {
	return &DecodeError{ID: e.ID, Class: e.Class, Name: e.Name, Err: err}
}

// Decode reads the entry's payload as a T. Payloads of system classes are
// decoded at most once per entry: concurrent first callers wait for a single
// decode and all observe the same value. Other classes decode on every call.
// A memoized value of a different type is not returned; the payload is
// decoded again without caching.
func Decode[T any](e *Entry) (*T, error) {
	if !e.Class.IsSystem() {
		return decode[T](e)
	}

	if m := e.cached.Load(); m != nil {
		return fromMemo[T](e, m)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if m := e.cached.Load(); m != nil {
		return fromMemo[T](e, m)
	}

	v, err := decode[T](e)
	if err != nil {
		return nil, err
	}
	e.cached.Store(&memo{value: v})
	return v, nil
}

func fromMemo[T any](e *Entry, m *memo) (*T, error) {
	if v, ok := m.value.(*T); ok {
		return v, nil
	}
	return decode[T](e)
}

func decode[T any](e *Entry) (*T, error) {
	r, err := e.Reader()
	if err != nil {
		return nil, err
	}

	v := new(T)
	if u, ok := any(v).(Unmarshaler); ok {
		err = u.UnmarshalTag(r)
	} else {
		err = r.Struct(v)
	}
	if err != nil {
		return nil, e.fail(err)
	}
	return v, nil
}

// Cached reports whether a payload has been memoized for the entry.
func (e *Entry) Cached() bool {
	return e.cached.Load() != nil
}
