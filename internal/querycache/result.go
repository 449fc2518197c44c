package querycache

import (
	"reflect"
	"time"
)

// Status is the render state of one independently loading region.
type Status int

const (
	StatusLoading Status = iota
	StatusSuccess
	StatusEmpty
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusEmpty:
		return "empty"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Result is what a reader gets back for a query.
//
// A failed refetch over existing data keeps the data: Status stays Success
// (or Empty) and Err carries the refetch failure.
type Result[T any] struct {
	Status    Status
	Value     T
	Err       error
	Stale     bool
	FetchedAt time.Time
}

func (r Result[T]) Ok() bool {
	return r.Status == StatusSuccess || r.Status == StatusEmpty
}

func Loading[T any]() Result[T] {
	return Result[T]{Status: StatusLoading}
}

func Failed[T any](err error) Result[T] {
	return Result[T]{Status: StatusError, Err: err}
}

// Succeeded classifies v as Success or Empty.
func Succeeded[T any](v T) Result[T] {
	if isEmpty(v) {
		return Result[T]{Status: StatusEmpty, Value: v}
	}
	return Result[T]{Status: StatusSuccess, Value: v}
}

// Emptier lets a result type decide what "no data" means for it.
type Emptier interface {
	IsEmpty() bool
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	if e, ok := v.(Emptier); ok {
		return e.IsEmpty()
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map:
		return rv.Len() == 0
	case reflect.Pointer:
		return rv.IsNil()
	}
	return false
}
