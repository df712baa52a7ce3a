package pkg

import (
	"errors"
	"fmt"
)

var (
	ErrNoSource   = errors.New("no source file")
	ErrNoTracks   = errors.New("no video or audio track")
	ErrFragmented = errors.New("fragmented mp4 is not supported")
	ErrMalformed  = errors.New("malformed mp4")
	ErrInvariant  = errors.New("invariant violation")
)

type InvariantKind int

const (
	ZeroDurationFragment InvariantKind = iota + 1
	NonContiguous
	BoxLength
	EmptyFinalBuffer
)

func (k InvariantKind) String() string {
	switch k {
	case ZeroDurationFragment:
		return "zero duration fragment"
	case NonContiguous:
		return "non contiguous fragment"
	case BoxLength:
		return "box length mismatch"
	case EmptyFinalBuffer:
		return "empty final buffer"
	}
	return fmt.Sprintf("invariant(%d)", int(k))
}

// InvariantError 程序契约被破坏，整次打包必须中止
type InvariantError struct {
	Kind   InvariantKind
	Index  int
	Detail string
}

func (e *InvariantError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s at %d", e.Kind, e.Index)
	}
	return fmt.Sprintf("%s at %d: %s", e.Kind, e.Index, e.Detail)
}

func (e *InvariantError) Is(target error) bool {
	return target == ErrInvariant
}

func NewInvariantError(kind InvariantKind, index int, format string, args ...any) *InvariantError {
	return &InvariantError{Kind: kind, Index: index, Detail: fmt.Sprintf(format, args...)}
}
