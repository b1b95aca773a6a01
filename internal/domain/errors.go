package domain

import (
	"errors"
	"fmt"
)

// ErrIndexNotReady is returned when a question arrives while the vector index
// is still empty or being (re)built.
var ErrIndexNotReady = errors.New("vector index not ready")

// ErrIndexUnavailable is returned when the backing vector store cannot be
// reached. The caller decides whether to retry.
var ErrIndexUnavailable = errors.New("vector index unavailable")

// EncodingError wraps a failure to embed a question or a corpus message.
type EncodingError struct {
	Err error
}

func (e *EncodingError) Error() string { return "encoding failed: " + e.Err.Error() }

func (e *EncodingError) Unwrap() error { return e.Err }

// SynthesisFailure classifies why answer synthesis failed.
type SynthesisFailure string

const (
	SynthesisTimeout   SynthesisFailure = "timeout"
	SynthesisQuota     SynthesisFailure = "quota"
	SynthesisMalformed SynthesisFailure = "malformed"
)

// SynthesisError is the single failure condition surfaced by the answer
// synthesizer, with the underlying cause attached.
type SynthesisError struct {
	Kind SynthesisFailure
	Err  error
}

func (e *SynthesisError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("synthesis failed (%s)", e.Kind)
	}
	return fmt.Sprintf("synthesis failed (%s): %v", e.Kind, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }
