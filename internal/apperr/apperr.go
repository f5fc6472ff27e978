// Package apperr classifies errors into a small set of classes that
// determine whether the pipeline retries, soft-degrades, or fails a video,
// and whether a synchronous request surfaces a 4xx or 5xx: a wrapper type
// plus an errors.As-based classifier rather than a registry of sentinels.
package apperr

import (
	"errors"
	"fmt"
)

// Class is the error's classification.
type Class string

const (
	ClassInvalidInput        Class = "invalid_input"
	ClassUnauthorized        Class = "unauthorized"
	ClassNotFound            Class = "not_found"
	ClassConflict            Class = "conflict"
	ClassTransientDependency Class = "transient_dependency"
	ClassFatalMedia          Class = "fatal_media"
	ClassSoftDegrade         Class = "soft_degrade"
	ClassInternal            Class = "internal"
)

// Error wraps an underlying cause with a Class, so stage code can classify
// without string matching.
type Error struct {
	class Class
	msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.class, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.class, e.msg)
}

func (e *Error) Unwrap() error { return e.cause }

// Class returns the error's classification.
func (e *Error) Class() Class { return e.class }

// New creates a classified error with no wrapped cause.
func New(class Class, msg string) error {
	return &Error{class: class, msg: msg}
}

// Wrap creates a classified error that wraps cause.
func Wrap(class Class, msg string, cause error) error {
	if cause == nil {
		return New(class, msg)
	}
	return &Error{class: class, msg: msg, cause: cause}
}

// ClassOf returns the Class of err if it (or something it wraps) is an
// *Error, and ClassInternal otherwise. Unclassified errors map to a 5xx
// status and are not retriable (IsRetriable is false for them), so the
// pipeline fails the video on the first one.
func ClassOf(err error) Class {
	var e *Error
	if errors.As(err, &e) {
		return e.class
	}
	return ClassInternal
}

// IsRetriable reports whether the pipeline or a synchronous caller should
// retry err: transient_dependency is retried with backoff; everything else
// either fails immediately or is terminal.
func IsRetriable(err error) bool {
	return ClassOf(err) == ClassTransientDependency
}

// IsSoftDegrade reports whether a stage should continue with degraded
// output rather than failing the video.
func IsSoftDegrade(err error) bool {
	return ClassOf(err) == ClassSoftDegrade
}

// IsFatalMedia reports whether the pipeline should transition the Video to
// `failed` immediately.
func IsFatalMedia(err error) bool {
	return ClassOf(err) == ClassFatalMedia
}

// HTTPStatus maps a Class to the status code a synchronous handler should
// return.
func HTTPStatus(class Class) int {
	switch class {
	case ClassInvalidInput, ClassFatalMedia:
		return 400
	case ClassUnauthorized:
		return 401
	case ClassNotFound:
		return 404
	case ClassConflict:
		return 409
	default:
		return 500
	}
}
