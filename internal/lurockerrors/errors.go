// Package lurockerrors defines the typed error kinds shared across lurock's
// core packages (spec §7). PackageError, CacheError and HTTPError keep their
// upstream cause and expose it through Unwrap, so call sites reach it with
// the standard errors.Is/errors.As; WrapPackage also attaches a stack trace
// via github.com/pkg/errors. The other kinds carry no cause.
package lurockerrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// InvalidVersionError is returned when a version string fails to parse.
type InvalidVersionError struct {
	Text   string
	Reason string
}

func (e *InvalidVersionError) Error() string {
	return fmt.Sprintf("invalid version %q: %s", e.Text, e.Reason)
}

// NewInvalidVersion builds an InvalidVersionError.
func NewInvalidVersion(text, reason string) error {
	return &InvalidVersionError{Text: text, Reason: reason}
}

// InvalidConstraintError is returned when a constraint string fails to parse.
type InvalidConstraintError struct {
	Text   string
	Reason string
}

func (e *InvalidConstraintError) Error() string {
	return fmt.Sprintf("invalid constraint %q: %s", e.Text, e.Reason)
}

// NewInvalidConstraint builds an InvalidConstraintError.
func NewInvalidConstraint(text, reason string) error {
	return &InvalidConstraintError{Text: text, Reason: reason}
}

// PackageError covers everything wrong in a package's lifecycle: missing
// from the registry, a malformed spec, a checksum mismatch, a failed
// extraction or build.
type PackageError struct {
	Message string
	Cause   error
}

func (e *PackageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Cause)
	}
	return e.Message
}

func (e *PackageError) Unwrap() error { return e.Cause }

// NewPackage builds a PackageError with no cause.
func NewPackage(format string, args ...interface{}) error {
	return &PackageError{Message: fmt.Sprintf(format, args...)}
}

// WrapPackage builds a PackageError around an existing error.
func WrapPackage(cause error, format string, args ...interface{}) error {
	return &PackageError{Message: fmt.Sprintf(format, args...), Cause: errors.WithStack(cause)}
}

// CacheError covers filesystem or hashing failures in the content-addressed
// cache.
type CacheError struct {
	Message string
	Cause   error
}

func (e *CacheError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("cache: %s: %s", e.Message, e.Cause)
	}
	return fmt.Sprintf("cache: %s", e.Message)
}

func (e *CacheError) Unwrap() error { return e.Cause }

// NewCache builds a CacheError.
func NewCache(cause error, format string, args ...interface{}) error {
	return &CacheError{Message: fmt.Sprintf(format, args...), Cause: cause}
}

// HTTPError covers network failures or non-2xx responses from the registry.
type HTTPError struct {
	URL        string
	StatusCode int
	Cause      error
}

func (e *HTTPError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("http %s: %s", e.URL, e.Cause)
	}
	return fmt.Sprintf("http %s: unexpected status %d", e.URL, e.StatusCode)
}

func (e *HTTPError) Unwrap() error { return e.Cause }

// PathError covers invalid filesystem paths.
type PathError struct {
	Path   string
	Reason string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("invalid path %q: %s", e.Path, e.Reason)
}

// NewPath builds a PathError.
func NewPath(path, reason string) error {
	return &PathError{Path: path, Reason: reason}
}

// ConfigError covers missing or invalid configuration values.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %q: %s", e.Key, e.Reason)
}

// NewConfig builds a ConfigError.
func NewConfig(key, reason string) error {
	return &ConfigError{Key: key, Reason: reason}
}

// NotImplementedError marks a build type or feature the core does not
// support.
type NotImplementedError struct {
	Feature string
}

func (e *NotImplementedError) Error() string {
	return fmt.Sprintf("not implemented: %s", e.Feature)
}

// NewNotImplemented builds a NotImplementedError.
func NewNotImplemented(feature string) error {
	return &NotImplementedError{Feature: feature}
}
