// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package validate accumulates configuration validation failures so that a
// bad config file reports every problem in one pass.
package validate

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Error is one failed check.
type Error struct {
	Field   string
	Value   any
	Message string
}

func (e Error) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

// ValidationError is the combined result of a Validator run.
type ValidationError struct {
	errors []Error
}

// Errors returns the individual failures in the order they were found.
func (e ValidationError) Errors() []Error { return e.errors }

func (e ValidationError) Error() string {
	msgs := make([]string, len(e.errors))
	for i, err := range e.errors {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

func (e ValidationError) Unwrap() []error {
	errs := make([]error, len(e.errors))
	for i, err := range e.errors {
		errs[i] = err
	}
	return errs
}

// Validator collects failures; Err reports them all at once.
type Validator struct {
	errors []Error
}

func New() *Validator { return &Validator{} }

func (v *Validator) AddError(field, message string, value any) {
	v.errors = append(v.errors, Error{Field: field, Value: value, Message: message})
}

func (v *Validator) IsValid() bool { return len(v.errors) == 0 }

// Err returns nil or a ValidationError holding a copy of the failures.
func (v *Validator) Err() error {
	if len(v.errors) == 0 {
		return nil
	}
	return ValidationError{errors: append([]Error(nil), v.errors...)}
}

func (v *Validator) NotEmpty(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, "value cannot be empty", value)
	}
}

func (v *Validator) OneOf(field, value string, allowed []string) {
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	v.AddError(field, fmt.Sprintf("value must be one of %v, got %q", allowed, value), value)
}

// Range checks minVal <= value <= maxVal.
func (v *Validator) Range(field string, value, minVal, maxVal int) {
	if value < minVal || value > maxVal {
		v.AddError(field, fmt.Sprintf("value must be between %d and %d, got %d", minVal, maxVal, value), value)
	}
}

func (v *Validator) Positive(field string, value int) {
	if value <= 0 {
		v.AddError(field, fmt.Sprintf("value must be positive, got %d", value), value)
	}
}

// PositiveBytes is Positive for size limits.
func (v *Validator) PositiveBytes(field string, value int64) {
	if value <= 0 {
		v.AddError(field, fmt.Sprintf("value must be positive, got %d", value), value)
	}
}

func (v *Validator) NonNegative(field string, value float64) {
	if value < 0 {
		v.AddError(field, fmt.Sprintf("value cannot be negative, got %g", value), value)
	}
}

// Fraction checks 0 <= value <= 1, e.g. a trace sampling ratio.
func (v *Validator) Fraction(field string, value float64) {
	if value < 0 || value > 1 {
		v.AddError(field, fmt.Sprintf("value must be between 0 and 1, got %g", value), value)
	}
}

func (v *Validator) PositiveDuration(field string, d time.Duration) {
	if d <= 0 {
		v.AddError(field, fmt.Sprintf("duration must be positive, got %s", d), d)
	}
}

// HostPort validates a "host:port" listen or dial address. The host may be
// empty; the port must be numeric.
func (v *Validator) HostPort(field, addr string) {
	if addr == "" {
		v.AddError(field, "address cannot be empty", addr)
		return
	}
	if err := checkHostPort(addr); err != nil {
		v.AddError(field, err.Error(), addr)
	}
}

func checkHostPort(addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid address: %w", err)
	}
	p, err := strconv.Atoi(port)
	if err != nil || p < 0 || p > 65535 {
		return fmt.Errorf("invalid port %q", port)
	}
	return nil
}

// dialSchemes are the resolver schemes a backend address may carry.
var dialSchemes = map[string]bool{"dns": true, "passthrough": true, "unix": true, "unix-abstract": true}

// BackendAddress validates a gRPC dial target: either plain host:port or
// scheme:///endpoint with a resolver grpc ships.
func (v *Validator) BackendAddress(field, target string) {
	if target == "" {
		v.AddError(field, "address cannot be empty", target)
		return
	}
	scheme, endpoint, ok := strings.Cut(target, "://")
	if !ok {
		if err := checkHostPort(target); err != nil {
			v.AddError(field, err.Error(), target)
		}
		return
	}
	if !dialSchemes[scheme] {
		v.AddError(field, fmt.Sprintf("unsupported resolver scheme %q", scheme), target)
		return
	}
	if strings.Trim(endpoint, "/") == "" {
		v.AddError(field, "target has no endpoint", target)
	}
}

// FullMethod validates a gRPC method name of the form /package.Service/Method.
func (v *Validator) FullMethod(field, method string) {
	rest, ok := strings.CutPrefix(method, "/")
	svc, name, found := strings.Cut(rest, "/")
	if !ok || !found || svc == "" || name == "" || strings.Contains(name, "/") {
		v.AddError(field, "method must look like /package.Service/Method", method)
	}
}

// Directory validates a directory path. Missing directories are created
// unless mustExist is set.
func (v *Validator) Directory(field, path string, mustExist bool) {
	if path == "" {
		v.AddError(field, "directory path cannot be empty", path)
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		v.AddError(field, fmt.Sprintf("invalid path: %v", err), path)
		return
	}
	info, err := os.Stat(abs)
	switch {
	case err == nil && !info.IsDir():
		v.AddError(field, "path is not a directory", path)
	case err == nil:
	case !errors.Is(err, os.ErrNotExist):
		v.AddError(field, fmt.Sprintf("cannot access directory: %v", err), path)
	case mustExist:
		v.AddError(field, "directory does not exist", path)
	default:
		if err := os.MkdirAll(abs, 0o750); err != nil {
			v.AddError(field, fmt.Sprintf("cannot create directory: %v", err), path)
		}
	}
}

// LocalPath validates a stage target: relative, and staying below the data
// directory it is joined with.
func (v *Validator) LocalPath(field, path string) {
	switch {
	case path == "":
		v.AddError(field, "path cannot be empty", path)
	case filepath.IsAbs(path):
		v.AddError(field, fmt.Sprintf("must be relative path, got absolute: %s", path), path)
	case !filepath.IsLocal(filepath.Clean(path)):
		v.AddError(field, fmt.Sprintf("is not a local path: %s", path), path)
	}
}
