// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "errors"

// Load failures are classified by these sentinels; match with errors.Is.
var (
	// ErrUnknownConfigField marks a YAML key with no matching field.
	ErrUnknownConfigField = errors.New("unknown config field")
	// ErrUnsupportedFormat marks a config path that is not .yaml or .yml.
	ErrUnsupportedFormat = errors.New("unsupported config format")
	// ErrMultipleDocuments marks a file holding more than one YAML document.
	ErrMultipleDocuments = errors.New("config file contains multiple documents or trailing content")
	// ErrInvalidConfig wraps the validation failures of the effective config.
	ErrInvalidConfig = errors.New("config validation failed")
)
