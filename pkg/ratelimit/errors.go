// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ratelimit

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	// ErrStoreUnavailable is returned when the counter store cannot be
	// reached or times out. Callers treat it as a breaker failure and
	// fail open for the affected request.
	ErrStoreUnavailable = errors.New("counter store unavailable")

	// ErrUnknownAlgorithm is returned when an algorithm tag is not one of
	// the supported algorithms.
	ErrUnknownAlgorithm = errors.New("unknown algorithm")

	// ErrInvalidIdentity is returned when an identity is missing or
	// malformed where policy requires one.
	ErrInvalidIdentity = errors.New("invalid identity")
)

// ConfigError represents a malformed limit configuration. Configuration
// errors are surfaced to the caller and never retried.
type ConfigError struct {
	Field   string
	Message string
}

// Error returns the configuration error message.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s: %s", e.Field, e.Message)
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{
		Field:   field,
		Message: message,
	}
}

// IsConfigError checks if an error is a configuration error.
func IsConfigError(err error) bool {
	if err == nil {
		return false
	}
	var ce *ConfigError
	if errors.As(err, &ce) {
		return true
	}
	return errors.Is(err, ErrUnknownAlgorithm)
}

// StoreError wraps a store failure with the backend that produced it.
type StoreError struct {
	Backend string
	Err     error
}

// Error returns the store error message.
func (e *StoreError) Error() string {
	return fmt.Sprintf("%s store: %v", e.Backend, e.Err)
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error {
	return ErrStoreUnavailable
}

// NewStoreError wraps err as a store unavailability error.
func NewStoreError(backend string, err error) *StoreError {
	return &StoreError{Backend: backend, Err: err}
}

// IsStoreUnavailable checks if an error indicates the store could not
// serve the request.
func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
