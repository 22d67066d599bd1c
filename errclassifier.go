// SPDX-License-Identifier: GPL-3.0-or-later

package opstack

import (
	"errors"

	"github.com/bassosimone/errclass"
)

// ErrClassifier maps errors to short labels (e.g., "ETIMEDOUT",
// "ESERVICE") that end up in the errClass field of *Done log events.
type ErrClassifier interface {
	Classify(err error) string
}

// ErrClassifierFunc adapts a function to the [ErrClassifier] interface.
type ErrClassifierFunc func(error) string

var _ ErrClassifier = ErrClassifierFunc(nil)

// Classify implements [ErrClassifier].
func (f ErrClassifierFunc) Classify(err error) string {
	return f(err)
}

// Labels assigned by [DefaultErrClassifier] to errors that did not
// originate from the network.
const (
	// ClassService labels a [*ServiceError].
	ClassService = "ESERVICE"

	// ClassDeserialize labels a [*DeserializeError].
	ClassDeserialize = "EDESERIALIZE"

	// ClassInput labels an [*InputError].
	ClassInput = "EINPUT"
)

// DefaultErrClassifier labels the errors of the operation stack and
// delegates everything else, including the errors wrapped by
// [*RequestSendError] and [*CanceledError], to [errclass.New].
//
// A nil error is classified as the empty string.
var DefaultErrClassifier = ErrClassifierFunc(func(err error) string {
	var (
		serviceErr     *ServiceError
		deserializeErr *DeserializeError
		inputErr       *InputError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &serviceErr):
		return ClassService
	case errors.As(err, &deserializeErr):
		return ClassDeserialize
	case errors.As(err, &inputErr):
		return ClassInput
	default:
		return errclass.New(err)
	}
})
