// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
)

// ErrNoProviders means no generation backend is configured. It is a
// configuration failure and is never retried.
var ErrNoProviders = errors.New("no generation provider configured")

// ErrorKind sorts provider failures for the cascade.
type ErrorKind string

const (
	// KindNetwork covers connectivity failures: unresolvable host, refused
	// or reset connections, unreachable networks and timeouts.
	KindNetwork ErrorKind = "network"
	// KindRejected covers provider-side refusals: authentication, malformed
	// request, rate limits, server errors, empty answers.
	KindRejected ErrorKind = "rejected"
	// KindConfig covers local misconfiguration (missing key or model).
	KindConfig ErrorKind = "config"
	// KindCanceled means the caller went away.
	KindCanceled ErrorKind = "canceled"
)

// networkIndicators catch connectivity failures that reach us only as text,
// e.g. from SDKs that flatten the underlying error.
var networkIndicators = []string{
	"connection refused",
	"connection reset",
	"no such host",
	"network is unreachable",
	"host is unreachable",
	"i/o timeout",
	"dial tcp",
	"tls handshake timeout",
	"server misbehaving",
	"temporary failure in name resolution",
}

// ProviderError is a failed call to one provider.
type ProviderError struct {
	Provider   string
	Model      string
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (%s): %s: status %d: %v", e.Provider, e.Model, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s (%s): %s: %v", e.Provider, e.Model, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// wrapError builds a ProviderError whose Kind is derived from err.
func wrapError(provider, model string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Model: model, Kind: Classify(err), Err: err}
}

// Classify sorts err into an ErrorKind.
//
// # Description
//
// An explicit Kind on a wrapped *ProviderError wins. Otherwise cancellation
// is KindCanceled; DNS errors, dial and socket errors, timeouts and the
// usual errno values are KindNetwork, as are errors whose text carries a
// known connectivity indicator. Everything else is KindRejected.
//
// # Inputs
//
//   - err: any error returned by a provider. nil yields "".
//
// # Outputs
//
//   - ErrorKind: the classification.
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var pe *ProviderError
	if errors.As(err, &pe) && pe.Kind != "" {
		return pe.Kind
	}

	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindNetwork
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindNetwork
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindNetwork
	}

	for _, errno := range []syscall.Errno{
		syscall.ECONNREFUSED,
		syscall.ECONNRESET,
		syscall.ECONNABORTED,
		syscall.ENETUNREACH,
		syscall.EHOSTUNREACH,
		syscall.ETIMEDOUT,
		syscall.EPIPE,
	} {
		if errors.Is(err, errno) {
			return KindNetwork
		}
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return KindNetwork
	}

	msg := strings.ToLower(err.Error())
	for _, indicator := range networkIndicators {
		if strings.Contains(msg, indicator) {
			return KindNetwork
		}
	}
	return KindRejected
}

// IsNetwork reports whether err is a connectivity failure.
func IsNetwork(err error) bool { return Classify(err) == KindNetwork }
