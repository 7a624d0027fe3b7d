/*
 * COPYRIGHT 2019 Brightgate Inc.  All rights reserved.
 *
 * This copyright notice is Copyright Management Information under 17 USC 1202
 * and is included to protect this work and deter copyright infringement.
 * Removal or alteration of this Copyright Management Information without the
 * express written permission of Brightgate Inc is prohibited, and any
 * such unauthorized removal or alteration will be a violation of federal law.
 */

package miniserver

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies the errors this core surfaces, per the error table.
type Kind int

// The error kinds the miniserver core can produce.
const (
	KindNone Kind = iota
	KindOutOfResources
	KindSocketBind
	KindListen
	KindWrongFamily
	KindWrongKind
	KindAlreadyBound
	KindAlreadyRunning
	KindNameResolution
	KindNotConnected
	KindBadHTTPMessage
	KindInternalServerError
	KindTimeout
	KindInternalError
)

var kindNames = map[Kind]string{
	KindNone:                "none",
	KindOutOfResources:      "out of resources",
	KindSocketBind:          "bind failed",
	KindListen:              "listen failed",
	KindWrongFamily:         "wrong address family",
	KindWrongKind:           "wrong socket kind",
	KindAlreadyBound:        "already bound",
	KindAlreadyRunning:      "already running",
	KindNameResolution:      "name resolution failed",
	KindNotConnected:        "not connected",
	KindBadHTTPMessage:      "bad http message",
	KindInternalServerError: "internal server error",
	KindTimeout:             "timeout",
	KindInternalError:       "internal error",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is the core's error type: a Kind plus a wrapped cause.
type Error struct {
	kind  Kind
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.kind, e.cause)
	}
	return e.kind.String()
}

// Unwrap exposes the cause to errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.cause
}

// Kind returns the error's classification.
func (e *Error) Kind() Kind {
	return e.kind
}

// newErr builds a typed Error with no specific cause.
func newErr(k Kind) *Error {
	return &Error{kind: k}
}

// wrapErr attaches a Kind to an underlying error, preserving it via Unwrap.
func wrapErr(k Kind, cause error) *Error {
	if cause == nil {
		return newErr(k)
	}
	return &Error{kind: k, cause: errors.WithStack(cause)}
}

// KindOf extracts the Kind from err, or KindNone if err isn't a *Error.
func KindOf(err error) Kind {
	var me *Error
	if errors.As(err, &me) {
		return me.kind
	}
	return KindNone
}

// HTTPStatus maps a Kind to the status code a Dispatcher response should
// carry, matching the failure-status table and the DNS-rebind defense policy.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindBadHTTPMessage:
		return 400
	case KindInternalServerError:
		return 500
	case KindTimeout:
		return 408
	default:
		return 500
	}
}
