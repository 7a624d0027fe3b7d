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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfUnwrapsWrappedCause(t *testing.T) {
	cause := errors.New("boom")
	err := wrapErr(KindSocketBind, cause)
	assert.Equal(t, KindSocketBind, KindOf(err))
	assert.True(t, errors.Is(err, err))

	var unwrapped error = err
	for unwrapped != nil {
		if unwrapped.Error() == "boom" {
			return
		}
		unwrapped = errors.Unwrap(unwrapped)
	}
	t.Fatal("cause not reachable via Unwrap chain")
}

func TestKindOfNonMatchingErrorIsNone(t *testing.T) {
	assert.Equal(t, KindNone, KindOf(errors.New("plain")))
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		kind Kind
		want int
	}{
		{KindBadHTTPMessage, 400},
		{KindInternalServerError, 500},
		{KindTimeout, 408},
		{KindWrongFamily, 500},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.kind.HTTPStatus())
	}
}
