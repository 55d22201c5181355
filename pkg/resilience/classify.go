// SPDX-License-Identifier: Apache-2.0
package resilience

import (
	"strings"

	"github.com/imoran/clade/pkg/errors"
)

// transientSignatures are lowercase substrings that mark a provider failure
// as quota or rate-limit exhaustion. Anything else is treated as permanent.
var transientSignatures = []string{
	"429",
	"too many requests",
	"rate limit",
	"rate-limit",
	"rate_limit",
	"quota",
	"resource exhausted",
	"resource_exhausted",
}

// IsTransientExhaustion reports whether err carries a transient quota or
// rate-limit signature. Typed errors are trusted over string matching.
func IsTransientExhaustion(err error) bool {
	if err == nil {
		return false
	}
	if ce, ok := err.(*errors.CladeError); ok {
		switch ce.Code {
		case errors.CodeTransientResource:
			return true
		case errors.CodePermanentCall, errors.CodeConfiguration, errors.CodeValidation:
			return false
		}
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range transientSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}
