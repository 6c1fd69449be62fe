package delivery

import (
	"errors"
	"net/http"

	kit "dmrelay/internal/transport"
)

// Discord JSON error codes used for classification.
const (
	codeUnknownApplication = 10002
	codeUnknownMember      = 10007
	codeUnknownUser        = 10013
	codeDMRateLimit        = 40003
	codeCannotMessageUser  = 50007
)

// Classify maps a send error to an Outcome. It is pure: the same error always
// yields the same Outcome.
func Classify(err error) Outcome {
	if err == nil {
		return Success
	}

	switch {
	case errors.Is(err, kit.ErrDMsDisabled):
		return DMsDisabled
	case errors.Is(err, kit.ErrRecipientUnavailable):
		return RecipientUnavailable
	case errors.Is(err, kit.ErrRateLimited):
		return RateLimited
	}

	var coded kit.CodedError
	if errors.As(err, &coded) {
		switch coded.PlatformCode() {
		case codeCannotMessageUser:
			return DMsDisabled
		case codeUnknownMember, codeUnknownUser, codeUnknownApplication:
			return RecipientUnavailable
		case codeDMRateLimit:
			return RateLimited
		}
	}

	var status kit.StatusError
	if errors.As(err, &status) && status.HTTPStatus() == http.StatusTooManyRequests {
		return RateLimited
	}
	return OtherFailure
}
