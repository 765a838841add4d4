package translate

import (
	"errors"
	"fmt"
	"net/http"
)

// Failure classes the session boundary must distinguish. Backends wrap
// one of these sentinels so callers can errors.Is against them.
var (
	ErrMissingCredential = errors.New("translate: missing api credential")
	ErrInvalidCredential = errors.New("translate: credential rejected")
	ErrNetwork           = errors.New("translate: network failure")
	ErrService           = errors.New("translate: service failure")
)

// Kind names a failure class for state reporting and history records.
type Kind string

const (
	KindNone              Kind = ""
	KindMissingCredential Kind = "missing_credential"
	KindInvalidCredential Kind = "invalid_credential"
	KindNetwork           Kind = "network_failure"
	KindService           Kind = "service_failure"
)

// Classify maps a backend error onto its failure class. Unrecognized
// errors classify as service failures.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrMissingCredential):
		return KindMissingCredential
	case errors.Is(err, ErrInvalidCredential):
		return KindInvalidCredential
	case errors.Is(err, ErrNetwork):
		return KindNetwork
	default:
		return KindService
	}
}

// IsCredential reports whether the failure should route the caller to
// a credential configuration flow instead of a generic error surface.
func (k Kind) IsCredential() bool {
	return k == KindMissingCredential || k == KindInvalidCredential
}

func statusError(status int, message string) error {
	if status == http.StatusUnauthorized {
		if message != "" {
			return fmt.Errorf("%w: %s", ErrInvalidCredential, message)
		}
		return ErrInvalidCredential
	}
	if message == "" {
		message = fmt.Sprintf("service returned status %d", status)
	}
	return fmt.Errorf("%w: %s", ErrService, message)
}

func transportError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrNetwork, err)
}
