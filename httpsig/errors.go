package httpsig

import "github.com/pkg/errors"

// ErrMalformedKey reports PEM material that could not be parsed into an RSA
// key. Distinct from a failed signature check.
var ErrMalformedKey = errors.New("malformed key")

// BadFormatError reports malformed or stale signature material. Maps to
// HTTP 400 at the ingestion boundary.
type BadFormatError struct {
	Reason string
}

func (e *BadFormatError) Error() string {
	return "bad signature format: " + e.Reason
}

// VerificationError reports a cryptographically invalid signature. Maps to
// HTTP 401, distinct from format errors.
type VerificationError struct {
	Reason string
}

func (e *VerificationError) Error() string {
	return "signature verification failed: " + e.Reason
}
