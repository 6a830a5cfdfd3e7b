package httpsig

import (
	"net/http"
	"strings"
	"time"
)

// DateSkewLimit is the maximum accepted distance between a request's Date
// header and the local clock.
const DateSkewLimit = 60 * time.Second

// VerifyRequest validates an inbound request's Digest, Date freshness and
// Signature against the claimed sender's public key. Format problems return
// a BadFormatError, a failed crypto check a VerificationError.
func VerifyRequest(req *http.Request, body []byte, publicKeyPem string) error {
	if digest := req.Header.Get("Digest"); digest != "" {
		if digest != Digest(body) {
			return &BadFormatError{Reason: "bad digest"}
		}
	}

	if date := req.Header.Get("Date"); date != "" {
		parsed, err := http.ParseTime(date)
		if err != nil {
			return &BadFormatError{Reason: "bad date"}
		}
		skew := time.Since(parsed)
		if skew < 0 {
			skew = -skew
		}
		if skew > DateSkewLimit {
			return &BadFormatError{Reason: "expired date"}
		}
	}

	header := req.Header.Get("Signature")
	if header == "" {
		return &BadFormatError{Reason: "missing signature"}
	}

	info, err := Parse(header)
	if err != nil {
		return err
	}

	if info.Algorithm != "rsa-sha256" && info.Algorithm != "hs2019" {
		return &BadFormatError{Reason: "unknown signature algorithm"}
	}

	// Rebuild the signing string from the header list named inside the
	// signature, reading current request values.
	lines := make([]string, len(info.Headers))
	for i, name := range info.Headers {
		if name == "(request-target)" {
			lines[i] = name + ": " + strings.ToLower(req.Method) + " " + req.URL.Path
			continue
		}
		value := req.Header.Get(name)
		if name == "host" && value == "" {
			value = req.Host
		}
		if value == "" {
			return &BadFormatError{Reason: "missing signed header: " + name}
		}
		lines[i] = name + ": " + value
	}

	return Verify(publicKeyPem, []byte(strings.Join(lines, "\n")), info.Signature)
}
