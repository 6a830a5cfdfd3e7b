package httpsig

import (
	"net/http"
	"strings"
	"time"
)

// Signer attaches Digest, Date and Signature headers to outgoing federation
// requests.
type Signer struct {
	keyID         string
	privateKeyPem string
}

// NewSigner returns a Signer for the given key. The key is parsed once up
// front so a misconfigured key fails at startup, not per request.
func NewSigner(keyID, privateKeyPem string) (*Signer, error) {
	if _, err := ParsePrivateKey(privateKeyPem); err != nil {
		return nil, err
	}
	return &Signer{keyID: keyID, privateKeyPem: privateKeyPem}, nil
}

// Sign signs req over the fixed header set
// [(request-target), host, date, content-type, digest?]. The header set and
// order are a wire-compatibility contract with remote servers.
func (s *Signer) Sign(req *http.Request, body []byte) error {
	// Go carries Host on the request itself, not in the header map.
	if req.Host == "" {
		req.Host = req.URL.Host
	}
	if req.Header.Get("Date") == "" {
		req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/activity+json")
	}

	headers := []string{"(request-target)", "host", "date", "content-type"}
	if body != nil {
		req.Header.Set("Digest", Digest(body))
		headers = append(headers, "digest")
	}

	lines := make([]string, len(headers))
	for i, header := range headers {
		// (request-target) is computed, never sent as a real header.
		switch header {
		case "(request-target)":
			lines[i] = header + ": " + strings.ToLower(req.Method) + " " + req.URL.Path
		case "host":
			lines[i] = header + ": " + req.Host
		default:
			lines[i] = header + ": " + req.Header.Get(header)
		}
	}

	signature, err := Sign(s.privateKeyPem, []byte(strings.Join(lines, "\n")))
	if err != nil {
		return err
	}

	info := SignatureInfo{
		KeyID:     s.keyID,
		Algorithm: DefaultAlgorithm,
		Headers:   headers,
		Signature: signature,
	}
	req.Header.Set("Signature", info.Compile())

	return nil
}
