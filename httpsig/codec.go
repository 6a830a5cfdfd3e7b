package httpsig

import (
	"encoding/base64"
	"strings"
)

// DefaultAlgorithm is assumed when a parsed signature names none.
const DefaultAlgorithm = "rsa-sha256"

// SignatureInfo is the parsed content of a Signature header.
type SignatureInfo struct {
	KeyID     string
	Algorithm string
	Headers   []string
	Signature []byte
}

// HeadersStr joins the signed header names, lower-cased, space-separated.
func (s SignatureInfo) HeadersStr() string {
	lowered := make([]string, len(s.Headers))
	for i, header := range s.Headers {
		lowered[i] = strings.ToLower(header)
	}
	return strings.Join(lowered, " ")
}

// Compile serializes to the compact header form:
// keyId="...",headers="...",signature="...",algorithm="...".
func (s SignatureInfo) Compile() string {
	return `keyId="` + s.KeyID +
		`",headers="` + s.HeadersStr() +
		`",signature="` + base64.StdEncoding.EncodeToString(s.Signature) +
		`",algorithm="` + s.Algorithm + `"`
}

// Parse decodes a compact Signature header. Key order is free and headers
// and algorithm are optional, but keyId and signature are mandatory and
// every comma-separated segment must contain an "=".
func Parse(header string) (SignatureInfo, error) {
	parts := map[string]string{}

	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(part, "=")
		if !found {
			return SignatureInfo{}, &BadFormatError{Reason: "bad signature"}
		}
		parts[strings.ToLower(key)] = strings.Trim(value, `"`)
	}

	keyID, ok := parts["keyid"]
	if !ok {
		return SignatureInfo{}, &BadFormatError{Reason: "missing keyId"}
	}

	encoded, ok := parts["signature"]
	if !ok {
		return SignatureInfo{}, &BadFormatError{Reason: "missing signature"}
	}
	signature, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return SignatureInfo{}, &BadFormatError{Reason: "bad signature encoding"}
	}

	algorithm := parts["algorithm"]
	if algorithm == "" {
		algorithm = DefaultAlgorithm
	}

	var headers []string
	for _, header := range strings.Fields(parts["headers"]) {
		headers = append(headers, strings.ToLower(header))
	}

	return SignatureInfo{
		KeyID:     keyID,
		Algorithm: algorithm,
		Headers:   headers,
		Signature: signature,
	}, nil
}
