package httpsig

import (
	"bytes"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedRequest(t *testing.T, signer *Signer, body []byte) *http.Request {
	t.Helper()

	req, err := http.NewRequest("POST", "https://local.example/actors/relay/inbox", bytes.NewReader(body))
	require.NoError(t, err)
	require.NoError(t, signer.Sign(req, body))
	return req
}

func TestSignThenVerify(t *testing.T) {
	priv, pub, err := GenerateKeyPair()
	require.NoError(t, err)

	signer, err := NewSigner("https://remote.example/actor#main-key", priv)
	require.NoError(t, err)

	body := []byte(`{"type":"Follow"}`)
	req := signedRequest(t, signer, body)

	assert.Equal(t, Digest(body), req.Header.Get("Digest"))
	assert.NotEmpty(t, req.Header.Get("Date"))
	require.NoError(t, VerifyRequest(req, body, pub))
}

func TestVerifyGetWithoutBody(t *testing.T) {
	priv, pub, err := GenerateKeyPair()
	require.NoError(t, err)

	signer, err := NewSigner("https://remote.example/actor#main-key", priv)
	require.NoError(t, err)

	req, err := http.NewRequest("GET", "https://local.example/actors/relay", nil)
	require.NoError(t, err)
	require.NoError(t, signer.Sign(req, nil))

	assert.Empty(t, req.Header.Get("Digest"))
	require.NoError(t, VerifyRequest(req, nil, pub))
}

func TestVerifyRejections(t *testing.T) {
	priv, pub, err := GenerateKeyPair()
	require.NoError(t, err)
	otherPriv, _, err := GenerateKeyPair()
	require.NoError(t, err)

	signer, err := NewSigner("https://remote.example/actor#main-key", priv)
	require.NoError(t, err)
	otherSigner, err := NewSigner("https://remote.example/actor#main-key", otherPriv)
	require.NoError(t, err)

	body := []byte(`{"type":"Follow"}`)

	t.Run("tampered body", func(t *testing.T) {
		req := signedRequest(t, signer, body)
		err := VerifyRequest(req, []byte(`{"type":"Delete"}`), pub)

		var badFormat *BadFormatError
		require.ErrorAs(t, err, &badFormat)
		assert.Equal(t, "bad digest", badFormat.Reason)
	})

	t.Run("stale date", func(t *testing.T) {
		req := signedRequest(t, signer, body)
		req.Header.Set("Date", time.Now().UTC().Add(-5*time.Minute).Format(http.TimeFormat))

		var badFormat *BadFormatError
		require.ErrorAs(t, VerifyRequest(req, body, pub), &badFormat)
		assert.Equal(t, "expired date", badFormat.Reason)
	})

	t.Run("future date", func(t *testing.T) {
		req := signedRequest(t, signer, body)
		req.Header.Set("Date", time.Now().UTC().Add(5*time.Minute).Format(http.TimeFormat))

		var badFormat *BadFormatError
		require.ErrorAs(t, VerifyRequest(req, body, pub), &badFormat)
		assert.Equal(t, "expired date", badFormat.Reason)
	})

	t.Run("unparsable date", func(t *testing.T) {
		req := signedRequest(t, signer, body)
		req.Header.Set("Date", "yesterday-ish")

		var badFormat *BadFormatError
		require.ErrorAs(t, VerifyRequest(req, body, pub), &badFormat)
		assert.Equal(t, "bad date", badFormat.Reason)
	})

	t.Run("missing signature", func(t *testing.T) {
		req := signedRequest(t, signer, body)
		req.Header.Del("Signature")

		var badFormat *BadFormatError
		require.ErrorAs(t, VerifyRequest(req, body, pub), &badFormat)
		assert.Equal(t, "missing signature", badFormat.Reason)
	})

	t.Run("unknown algorithm", func(t *testing.T) {
		req := signedRequest(t, signer, body)
		sig := strings.Replace(req.Header.Get("Signature"), `algorithm="rsa-sha256"`, `algorithm="ed25519"`, 1)
		req.Header.Set("Signature", sig)

		var badFormat *BadFormatError
		require.ErrorAs(t, VerifyRequest(req, body, pub), &badFormat)
		assert.Equal(t, "unknown signature algorithm", badFormat.Reason)
	})

	t.Run("missing signed header", func(t *testing.T) {
		req := signedRequest(t, signer, body)
		req.Header.Del("Content-Type")

		var badFormat *BadFormatError
		require.ErrorAs(t, VerifyRequest(req, body, pub), &badFormat)
		assert.Equal(t, "missing signed header: content-type", badFormat.Reason)
	})

	t.Run("wrong key", func(t *testing.T) {
		req := signedRequest(t, otherSigner, body)

		var verification *VerificationError
		require.ErrorAs(t, VerifyRequest(req, body, pub), &verification)
	})
}

func TestVerifyServerSideHost(t *testing.T) {
	// Incoming server requests carry Host on the request, not in the
	// header map.
	priv, pub, err := GenerateKeyPair()
	require.NoError(t, err)

	signer, err := NewSigner("https://remote.example/actor#main-key", priv)
	require.NoError(t, err)

	body := []byte(`{"type":"Follow"}`)
	req := signedRequest(t, signer, body)
	req.Header.Del("Host")
	req.Host = "local.example"

	require.NoError(t, VerifyRequest(req, body, pub))
}

func TestNewSignerRejectsBadKey(t *testing.T) {
	_, err := NewSigner("https://remote.example/actor#main-key", "garbage")
	assert.ErrorIs(t, err, ErrMalformedKey)
}
