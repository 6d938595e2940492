package dialectic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e-network/agent-governance/internal/model"
)

func TestSignAndVerifyRoundTrip(t *testing.T) {
	key := []byte("api-key-hash-bytes")
	msg := model.DialecticMessage{
		AuthorUUID: "u1", Kind: model.KindThesis, RootCause: "repeated identical tool calls without new information",
	}
	require.NoError(t, SignMessage(key, &msg))
	assert.True(t, verifySignature(key, msg))
}

func TestVerifyRejectsTamperedMessage(t *testing.T) {
	key := []byte("api-key-hash-bytes")
	msg := model.DialecticMessage{AuthorUUID: "u1", Kind: model.KindThesis, RootCause: "original"}
	require.NoError(t, SignMessage(key, &msg))

	msg.RootCause = "tampered"
	assert.False(t, verifySignature(key, msg))
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	msg := model.DialecticMessage{AuthorUUID: "u1", Kind: model.KindThesis, RootCause: "original"}
	require.NoError(t, SignMessage([]byte("key-a"), &msg))
	assert.False(t, verifySignature([]byte("key-b"), msg))
}

func TestCanonicalEncodingExcludesSignatureField(t *testing.T) {
	msg := model.DialecticMessage{AuthorUUID: "u1", Signature: []byte("stale")}
	encoded, err := canonicalEncoding(msg)
	require.NoError(t, err)
	assert.NotContains(t, string(encoded), "signature")
}
