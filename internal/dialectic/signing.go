package dialectic

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/r3e-network/agent-governance/internal/crypto"
	"github.com/r3e-network/agent-governance/internal/model"
)

// canonicalEncoding produces the sorted-key, whitespace-free JSON encoding
// of a message's content, excluding the signature field itself, per §4.4's
// message-signing contract.
func canonicalEncoding(msg model.DialecticMessage) ([]byte, error) {
	msg.Signature = nil

	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}

	var generic map[string]json.RawMessage
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(generic))
	for k := range generic {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		buf.Write(kb)
		buf.WriteByte(':')
		var v interface{}
		if err := json.Unmarshal(generic[k], &v); err != nil {
			return nil, err
		}
		vb, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// SignMessage signs msg with the author's api_key_hash (the key), setting
// its Signature field.
func SignMessage(apiKeyHash []byte, msg *model.DialecticMessage) error {
	encoded, err := canonicalEncoding(*msg)
	if err != nil {
		return err
	}
	msg.Signature = crypto.HMACSign(apiKeyHash, encoded)
	return nil
}

// verifySignature checks msg's signature against the author's api_key_hash.
func verifySignature(apiKeyHash []byte, msg model.DialecticMessage) bool {
	sig := msg.Signature
	encoded, err := canonicalEncoding(msg)
	if err != nil {
		return false
	}
	return crypto.HMACVerify(apiKeyHash, encoded, sig)
}
