package webhooks

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/goliatone/go-notify/core"
)

type stubAppKeys struct {
	result AppKeyResult
	err    error
	calls  int
	key    string
}

func (s *stubAppKeys) VerifyAppKey(_ context.Context, _ int64, appKey string) (AppKeyResult, error) {
	s.calls++
	s.key = appKey
	return s.result, s.err
}

func newTestKey(t *testing.T) ed25519.PrivateKey {
	t.Helper()
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i + 1)
	}
	return ed25519.NewKeyFromSeed(seed)
}

func publicKeyHex(key ed25519.PrivateKey) string {
	return "0x" + hex.EncodeToString(key.Public().(ed25519.PublicKey))
}

func signedBody(t *testing.T, key ed25519.PrivateKey, fid int64, event string, details *core.NotificationDetails) []byte {
	t.Helper()
	envelope, err := SignEnvelope(fid, key, event, details)
	if err != nil {
		t.Fatalf("sign envelope: %v", err)
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return body
}

// signedKeyRequestMetadata ABI encodes (requestFid, requestSigner, signature,
// deadline) as a single dynamic tuple argument.
func signedKeyRequestMetadata(requestFID int64) []byte {
	word := func(value *big.Int) []byte {
		out := make([]byte, abiWordSize)
		value.FillBytes(out)
		return out
	}
	out := []byte{}
	out = append(out, word(big.NewInt(32))...)
	out = append(out, word(big.NewInt(requestFID))...)
	out = append(out, word(big.NewInt(0xabcdef))...)
	out = append(out, word(big.NewInt(128))...)
	out = append(out, word(big.NewInt(1_900_000_000))...)
	out = append(out, word(big.NewInt(0))...)
	return out
}
