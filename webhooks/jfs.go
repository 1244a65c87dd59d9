package webhooks

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-notify/core"
)

const appKeyHeaderType = "app_key"

var (
	ErrMalformedEnvelope  = errors.New("webhooks: malformed signature envelope")
	ErrUnsupportedKeyType = errors.New("webhooks: unsupported key type")
	ErrSignatureMismatch  = errors.New("webhooks: signature verification failed")
	ErrInactiveAppKey     = errors.New("webhooks: app key is not active for fid")
)

// Envelope is the JSON Farcaster Signature wrapper posted by clients. Each
// part is base64url encoded; the signature covers "header.payload".
type Envelope struct {
	Header    string `json:"header"`
	Payload   string `json:"payload"`
	Signature string `json:"signature"`
}

type envelopeHeader struct {
	FID  int64  `json:"fid"`
	Type string `json:"type"`
	Key  string `json:"key"`
}

type eventPayload struct {
	Event               string                    `json:"event"`
	NotificationDetails *core.NotificationDetails `json:"notificationDetails,omitempty"`
}

type AppKeyResult struct {
	Valid  bool
	AppFID int64
}

// AppKeyVerifier asks an external authority whether appKey is an active app
// key for fid and which app registered it.
type AppKeyVerifier interface {
	VerifyAppKey(ctx context.Context, fid int64, appKey string) (AppKeyResult, error)
}

type JFSVerifier struct {
	AppKeys AppKeyVerifier
}

func NewJFSVerifier(appKeys AppKeyVerifier) *JFSVerifier {
	return &JFSVerifier{AppKeys: appKeys}
}

// Verify authenticates body and decodes the event it carries. Every failure is
// an authentication error; the cause is only kept for logs.
func (v *JFSVerifier) Verify(ctx context.Context, body []byte) (core.Event, error) {
	event, fid, err := v.verify(ctx, body)
	if err != nil {
		metadata := map[string]any{}
		if fid > 0 {
			metadata["fid"] = fid
		}
		return nil, core.AuthenticationError(err, metadata)
	}
	return event, nil
}

func (v *JFSVerifier) verify(ctx context.Context, body []byte) (core.Event, int64, error) {
	if v == nil || v.AppKeys == nil {
		return nil, 0, fmt.Errorf("webhooks: app key verifier is not configured")
	}
	var envelope Envelope
	decoder := json.NewDecoder(bytes.NewReader(body))
	if err := decoder.Decode(&envelope); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if envelope.Header == "" || envelope.Payload == "" || envelope.Signature == "" {
		return nil, 0, fmt.Errorf("%w: header, payload and signature are required", ErrMalformedEnvelope)
	}

	headerRaw, err := decodeSegment(envelope.Header)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: header: %v", ErrMalformedEnvelope, err)
	}
	var header envelopeHeader
	if err := json.Unmarshal(headerRaw, &header); err != nil {
		return nil, 0, fmt.Errorf("%w: header: %v", ErrMalformedEnvelope, err)
	}
	if header.FID <= 0 {
		return nil, 0, fmt.Errorf("%w: header fid must be positive", ErrMalformedEnvelope)
	}
	if header.Type != appKeyHeaderType {
		return nil, header.FID, fmt.Errorf("%w: %q", ErrUnsupportedKeyType, header.Type)
	}
	publicKey, err := decodePublicKey(header.Key)
	if err != nil {
		return nil, header.FID, err
	}
	signature, err := decodeSegment(envelope.Signature)
	if err != nil {
		return nil, header.FID, fmt.Errorf("%w: signature: %v", ErrMalformedEnvelope, err)
	}
	if len(signature) != ed25519.SignatureSize {
		return nil, header.FID, fmt.Errorf("%w: signature must be %d bytes", ErrMalformedEnvelope, ed25519.SignatureSize)
	}
	if !ed25519.Verify(publicKey, []byte(envelope.Header+"."+envelope.Payload), signature) {
		return nil, header.FID, ErrSignatureMismatch
	}

	payloadRaw, err := decodeSegment(envelope.Payload)
	if err != nil {
		return nil, header.FID, fmt.Errorf("%w: payload: %v", ErrMalformedEnvelope, err)
	}
	var payload eventPayload
	if err := json.Unmarshal(payloadRaw, &payload); err != nil {
		return nil, header.FID, fmt.Errorf("%w: payload: %v", ErrMalformedEnvelope, err)
	}
	if strings.TrimSpace(payload.Event) == "" {
		return nil, header.FID, fmt.Errorf("%w: payload event is required", ErrMalformedEnvelope)
	}

	result, err := v.AppKeys.VerifyAppKey(ctx, header.FID, header.Key)
	if err != nil {
		return nil, header.FID, fmt.Errorf("webhooks: verify app key: %w", err)
	}
	if !result.Valid {
		return nil, header.FID, ErrInactiveAppKey
	}

	event, err := core.ParseEvent(core.RecipientKey{FID: header.FID, AppFID: result.AppFID}, payload.Event, payload.NotificationDetails)
	if err != nil {
		return nil, header.FID, err
	}
	return event, header.FID, nil
}

// SignEnvelope produces an envelope for payload signed by privateKey on behalf
// of fid. Clients and fixtures use it to build valid webhook bodies.
func SignEnvelope(fid int64, privateKey ed25519.PrivateKey, event string, details *core.NotificationDetails) (Envelope, error) {
	if len(privateKey) != ed25519.PrivateKeySize {
		return Envelope{}, fmt.Errorf("webhooks: invalid ed25519 private key")
	}
	publicKey, _ := privateKey.Public().(ed25519.PublicKey)
	headerRaw, err := json.Marshal(envelopeHeader{
		FID:  fid,
		Type: appKeyHeaderType,
		Key:  "0x" + hex.EncodeToString(publicKey),
	})
	if err != nil {
		return Envelope{}, err
	}
	payloadRaw, err := json.Marshal(eventPayload{Event: event, NotificationDetails: details})
	if err != nil {
		return Envelope{}, err
	}
	header := base64.RawURLEncoding.EncodeToString(headerRaw)
	payload := base64.RawURLEncoding.EncodeToString(payloadRaw)
	signature := ed25519.Sign(privateKey, []byte(header+"."+payload))
	return Envelope{
		Header:    header,
		Payload:   payload,
		Signature: base64.RawURLEncoding.EncodeToString(signature),
	}, nil
}

func decodeSegment(segment string) ([]byte, error) {
	segment = strings.TrimSpace(segment)
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(segment, "="))
}

func decodePublicKey(raw string) (ed25519.PublicKey, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: key: %v", ErrMalformedEnvelope, err)
	}
	if len(decoded) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes", ErrMalformedEnvelope, ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(decoded), nil
}
