package webhooks

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-notify/core"
	"github.com/goliatone/go-notify/transport"
)

const (
	DefaultHubURL = "https://hub-api.neynar.com"

	hubSignersPath       = "/v1/onChainSignersByFid"
	hubEventTypeSigner   = "EVENT_TYPE_SIGNER"
	hubSignerEventAdd    = "SIGNER_EVENT_TYPE_ADD"
	defaultHubTimeout    = 5 * time.Second
	abiWordSize          = 32
	signedKeyRequestWord = 1
)

// HubAppKeyVerifier checks app keys against a Farcaster hub HTTP API. The
// app fid is the requestFid of the signed key request metadata attached to
// the signer add event.
type HubAppKeyVerifier struct {
	Transport core.TransportAdapter
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
}

func NewHubAppKeyVerifier(adapter core.TransportAdapter, baseURL string, apiKey string) *HubAppKeyVerifier {
	if adapter == nil {
		adapter = transport.NewRESTAdapter(nil)
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultHubURL
	}
	return &HubAppKeyVerifier{
		Transport: adapter,
		BaseURL:   strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		APIKey:    strings.TrimSpace(apiKey),
		Timeout:   defaultHubTimeout,
	}
}

type hubSignerEventBody struct {
	Key       string `json:"key"`
	EventType string `json:"eventType"`
	Metadata  string `json:"metadata"`
}

type hubOnChainEvent struct {
	Type            string             `json:"type"`
	FID             int64              `json:"fid"`
	SignerEventBody hubSignerEventBody `json:"signerEventBody"`
}

type hubSignersResponse struct {
	Events []hubOnChainEvent `json:"events"`
}

func (v *HubAppKeyVerifier) VerifyAppKey(ctx context.Context, fid int64, appKey string) (AppKeyResult, error) {
	if v == nil || v.Transport == nil {
		return AppKeyResult{}, fmt.Errorf("webhooks: hub transport is not configured")
	}
	headers := map[string]string{"Accept": "application/json"}
	if v.APIKey != "" {
		headers["x-api-key"] = v.APIKey
	}
	res, err := v.Transport.Do(ctx, core.TransportRequest{
		Method:  http.MethodGet,
		URL:     v.BaseURL + hubSignersPath,
		Headers: headers,
		Query: map[string]string{
			"fid":    strconv.FormatInt(fid, 10),
			"signer": appKey,
		},
		Timeout: v.Timeout,
	})
	if err != nil {
		return AppKeyResult{}, err
	}
	if res.StatusCode == http.StatusNotFound {
		return AppKeyResult{Valid: false}, nil
	}
	if res.StatusCode != http.StatusOK {
		return AppKeyResult{}, fmt.Errorf("webhooks: hub returned status %d", res.StatusCode)
	}

	events, err := decodeHubEvents(res.Body)
	if err != nil {
		return AppKeyResult{}, err
	}
	for _, event := range events {
		if event.Type != hubEventTypeSigner || event.SignerEventBody.EventType != hubSignerEventAdd {
			continue
		}
		if !strings.EqualFold(strings.TrimPrefix(event.SignerEventBody.Key, "0x"), strings.TrimPrefix(appKey, "0x")) {
			continue
		}
		if event.FID != 0 && event.FID != fid {
			continue
		}
		metadata, err := base64.StdEncoding.DecodeString(event.SignerEventBody.Metadata)
		if err != nil {
			return AppKeyResult{}, fmt.Errorf("webhooks: decode signer metadata: %w", err)
		}
		appFID, err := DecodeRequestFID(metadata)
		if err != nil {
			return AppKeyResult{}, err
		}
		return AppKeyResult{Valid: true, AppFID: appFID}, nil
	}
	return AppKeyResult{Valid: false}, nil
}

// Hubs answer a signer-filtered query with a single event and an unfiltered
// one with an events list; both shapes are accepted.
func decodeHubEvents(body []byte) ([]hubOnChainEvent, error) {
	var list hubSignersResponse
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("webhooks: decode hub response: %w", err)
	}
	if len(list.Events) > 0 {
		return list.Events, nil
	}
	var single hubOnChainEvent
	if err := json.Unmarshal(body, &single); err != nil {
		return nil, fmt.Errorf("webhooks: decode hub response: %w", err)
	}
	if single.Type == "" {
		return nil, nil
	}
	return []hubOnChainEvent{single}, nil
}

// DecodeRequestFID reads requestFid from ABI encoded SignedKeyRequestMetadata
// (tuple offset, then requestFid as the first tuple word).
func DecodeRequestFID(metadata []byte) (int64, error) {
	end := (signedKeyRequestWord + 1) * abiWordSize
	if len(metadata) < end {
		return 0, fmt.Errorf("webhooks: signer metadata too short (%d bytes)", len(metadata))
	}
	word := new(big.Int).SetBytes(metadata[signedKeyRequestWord*abiWordSize : end])
	if !word.IsInt64() || word.Int64() <= 0 {
		return 0, fmt.Errorf("webhooks: signer metadata request fid out of range")
	}
	return word.Int64(), nil
}
