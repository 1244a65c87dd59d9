package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/goliatone/go-notify/core"
)

const (
	messageNoToken           = "No notification token for recipient"
	messageRateLimited       = "Rate limited"
	messageDeliveryFailed    = "Failed to deliver notification"
	messageBroadcastDisabled = "Broadcast is not supported by the configured store"
)

type sendResponse struct {
	Success bool   `json:"success"`
	State   string `json:"state"`
	Error   string `json:"error,omitempty"`
}

type broadcastResponse struct {
	Success   bool                        `json:"success"`
	AppFID    int64                       `json:"appFid"`
	Attempted int                         `json:"attempted"`
	Counts    map[core.DeliveryStatus]int `json:"counts"`
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := io.ReadAll(io.LimitReader(r.Body, s.maxBodyBytes+1))
	if err != nil {
		s.logger.WithContext(ctx).Warn("webhook body read failed", "error", err.Error())
		writeError(w, http.StatusUnauthorized, core.MessageInvalidSignature)
		return
	}

	result, err := s.webhooks.Process(ctx, core.InboundRequest{
		Surface: "webhook",
		Headers: map[string]string{"Content-Type": r.Header.Get("Content-Type")},
		Body:    body,
		Metadata: map[string]any{
			"request_id": middleware.GetReqID(ctx),
		},
	})
	if err != nil {
		fields := append(fieldsFromMetadata(result.Metadata), "error", err.Error(), "request_id", middleware.GetReqID(ctx))
		if core.IsAuthentication(err) || result.StatusCode == http.StatusUnauthorized {
			s.logger.WithContext(ctx).Warn("webhook rejected", fields...)
			writeError(w, http.StatusUnauthorized, core.MessageInvalidSignature)
			return
		}
		s.logger.WithContext(ctx).Error("webhook processing failed", fields...)
		writeError(w, http.StatusInternalServerError, core.MessageInternalError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req core.SendRequest
	if !s.decode(w, r, &req) {
		return
	}
	outcome, err := s.notifications.SendNotification(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	switch outcome.Status {
	case core.DeliveryStatusSuccess:
		writeJSON(w, http.StatusOK, sendResponse{Success: true, State: string(outcome.Status)})
	case core.DeliveryStatusNoToken:
		writeJSON(w, http.StatusNotFound, sendResponse{State: string(outcome.Status), Error: messageNoToken})
	case core.DeliveryStatusRateLimit:
		writeJSON(w, http.StatusTooManyRequests, sendResponse{State: string(outcome.Status), Error: messageRateLimited})
	default:
		writeJSON(w, http.StatusBadGateway, sendResponse{State: string(core.DeliveryStatusError), Error: messageDeliveryFailed})
	}
}

func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var req core.BroadcastRequest
	if !s.decode(w, r, &req) {
		return
	}
	summary, err := s.notifications.Broadcast(r.Context(), req)
	if err != nil {
		if mapped := core.MapError(err); mapped != nil && mapped.Code == http.StatusNotImplemented {
			writeError(w, http.StatusNotImplemented, messageBroadcastDisabled)
			return
		}
		s.writeServiceError(w, r, err)
		return
	}
	counts := summary.Counts
	if counts == nil {
		counts = map[core.DeliveryStatus]int{}
	}
	writeJSON(w, http.StatusOK, broadcastResponse{
		Success:   true,
		AppFID:    summary.AppFID,
		Attempted: summary.Attempted,
		Counts:    counts,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(io.LimitReader(r.Body, s.maxBodyBytes))
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, core.MessageInvalidBody)
		return false
	}
	return true
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	mapped := core.MapError(err)
	status := http.StatusInternalServerError
	if mapped != nil && mapped.Code >= 400 && mapped.Code < 600 {
		status = mapped.Code
	}
	if status >= http.StatusInternalServerError {
		s.logger.WithContext(r.Context()).Error("request failed",
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err.Error(),
		)
	}
	writeError(w, status, core.PublicMessage(err))
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func fieldsFromMetadata(metadata map[string]any) []any {
	fields := make([]any, 0, len(metadata)*2)
	for key, value := range metadata {
		fields = append(fields, key, value)
	}
	return fields
}
