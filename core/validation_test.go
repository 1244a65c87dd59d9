package core

import (
	"strings"
	"testing"
)

func TestRequestValidator_ValidateSend(t *testing.T) {
	validator, err := NewRequestValidator(testAppURL)
	if err != nil {
		t.Fatalf("new validator: %v", err)
	}
	valid := SendRequest{FID: 1, AppFID: 2, Title: "Hello", Body: "World"}

	cases := []struct {
		name    string
		mutate  func(*SendRequest)
		message string
		target  string
	}{
		{name: "valid", mutate: func(*SendRequest) {}},
		{name: "missing fid", mutate: func(r *SendRequest) { r.FID = 0 }, message: MessageMissingFields},
		{name: "negative app fid", mutate: func(r *SendRequest) { r.AppFID = -3 }, message: MessageMissingFields},
		{name: "missing title", mutate: func(r *SendRequest) { r.Title = "" }, message: MessageMissingFields},
		{name: "missing body", mutate: func(r *SendRequest) { r.Body = "" }, message: MessageMissingFields},
		{name: "title at limit", mutate: func(r *SendRequest) { r.Title = strings.Repeat("t", 32) }},
		{name: "title over limit", mutate: func(r *SendRequest) { r.Title = strings.Repeat("t", 33) }, message: MessageTitleTooLong},
		{name: "multibyte title at limit", mutate: func(r *SendRequest) { r.Title = strings.Repeat("é", 32) }},
		{name: "body over limit", mutate: func(r *SendRequest) { r.Body = strings.Repeat("b", 129) }, message: MessageBodyTooLong},
		{name: "relative target", mutate: func(r *SendRequest) { r.TargetURL = "/events/1" }, target: testAppURL + "/events/1"},
		{name: "same origin target", mutate: func(r *SendRequest) { r.TargetURL = testAppURL + "/x?y=1" }, target: testAppURL + "/x?y=1"},
		{name: "foreign origin", mutate: func(r *SendRequest) { r.TargetURL = "https://evil.example/x" }, message: MessageTargetURLOrigin},
		{name: "scheme mismatch", mutate: func(r *SendRequest) { r.TargetURL = "http://tickbase.example/x" }, message: MessageTargetURLOrigin},
		{name: "protocol relative foreign", mutate: func(r *SendRequest) { r.TargetURL = "//evil.example/x" }, message: MessageTargetURLOrigin},
		{name: "explicit default port", mutate: func(r *SendRequest) { r.TargetURL = "https://tickbase.example:443/x" }, target: "https://tickbase.example:443/x"},
		{name: "uppercase host", mutate: func(r *SendRequest) { r.TargetURL = "https://TickBase.example/x" }, target: "https://TickBase.example/x"},
		{name: "other port", mutate: func(r *SendRequest) { r.TargetURL = "https://tickbase.example:8443/x" }, message: MessageTargetURLOrigin},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := valid
			tc.mutate(&req)
			got, err := validator.ValidateSend(req)
			if tc.message == "" {
				if err != nil {
					t.Fatalf("expected valid request, got %v", err)
				}
				if got.TargetURL != tc.target {
					t.Fatalf("expected target %q, got %q", tc.target, got.TargetURL)
				}
				return
			}
			if !IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if msg := PublicMessage(err); msg != tc.message {
				t.Fatalf("expected %q, got %q", tc.message, msg)
			}
		})
	}
}

func TestRequestValidator_ChecksRequiredFieldsFirst(t *testing.T) {
	validator, err := NewRequestValidator(testAppURL)
	if err != nil {
		t.Fatalf("new validator: %v", err)
	}
	_, err = validator.ValidateSend(SendRequest{AppFID: 2, Title: strings.Repeat("t", 40), Body: "b"})
	if PublicMessage(err) != MessageMissingFields {
		t.Fatalf("expected missing fields to win, got %q", PublicMessage(err))
	}
}

func TestNewRequestValidator_RejectsRelativeAppURL(t *testing.T) {
	if _, err := NewRequestValidator("/relative"); err == nil {
		t.Fatalf("expected error for relative app url")
	}
}

func TestRequestValidator_AppURLWithDefaultPort(t *testing.T) {
	v, err := NewRequestValidator("https://tickbase.example:443")
	if err != nil {
		t.Fatalf("validator: %v", err)
	}
	got, err := v.ResolveTargetURL("https://tickbase.example/events/2")
	if err != nil || got != "https://tickbase.example/events/2" {
		t.Fatalf("expected portless target accepted, got %q %v", got, err)
	}
	if _, err := v.ResolveTargetURL("http://tickbase.example:443/x"); err == nil {
		t.Fatalf("expected scheme mismatch to be rejected")
	}
}
