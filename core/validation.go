package core

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	goerrors "github.com/goliatone/go-errors"
)

// RequestValidator checks application send requests before any lookup or
// delivery happens. Checks run in a fixed order and the first failure wins.
type RequestValidator struct {
	validate  *validator.Validate
	appOrigin *url.URL
}

func NewRequestValidator(appURL string) (*RequestValidator, error) {
	origin, err := parseOrigin(appURL)
	if err != nil {
		return nil, err
	}
	return &RequestValidator{
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		appOrigin: origin,
	}, nil
}

// ValidateSend returns req with TargetURL resolved to an absolute URL on the
// app origin. An empty target stays empty.
func (v *RequestValidator) ValidateSend(req SendRequest) (SendRequest, error) {
	if err := v.validateStruct(req); err != nil {
		return SendRequest{}, err
	}
	if err := validateTexts(req.Title, req.Body); err != nil {
		return SendRequest{}, err
	}
	target, err := v.ResolveTargetURL(req.TargetURL)
	if err != nil {
		return SendRequest{}, err
	}
	req.TargetURL = target
	return req, nil
}

func (v *RequestValidator) ValidateBroadcast(req BroadcastRequest) (BroadcastRequest, error) {
	if err := v.validateStruct(req); err != nil {
		return BroadcastRequest{}, err
	}
	if err := validateTexts(req.Title, req.Body); err != nil {
		return BroadcastRequest{}, err
	}
	target, err := v.ResolveTargetURL(req.TargetURL)
	if err != nil {
		return BroadcastRequest{}, err
	}
	req.TargetURL = target
	return req, nil
}

// ResolveTargetURL resolves target against the app URL and rejects results
// outside the app's origin. Default ports are equivalent to no port.
func (v *RequestValidator) ResolveTargetURL(target string) (string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", nil
	}
	parsed, err := url.Parse(target)
	if err != nil {
		return "", ValidationError("targetUrl", MessageTargetURLOrigin)
	}
	resolved := v.appOrigin.ResolveReference(parsed)
	if originOf(resolved) != originOf(v.appOrigin) {
		return "", ValidationError("targetUrl", MessageTargetURLOrigin)
	}
	return resolved.String(), nil
}

// originOf is scheme://host:port with the scheme's default port filled in.
func originOf(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	port := u.Port()
	if port == "" {
		switch scheme {
		case "https":
			port = "443"
		case "http":
			port = "80"
		}
	}
	return scheme + "://" + strings.ToLower(u.Hostname()) + ":" + port
}

func (v *RequestValidator) validateStruct(req any) error {
	err := v.validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return BadInputError(MessageInvalidBody, nil)
	}
	fields := make([]goerrors.FieldError, 0, len(fieldErrs))
	for _, fieldErr := range fieldErrs {
		fields = append(fields, goerrors.FieldError{
			Field:   fieldErr.Field(),
			Message: fieldErr.Tag(),
		})
	}
	return goerrors.NewValidation(MessageMissingFields, fields...).
		WithCode(http.StatusBadRequest).
		WithTextCode(ServiceErrorBadInput)
}

func validateTexts(title string, body string) error {
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return ValidationError("title", MessageTitleTooLong)
	}
	if utf8.RuneCountInString(body) > MaxBodyLength {
		return ValidationError("body", MessageBodyTooLong)
	}
	return nil
}
