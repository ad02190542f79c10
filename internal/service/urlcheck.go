package service

import (
	"errors"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrInvalidURL is returned when the submitted URL is empty, malformed
	// or points at a disallowed host.
	ErrInvalidURL = errors.New("invalid url")
	// ErrUnsafeURL is returned when the submitted URL starts with a
	// dangerous scheme such as javascript: or data:.
	ErrUnsafeURL = errors.New("unsafe url")
)

// Checked case-insensitively against the raw input, before any
// normalization, to catch payloads hidden behind the scheme check.
var dangerousSchemes = []string{
	"javascript:",
	"data:",
	"vbscript:",
	"file:",
	"ftp:",
}

var hostValidate = validator.New()

// ValidateURL validates and normalizes a submitted URL. Inputs without a
// scheme get https:// prepended before validation. The returned form is
// canonical: lowercase scheme and host, re-serialized through net/url, so
// validating it again yields the same string.
func ValidateURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidURL
	}

	lowered := strings.ToLower(raw)
	for _, scheme := range dangerousSchemes {
		if strings.HasPrefix(lowered, scheme) {
			return "", ErrUnsafeURL
		}
	}

	withScheme := raw
	if !strings.HasPrefix(lowered, "http://") && !strings.HasPrefix(lowered, "https://") {
		withScheme = "https://" + raw
	}

	u, err := url.Parse(withScheme)
	if err != nil {
		return "", ErrInvalidURL
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", ErrInvalidURL
	}

	host := u.Hostname()
	if host == "" {
		return "", ErrInvalidURL
	}

	hostLowered := strings.ToLower(host)
	if hostLowered == "localhost" || hostLowered == "127.0.0.1" || strings.HasSuffix(hostLowered, ".local") {
		return "", ErrInvalidURL
	}

	if hostValidate.Var(host, "fqdn") != nil && hostValidate.Var(host, "ip") != nil {
		return "", ErrInvalidURL
	}

	u.Scheme = scheme
	u.Host = strings.ToLower(u.Host)

	return u.String(), nil
}
