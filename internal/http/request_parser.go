// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data.
// Handlers accept both JSON and form-encoded bodies through one parser.

package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"

	"lifedesk/internal/calendar"
	"lifedesk/internal/core"
)

const maxBodyBytes = 1 << 20

var errNotJSON = errors.New("expected a JSON object body")

// ParseMonthParam returns the "YYYY-MM" a request asks for. It accepts
// month=YYYY-MM, or year and month as numbers; missing parts come from today.
func ParseMonthParam(query url.Values, today core.Date) (string, error) {
	month := strings.TrimSpace(query.Get("month"))
	if strings.Contains(month, "-") {
		if _, _, err := calendar.ParseYearMonth(month); err != nil {
			return "", err
		}
		return month, nil
	}

	year := today.Year()
	m := int(today.Month())
	if v := strings.TrimSpace(query.Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			return "", fmt.Errorf("%w: year %q", core.ErrInvalidDate, v)
		}
		year = y
	}
	if month != "" {
		n, err := strconv.Atoi(month)
		if err != nil || n < 1 || n > 12 {
			return "", fmt.Errorf("%w: month %q", core.ErrInvalidDate, month)
		}
		m = n
	}
	return fmt.Sprintf("%04d-%02d", year, m), nil
}

// RequestBodyParser handles different content types for request body parsing.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]interface{}
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser creates a parser for the given request.
// It reads the body once, up to a fixed limit.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	if r.Body != nil {
		p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	}
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	// Try JSON first if content looks like JSON
	if p.body[0] == '{' || p.body[0] == '[' {
		p.jsonData = make(map[string]interface{})
		if err := sonic.Unmarshal(p.body, &p.jsonData); err != nil {
			p.jsonData = nil
			p.err = err
			return err
		}
		return nil
	}

	// Fall back to form parsing
	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Decode unmarshals a JSON body into v.
func (p *RequestBodyParser) Decode(v any) error {
	if err := p.Parse(); err != nil {
		return err
	}
	if p.jsonData == nil {
		return errNotJSON
	}
	return sonic.Unmarshal(p.body, v)
}

// Get returns a string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return strings.TrimSpace(sanitizeInput(stringValue(val)))
		}
	}
	if p.formData != nil {
		return strings.TrimSpace(sanitizeInput(p.formData.Get(key)))
	}
	return ""
}

// Has reports whether key was sent at all, even as an empty value.
func (p *RequestBodyParser) Has(key string) bool {
	if p.jsonData != nil {
		_, ok := p.jsonData[key]
		return ok
	}
	if p.formData != nil {
		return p.formData.Has(key)
	}
	return false
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// stringValue converts an interface{} to string.
func stringValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}
