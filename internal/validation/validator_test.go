// CineScope Edge - Offline Caching and Sync Gateway for CineScope+
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinescope

package validation

import (
	"context"
	"net/url"
	"strings"
	"testing"
)

func TestGetValidator_Singleton(t *testing.T) {
	v1 := GetValidator()
	v2 := GetValidator()

	if v1 != v2 {
		t.Error("GetValidator() should return the same singleton instance")
	}
	if v1 == nil {
		t.Error("GetValidator() should not return nil")
	}
}

type testCommand struct {
	Type string   `json:"type" validate:"required,oneof=SKIP_WAITING CACHE_URLS CLEAR_CACHE"`
	URLs []string `json:"urls" validate:"required_if=Type CACHE_URLS,max=3,dive,fetchurl"`
}

type testPayload struct {
	Title string `json:"title" validate:"max=5"`
	Skip  string `json:"-" validate:"omitempty,min=2"`
}

func TestValidateStruct_Valid(t *testing.T) {
	tests := []struct {
		name  string
		input testCommand
	}{
		{"skip waiting", testCommand{Type: "SKIP_WAITING"}},
		{"clear cache", testCommand{Type: "CLEAR_CACHE"}},
		{"cache relative urls", testCommand{Type: "CACHE_URLS", URLs: []string{"/", "/movies/1?tab=cast"}}},
		{"cache absolute url", testCommand{Type: "CACHE_URLS", URLs: []string{"https://image.tmdb.org/t/p/w500/a.jpg"}}},
	}

	ctx := WithHostAllower(context.Background(), hostSet{"image.tmdb.org": true})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateStructCtx(ctx, &tt.input); err != nil {
				t.Errorf("ValidateStruct() returned unexpected error: %v", err)
			}
		})
	}
}

func TestValidateStruct_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		input     testCommand
		wantField string
		wantTag   string
	}{
		{"missing type", testCommand{}, "type", "required"},
		{"unknown type", testCommand{Type: "RELOAD"}, "type", "oneof"},
		{"cache without urls", testCommand{Type: "CACHE_URLS"}, "urls", "required_if"},
		{"protocol relative url", testCommand{Type: "CACHE_URLS", URLs: []string{"//evil.example/x"}}, "urls[0]", "fetchurl"},
		{"ftp url", testCommand{Type: "CACHE_URLS", URLs: []string{"/ok", "ftp://files/x"}}, "urls[1]", "fetchurl"},
		{"empty url", testCommand{Type: "CACHE_URLS", URLs: []string{""}}, "urls[0]", "fetchurl"},
		{"too many urls", testCommand{Type: "CACHE_URLS", URLs: []string{"/a", "/b", "/c", "/d"}}, "urls", "max"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(&tt.input)
			if err == nil {
				t.Fatal("expected validation error")
			}
			errs := err.Errors()
			if len(errs) != 1 {
				t.Fatalf("expected 1 error, got %d: %v", len(errs), err)
			}
			if errs[0].Field() != tt.wantField {
				t.Errorf("Field() = %q, want %q", errs[0].Field(), tt.wantField)
			}
			if errs[0].Tag() != tt.wantTag {
				t.Errorf("Tag() = %q, want %q", errs[0].Tag(), tt.wantTag)
			}
		})
	}
}

func TestTranslateError_Messages(t *testing.T) {
	tests := []struct {
		name  string
		input interface{}
		want  string
	}{
		{"oneof", &testCommand{Type: "NOPE"}, "type must be one of: SKIP_WAITING CACHE_URLS CLEAR_CACHE"},
		{"fetchurl", &testCommand{Type: "CACHE_URLS", URLs: []string{"x"}}, "urls[0] must be a path starting with / or an absolute http(s) URL on an allowed host"},
		{"slice max", &testCommand{Type: "CACHE_URLS", URLs: []string{"/a", "/b", "/c", "/d"}}, "urls must contain at most 3 items"},
		{"string max", &testPayload{Title: "too long"}, "title must be at most 5 characters"},
		{"dash json tag uses field name", &testPayload{Skip: "x"}, "Skip must be at least 2 characters"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(tt.input)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if got := err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestToAPIError_SingleError(t *testing.T) {
	err := ValidateStruct(&testCommand{Type: "NOPE"})
	if err == nil {
		t.Fatal("expected error")
	}
	apiErr := err.ToAPIError()
	if apiErr.Code != "VALIDATION_ERROR" {
		t.Errorf("Code = %q", apiErr.Code)
	}
	if apiErr.Details["field"] != "type" || apiErr.Details["tag"] != "oneof" {
		t.Errorf("Details = %v", apiErr.Details)
	}
}

func TestToAPIError_MultipleErrors(t *testing.T) {
	err := ValidateStruct(&testCommand{Type: "CACHE_URLS", URLs: []string{"x", "y"}})
	if err == nil {
		t.Fatal("expected error")
	}
	apiErr := err.ToAPIError()
	fields, ok := apiErr.Details["fields"].([]map[string]interface{})
	if !ok || len(fields) != 2 {
		t.Fatalf("Details = %v", apiErr.Details)
	}
	if !strings.Contains(apiErr.Message, "urls[0]:") || !strings.Contains(apiErr.Message, "urls[1]:") {
		t.Errorf("Message = %q", apiErr.Message)
	}
}

func TestToAPIError_Empty(t *testing.T) {
	ve := &RequestValidationError{}
	if ve.Error() != "validation failed" {
		t.Errorf("Error() = %q", ve.Error())
	}
	if ve.ToAPIError().Message != "Validation failed" {
		t.Errorf("Message = %q", ve.ToAPIError().Message)
	}
}

// hostSet allows absolute URLs whose host is in the set.
type hostSet map[string]bool

func (s hostSet) AllowsURL(u *url.URL) bool { return s[u.Host] }

func TestValidateStructCtx_AbsoluteURLHosts(t *testing.T) {
	allowed := WithHostAllower(context.Background(), hostSet{"image.tmdb.org": true})

	tests := []struct {
		name    string
		ctx     context.Context
		url     string
		wantErr bool
	}{
		{"allowed host", allowed, "https://image.tmdb.org/t/p/a.jpg", false},
		{"relative path without allower", context.Background(), "/movies/1", false},
		{"foreign host", allowed, "http://169.254.169.254/latest/meta-data", true},
		{"internal host", allowed, "http://localhost:8080/admin", true},
		{"absolute url without allower", context.Background(), "https://image.tmdb.org/t/p/a.jpg", true},
		{"nil allower", WithHostAllower(context.Background(), nil), "https://image.tmdb.org/t/p/a.jpg", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStructCtx(tt.ctx, &testCommand{Type: "CACHE_URLS", URLs: []string{tt.url}})
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateStructCtx() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && err.Errors()[0].Tag() != "fetchurl" {
				t.Errorf("Tag() = %q, want fetchurl", err.Errors()[0].Tag())
			}
		})
	}
}
