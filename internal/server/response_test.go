package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

type errorEnvelope struct {
	Error struct {
		Status  int          `json:"status"`
		Code    string       `json:"code"`
		Message string       `json:"message"`
		Details []FieldError `json:"details"`
	} `json:"error"`
}

func TestJSON_WrapsData(t *testing.T) {
	rr := httptest.NewRecorder()
	JSON(rr, http.StatusCreated, map[string]int{"id": 7})

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("unexpected Content-Type %q", ct)
	}
	var body struct {
		Data map[string]int `json:"data"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data["id"] != 7 {
		t.Errorf("expected data.id 7, got %v", body.Data)
	}
}

func TestEnvelope_NilMetaIsObject(t *testing.T) {
	rr := httptest.NewRecorder()
	Envelope(rr, http.StatusOK, []int{}, nil)

	var body map[string]json.RawMessage
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(body["meta"]) != "{}" {
		t.Errorf("expected meta {}, got %s", body["meta"])
	}
	if string(body["data"]) != "[]" {
		t.Errorf("expected data [], got %s", body["data"])
	}
}

func TestWriteError(t *testing.T) {
	validation := goerrors.Wrap(errors.New("title missing"), goerrors.CategoryValidation, "invalid payload")
	validation.ValidationErrors = []goerrors.FieldError{{Field: "title", Message: "cannot be blank"}}

	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantCode    string
		wantMessage string
		wantDetails int
	}{
		{
			name:        "bad input with text code",
			err:         goerrors.Wrap(errors.New("page"), goerrors.CategoryBadInput, "invalid query parameters").WithTextCode("INVALID_PARAMS"),
			wantStatus:  http.StatusBadRequest,
			wantCode:    "INVALID_PARAMS",
			wantMessage: "invalid query parameters",
		},
		{
			name:        "validation",
			err:         validation,
			wantStatus:  http.StatusBadRequest,
			wantCode:    "VALIDATION_ERROR",
			wantMessage: "invalid payload",
			wantDetails: 1,
		},
		{
			name:        "not found",
			err:         goerrors.New("job opening not found", goerrors.CategoryNotFound),
			wantStatus:  http.StatusNotFound,
			wantCode:    "NOT_FOUND",
			wantMessage: "job opening not found",
		},
		{
			name:        "wrapped in fmt",
			err:         fmt.Errorf("handler: %w", goerrors.New("gone", goerrors.CategoryNotFound)),
			wantStatus:  http.StatusNotFound,
			wantCode:    "NOT_FOUND",
			wantMessage: "gone",
		},
		{
			name:        "internal category hides message",
			err:         goerrors.Wrap(errors.New("pool closed"), goerrors.CategoryInternal, "store failed").WithTextCode("STORE"),
			wantStatus:  http.StatusInternalServerError,
			wantCode:    "INTERNAL_ERROR",
			wantMessage: "an internal error occurred",
		},
		{
			name:        "plain error",
			err:         errors.New("boom"),
			wantStatus:  http.StatusInternalServerError,
			wantCode:    "INTERNAL_ERROR",
			wantMessage: "an internal error occurred",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/projects", nil)
			WriteError(rr, req, tc.err)

			if rr.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, rr.Code)
			}
			var body errorEnvelope
			if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Error.Status != tc.wantStatus {
				t.Errorf("expected body status %d, got %d", tc.wantStatus, body.Error.Status)
			}
			if body.Error.Code != tc.wantCode {
				t.Errorf("expected code %q, got %q", tc.wantCode, body.Error.Code)
			}
			if body.Error.Message != tc.wantMessage {
				t.Errorf("expected message %q, got %q", tc.wantMessage, body.Error.Message)
			}
			if len(body.Error.Details) != tc.wantDetails {
				t.Errorf("expected %d details, got %v", tc.wantDetails, body.Error.Details)
			}
		})
	}
}
