package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

type aliasBody struct {
	Word  string `json:"word" validate:"required,min=2"`
	Limit int    `json:"limit" default:"10" validate:"max=50"`
}

func newContext(body string) echo.Context {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return echo.New().NewContext(req, httptest.NewRecorder())
}

func TestReadAndValidateRequest(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantCode  string
		wantField string
	}{
		{"ok", `{"word":"head"}`, "", ""},
		{"missing", `{}`, "ERR_REQUIRED", "word"},
		{"short", `{"word":"h"}`, "ERR_MIN", "word"},
		{"too many", `{"word":"head","limit":99}`, "ERR_MAX", "limit"},
		{"malformed", `{"word":`, "ERR_MALFORMED", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &aliasBody{}
			errs := ReadAndValidateRequest(newContext(tt.body), req)
			if tt.wantCode == "" {
				if errs != nil {
					t.Fatalf("unexpected errors %+v", errs)
				}
				if req.Limit != 10 {
					t.Fatalf("default not applied: %+v", req)
				}
				return
			}
			if len(errs) != 1 || errs[0].Code != tt.wantCode || errs[0].Field != tt.wantField {
				t.Fatalf("errors = %+v", errs)
			}
		})
	}
}

func TestAppErrorResponse(t *testing.T) {
	c := newContext("")
	if err := AppErrorResponse(c, ConflictError(errors.New("alias taken"))); err != nil {
		t.Fatalf("write: %v", err)
	}
	rec := c.Response().Writer.(*httptest.ResponseRecorder)
	if rec.Code != http.StatusConflict || !strings.Contains(rec.Body.String(), "ERR_CONFLICT") {
		t.Fatalf("got %d %s", rec.Code, rec.Body.String())
	}

	c = newContext("")
	_ = AppErrorResponse(c, errors.New("db password leaked"))
	rec = c.Response().Writer.(*httptest.ResponseRecorder)
	if rec.Code != http.StatusInternalServerError || strings.Contains(rec.Body.String(), "password") {
		t.Fatalf("got %d %s", rec.Code, rec.Body.String())
	}
}
