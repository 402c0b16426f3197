package httputil

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/HugoJanow/ArticlePulse/internal/errors"
	"github.com/HugoJanow/ArticlePulse/internal/logging"
)

func TestWriteErrorUsesTaxonomy(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/articles/9", nil)
	req = req.WithContext(logging.WithTraceID(req.Context(), "trace-9"))
	rec := httptest.NewRecorder()

	WriteError(rec, req, errors.PurchaseRequired("9"))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d", rec.Code)
	}
	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Code != "PURCHASE_REQUIRED" || body.TraceID != "trace-9" {
		t.Fatalf("body = %+v", body)
	}
}

func TestWriteErrorHidesCauseUnlessEnabled(t *testing.T) {
	cause := stderrors.New("pq: connection refused")
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	SetExposeCauses(false)
	rec := httptest.NewRecorder()
	WriteError(rec, req, errors.Internal("", cause))
	if strings.Contains(rec.Body.String(), "connection refused") {
		t.Fatal("cause leaked in production mode")
	}

	SetExposeCauses(true)
	defer SetExposeCauses(false)
	rec = httptest.NewRecorder()
	WriteError(rec, req, errors.Internal("", cause))
	if !strings.Contains(rec.Body.String(), "connection refused") {
		t.Fatal("cause missing in development mode")
	}
}

func TestWriteErrorForeignErrorIsInternal(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, httptest.NewRequest(http.MethodGet, "/", nil), stderrors.New("boom"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestReadJSON(t *testing.T) {
	var v struct {
		UserAddress string `json:"userAddress"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"userAddress":"0x1"}`))
	if err := ReadJSON(req, &v); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if v.UserAddress != "0x1" {
		t.Fatalf("decoded = %+v", v)
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
	if err := ReadJSON(req, &v); !errors.Is(err, errors.CodeValidation) {
		t.Fatalf("malformed body err = %v", err)
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(``))
	if err := ReadJSON(req, &v); !errors.Is(err, errors.CodeValidation) {
		t.Fatalf("empty body err = %v", err)
	}
}

func TestReadOptionalJSONAllowsEmptyBody(t *testing.T) {
	var v struct {
		UserAddress string `json:"userAddress"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	if err := ReadOptionalJSON(req, &v); err != nil {
		t.Fatalf("empty body: %v", err)
	}
	if err := ReadJSON(httptest.NewRequest(http.MethodPost, "/", strings.NewReader("")), &v); !errors.Is(err, errors.CodeValidation) {
		t.Fatalf("ReadJSON empty body = %v", err)
	}
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{bad"))
	if err := ReadOptionalJSON(req, &v); !errors.Is(err, errors.CodeValidation) {
		t.Fatalf("malformed body = %v", err)
	}
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"userAddress":"0xab"}`))
	if err := ReadOptionalJSON(req, &v); err != nil || v.UserAddress != "0xab" {
		t.Fatalf("decode = %v %+v", err, v)
	}
}
