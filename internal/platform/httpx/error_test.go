package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
)

func TestWriteErrorMergesDetailsAndRequestID(t *testing.T) {
	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-42")
	rr := httptest.NewRecorder()

	WriteError(ctx, rr, NewError("insufficient_stock", "not enough stock", http.StatusConflict).
		WithDetails(map[string]any{"productId": "prod-lamp", "error": "ignored"}))

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	if rr.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("expected no-store cache header")
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "insufficient_stock" || body["productId"] != "prod-lamp" || body["request_id"] != "req-42" {
		t.Fatalf("unexpected body %v", body)
	}
	if body["status"] != float64(http.StatusConflict) {
		t.Fatalf("expected status field, got %v", body["status"])
	}
}

func TestNewErrorCleansInput(t *testing.T) {
	e := NewError("bad\ncode", strings.Repeat("₹", 300), 0)
	if e.Status != http.StatusInternalServerError {
		t.Fatalf("expected default status 500, got %d", e.Status)
	}
	if e.Code != "bad code" {
		t.Fatalf("expected newline to be flattened, got %q", e.Code)
	}
	if len(e.Message) > maxMessageLength || !strings.HasPrefix(e.Message, "₹") || strings.ContainsRune(e.Message, '�') {
		t.Fatalf("message not truncated on a rune boundary: %d bytes", len(e.Message))
	}
	if e.Error() != "bad code: "+e.Message {
		t.Fatalf("unexpected Error() %q", e.Error())
	}
}
