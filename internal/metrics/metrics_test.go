package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHelpersBeforeInit(t *testing.T) {
	if storeCalls != nil {
		t.Skip("collectors already registered by another test")
	}
	// Must not panic.
	ObserveRequest("/telemetry", http.MethodGet, 200, time.Millisecond)
	IncAuthRejected()
	ObserveStoreCall("list", nil, time.Millisecond)
	IncStreamChange("INSERT")
}

func TestInit_Idempotent(t *testing.T) {
	Init()
	Init()
	if httpRequests == nil || storeCalls == nil || streamChanges == nil {
		t.Fatal("expected collectors to be initialized")
	}
}

func TestObserveStoreCall(t *testing.T) {
	Init()

	before := testutil.ToFloat64(storeCalls.WithLabelValues("create", resultError))
	ObserveStoreCall("create", errors.New("boom"), 10*time.Millisecond)
	after := testutil.ToFloat64(storeCalls.WithLabelValues("create", resultError))

	if after-before != 1 {
		t.Errorf("expected error counter to increase by 1, got %v", after-before)
	}
}

func TestObserveRequest_UnmatchedRoute(t *testing.T) {
	Init()

	before := testutil.ToFloat64(httpRequests.WithLabelValues("unmatched", http.MethodGet, "404"))
	ObserveRequest("", http.MethodGet, 404, time.Millisecond)
	after := testutil.ToFloat64(httpRequests.WithLabelValues("unmatched", http.MethodGet, "404"))

	if after-before != 1 {
		t.Errorf("expected counter to increase by 1, got %v", after-before)
	}
}

func TestIncStreamChange_DefaultLabel(t *testing.T) {
	Init()

	before := testutil.ToFloat64(streamChanges.WithLabelValues("unknown"))
	IncStreamChange("")
	after := testutil.ToFloat64(streamChanges.WithLabelValues("unknown"))

	if after-before != 1 {
		t.Errorf("expected counter to increase by 1, got %v", after-before)
	}
}

func TestHandler_ExposesMetrics(t *testing.T) {
	Init()
	IncAuthRejected()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), metricPrefix+"auth_rejected_total") {
		t.Error("expected auth_rejected_total in exposition output")
	}
}
