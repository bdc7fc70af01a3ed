package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordNotification(t *testing.T) {
	okBefore := testutil.ToFloat64(Notifications.WithLabelValues(ResultOK))
	failedBefore := testutil.ToFloat64(Notifications.WithLabelValues(ResultFailed))

	RecordNotification(nil)
	RecordNotification(nil)
	RecordNotification(errors.New("chat not found"))

	if diff := cmp.Diff(okBefore+2, testutil.ToFloat64(Notifications.WithLabelValues(ResultOK))); diff != "" {
		t.Errorf("ok count mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(failedBefore+1, testutil.ToFloat64(Notifications.WithLabelValues(ResultFailed))); diff != "" {
		t.Errorf("failed count mismatch (-want +got):\n%s", diff)
	}
}

func TestRecordCycle(t *testing.T) {
	before := testutil.ToFloat64(CyclesTotal)

	RecordCycle(3*time.Second, 7)

	if diff := cmp.Diff(before, testutil.ToFloat64(CyclesTotal)); diff != "" {
		t.Errorf("cycles are counted when they start, not here (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(7.0, testutil.ToFloat64(TrackedAccounts)); diff != "" {
		t.Errorf("tracked accounts mismatch (-want +got):\n%s", diff)
	}
}

func TestRecordAccountCheck(t *testing.T) {
	for _, result := range []string{ResultOK, ResultNotFound, ResultTransient} {
		before := testutil.ToFloat64(AccountChecks.WithLabelValues(result))
		RecordAccountCheck(result)
		if diff := cmp.Diff(before+1, testutil.ToFloat64(AccountChecks.WithLabelValues(result))); diff != "" {
			t.Errorf("%s count mismatch (-want +got):\n%s", result, diff)
		}
	}
}

func TestHandler(t *testing.T) {
	var ready atomic.Bool
	srv := httptest.NewServer(Handler(ready.Load))
	defer srv.Close()

	get := func(path string) (int, string) {
		t.Helper()
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		defer func() { _ = resp.Body.Close() }()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		return resp.StatusCode, string(body)
	}

	status, _ := get("/healthz")
	if diff := cmp.Diff(http.StatusServiceUnavailable, status); diff != "" {
		t.Errorf("healthz before ready mismatch (-want +got):\n%s", diff)
	}

	ready.Store(true)
	status, body := get("/healthz")
	if diff := cmp.Diff(http.StatusOK, status); diff != "" {
		t.Errorf("healthz status mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("ok\n", body); diff != "" {
		t.Errorf("healthz body mismatch (-want +got):\n%s", diff)
	}

	RecordSessionCheck(ResultOK)
	status, body = get("/metrics")
	if diff := cmp.Diff(http.StatusOK, status); diff != "" {
		t.Errorf("metrics status mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(body, "story_bot_session_checks_total") {
		t.Error("expected session checks metric in exposition")
	}

	status, _ = get("/nope")
	if diff := cmp.Diff(http.StatusNotFound, status); diff != "" {
		t.Errorf("unknown path mismatch (-want +got):\n%s", diff)
	}
}
