package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegisterHTTP(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sample := prometheus.NewCounter(prometheus.CounterOpts{Name: "codeplat_sample_total", Help: "sample"})
	reg.MustRegister(sample)
	sample.Inc()

	healthy := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("dial tcp: refused") })

	cases := []struct {
		name     string
		deps     map[string]pinger
		path     string
		wantCode int
		wantBody string
	}{
		{name: "healthz", path: "/healthz", wantCode: http.StatusOK, wantBody: "ok"},
		{name: "ready", deps: map[string]pinger{"db": healthy}, path: "/readyz", wantCode: http.StatusOK, wantBody: "ready"},
		{name: "db down", deps: map[string]pinger{"db": down}, path: "/readyz", wantCode: http.StatusServiceUnavailable, wantBody: "db not ready"},
		{name: "redis down", deps: map[string]pinger{"db": healthy, "redis": down}, path: "/readyz", wantCode: http.StatusServiceUnavailable, wantBody: "redis not ready"},
		{name: "metrics", path: "/metrics", wantCode: http.StatusOK, wantBody: "codeplat_sample_total 1"},
	}

	for _, tc := range cases {
		mux := http.NewServeMux()
		registerHTTP(mux, slog.New(slog.DiscardHandler), reg, tc.deps)

		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tc.path, nil))

		if rr.Code != tc.wantCode {
			t.Fatalf("%s: status=%d want %d", tc.name, rr.Code, tc.wantCode)
		}
		if !strings.Contains(rr.Body.String(), tc.wantBody) {
			t.Fatalf("%s: body=%q want substring %q", tc.name, rr.Body.String(), tc.wantBody)
		}
	}
}

func TestCLI_Commands(t *testing.T) {
	t.Parallel()

	a := CLI()
	want := map[string]bool{"serve": false, "migrate": false, "sweep": false}
	for _, c := range a.Commands {
		if _, ok := want[c.Name]; ok {
			want[c.Name] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Fatalf("missing command %q", name)
		}
	}
	if a.Action == nil {
		t.Fatalf("default action must serve")
	}
}
