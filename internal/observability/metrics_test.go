package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func newCollector(t *testing.T) (*ConfigCollector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	collector, err := NewConfigCollector(reg)
	if err != nil {
		t.Fatalf("NewConfigCollector: %v", err)
	}
	return collector, reg
}

func TestUnaryInterceptorRecordsMetrics(t *testing.T) {
	collector, reg := newCollector(t)

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/radioemu.v1.ConfigService/Lock"}

	_, err := interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		time.Sleep(time.Millisecond)
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("interceptor handler returned error: %v", err)
	}

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("ConfigService", "Lock", "OK")); got != 1 {
		t.Fatalf("configsvc_requests_total = %v, want 1", got)
	}

	if count := histogramSampleCount(t, reg, "configsvc_request_duration_seconds", map[string]string{
		"service": "ConfigService",
		"method":  "Lock",
	}); count != 1 {
		t.Fatalf("configsvc_request_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestUnaryInterceptorRecordsErrorCode(t *testing.T) {
	collector, _ := newCollector(t)

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/radioemu.v1.ConfigService/GetRanges"}

	_, _ = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.NotFound, "no such radio")
	})

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("ConfigService", "GetRanges", "NotFound")); got != 1 {
		t.Fatalf("configsvc_requests_total error label = %v, want 1", got)
	}
}

func TestObservePropagation(t *testing.T) {
	collector, reg := newCollector(t)

	collector.ObservePropagation(3, 50*time.Microsecond, nil)
	collector.ObservePropagation(1000, time.Millisecond, errors.New("max propagation loops exceeded"))

	if got := testutil.ToFloat64(collector.ConvergenceFailures); got != 1 {
		t.Fatalf("csp_convergence_failures_total = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "csp_propagation_iterations", nil); count != 2 {
		t.Fatalf("csp_propagation_iterations sample_count = %d, want 2", count)
	}
}

func TestRadioRecorder(t *testing.T) {
	collector, _ := newCollector(t)
	rec := collector.ForRadio("rx0")

	rec.ObserveLock("gain_dB", true)
	rec.ObserveLock("gain_dB", false)
	rec.ObserveLock("gain_dB", false)
	rec.SetLockedParams(2)

	if got := testutil.ToFloat64(collector.LockAttempts.WithLabelValues("rx0", "gain_dB", "rejected")); got != 2 {
		t.Fatalf("rejected attempts = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.LockedParams.WithLabelValues("rx0")); got != 2 {
		t.Fatalf("config_locked_params = %v, want 2", got)
	}

	rec.Forget()
	if n := testutil.CollectAndCount(collector.LockAttempts); n != 0 {
		t.Fatalf("expected no lock attempt series after Forget, got %d", n)
	}

	var nilRec *RadioRecorder
	nilRec.ObserveLock("x", true)
	nilRec.SetLockedParams(1)
}

func TestRegisterTwiceReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewConfigCollector(reg)
	if err != nil {
		t.Fatalf("first NewConfigCollector: %v", err)
	}
	second, err := NewConfigCollector(reg)
	if err != nil {
		t.Fatalf("second NewConfigCollector: %v", err)
	}
	if first.Radios != second.Radios {
		t.Fatal("expected the radio gauge to be shared")
	}
}

func TestMetricsHandlerExposesGauges(t *testing.T) {
	collector, _ := newCollector(t)
	collector.SetRadioCount(3)
	collector.RPCRequests.WithLabelValues("svc", "method", "OK").Inc()
	collector.RPCDurations.WithLabelValues("svc", "method").Observe(0.01)
	collector.ForRadio("rx0").SetLockedParams(1)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"configsvc_requests_total",
		"configsvc_request_duration_seconds",
		"config_locked_params",
		"emulator_radios 3",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output", metric)
		}
	}
}

func TestSplitMethod(t *testing.T) {
	for in, want := range map[string][2]string{
		"/radioemu.v1.ConfigService/Lock": {"ConfigService", "Lock"},
		"":                                {"unknown", "unknown"},
		"Lock":                            {"unknown", "unknown"},
	} {
		svc, m := SplitMethod(in)
		if svc != want[0] || m != want[1] {
			t.Fatalf("SplitMethod(%q) = %q, %q", in, svc, m)
		}
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
