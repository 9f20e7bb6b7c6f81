package observability

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestLinkCollectorRecordsReceptions(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewLinkCollector(reg)
	if err != nil {
		t.Fatalf("NewLinkCollector: %v", err)
	}

	collector.PacketTransmitted("sat")
	collector.SignalScheduled("gs")
	collector.ReceptionEvaluated("gs", 0.9, true)
	collector.ReceptionEvaluated("gs", 0.2, false)
	collector.ReceptionEvaluated("gs", 0.95, true)

	if got := testutil.ToFloat64(collector.PacketsTransmitted.WithLabelValues("sat")); got != 1 {
		t.Fatalf("fso_packets_transmitted_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.Receptions.WithLabelValues("gs", "delivered")); got != 2 {
		t.Fatalf("delivered receptions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.Receptions.WithLabelValues("gs", "lost")); got != 1 {
		t.Fatalf("lost receptions = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "fso_packet_success_probability", map[string]string{"node": "gs"}); count != 3 {
		t.Fatalf("fso_packet_success_probability sample_count = %d, want 3", count)
	}
}

func TestLinkCollectorRecordsRedraws(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewLinkCollector(reg)
	if err != nil {
		t.Fatalf("NewLinkCollector: %v", err)
	}

	collector.IrradianceRedrawn("gs", 0.8, 30*time.Millisecond)
	collector.IrradianceRedrawn("gs", 1.3, 0)

	if got := testutil.ToFloat64(collector.IrradianceRedraws.WithLabelValues("gs")); got != 2 {
		t.Fatalf("fso_irradiance_redraws_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.NormalizedIrradiance.WithLabelValues("gs")); got != 1.3 {
		t.Fatalf("fso_normalized_irradiance = %v, want 1.3", got)
	}
	// A redraw without an armed refresh has no Greenwood sample.
	if count := histogramSampleCount(t, reg, "fso_greenwood_time_seconds", map[string]string{"node": "gs"}); count != 1 {
		t.Fatalf("fso_greenwood_time_seconds sample_count = %d, want 1", count)
	}
}

func TestLinkCollectorReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewLinkCollector(reg)
	if err != nil {
		t.Fatalf("first NewLinkCollector: %v", err)
	}
	second, err := NewLinkCollector(reg)
	if err != nil {
		t.Fatalf("second NewLinkCollector: %v", err)
	}

	second.CallbackFailed("receive")
	if got := testutil.ToFloat64(first.CallbackErrors.WithLabelValues("receive")); got != 1 {
		t.Fatalf("shared fso_callback_errors_total = %v, want 1", got)
	}
}

func TestNilCollectorsAreSafe(t *testing.T) {
	var link *LinkCollector
	link.PacketTransmitted("a")
	link.SignalScheduled("a")
	link.ReceptionEvaluated("a", 1, true)
	link.IrradianceRedrawn("a", 1, time.Second)
	link.CallbackFailed("x")
	if link.Gatherer() != nil {
		t.Fatalf("nil collector should have no gatherer")
	}

	var loop *EventLoopCollector
	loop.EventExecuted(3)
}

func TestEventLoopCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewEventLoopCollector(reg)
	if err != nil {
		t.Fatalf("NewEventLoopCollector: %v", err)
	}

	collector.EventExecuted(4)
	collector.EventExecuted(2)

	if got := testutil.ToFloat64(collector.EventsExecuted); got != 2 {
		t.Fatalf("sim_events_executed_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.PendingEvents); got != 2 {
		t.Fatalf("sim_events_pending = %v, want 2", got)
	}
}

func TestMetricsHandlerExposesLinkMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewLinkCollector(reg)
	if err != nil {
		t.Fatalf("NewLinkCollector: %v", err)
	}
	if _, err := NewEventLoopCollector(reg); err != nil {
		t.Fatalf("NewEventLoopCollector: %v", err)
	}
	collector.PacketTransmitted("sat")
	collector.ReceptionEvaluated("gs", 1, true)
	collector.IrradianceRedrawn("gs", 0.7, 20*time.Millisecond)
	collector.CallbackFailed("transmit")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"fso_packets_transmitted_total",
		"fso_receptions_total",
		"fso_packet_success_probability",
		"fso_normalized_irradiance",
		"fso_irradiance_redraws_total",
		"fso_greenwood_time_seconds",
		"fso_callback_errors_total",
		"sim_events_pending",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output", metric)
		}
	}
}

func TestInitTracingDisabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{Enabled: false}, nil)
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestInitTracingStdout(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := InitTracing(context.Background(), TracingConfig{
		Enabled:     true,
		ServiceName: "test",
		Exporter:    "stdout",
		SampleRatio: 1,
		Identity:    RunIdentity{Scenario: "leo-downlink", Seed: 3, Run: 2},
		Output:      &buf,
	}, nil)
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}

	_, span := otel.Tracer("test").Start(context.Background(), "downlink.run")
	span.End()
	ShutdownWithTimeout(context.Background(), shutdown, nil)

	out := buf.String()
	for _, want := range []string{"downlink.run", "fso.scenario", "leo-downlink", "fso.seed"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in exported span, got %q", want, out)
		}
	}
	otel.SetTracerProvider(noop.NewTracerProvider())
}

func TestInitTracingUnknownExporter(t *testing.T) {
	_, err := InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: "zipkin"}, nil)
	if err == nil {
		t.Fatalf("expected unsupported exporter error")
	}
}

func TestRunSampler(t *testing.T) {
	cases := []struct {
		ratio float64
		want  string
	}{
		{1, "AlwaysOnSampler"},
		{2, "AlwaysOnSampler"},
		{0, "AlwaysOffSampler"},
		{0.5, "TraceIDRatioBased"},
	}
	for _, tc := range cases {
		if got := runSampler(tc.ratio).Description(); !strings.Contains(got, tc.want) {
			t.Fatalf("runSampler(%v) = %q, want %q", tc.ratio, got, tc.want)
		}
	}
}

func TestTracingConfigFromEnv(t *testing.T) {
	t.Setenv("FSO_TRACING_ENABLED", "TRUE")
	t.Setenv("FSO_TRACING_EXPORTER", "OTLP")
	t.Setenv("FSO_TRACING_SAMPLE_RATIO", "0.25")
	t.Setenv("FSO_OTLP_ENDPOINT", "collector:4317")

	cfg := TracingConfigFromEnv()
	if !cfg.Enabled || cfg.Exporter != "otlp" || cfg.SampleRatio != 0.25 || cfg.Endpoint != "collector:4317" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.ServiceName != "fso-downlink" {
		t.Fatalf("default service name = %q", cfg.ServiceName)
	}

	t.Setenv("FSO_TRACING_SAMPLE_RATIO", "7")
	if got := TracingConfigFromEnv().SampleRatio; got != 1 {
		t.Fatalf("out-of-range ratio should fall back to 1, got %v", got)
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
