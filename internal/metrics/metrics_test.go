package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, err := New(reg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	r.ScanFinished("ok")
	r.ScanFinished("failed")
	r.ScanFinished("ok")
	r.SetNetworks(7)
	r.SetOccupancy(6, 0.8)
	r.CaptureStarted(true)
	r.CaptureStarted(false)
	r.PollFinished(12, nil)
	r.PollFinished(0, errors.New("timeout"))
	r.SetBuffered(12)
	r.AlertRaised("POSSIBLE_DOS")

	if got := testutil.ToFloat64(r.Scans.WithLabelValues("ok")); got != 2 {
		t.Errorf("scans ok = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.NetworksDiscovered); got != 7 {
		t.Errorf("networks = %v, want 7", got)
	}
	if got := testutil.ToFloat64(r.ChannelOccupancy.WithLabelValues("6")); got != 0.8 {
		t.Errorf("occupancy ch6 = %v, want 0.8", got)
	}
	if got := testutil.ToFloat64(r.CaptureSessions.WithLabelValues("failed")); got != 1 {
		t.Errorf("failed sessions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.CapturePolls.WithLabelValues("failed")); got != 1 {
		t.Errorf("failed polls = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.CapturedPackets); got != 12 {
		t.Errorf("captured packets = %v, want 12", got)
	}
	if got := testutil.ToFloat64(r.CaptureBuffer); got != 12 {
		t.Errorf("buffered = %v, want 12", got)
	}
	if got := testutil.ToFloat64(r.CaptureAlerts.WithLabelValues("POSSIBLE_DOS")); got != 1 {
		t.Errorf("alerts = %v, want 1", got)
	}
}

func TestRecorderDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := New(reg); err != nil {
		t.Fatalf("first New: %v", err)
	}
	if _, err := New(reg); err == nil {
		t.Fatal("second New on the same registry should fail")
	}
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	r.ScanFinished("ok")
	r.SetNetworks(1)
	r.SetOccupancy(1, 0.5)
	r.CaptureStarted(true)
	r.PollFinished(3, nil)
	r.SetBuffered(3)
	r.AlertRaised("BROADCAST_STORM")
}

func TestHandlerServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, err := New(reg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.ScanFinished("ok")

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `wifiwatch_scans_total{result="ok"} 1`) {
		t.Errorf("metrics output missing scan counter:\n%s", body)
	}
}
