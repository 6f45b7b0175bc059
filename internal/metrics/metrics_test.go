package metrics

import (
	"io"
	"net"
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

func TestServerServesMetricsAndHealth(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	srv := NewServer(ln.Addr().String(), zerolog.Nop())
	srv.SetListener(ln)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() { _ = srv.Stop() }()

	OperationsTotal.WithLabelValues("purchase", "ok").Inc()

	base := "http://" + ln.Addr().String()
	body := get(t, base+"/health")
	if body != "OK" {
		t.Errorf("health body = %q, want OK", body)
	}

	body = get(t, base+"/metrics")
	if !strings.Contains(body, `accesstime_operations_total{operation="purchase",result="ok"}`) {
		t.Errorf("metrics output missing operations counter")
	}
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(CreditedSeconds)
	CreditedSeconds.Add(3600)
	if got := testutil.ToFloat64(CreditedSeconds) - before; got != 3600 {
		t.Errorf("credited seconds delta = %v, want 3600", got)
	}
}

func get(t *testing.T, url string) string {
	t.Helper()

	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d", url, resp.StatusCode)
	}
	return string(data)
}
