package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObservePost(t *testing.T) {
	m := New()
	m.ObservePost("c1", "YouTube", true, 2*time.Second)
	m.ObservePost("c1", "YouTube", false, time.Second)
	m.ObservePost("c1", "YouTube", true, time.Second)

	if got := testutil.ToFloat64(m.PostsTotal.WithLabelValues("c1", "YouTube", "success")); got != 2 {
		t.Errorf("success count = %v", got)
	}
	if got := testutil.ToFloat64(m.PostsTotal.WithLabelValues("c1", "YouTube", "failure")); got != 1 {
		t.Errorf("failure count = %v", got)
	}
}

func TestInstancesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.ObserveRun("c1", RunPosted)
	if got := testutil.ToFloat64(b.RunsTotal.WithLabelValues("c1", RunPosted)); got != 0 {
		t.Errorf("second instance saw %v runs", got)
	}
}

func TestHandlerExposesGauges(t *testing.T) {
	m := New()
	m.SetQueue("c1", "queue", 3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `publisher_queue_videos{concept="c1",folder="queue"} 3`) {
		t.Errorf("gauge missing from exposition:\n%s", body)
	}
}

func TestRegisterReturnsExisting(t *testing.T) {
	m := New()
	first := prometheus.NewCounter(prometheus.CounterOpts{Name: "publisher_extra_total", Help: "extra"})
	if got := m.Register(first); got != first {
		t.Fatalf("Register returned a different collector")
	}
	dup := prometheus.NewCounter(prometheus.CounterOpts{Name: "publisher_extra_total", Help: "extra"})
	if got := m.Register(dup); got != first {
		t.Errorf("duplicate registration did not return the existing collector")
	}
}
