package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nextlevelbuilder/wamenu/internal/aggregator"
	"github.com/nextlevelbuilder/wamenu/internal/config"
	"github.com/nextlevelbuilder/wamenu/internal/outbox"
)

type fakeChannels struct{ running bool }

func (f fakeChannels) GetStatus() map[string]bool { return map[string]bool{"whatsapp": f.running} }
func (f fakeChannels) AllRunning() bool           { return f.running }

type fakeOutbox struct{}

func (fakeOutbox) Metrics() outbox.Metrics { return outbox.Metrics{Processed: 7, QueueDepth: 2} }

type fakeCount int

func (f fakeCount) Len() int  { return int(f) }
func (f fakeCount) Held() int { return int(f) }

func serve(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.BuildMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	agg := aggregator.New(aggregator.Config{})
	s := NewServer(config.GatewayConfig{}, Sources{
		Channels: fakeChannels{running: true},
		Outbox:   fakeOutbox{},
		Dedup:    agg,
		Sessions: fakeCount(3),
		Locks:    fakeCount(1),
	}, "v1.2.3")

	rec := serve(t, s, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /health = %d, want 200", rec.Code)
	}

	var body struct {
		Status   string          `json:"status"`
		Channels map[string]bool `json:"channels"`
		Outbox   struct {
			Processed  int64 `json:"processed"`
			QueueDepth int   `json:"queueDepth"`
		} `json:"outbox"`
		Dedup struct {
			IDDedup struct {
				TTLHours float64 `json:"ttlHours"`
			} `json:"idDedup"`
			SemanticDedup struct {
				BucketMs int64 `json:"bucketMs"`
			} `json:"semanticDedup"`
		} `json:"dedup"`
		Sessions SessionStats `json:"sessions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" || !body.Channels["whatsapp"] {
		t.Errorf("status/channels = %q %v", body.Status, body.Channels)
	}
	if body.Outbox.Processed != 7 || body.Outbox.QueueDepth != 2 {
		t.Errorf("outbox = %+v", body.Outbox)
	}
	if body.Dedup.IDDedup.TTLHours != 24 || body.Dedup.SemanticDedup.BucketMs != 5000 {
		t.Errorf("dedup = %+v", body.Dedup)
	}
	if body.Sessions.Active != 3 || body.Sessions.Locks != 1 {
		t.Errorf("sessions = %+v", body.Sessions)
	}
}

func TestReady(t *testing.T) {
	tests := []struct {
		name string
		src  Sources
		want int
	}{
		{"no channels", Sources{}, http.StatusServiceUnavailable},
		{"not running", Sources{Channels: fakeChannels{}}, http.StatusServiceUnavailable},
		{"running", Sources{Channels: fakeChannels{running: true}}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, NewServer(config.GatewayConfig{}, tt.src, ""), "/ready")
			if rec.Code != tt.want {
				t.Errorf("GET /ready = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
