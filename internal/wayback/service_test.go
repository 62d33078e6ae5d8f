package wayback

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"
)

// fakeService imitates the availability and save endpoints.
type fakeService struct {
	t *testing.T

	mu                 sync.Mutex
	availabilityStatus int
	availabilityBody   string
	saveStatuses       []int
	snapshotTimestamp  string
	snapshotStatus     int
	forbidSave         bool
	saveCalls          int
	availabilityCalls  int
	lastAvailability   string
}

func newFakeService(t *testing.T) *fakeService {
	t.Helper()
	return &fakeService{
		t:                  t,
		availabilityStatus: http.StatusOK,
		availabilityBody:   `{"url":"x","archived_snapshots":{}}`,
		snapshotTimestamp:  "20240105103000",
		snapshotStatus:     http.StatusOK,
	}
}

func (s *fakeService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case r.URL.Path == "/wayback/available":
		s.availabilityCalls++
		s.lastAvailability = r.URL.Query().Get("url")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(s.availabilityStatus)
		_, _ = fmt.Fprint(w, s.availabilityBody)
	case strings.HasPrefix(r.URL.Path, "/save/"):
		s.saveCalls++
		if s.forbidSave {
			s.t.Errorf("save endpoint called for %s", r.URL.Path)
		}
		status := http.StatusOK
		if len(s.saveStatuses) > 0 {
			status = s.saveStatuses[0]
			if len(s.saveStatuses) > 1 {
				s.saveStatuses = s.saveStatuses[1:]
			}
		}
		if status != http.StatusOK && status != http.StatusFound {
			w.Header().Set("X-Archive-Wayback-Runtime-Error", "capture refused")
			w.WriteHeader(status)
			return
		}
		target := strings.TrimPrefix(r.URL.Path, "/save/")
		w.Header().Set("Location", "/web/"+s.snapshotTimestamp+"/"+target)
		w.WriteHeader(http.StatusFound)
	case strings.HasPrefix(r.URL.Path, "/web/"):
		w.WriteHeader(s.snapshotStatus)
	default:
		w.WriteHeader(http.StatusTeapot)
	}
}

func (s *fakeService) saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveCalls
}

func (s *fakeService) start(t *testing.T) (*httptest.Server, *Client) {
	t.Helper()
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	client := New(Config{
		AvailabilityURL: srv.URL + "/wayback/available",
		SaveURL:         srv.URL + "/save",
	}, srv.Client(), nil, zap.NewNop())
	return srv, client
}

func availabilityJSON(url, timestamp string) string {
	return fmt.Sprintf(`{"url":"example.com","archived_snapshots":{"closest":{"status":"200","available":true,"url":%q,"timestamp":%q}}}`,
		url, timestamp)
}
