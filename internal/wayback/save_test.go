package wayback

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/wayback-archiver/internal/archiver"
)

func TestClassifyStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		path   string
		want   archiver.ErrorKind
	}{
		{"ok", http.StatusOK, "/web/20240101000000/example.com", 0},
		{"404 on snapshot path", http.StatusNotFound, "/web/20240101000000/example.com", 0},
		{"404 elsewhere", http.StatusNotFound, "/save/example.com", archiver.KindUnknownFailure},
		{"bandwidth exceeded", 509, "/save/example.com", archiver.KindRateLimited},
		{"forbidden", http.StatusForbidden, "/save/example.com", archiver.KindPermanentFailure},
		{"origin error", 520, "/save/example.com", archiver.KindPermanentFailure},
		{"origin unreachable", 523, "/save/example.com", archiver.KindPermanentFailure},
		{"server error", http.StatusInternalServerError, "/save/example.com", archiver.KindUnknownFailure},
		{"too many requests", http.StatusTooManyRequests, "/save/example.com", archiver.KindUnknownFailure},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ClassifyStatus(tt.status, tt.path, DefaultSnapshotPathPrefix)
			if tt.want == 0 {
				assert.Nil(t, err)
				return
			}
			require.NotNil(t, err)
			assert.Equal(t, tt.want, err.Kind)
			assert.Equal(t, tt.status, err.Status)
		})
	}
}

func TestRequestFollowsRedirectToSnapshot(t *testing.T) {
	t.Parallel()

	svc := newFakeService(t)
	svc.snapshotTimestamp = "20240105103000"
	srv, client := svc.start(t)

	res, err := client.Request(context.Background(), "example.com/page")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/web/20240105103000/example.com/page", res.SnapshotURL())
	assert.Equal(t, time.Date(2024, 1, 5, 10, 30, 0, 0, time.UTC), res.LastArchived)
	assert.False(t, res.FromExistingSnapshot)
	assert.Equal(t, 1, svc.saves())
}

func TestRequest404OnSnapshotPathIsSuccess(t *testing.T) {
	t.Parallel()

	svc := newFakeService(t)
	svc.snapshotStatus = http.StatusNotFound
	srv, client := svc.start(t)

	res, err := client.Request(context.Background(), "example.com/page")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/web/20240105103000/example.com/page", res.SnapshotURL())
	assert.Equal(t, time.Date(2024, 1, 5, 10, 30, 0, 0, time.UTC), res.LastArchived)
}

func TestRequestClassifiesFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		want   archiver.ErrorKind
	}{
		{509, archiver.KindRateLimited},
		{http.StatusForbidden, archiver.KindPermanentFailure},
		{520, archiver.KindPermanentFailure},
		{523, archiver.KindPermanentFailure},
		{http.StatusNotFound, archiver.KindUnknownFailure},
		{http.StatusBadGateway, archiver.KindUnknownFailure},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			t.Parallel()
			svc := newFakeService(t)
			svc.saveStatuses = []int{tt.status}
			_, client := svc.start(t)

			_, err := client.Request(context.Background(), "example.com")
			require.Error(t, err)
			assert.Equal(t, tt.want, archiver.KindOf(err))
		})
	}
}

func TestRequestUnknownFailureKeepsDiagnostics(t *testing.T) {
	t.Parallel()

	svc := newFakeService(t)
	svc.saveStatuses = []int{http.StatusBadGateway}
	_, client := svc.start(t)

	_, err := client.Request(context.Background(), "example.com")
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "502")
	assert.Contains(t, msg, "/save/example.com")
	assert.Contains(t, msg, "X-Archive-Wayback-Runtime-Error=capture refused")
}

func TestRequestSuccessWithoutTimestampIsUnknownFailure(t *testing.T) {
	t.Parallel()

	svc := newFakeService(t)
	svc.snapshotTimestamp = "latest"
	_, client := svc.start(t)

	_, err := client.Request(context.Background(), "example.com")
	require.Error(t, err)
	assert.Equal(t, archiver.KindUnknownFailure, archiver.KindOf(err))
	assert.True(t, strings.Contains(err.Error(), "malformed_timestamp"))
}

func TestResolverSkipsSaveWhenSnapshotIsFresh(t *testing.T) {
	t.Parallel()

	svc := newFakeService(t)
	svc.forbidSave = true
	recent := time.Now().UTC().Add(-10 * 24 * time.Hour)
	svc.availabilityBody = availabilityJSON(
		"http://web.archive.org/web/"+archiver.FormatTimestamp(recent)+"/example.com",
		archiver.FormatTimestamp(recent),
	)
	_, client := svc.start(t)

	resolver := archiver.NewResolver(client, client, wallClock{}, archiver.DefaultPolicy(), nil)
	res, outcome, err := resolver.Resolve(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Equal(t, archiver.OutcomeExisting, outcome)
	assert.True(t, res.FromExistingSnapshot)
	assert.Zero(t, svc.saves())
}

func TestResolverFallsBackToStaleSnapshotOnRefusal(t *testing.T) {
	t.Parallel()

	svc := newFakeService(t)
	svc.saveStatuses = []int{523}
	svc.availabilityBody = availabilityJSON("http://web.archive.org/web/20150101000000/example.com", "20150101000000")
	_, client := svc.start(t)

	resolver := archiver.NewResolver(client, client, wallClock{}, archiver.DefaultPolicy(), nil)
	res, outcome, err := resolver.Resolve(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Equal(t, archiver.OutcomeStaleFallback, outcome)
	assert.Equal(t, "http://web.archive.org/web/20150101000000/example.com", res.SnapshotURL())
	assert.Equal(t, 1, svc.saves())
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now().UTC() }
