package wayback

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/JakeFAU/wayback-archiver/internal/archiver"
)

// Status codes the save endpoint uses beyond the standard set.
const (
	StatusBandwidthExceeded = 509
	StatusOriginError       = 520
	StatusOriginUnreachable = 523
)

// Request asks the service to capture target and returns the new snapshot.
func (c *Client) Request(ctx context.Context, target string) (archiver.Result, error) {
	resp, err := c.get(ctx, endpointSave, target, c.saveURL(target))
	if err != nil {
		return archiver.Result{}, err
	}
	defer c.closeBody(resp)
	// Drain so the connection can be reused; the body itself is not inspected.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))

	finalURL := resp.Request.URL
	if rerr := ClassifyStatus(resp.StatusCode, finalURL.Path, c.cfg.SnapshotPathPrefix); rerr != nil {
		rerr.URL = finalURL.String()
		if rerr.Kind == archiver.KindUnknownFailure {
			rerr.Detail = strings.TrimPrefix(rerr.Detail+"; "+describeResponse(resp), "; ")
		}
		return archiver.Result{}, rerr
	}

	snapshot := finalURL.String()
	archivedAt, err := archiver.TimestampFromSnapshotURL(snapshot)
	if err != nil {
		return archiver.Result{}, &archiver.ResolutionError{
			Kind:   archiver.KindUnknownFailure,
			URL:    snapshot,
			Status: resp.StatusCode,
			Detail: "capture reported success but snapshot url has no timestamp",
			Err:    err,
		}
	}
	return archiver.Snapshot(snapshot, archivedAt, false), nil
}

// ClassifyStatus maps the terminal status of a save request to nil (success) or a
// *archiver.ResolutionError without URL context.
//
// A 404 whose final path is a snapshot path counts as success: the service sometimes finishes
// a capture before the snapshot becomes resolvable.
func ClassifyStatus(status int, finalPath, snapshotPrefix string) *archiver.ResolutionError {
	switch status {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		if strings.HasPrefix(finalPath, snapshotPrefix) {
			return nil
		}
		return &archiver.ResolutionError{Kind: archiver.KindUnknownFailure, Status: status, Detail: "unexpected 404"}
	case StatusBandwidthExceeded:
		return &archiver.ResolutionError{Kind: archiver.KindRateLimited, Status: status}
	case http.StatusForbidden, StatusOriginError, StatusOriginUnreachable:
		return &archiver.ResolutionError{Kind: archiver.KindPermanentFailure, Status: status}
	default:
		return &archiver.ResolutionError{Kind: archiver.KindUnknownFailure, Status: status}
	}
}

// describeResponse keeps the headers an operator needs to diagnose an unclassified response.
func describeResponse(resp *http.Response) string {
	parts := []string{fmt.Sprintf("status %q", resp.Status)}
	keys := make([]string, 0, len(resp.Header))
	for k := range resp.Header {
		if k == "Content-Type" || k == "Server" || k == "Retry-After" || strings.HasPrefix(k, "X-Archive") {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, strings.Join(resp.Header.Values(k), ",")))
	}
	return strings.Join(parts, " ")
}
