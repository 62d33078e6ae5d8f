package wayback

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/JakeFAU/wayback-archiver/internal/archiver"
)

// availabilityResponse is the body of the availability API. archived_snapshots maps a
// candidate id (usually "closest") to a snapshot.
type availabilityResponse struct {
	URL               string                          `json:"url"`
	ArchivedSnapshots map[string]availabilitySnapshot `json:"archived_snapshots"`
}

type availabilitySnapshot struct {
	Status    string `json:"status"`
	Available bool   `json:"available"`
	URL       string `json:"url"`
	Timestamp string `json:"timestamp"`
}

// Check returns the most recent existing snapshot of target.
func (c *Client) Check(ctx context.Context, target string) (archiver.Result, error) {
	endpoint, err := url.Parse(c.cfg.AvailabilityURL)
	if err != nil {
		return archiver.Result{}, archiver.WrapError(archiver.KindTransport, target, fmt.Errorf("parse availability url: %w", err))
	}
	q := endpoint.Query()
	q.Set("url", target)
	endpoint.RawQuery = q.Encode()

	resp, err := c.get(ctx, endpointAvailability, target, endpoint.String())
	if err != nil {
		return archiver.Result{}, err
	}
	defer c.closeBody(resp)

	if resp.StatusCode != http.StatusOK {
		return archiver.Result{}, &archiver.ResolutionError{
			Kind:   archiver.KindMalformedResponse,
			URL:    target,
			Status: resp.StatusCode,
			Detail: "availability query did not return 200",
		}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return archiver.Result{}, archiver.WrapError(archiver.KindTransport, target, fmt.Errorf("read response: %w", err))
	}
	return parseAvailability(target, body)
}

func parseAvailability(target string, body []byte) (archiver.Result, error) {
	var payload availabilityResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return archiver.Result{}, archiver.WrapError(archiver.KindMalformedResponse, target, fmt.Errorf("decode availability: %w", err))
	}

	var latest *availabilitySnapshot
	for id := range payload.ArchivedSnapshots {
		candidate := payload.ArchivedSnapshots[id]
		// Fixed-width digits: string order is chronological order.
		if latest == nil || candidate.Timestamp > latest.Timestamp {
			latest = &candidate
		}
	}
	if latest == nil {
		return archiver.Result{}, archiver.NewError(archiver.KindNoExistingSnapshot, target, "no snapshots listed")
	}
	if latest.URL == "" {
		return archiver.Result{}, archiver.NewError(archiver.KindMalformedResponse, target, "snapshot without url")
	}

	archivedAt, err := archiver.ParseTimestamp(latest.Timestamp)
	if err != nil {
		return archiver.Result{}, err
	}
	return archiver.Snapshot(latest.URL, archivedAt, true), nil
}
