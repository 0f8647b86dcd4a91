// Package youtube implements quota.Provider on the YouTube Data API v3.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/spdeepak/livewatch/quota"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"
)

// Reasons the API attaches to a 403 when the project's quota is spent.
var quotaReasons = map[string]bool{
	"quotaExceeded":      true,
	"dailyLimitExceeded": true,
}

// Config holds the provider credentials.
type Config struct {
	APIKey string
	// Endpoint overrides the API base URL, e.g. for tests. Must end with "/".
	Endpoint string
}

// Provider talks to the YouTube Data API.
type Provider struct {
	svc *yt.Service
}

var _ quota.Provider = (*Provider)(nil)

// New creates a provider. It returns quota.ErrNotConfigured when no API key is
// set.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, quota.ErrNotConfigured
	}
	opts := []option.ClientOption{option.WithAPIKey(key)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	svc, err := yt.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating youtube service: %w", err)
	}
	return &Provider{svc: svc}, nil
}

// ChannelIDForHandle resolves a handle (without "@") to its channel id.
func (p *Provider) ChannelIDForHandle(ctx context.Context, handle string) (string, error) {
	resp, err := p.svc.Channels.List([]string{"id"}).
		ForHandle(handle).
		Context(ctx).
		Do()
	if err != nil {
		return "", classify("channels.list", err)
	}
	for _, item := range resp.Items {
		if item != nil && item.Id != "" {
			return item.Id, nil
		}
	}
	return "", nil
}

// Videos fetches the live state of up to quota.VideosPageSize videos.
func (p *Provider) Videos(ctx context.Context, ids []string) ([]quota.VideoStatus, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	resp, err := p.svc.Videos.List([]string{"snippet", "liveStreamingDetails"}).
		Id(ids...).
		Context(ctx).
		Do()
	if err != nil {
		return nil, classify("videos.list", err)
	}
	out := make([]quota.VideoStatus, 0, len(resp.Items))
	for _, v := range resp.Items {
		if v == nil {
			continue
		}
		out = append(out, quota.VideoStatus{ID: v.Id, Found: true, Live: isLive(v)})
	}
	return out, nil
}

// SearchLive returns the id of a broadcast live on channelID, or "".
func (p *Provider) SearchLive(ctx context.Context, channelID string) (string, error) {
	resp, err := p.svc.Search.List([]string{"id"}).
		ChannelId(channelID).
		EventType("live").
		Type("video").
		MaxResults(1).
		Context(ctx).
		Do()
	if err != nil {
		return "", classify("search.list", err)
	}
	for _, item := range resp.Items {
		if item != nil && item.Id != nil && item.Id.VideoId != "" {
			return item.Id.VideoId, nil
		}
	}
	return "", nil
}

// isLive is true for a broadcast on air now: it has streaming details, has
// not ended, and the snippet still says live.
func isLive(v *yt.Video) bool {
	if v.LiveStreamingDetails == nil || v.LiveStreamingDetails.ActualEndTime != "" {
		return false
	}
	return v.Snippet != nil && v.Snippet.LiveBroadcastContent == "live"
}

// classify maps an API failure onto quota.ProviderError.
func classify(op string, err error) error {
	perr := &quota.ProviderError{Op: op, Kind: quota.KindTransient, Err: err}

	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return perr
	}
	perr.StatusCode = gerr.Code
	for _, item := range gerr.Errors {
		if perr.Reason == "" {
			perr.Reason = item.Reason
		}
		if gerr.Code == http.StatusForbidden && quotaReasons[item.Reason] {
			perr.Reason = item.Reason
			perr.Kind = quota.KindQuotaExhausted
			break
		}
	}
	return perr
}
