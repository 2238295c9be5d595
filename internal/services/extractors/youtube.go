package extractors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/RBarbieri13/decant/internal/common"
	"github.com/RBarbieri13/decant/internal/models"
	"github.com/RBarbieri13/decant/internal/resilience"
)

const youtubeAPIBase = "https://www.googleapis.com/youtube/v3/videos"

var youtubeIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:v=|/embed/|/shorts/|/live/)([A-Za-z0-9_-]{11})`),
	regexp.MustCompile(`youtu\.be/([A-Za-z0-9_-]{11})`),
}

// YouTubeExtractor pulls video metadata through the Data API v3.
type YouTubeExtractor struct {
	logger   arbor.ILogger
	apiKey   string
	client   *http.Client
	breakers *resilience.BreakerRegistry
	limiter  *rate.Limiter
}

// NewYouTubeExtractor creates the YouTube extractor. Without an API key it
// degrades to minimal fallback metadata.
func NewYouTubeExtractor(logger arbor.ILogger, config *common.ExtractorConfig, breakers *resilience.BreakerRegistry) *YouTubeExtractor {
	timeout := config.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &YouTubeExtractor{
		logger:   logger,
		apiKey:   config.YouTubeAPIKey,
		client:   &http.Client{Timeout: timeout},
		breakers: breakers,
		// Data API quota is generous; this just smooths bursts.
		limiter: rate.NewLimiter(rate.Every(time.Second/10), 10),
	}
}

func (y *YouTubeExtractor) ContentType() string  { return models.ContentTypeYouTube }
func (y *YouTubeExtractor) RequiresAPIKey() bool { return true }

func (y *YouTubeExtractor) CanHandle(rawURL string) bool {
	return videoIDFromURL(rawURL) != ""
}

func videoIDFromURL(rawURL string) string {
	for _, pattern := range youtubeIDPatterns {
		if match := pattern.FindStringSubmatch(rawURL); len(match) == 2 {
			return match[1]
		}
	}
	return ""
}

// Extract fetches snippet, statistics and duration for the video. API
// failures surface with coded extraction errors; a missing key yields
// fallback metadata so classification still runs.
func (y *YouTubeExtractor) Extract(ctx context.Context, rawURL string) (*models.ExtractionResult, error) {
	started := time.Now()

	videoID := videoIDFromURL(rawURL)
	if videoID == "" {
		return FallbackResult(models.ContentTypeYouTube, &models.ExtractionError{
			Code:        string(common.ErrURLInvalid),
			Message:     "could not extract a video id from " + rawURL,
			Recoverable: false,
		}), nil
	}

	if y.apiKey == "" {
		return y.fallbackMetadata(videoID, rawURL), nil
	}

	video, err := y.fetchVideo(ctx, videoID)
	if err != nil {
		return FallbackResult(models.ContentTypeYouTube, extractionErrorFrom(err)), nil
	}

	data := map[string]interface{}{
		"videoId":     videoID,
		"title":       video.Snippet.Title,
		"description": video.Snippet.Description,
		"channel":     video.Snippet.ChannelTitle,
		"publishedAt": video.Snippet.PublishedAt,
		"duration":    video.ContentDetails.Duration,
		"viewCount":   video.Statistics.ViewCount,
		"likeCount":   video.Statistics.LikeCount,
	}
	if thumb := video.Snippet.bestThumbnail(); thumb != "" {
		data["thumbnail"] = thumb
	}
	if video.Snippet.Description != "" {
		data["content"] = video.Snippet.Description
	}

	return &models.ExtractionResult{
		Success:     true,
		ContentType: models.ContentTypeYouTube,
		Data:        data,
		Metadata: models.ExtractionMetadata{
			ExtractionMethod: models.MethodAPIStandard,
			APIUsed:          "youtube_data_v3",
			Confidence:       1.0,
			Timestamp:        time.Now(),
			ProcessingTimeMs: time.Since(started).Milliseconds(),
		},
	}, nil
}

func (y *YouTubeExtractor) fallbackMetadata(videoID, rawURL string) *models.ExtractionResult {
	return &models.ExtractionResult{
		Success:     true,
		ContentType: models.ContentTypeYouTube,
		Data: map[string]interface{}{
			"videoId":   videoID,
			"title":     "YouTube video " + videoID,
			"thumbnail": fmt.Sprintf("https://i.ytimg.com/vi/%s/hqdefault.jpg", videoID),
			"url":       rawURL,
		},
		Metadata: models.ExtractionMetadata{
			ExtractionMethod: models.MethodFallback,
			Confidence:       0.3,
			Timestamp:        time.Now(),
		},
	}
}

type youtubeSnippet struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	ChannelTitle string `json:"channelTitle"`
	PublishedAt  string `json:"publishedAt"`
	Thumbnails   map[string]struct {
		URL string `json:"url"`
	} `json:"thumbnails"`
}

func (s youtubeSnippet) bestThumbnail() string {
	for _, key := range []string{"maxres", "high", "medium", "default"} {
		if thumb, ok := s.Thumbnails[key]; ok && thumb.URL != "" {
			return thumb.URL
		}
	}
	return ""
}

type youtubeVideo struct {
	Snippet        youtubeSnippet `json:"snippet"`
	ContentDetails struct {
		Duration string `json:"duration"`
	} `json:"contentDetails"`
	Statistics struct {
		ViewCount string `json:"viewCount"`
		LikeCount string `json:"likeCount"`
	} `json:"statistics"`
}

func (y *YouTubeExtractor) fetchVideo(ctx context.Context, videoID string) (*youtubeVideo, error) {
	result, err := y.breakers.Execute("extract:youtube", func() (interface{}, error) {
		return resilience.RetryValue(ctx, resilience.StandardRetry(), func(ctx context.Context) (*youtubeVideo, error) {
			return y.fetchVideoOnce(ctx, videoID)
		})
	})
	if err != nil {
		return nil, err
	}
	return result.(*youtubeVideo), nil
}

func (y *YouTubeExtractor) fetchVideoOnce(ctx context.Context, videoID string) (*youtubeVideo, error) {
	if err := y.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	query := url.Values{
		"id":   {videoID},
		"part": {"snippet,statistics,contentDetails"},
		"key":  {y.apiKey},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, youtubeAPIBase+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := y.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("youtube api call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, httpErrorFrom(resp)
	}

	var payload struct {
		Items []youtubeVideo `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, common.NewError(common.ErrParsingError, "failed to decode youtube response").WithCause(err)
	}
	if len(payload.Items) == 0 {
		return nil, common.NewError(common.ErrContentNotFound, "video not found: "+videoID)
	}
	return &payload.Items[0], nil
}
