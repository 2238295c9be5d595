package extractors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/RBarbieri13/decant/internal/common"
	"github.com/RBarbieri13/decant/internal/models"
	"github.com/RBarbieri13/decant/internal/resilience"
)

const twitterAPIBase = "https://api.twitter.com/2/tweets"

var tweetIDPattern = regexp.MustCompile(`/status(?:es)?/(\d+)`)

// TwitterExtractor pulls tweet data through the v2 API with a bearer token.
type TwitterExtractor struct {
	logger   arbor.ILogger
	bearer   string
	client   *http.Client
	breakers *resilience.BreakerRegistry
	limiter  *rate.Limiter
}

// NewTwitterExtractor creates the Twitter extractor. The v2 API has tight
// limits, so calls get their own longer timeout and a slow limiter.
func NewTwitterExtractor(logger arbor.ILogger, config *common.ExtractorConfig, breakers *resilience.BreakerRegistry) *TwitterExtractor {
	timeout := config.TwitterTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &TwitterExtractor{
		logger:   logger,
		bearer:   config.TwitterBearerToken,
		client:   &http.Client{Timeout: timeout},
		breakers: breakers,
		limiter:  rate.NewLimiter(rate.Every(2*time.Second), 1),
	}
}

func (t *TwitterExtractor) ContentType() string  { return models.ContentTypeTwitter }
func (t *TwitterExtractor) RequiresAPIKey() bool { return true }

func (t *TwitterExtractor) CanHandle(rawURL string) bool {
	return tweetIDFromURL(rawURL) != ""
}

func tweetIDFromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
	if host != "twitter.com" && host != "x.com" && !strings.HasSuffix(host, ".twitter.com") {
		return ""
	}
	if match := tweetIDPattern.FindStringSubmatch(parsed.Path); len(match) == 2 {
		return match[1]
	}
	return ""
}

// Extract fetches one tweet with author expansion and public metrics.
func (t *TwitterExtractor) Extract(ctx context.Context, rawURL string) (*models.ExtractionResult, error) {
	started := time.Now()

	tweetID := tweetIDFromURL(rawURL)
	if tweetID == "" {
		return FallbackResult(models.ContentTypeTwitter, &models.ExtractionError{
			Code:        string(common.ErrURLInvalid),
			Message:     "could not extract a tweet id from " + rawURL,
			Recoverable: false,
		}), nil
	}

	if t.bearer == "" {
		return &models.ExtractionResult{
			Success:     true,
			ContentType: models.ContentTypeTwitter,
			Data: map[string]interface{}{
				"tweetId": tweetID,
				"title":   "Tweet " + tweetID,
				"url":     rawURL,
			},
			Metadata: models.ExtractionMetadata{
				ExtractionMethod: models.MethodFallback,
				Confidence:       0.3,
				Timestamp:        time.Now(),
			},
		}, nil
	}

	tweet, err := t.fetchTweet(ctx, tweetID)
	if err != nil {
		return FallbackResult(models.ContentTypeTwitter, extractionErrorFrom(err)), nil
	}

	data := map[string]interface{}{
		"tweetId":   tweetID,
		"content":   tweet.Data.Text,
		"title":     tweetTitle(tweet),
		"createdAt": tweet.Data.CreatedAt,
		"likes":     tweet.Data.PublicMetrics.LikeCount,
		"retweets":  tweet.Data.PublicMetrics.RetweetCount,
		"replies":   tweet.Data.PublicMetrics.ReplyCount,
	}
	if len(tweet.Includes.Users) > 0 {
		author := tweet.Includes.Users[0]
		data["author"] = author.Name
		data["authorHandle"] = author.Username
	}

	return &models.ExtractionResult{
		Success:     true,
		ContentType: models.ContentTypeTwitter,
		Data:        data,
		Metadata: models.ExtractionMetadata{
			ExtractionMethod: models.MethodAPIStandard,
			APIUsed:          "twitter_v2",
			Confidence:       1.0,
			Timestamp:        time.Now(),
			ProcessingTimeMs: time.Since(started).Milliseconds(),
		},
	}, nil
}

type twitterResponse struct {
	Data struct {
		ID            string `json:"id"`
		Text          string `json:"text"`
		CreatedAt     string `json:"created_at"`
		PublicMetrics struct {
			LikeCount    int `json:"like_count"`
			RetweetCount int `json:"retweet_count"`
			ReplyCount   int `json:"reply_count"`
		} `json:"public_metrics"`
	} `json:"data"`
	Includes struct {
		Users []struct {
			Name     string `json:"name"`
			Username string `json:"username"`
		} `json:"users"`
	} `json:"includes"`
	Errors []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

func tweetTitle(tweet *twitterResponse) string {
	text := tweet.Data.Text
	if len(text) > 80 {
		text = text[:77] + "..."
	}
	if len(tweet.Includes.Users) > 0 {
		return "@" + tweet.Includes.Users[0].Username + ": " + text
	}
	return text
}

func (t *TwitterExtractor) fetchTweet(ctx context.Context, tweetID string) (*twitterResponse, error) {
	result, err := t.breakers.Execute("extract:twitter", func() (interface{}, error) {
		return resilience.RetryValue(ctx, resilience.RateLimitRetry(), func(ctx context.Context) (*twitterResponse, error) {
			return t.fetchTweetOnce(ctx, tweetID)
		})
	})
	if err != nil {
		return nil, err
	}
	return result.(*twitterResponse), nil
}

func (t *TwitterExtractor) fetchTweetOnce(ctx context.Context, tweetID string) (*twitterResponse, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	query := url.Values{
		"expansions":   {"author_id"},
		"tweet.fields": {"created_at,public_metrics"},
		"user.fields":  {"name,username"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/%s?%s", twitterAPIBase, tweetID, query.Encode()), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+t.bearer)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("twitter api call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, httpErrorFrom(resp)
	}

	var payload twitterResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, common.NewError(common.ErrParsingError, "failed to decode twitter response").WithCause(err)
	}
	if payload.Data.ID == "" {
		if len(payload.Errors) > 0 {
			return nil, common.NewError(common.ErrContentNotFound, payload.Errors[0].Detail)
		}
		return nil, common.NewError(common.ErrContentNotFound, "tweet not found: "+tweetID)
	}
	return &payload, nil
}
