package extractors

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/ternarybob/arbor"
	"golang.org/x/oauth2"

	"github.com/RBarbieri13/decant/internal/common"
	"github.com/RBarbieri13/decant/internal/models"
	"github.com/RBarbieri13/decant/internal/resilience"
)

// maxReadmeChars keeps README payloads bounded before classification.
const maxReadmeChars = 20000

// GitHubExtractor pulls repository metadata and the README via the REST API.
// Unauthenticated access works at a reduced rate limit.
type GitHubExtractor struct {
	logger   arbor.ILogger
	client   *github.Client
	breakers *resilience.BreakerRegistry
	hasToken bool
}

// NewGitHubExtractor creates the GitHub extractor, authenticated when a
// token is configured.
func NewGitHubExtractor(logger arbor.ILogger, config *common.ExtractorConfig, breakers *resilience.BreakerRegistry) *GitHubExtractor {
	timeout := config.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	httpClient := &http.Client{Timeout: timeout}
	if config.GitHubToken != "" {
		source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: config.GitHubToken})
		httpClient = oauth2.NewClient(context.Background(), source)
		httpClient.Timeout = timeout
	}

	return &GitHubExtractor{
		logger:   logger,
		client:   github.NewClient(httpClient),
		breakers: breakers,
		hasToken: config.GitHubToken != "",
	}
}

func (g *GitHubExtractor) ContentType() string  { return models.ContentTypeGitHub }
func (g *GitHubExtractor) RequiresAPIKey() bool { return true }

func (g *GitHubExtractor) CanHandle(rawURL string) bool {
	owner, repo := ownerRepoFromURL(rawURL)
	return owner != "" && repo != ""
}

func ownerRepoFromURL(rawURL string) (string, string) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", ""
	}
	host := strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
	if host != "github.com" {
		return "", ""
	}

	parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", ""
	}
	return parts[0], strings.TrimSuffix(parts[1], ".git")
}

// Extract fetches the repository record plus README.
func (g *GitHubExtractor) Extract(ctx context.Context, rawURL string) (*models.ExtractionResult, error) {
	started := time.Now()

	owner, repoName := ownerRepoFromURL(rawURL)
	if owner == "" {
		return FallbackResult(models.ContentTypeGitHub, &models.ExtractionError{
			Code:        string(common.ErrURLInvalid),
			Message:     "not a repository url: " + rawURL,
			Recoverable: false,
		}), nil
	}

	repo, err := g.fetchRepo(ctx, owner, repoName)
	if err != nil {
		return FallbackResult(models.ContentTypeGitHub, githubExtractionError(err)), nil
	}

	data := map[string]interface{}{
		"owner":       owner,
		"repo":        repoName,
		"fullName":    repo.GetFullName(),
		"title":       repo.GetFullName(),
		"description": repo.GetDescription(),
		"language":    repo.GetLanguage(),
		"stars":       repo.GetStargazersCount(),
		"forks":       repo.GetForksCount(),
		"openIssues":  repo.GetOpenIssuesCount(),
		"topics":      repo.Topics,
		"homepage":    repo.GetHomepage(),
		"defaultBranch": repo.GetDefaultBranch(),
	}
	if license := repo.GetLicense(); license != nil {
		data["license"] = license.GetSPDXID()
	}
	if owner := repo.GetOwner(); owner != nil {
		data["avatar"] = owner.GetAvatarURL()
	}

	// README failures degrade to repo metadata only.
	if readme, err := g.fetchReadme(ctx, owner, repoName); err == nil && readme != "" {
		if len(readme) > maxReadmeChars {
			readme = readme[:maxReadmeChars]
		}
		data["readme"] = readme
	}

	return &models.ExtractionResult{
		Success:     true,
		ContentType: models.ContentTypeGitHub,
		Data:        data,
		Metadata: models.ExtractionMetadata{
			ExtractionMethod: models.MethodAPIStandard,
			APIUsed:          "github_rest_v3",
			Confidence:       1.0,
			Timestamp:        time.Now(),
			ProcessingTimeMs: time.Since(started).Milliseconds(),
		},
	}, nil
}

func (g *GitHubExtractor) fetchRepo(ctx context.Context, owner, repoName string) (*github.Repository, error) {
	result, err := g.breakers.Execute("extract:github", func() (interface{}, error) {
		return resilience.RetryValue(ctx, resilience.StandardRetry(), func(ctx context.Context) (*github.Repository, error) {
			repo, resp, err := g.client.Repositories.Get(ctx, owner, repoName)
			if err != nil {
				return nil, wrapGitHubError(err, resp)
			}
			return repo, nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result.(*github.Repository), nil
}

func (g *GitHubExtractor) fetchReadme(ctx context.Context, owner, repoName string) (string, error) {
	readme, resp, err := g.client.Repositories.GetReadme(ctx, owner, repoName, nil)
	if err != nil {
		return "", wrapGitHubError(err, resp)
	}
	return readme.GetContent()
}

// wrapGitHubError converts go-github errors into retryable HTTPErrors.
func wrapGitHubError(err error, resp *github.Response) error {
	if resp == nil {
		return err
	}

	retryAfter := ""
	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) && abuseErr.RetryAfter != nil {
		retryAfter = strconv.Itoa(int(abuseErr.RetryAfter.Seconds()))
	} else if errors.As(err, &rateErr) {
		if until := time.Until(rateErr.Rate.Reset.Time); until > 0 {
			retryAfter = strconv.Itoa(int(until.Seconds()) + 1)
		}
	}

	return &resilience.HTTPError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		RetryAfter: retryAfter,
		Body:       err.Error(),
	}
}

func githubExtractionError(err error) *models.ExtractionError {
	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &rateErr) || errors.As(err, &abuseErr) {
		return &models.ExtractionError{
			Code:        string(common.ErrRateLimitExceeded),
			Message:     err.Error(),
			Recoverable: true,
			Cause:       err,
		}
	}
	return extractionErrorFrom(err)
}
