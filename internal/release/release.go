// Package release looks up published versions of the upstream project through the GitHub API.
package release

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v66/github"
	"go.uber.org/zap"

	"github.com/Helcaraxan/borebin/internal/logger"
)

// Latest is the version alias that gets resolved to the newest published release tag.
const Latest = "latest"

var (
	ErrNoRelease   = errors.New("no published release")
	ErrInvalidSlug = errors.New("invalid repository slug")
)

func IsLatest(version string) bool {
	return strings.EqualFold(version, Latest)
}

type Config struct {
	// Slug identifies the repository as "owner/name".
	Slug string
	// BaseURL points at a GitHub Enterprise API. Empty for github.com.
	BaseURL string
	// Token is optional and only raises the API rate limit.
	Token string
}

type Resolver struct {
	log    *zap.Logger
	client *github.Client
	owner  string
	repo   string
}

func NewResolver(logBuilder *logger.Builder, httpClient *http.Client, c Config) (*Resolver, error) {
	log := logBuilder.Domain(logger.ReleaseDomain).With(zap.String("repository", c.Slug))

	owner, repo, ok := strings.Cut(c.Slug, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		log.Error("Repository slug does not contain an owner and repository name.")
		return nil, fmt.Errorf("%w: %q", ErrInvalidSlug, c.Slug)
	}

	client := github.NewClient(httpClient)
	if c.BaseURL != "" {
		var err error
		if client, err = client.WithEnterpriseURLs(c.BaseURL, c.BaseURL); err != nil {
			log.Error("Invalid GitHub Enterprise URL.", zap.String("base-url", c.BaseURL), zap.Error(err))
			return nil, err
		}
	}
	if c.Token != "" {
		client = client.WithAuthToken(c.Token)
	}

	return &Resolver{
		log:    log,
		client: client,
		owner:  owner,
		repo:   repo,
	}, nil
}

// LatestTag returns the tag name of the newest non-prerelease release.
func (r *Resolver) LatestTag(ctx context.Context) (string, error) {
	rel, _, err := r.client.Repositories.GetLatestRelease(ctx, r.owner, r.repo)
	if err != nil {
		var (
			rateErr *github.RateLimitError
			respErr *github.ErrorResponse
		)
		switch {
		case errors.As(err, &rateErr):
			r.log.Error("GitHub API rate limit exceeded.", zap.Time("reset", rateErr.Rate.Reset.Time))
		case errors.As(err, &respErr) && respErr.Response != nil && respErr.Response.StatusCode == http.StatusNotFound:
			r.log.Error("Repository has no published release.")
			return "", fmt.Errorf("%w: %s/%s", ErrNoRelease, r.owner, r.repo)
		default:
			r.log.Error("Failed to query latest release.", zap.Error(err))
		}
		return "", fmt.Errorf("failed to query latest release of %s/%s: %w", r.owner, r.repo, err)
	}

	tag := rel.GetTagName()
	if tag == "" {
		r.log.Error("Latest release does not carry a tag.")
		return "", fmt.Errorf("%w: %s/%s", ErrNoRelease, r.owner, r.repo)
	}
	r.log.Debug("Resolved latest release.", zap.String("tag", tag))
	return tag, nil
}
