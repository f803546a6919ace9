package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strings"
	"time"

	"github.com/reviewpilot/api/internal/config"
)

// GitHub fetch failures. Transport-level problems are ErrUnreachable;
// a reachable host that refuses the request (missing repo, rate limit,
// bad credentials) is ErrNotAccessible.
var (
	ErrUnreachable   = errors.New("github unreachable")
	ErrNotAccessible = errors.New("pull request not accessible")
)

// PullRequestFile is one entry of a pull request's changed-file list.
type PullRequestFile struct {
	Filename  string `json:"filename"`
	Status    string `json:"status"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
}

// GitHubClient fetches change-set listings and file contents from the
// GitHub REST API.
type GitHubClient struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewGitHubClient creates a new GitHub API client
func NewGitHubClient(cfg *config.GitHubConfig) *GitHubClient {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if cfg.Timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &GitHubClient{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		token:   cfg.Token,
	}
}

// ListPullRequestFiles returns the changed files of a pull request.
// token, if non-empty, overrides the configured default token.
func (c *GitHubClient) ListPullRequestFiles(ctx context.Context, repoURL string, prNumber int, token string) ([]PullRequestFile, error) {
	owner, repo, err := ParseRepoURL(repoURL)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/repos/%s/%s/pulls/%d/files?per_page=100", c.baseURL, owner, repo, prNumber)
	body, status, err := c.get(ctx, url, token, "application/vnd.github.v3+json")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w (status %d)", ErrNotAccessible, status)
	}

	var files []PullRequestFile
	if err := json.Unmarshal(body, &files); err != nil {
		return nil, fmt.Errorf("failed to unmarshal file list: %w", err)
	}
	return files, nil
}

// GetFileContent fetches a file's content at the given ref. A missing
// file returns ("", false, nil) — absence is distinct from failure.
func (c *GitHubClient) GetFileContent(ctx context.Context, repoURL, ref, path, token string) (string, bool, error) {
	owner, repo, err := ParseRepoURL(repoURL)
	if err != nil {
		return "", false, err
	}

	url := fmt.Sprintf("%s/repos/%s/%s/contents/%s?ref=%s", c.baseURL, owner, repo, escapePath(path), neturl.QueryEscape(ref))
	body, status, err := c.get(ctx, url, token, "application/vnd.github.v3+json")
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	if status == http.StatusNotFound {
		return "", false, nil
	}
	if status != http.StatusOK {
		return "", false, fmt.Errorf("%w (status %d)", ErrNotAccessible, status)
	}

	var data struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return "", false, fmt.Errorf("failed to unmarshal contents: %w", err)
	}
	if data.Content == "" {
		return "", false, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(data.Content, "\n", ""))
	if err != nil {
		return "", false, fmt.Errorf("failed to decode content for %s: %w", path, err)
	}
	return string(decoded), true, nil
}

// GetPullRequestDiff fetches the full unified diff of a pull request.
func (c *GitHubClient) GetPullRequestDiff(ctx context.Context, repoURL string, prNumber int, token string) (string, error) {
	owner, repo, err := ParseRepoURL(repoURL)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/repos/%s/%s/pulls/%d", c.baseURL, owner, repo, prNumber)
	body, status, err := c.get(ctx, url, token, "application/vnd.github.v3.diff")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("%w (status %d)", ErrNotAccessible, status)
	}
	return string(body), nil
}

// IsConfigured returns true if the client has a default access token
func (c *GitHubClient) IsConfigured() bool {
	return c.token != ""
}

func (c *GitHubClient) get(ctx context.Context, url, token, accept string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}

	req.Header.Set("Accept", accept)
	if token == "" {
		token = c.token
	}
	if token != "" {
		req.Header.Set("Authorization", "token "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

// escapePath percent-encodes each segment of a repository file path,
// keeping the separators. File names can legally carry spaces or '#'.
func escapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = neturl.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

// ParseRepoURL extracts the owner and repository name from a repository
// locator such as https://github.com/acme/widgets or acme/widgets.git.
func ParseRepoURL(repoURL string) (string, string, error) {
	trimmed := strings.TrimSuffix(strings.TrimSpace(repoURL), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) < 2 {
		return "", "", fmt.Errorf("invalid repository URL: %s", repoURL)
	}

	owner := parts[len(parts)-2]
	repo := strings.TrimSuffix(parts[len(parts)-1], ".git")
	if owner == "" || repo == "" {
		return "", "", fmt.Errorf("invalid repository URL: %s", repoURL)
	}
	return owner, repo, nil
}
