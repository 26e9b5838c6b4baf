// Package github provides a remote.Store backed by the GitHub repository
// contents API. Each collection file lives at a path inside one repository
// branch; reads are conditional on the file's ETag and writes carry the blob
// sha the caller last saw.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/asaidimu/go-repodb/core/remote"
	"github.com/hashicorp/go-cleanhttp"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://api.github.com"
	DefaultTimeout = 15 * time.Second
	mediaType      = "application/vnd.github+json"
	apiVersion     = "2022-11-28"
)

// Options configures a Client.
type Options struct {
	BaseURL string
	Owner   string
	Repo    string
	Branch  string
	Token   string
	// CommitMessage builds the commit message for a write to path. The
	// default is "repodb: update <path>".
	CommitMessage func(path string, created bool) string
	Timeout       time.Duration
	HTTPClient    *http.Client
	Logger        *zap.Logger
}

// Client implements remote.Store against the contents API.
type Client struct {
	baseURL       string
	owner         string
	repo          string
	branch        string
	token         string
	commitMessage func(path string, created bool) string
	timeout       time.Duration
	http          *http.Client
	logger        *zap.Logger
}

var _ remote.Store = (*Client)(nil)

type contentsResponse struct {
	Type     string `json:"type"`
	Encoding string `json:"encoding"`
	Path     string `json:"path"`
	SHA      string `json:"sha"`
	Content  string `json:"content"`
}

type putRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha,omitempty"`
	Branch  string `json:"branch,omitempty"`
}

type putResponse struct {
	Content struct {
		Path string `json:"path"`
		SHA  string `json:"sha"`
	} `json:"content"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// NewClient validates the options and returns a ready Client.
func NewClient(opts Options) (*Client, error) {
	if opts.Owner == "" || opts.Repo == "" {
		return nil, fmt.Errorf("repository owner and name are required")
	}
	if opts.Token == "" {
		return nil, fmt.Errorf("access token is required")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = cleanhttp.DefaultPooledClient()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.CommitMessage == nil {
		opts.CommitMessage = defaultCommitMessage
	}

	return &Client{
		baseURL:       strings.TrimRight(opts.BaseURL, "/"),
		owner:         opts.Owner,
		repo:          opts.Repo,
		branch:        opts.Branch,
		token:         opts.Token,
		commitMessage: opts.CommitMessage,
		timeout:       opts.Timeout,
		http:          opts.HTTPClient,
		logger:        opts.Logger,
	}, nil
}

func defaultCommitMessage(path string, created bool) string {
	if created {
		return "repodb: create " + path
	}
	return "repodb: update " + path
}

// contentsURL builds the endpoint for a file path, escaping each segment.
func (c *Client) contentsURL(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return fmt.Sprintf("%s/repos/%s/%s/contents/%s", c.baseURL, url.PathEscape(c.owner), url.PathEscape(c.repo), strings.Join(segments, "/"))
}

func (c *Client) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", mediaType)
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// Fetch implements remote.Store.
func (c *Client) Fetch(ctx context.Context, path string, ifNoneMatch string) (*remote.File, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	target := c.contentsURL(path)
	if c.branch != "" {
		target += "?ref=" + url.QueryEscape(c.branch)
	}
	req, err := c.newRequest(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	if ifNoneMatch != "" {
		req.Header.Set("If-None-Match", ifNoneMatch)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, &remote.TransportError{Message: "fetch " + path + " failed", Err: err}
	}
	defer drain(res)

	switch res.StatusCode {
	case http.StatusNotModified:
		return nil, remote.ErrNotModified
	case http.StatusNotFound:
		return nil, remote.ErrNotFound
	case http.StatusOK:
	default:
		return nil, c.transportError(res, "fetch "+path)
	}

	var body contentsResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, &remote.TransportError{StatusCode: res.StatusCode, Message: "invalid contents response", Err: err}
	}
	if body.Type != "" && body.Type != "file" {
		return nil, &remote.TransportError{StatusCode: res.StatusCode, Message: fmt.Sprintf("%s is a %s, not a file", path, body.Type)}
	}
	if body.Encoding != "" && body.Encoding != "base64" {
		return nil, &remote.TransportError{StatusCode: res.StatusCode, Message: fmt.Sprintf("unsupported content encoding %q for %s", body.Encoding, path)}
	}

	content, err := remote.DecodeContent(body.Content)
	if err != nil {
		return nil, &remote.TransportError{StatusCode: res.StatusCode, Message: "invalid file content", Err: err}
	}

	c.logger.Debug("Fetched remote file",
		zap.String("path", path),
		zap.String("sha", body.SHA),
		zap.Int("bytes", len(content)),
	)
	return &remote.File{
		Path:     path,
		Content:  content,
		Revision: body.SHA,
		ETag:     res.Header.Get("ETag"),
	}, nil
}

// Create implements remote.Store.
func (c *Client) Create(ctx context.Context, path string, content []byte) (*remote.File, error) {
	return c.write(ctx, path, content, "")
}

// Put implements remote.Store.
func (c *Client) Put(ctx context.Context, path string, content []byte, expectedRevision string) (*remote.File, error) {
	if expectedRevision == "" {
		return nil, fmt.Errorf("put %s: expected revision is required", path)
	}
	return c.write(ctx, path, content, expectedRevision)
}

func (c *Client) write(ctx context.Context, path string, content []byte, sha string) (*remote.File, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	created := sha == ""
	payload, err := json.Marshal(putRequest{
		Message: c.commitMessage(path, created),
		Content: remote.EncodeContent(content),
		SHA:     sha,
		Branch:  c.branch,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal write request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPut, c.contentsURL(path), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, &remote.TransportError{Message: "write " + path + " failed", Err: err}
	}
	defer drain(res)

	switch {
	case res.StatusCode == http.StatusOK || res.StatusCode == http.StatusCreated:
	case res.StatusCode == http.StatusConflict:
		return nil, &remote.ConflictError{Path: path, ExpectedRevision: sha}
	case res.StatusCode == http.StatusUnprocessableEntity && created:
		return nil, remote.ErrAlreadyExists
	case res.StatusCode == http.StatusUnprocessableEntity:
		// A stale sha is reported as 422 on some endpoints.
		return nil, &remote.ConflictError{Path: path, ExpectedRevision: sha}
	case res.StatusCode == http.StatusNotFound:
		return nil, remote.ErrNotFound
	default:
		return nil, c.transportError(res, "write "+path)
	}

	var body putResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, &remote.TransportError{StatusCode: res.StatusCode, Message: "invalid write response", Err: err}
	}

	c.logger.Debug("Wrote remote file",
		zap.String("path", path),
		zap.Bool("created", created),
		zap.String("sha", body.Content.SHA),
	)
	return &remote.File{
		Path:     path,
		Content:  content,
		Revision: body.Content.SHA,
	}, nil
}

func (c *Client) transportError(res *http.Response, op string) error {
	var body errorResponse
	data, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	message := strings.TrimSpace(string(data))
	if err := json.Unmarshal(data, &body); err == nil && body.Message != "" {
		message = body.Message
	}
	c.logger.Warn("Remote request failed",
		zap.String("op", op),
		zap.Int("status", res.StatusCode),
		zap.String("message", message),
	)
	return &remote.TransportError{StatusCode: res.StatusCode, Message: fmt.Sprintf("%s: %s", op, message)}
}

func drain(res *http.Response) {
	if res == nil || res.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 64<<10))
	_ = res.Body.Close()
}

// IsRateLimited reports whether err is a transport error caused by an
// exhausted API quota.
func IsRateLimited(err error) bool {
	var te *remote.TransportError
	if !errors.As(err, &te) {
		return false
	}
	return te.StatusCode == http.StatusTooManyRequests ||
		(te.StatusCode == http.StatusForbidden && strings.Contains(strings.ToLower(te.Message), "rate limit"))
}
