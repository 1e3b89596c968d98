// Package verify drives a remote symbolic-execution job: upload a source
// file, start verification, poll progress and fetch the final report.
package verify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Status is the state of a verification job.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusUploading Status = "uploading"
	StatusRunning   Status = "running"
	StatusComplete  Status = "complete"
	StatusFailed    Status = "failed"
)

var (
	ErrSourceUnreadable = errors.New("verify: source is not readable")
	ErrNoProjectID      = errors.New("verify: backend returned no project id")
	ErrPollLimit        = errors.New("verify: polling attempt limit reached")
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultMaxAttempts  = 900

	// runningStatus is the raw_status the backend reports while a job runs.
	runningStatus = "running"

	maxDisplayPercent = 90
)

// Job is one verification run over an uploaded source file.
type Job struct {
	RunID     string `json:"run_id"`
	ProjectID string `json:"project_id,omitempty"`
	Source    string `json:"source"`
	Status    Status `json:"status"`
	RawLog    string `json:"raw_log,omitempty"`
	Attempts  int    `json:"attempts"`
	Message   string `json:"message,omitempty"`
}

func (j *Job) fail(msg string) {
	j.Status = StatusFailed
	j.Message = msg
}

// Progress is reported to the Run callback as the job advances. Warning is
// set for transient polling failures.
type Progress struct {
	Attempt int
	Percent int
	Message string
	Warning bool
}

// progressFor returns the in-progress report for attempt. The displayed
// percentage never exceeds 90 until the job completes.
func progressFor(attempt int) Progress {
	pct := min(attempt, maxDisplayPercent)
	return Progress{
		Attempt: attempt,
		Percent: pct,
		Message: fmt.Sprintf("in progress - %d%%", pct),
	}
}

// Client talks to the verification backend.
type Client struct {
	baseURL     string
	http        *http.Client
	interval    time.Duration
	maxAttempts int
	logger      *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for all requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithPollInterval sets the delay between progress polls.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		c.interval = d
	}
}

// WithMaxAttempts bounds the number of progress polls. Zero means unbounded.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		c.maxAttempts = n
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// New creates a Client for the backend at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		http:        http.DefaultClient,
		interval:    DefaultPollInterval,
		maxAttempts: DefaultMaxAttempts,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run verifies the file at sourcePath and returns the finished job.
//
// An unreadable source fails the job before any request is made. Upload and
// report failures are returned as errors. Polling failures are reported to
// onProgress as warnings and retried after the poll interval, until the
// attempt limit is reached or ctx is done. onProgress may be nil.
func (c *Client) Run(ctx context.Context, sourcePath string, onProgress func(Progress)) (*Job, error) {
	job := &Job{
		RunID:  uuid.NewString(),
		Source: sourcePath,
		Status: StatusIdle,
	}
	log := c.logger.With(zap.String("run_id", job.RunID), zap.String("source", sourcePath))
	emit := func(p Progress) {
		if onProgress != nil {
			onProgress(p)
		}
	}

	src, err := os.ReadFile(sourcePath)
	if err != nil {
		job.fail(fmt.Sprintf("can not find smart contract expected to be readable from %q", sourcePath))
		log.Warn("source unreadable", zap.Error(err))
		return job, fmt.Errorf("%w: %v", ErrSourceUnreadable, err)
	}

	job.Status = StatusUploading
	emit(Progress{Message: "Started smart contract verification."})

	projectID, err := c.upload(ctx, src)
	if err != nil {
		job.fail(err.Error())
		return job, fmt.Errorf("verify: upload source: %w", err)
	}
	job.ProjectID = projectID
	log = log.With(zap.String("project_id", projectID))
	log.Info("source uploaded", zap.Int("bytes", len(src)))

	// The start response carries nothing the poller needs.
	if err := c.start(ctx, projectID); err != nil {
		log.Warn("start verification failed", zap.Error(err))
		emit(Progress{Message: err.Error(), Warning: true})
	}
	emit(Progress{Message: "Successfully uploaded smart contract source."})

	job.Status = StatusRunning
	for {
		emit(progressFor(job.Attempts))

		status, err := c.progress(ctx, projectID)
		switch {
		case err != nil && ctx.Err() != nil:
			job.fail(ctx.Err().Error())
			return job, ctx.Err()
		case err != nil:
			log.Warn("poll failed", zap.Int("attempt", job.Attempts), zap.Error(err))
			emit(Progress{Attempt: job.Attempts, Message: err.Error(), Warning: true})
		case status != runningStatus:
			rawLog, err := c.report(ctx, projectID)
			if err != nil {
				job.fail(err.Error())
				return job, fmt.Errorf("verify: fetch report: %w", err)
			}
			job.RawLog = rawLog
			job.Status = StatusComplete
			log.Info("verification complete", zap.Int("attempts", job.Attempts), zap.String("raw_status", status))
			emit(Progress{Attempt: job.Attempts, Percent: 100, Message: "Complete - 100%"})
			return job, nil
		}

		job.Attempts++
		if c.maxAttempts > 0 && job.Attempts >= c.maxAttempts {
			job.fail(fmt.Sprintf("no result after %d attempts", job.Attempts))
			return job, fmt.Errorf("%w (%d)", ErrPollLimit, job.Attempts)
		}

		wait := time.NewTimer(c.interval)
		select {
		case <-ctx.Done():
			wait.Stop()
			job.fail(ctx.Err().Error())
			return job, ctx.Err()
		case <-wait.C:
		}
	}
}

// --- backend routes ---

type uploadRequest struct {
	Source string `json:"source"`
}

type uploadResponse struct {
	ProjectID string `json:"project_id"`
}

type progressResponse struct {
	RawStatus string `json:"raw_status"`
}

type reportResponse struct {
	RawLog string `json:"raw_log"`
}

func verificationPath(projectID string, suffix ...string) string {
	return "/program-verification/" + url.PathEscape(projectID) + strings.Join(suffix, "")
}

func (c *Client) upload(ctx context.Context, src []byte) (string, error) {
	var resp uploadResponse
	body := uploadRequest{Source: base64.StdEncoding.EncodeToString(src)}
	if err := c.do(ctx, http.MethodPost, "/source", body, &resp); err != nil {
		return "", err
	}
	if resp.ProjectID == "" {
		return "", ErrNoProjectID
	}
	return resp.ProjectID, nil
}

func (c *Client) start(ctx context.Context, projectID string) error {
	return c.do(ctx, http.MethodPost, verificationPath(projectID), nil, nil)
}

func (c *Client) progress(ctx context.Context, projectID string) (string, error) {
	var resp progressResponse
	if err := c.do(ctx, http.MethodGet, verificationPath(projectID, "/progress"), nil, &resp); err != nil {
		return "", err
	}
	return resp.RawStatus, nil
}

func (c *Client) report(ctx context.Context, projectID string) (string, error) {
	var resp reportResponse
	if err := c.do(ctx, http.MethodGet, verificationPath(projectID, "/report"), nil, &resp); err != nil {
		return "", err
	}
	return resp.RawLog, nil
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Code)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// do sends a JSON request and decodes a JSON response into out when out is
// non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("build request %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
