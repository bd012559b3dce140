package imago

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultEndpoint     = "https://api2.transloadit.com"
	DefaultPollInterval = 500 * time.Millisecond
	DefaultPollTimeout  = 5 * time.Minute

	statusCompleted = "ASSEMBLY_COMPLETED"

	// signatures are valid for this long after the request is built
	authExpiry    = time.Hour
	expiresLayout = "2006/01/02 15:04:05+00:00"
)

var (
	// ErrPollTimeout is returned when an assembly is still running after
	// PollTimeout.
	ErrPollTimeout = errors.New("assembly did not complete in time")

	// ErrTooManyPolls is returned when an assembly is still running after
	// MaxPolls status requests.
	ErrTooManyPolls = errors.New("assembly did not complete within the poll limit")

	// ErrNoResult is returned when a completed assembly has no artifact for
	// the requested step.
	ErrNoResult = errors.New("assembly produced no result")
)

// AssemblyError is an application level failure reported by the remote
// service in an otherwise successful response.
type AssemblyError struct {
	Code        string
	Message     string
	AssemblyURL string
}

func (e *AssemblyError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}

// Result is one artifact produced by an assembly step.
type Result struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	URL    string `json:"url"`
	SSLURL string `json:"ssl_url"`
	Mime   string `json:"mime"`
	Size   int64  `json:"size"`
}

// AssemblyStatus is the status document of an assembly.
type AssemblyStatus struct {
	OK             string              `json:"ok"`
	Error          string              `json:"error"`
	Message        string              `json:"message"`
	AssemblyID     string              `json:"assembly_id"`
	AssemblyURL    string              `json:"assembly_url"`
	AssemblySSLURL string              `json:"assembly_ssl_url"`
	Results        map[string][]Result `json:"results"`
}

// ArtifactURL returns the URL of the first artifact produced by step.
func (s *AssemblyStatus) ArtifactURL(step string) (string, error) {
	results := s.Results[step]
	if len(results) == 0 {
		return "", fmt.Errorf("%w for step %q", ErrNoResult, step)
	}
	if results[0].URL != "" {
		return results[0].URL, nil
	}
	if results[0].SSLURL != "" {
		return results[0].SSLURL, nil
	}
	return "", fmt.Errorf("%w for step %q", ErrNoResult, step)
}

func (s *AssemblyStatus) pollURL() string {
	if s.AssemblySSLURL != "" {
		return s.AssemblySSLURL
	}
	return s.AssemblyURL
}

// Client submits assemblies and waits for them to finish. Create returns
// exactly once, with either a completed status or an error.
type Client interface {
	Create(context.Context, *Assembly) (*AssemblyStatus, error)
}

// TransloaditClient is a Client for the Transloadit REST API.
type TransloaditClient struct {
	logger     *zap.SugaredLogger
	metrics    *Metrics
	httpClient *http.Client

	authKey    string
	authSecret string
	endpoint   string

	// PollInterval is the fixed delay between status requests.
	PollInterval time.Duration

	// PollTimeout bounds the total time spent waiting for completion. Zero
	// or negative means no bound. A PollInterval longer than PollTimeout
	// gives up before the first poll.
	PollTimeout time.Duration

	// MaxPolls bounds the number of status requests. Zero means no bound.
	MaxPolls int

	now   func() time.Time
	nonce func() string
}

// NewTransloaditClient builds a client from the Transloadit settings of cfg.
func NewTransloaditClient(cfg Config, logger *zap.SugaredLogger, metrics *Metrics) (*TransloaditClient, error) {
	if cfg.TransloaditAuthKey == "" || cfg.TransloaditAuthSecret == "" {
		return nil, fmt.Errorf("transloadit auth key and secret are required")
	}
	cfg = cfg.withDefaults()

	return &TransloaditClient{
		logger:       logger,
		metrics:      metrics,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		authKey:      cfg.TransloaditAuthKey,
		authSecret:   cfg.TransloaditAuthSecret,
		endpoint:     strings.TrimRight(cfg.TransloaditEndpoint, "/"),
		PollInterval: cfg.PollInterval,
		PollTimeout:  cfg.PollTimeout,
		MaxPolls:     cfg.MaxPolls,
		now:          time.Now,
		nonce:        uuid.NewString,
	}, nil
}

// Create submits a and polls its status until it completes, fails, or one of
// the poll bounds is hit. Transport errors are returned unchanged.
func (c *TransloaditClient) Create(ctx context.Context, a *Assembly) (*AssemblyStatus, error) {
	status, err := c.create(ctx, a)

	var deadline time.Time
	if c.PollTimeout > 0 {
		deadline = c.now().Add(c.PollTimeout)
	}

	polls := 0
	for {
		if err != nil {
			return nil, err
		}
		if status.Error != "" {
			return nil, &AssemblyError{
				Code:        status.Error,
				Message:     status.Message,
				AssemblyURL: status.pollURL(),
			}
		}
		if status.OK == statusCompleted {
			return status, nil
		}

		u := status.pollURL()
		if u == "" {
			return nil, fmt.Errorf("assembly in state %q has no status URL", status.OK)
		}
		if c.MaxPolls > 0 && polls >= c.MaxPolls {
			return nil, fmt.Errorf("%w: %s after %d polls", ErrTooManyPolls, u, polls)
		}
		if !deadline.IsZero() && c.now().Add(c.PollInterval).After(deadline) {
			return nil, fmt.Errorf("%w: %s after %s", ErrPollTimeout, u, c.PollTimeout)
		}

		c.logger.Debugw("Assembly not completed yet, polling",
			"ok", status.OK,
			"assembly", u,
		)

		if err := sleep(ctx, c.PollInterval); err != nil {
			return nil, err
		}
		polls++
		c.metrics.poll()

		status, err = c.get(ctx, u)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type authParams struct {
	Key     string `json:"key"`
	Expires string `json:"expires"`
	Nonce   string `json:"nonce,omitempty"`
}

type assemblyParams struct {
	Auth       authParams      `json:"auth"`
	Steps      map[string]Step `json:"steps,omitempty"`
	TemplateID any             `json:"template_id,omitempty"`
}

// signedParams returns the JSON params field and its signature.
func (c *TransloaditClient) signedParams(a *Assembly) (string, string, error) {
	p := assemblyParams{
		Auth: authParams{
			Key:     c.authKey,
			Expires: c.now().UTC().Add(authExpiry).Format(expiresLayout),
			Nonce:   c.nonce(),
		},
		Steps:      a.Steps,
		TemplateID: a.TemplateID,
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", "", err
	}
	return string(b), sign(c.authSecret, b), nil
}

func sign(secret string, payload []byte) string {
	mac := hmac.New(sha512.New384, []byte(secret))
	mac.Write(payload)
	return "sha384:" + hex.EncodeToString(mac.Sum(nil))
}

func (c *TransloaditClient) create(ctx context.Context, a *Assembly) (*AssemblyStatus, error) {
	fields, signature, err := c.signedParams(a)
	if err != nil {
		return nil, err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("params", fields); err != nil {
		return nil, err
	}
	if err := mw.WriteField("signature", signature); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/assemblies", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	return c.do(req)
}

func (c *TransloaditClient) get(ctx context.Context, u string) (*AssemblyStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *TransloaditClient) do(req *http.Request) (*AssemblyStatus, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var status AssemblyStatus
	if err := json.Unmarshal(b, &status); err != nil {
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, req.URL.Host)
		}
		return nil, fmt.Errorf("decoding assembly status: %w", err)
	}
	if resp.StatusCode >= 400 && status.Error == "" {
		return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, req.URL.Host)
	}
	return &status, nil
}
