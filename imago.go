// Package imago provides an HTTP handler that resizes images stored in S3
// through Transloadit assemblies and streams the result back. For typical use
// of creating and serving an Imago, see cmd/imago/main.go.
package imago

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	raven "github.com/getsentry/raven-go"
	"github.com/gregjones/httpcache"
	"go.uber.org/zap"

	"github.com/camshaft/imago/params"
)

// CacheControl is set on forwarded artifacts answered with 200 OK.
const CacheControl = "max-age=31536000, public"

// StatusClientClosedRequest is the status logged when the client went away
// before the assembly completed.
const StatusClientClosedRequest = 499

// Overridden in prod by linker
var buildVersion = "dev"

// Request headers passed on to the artifact host.
var forwardedRequestHeaders = []string{
	"Accept",
	"Accept-Encoding",
	"If-Match",
	"If-None-Match",
	"If-Modified-Since",
	"If-Unmodified-Since",
	"Range",
	"If-Range",
}

// Hop-by-hop headers are never copied from the artifact response.
var hopHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

// AssemblyHook may replace the assembly built for r. A nil return keeps the
// assembly as built.
type AssemblyHook func(a *Assembly, r *http.Request) *Assembly

// ErrorHandler receives every error that ends a request before an artifact is
// forwarded, exactly as it was returned.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// Imago serves resized images.
type Imago struct {
	logger  *zap.SugaredLogger
	metrics *Metrics

	creds   Credentials
	catalog *params.Catalog

	client     Client
	prechecker Prechecker
	onAssembly AssemblyHook
	onError    ErrorHandler
	report     func(err error, tags map[string]string) string

	cache      Cache
	httpClient *http.Client // client used to fetch artifacts
}

// Option configures an Imago.
type Option func(*Imago)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(im *Imago) { im.logger = logger }
}

// WithMetrics records outcomes in m.
func WithMetrics(m *Metrics) Option {
	return func(im *Imago) { im.metrics = m }
}

// WithClient replaces the Transloadit client.
func WithClient(c Client) Option {
	return func(im *Imago) { im.client = c }
}

// WithOnAssembly installs a hook that sees, and may replace, every assembly
// before it is submitted.
func WithOnAssembly(hook AssemblyHook) Option {
	return func(im *Imago) { im.onAssembly = hook }
}

// WithErrorHandler replaces the default error response.
func WithErrorHandler(h ErrorHandler) Option {
	return func(im *Imago) { im.onError = h }
}

// WithCache caches forwarded artifacts in c.
func WithCache(c Cache) Option {
	return func(im *Imago) { im.cache = c }
}

// WithHTTPClient sets the client used to fetch artifacts.
func WithHTTPClient(c *http.Client) Option {
	return func(im *Imago) { im.httpClient = c }
}

// WithPrechecker checks source objects with p before submitting.
func WithPrechecker(p Prechecker) Option {
	return func(im *Imago) { im.prechecker = p }
}

// WithCatalog replaces the parameter catalog.
func WithCatalog(c *params.Catalog) Option {
	return func(im *Imago) { im.catalog = c }
}

// New constructs an Imago. Unless WithClient is given, cfg must carry
// Transloadit credentials.
func New(cfg Config, opts ...Option) (*Imago, error) {
	cfg = cfg.withDefaults()

	im := &Imago{
		logger:     zap.NewNop().Sugar(),
		creds:      cfg.Credentials(),
		catalog:    params.Default,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		report:     captureError,
	}
	for _, opt := range opts {
		opt(im)
	}

	im.logger.Infow("Initializing imago",
		"buildVersion", buildVersion,
		"bucket", cfg.S3Bucket,
		"precheck", cfg.Precheck,
	)

	if im.client == nil {
		c, err := NewTransloaditClient(cfg, im.logger, im.metrics)
		if err != nil {
			return nil, err
		}
		im.client = c
	}

	if cfg.Precheck && im.prechecker == nil {
		p, err := NewS3Prechecker(cfg)
		if err != nil {
			return nil, err
		}
		im.prechecker = p
	}

	if im.onError == nil {
		im.onError = im.defaultErrorHandler
	}

	if im.cache != nil && im.cache != Cache(NopCache) {
		c := *im.httpClient
		c.Transport = &httpcache.Transport{
			Transport:           c.Transport,
			Cache:               im.cache,
			MarkCachedResponses: true,
		}
		im.httpClient = &c
	}

	return im, nil
}

// ServeHTTP answers / with the parameter catalog and treats every other path
// as the key of an image to resize.
func (im *Imago) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/" || r.URL.Path == "" {
		im.serveParams(w, r)
		return
	}

	WithLogging(http.HandlerFunc(im.serveImage), im.logger).ServeHTTP(w, r)
}

// Introspection returns the JSON document describing every parameter.
func (im *Imago) Introspection() ([]byte, error) {
	return json.Marshal(struct {
		Params params.Description `json:"params"`
	}{im.catalog.Describe()})
}

func (im *Imago) serveParams(w http.ResponseWriter, r *http.Request) {
	b, err := im.Introspection()
	if err != nil {
		im.onError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Write(b)
}

// serveImage resolves the artifact for r and forwards it.
func (im *Imago) serveImage(w http.ResponseWriter, r *http.Request) {
	u, err := im.Resolve(r)
	if err != nil {
		im.onError(w, r, err)
		return
	}
	im.forward(w, r, u)
}

// Resolve builds and submits the assembly for r and returns the URL of its
// artifact. Errors from the client are returned unchanged.
func (im *Imago) Resolve(r *http.Request) (string, error) {
	ctx := r.Context()
	key := ObjectKey(r)

	if im.prechecker != nil {
		if err := im.prechecker.Check(ctx, im.creds.Bucket, key); err != nil {
			if errors.Is(err, ErrObjectNotFound) {
				return "", err
			}
			im.logger.Warnw("Source precheck failed, submitting anyway",
				"key", key,
				"error", err.Error(),
			)
		}
	}

	a := BuildAssembly(key, params.ParseQuery(r.URL.Query()), im.creds, im.catalog)
	if im.onAssembly != nil {
		if replaced := im.onAssembly(a, r); replaced != nil {
			a = replaced
		}
	}

	status, err := im.submit(ctx, a)
	if err != nil {
		return "", err
	}
	return status.ArtifactURL(outStep)
}

// submit runs one assembly and records how it went.
func (im *Imago) submit(ctx context.Context, a *Assembly) (*AssemblyStatus, error) {
	start := time.Now()
	status, err := im.client.Create(ctx, a)

	outcome := "completed"
	logctx := im.logger.With("duration", time.Since(start))
	switch {
	case err != nil:
		outcome = "error"
		logctx = logctx.With("error", err.Error())
		var aerr *AssemblyError
		if errors.As(err, &aerr) {
			logctx = logctx.With("assembly", aerr.AssemblyURL)
		}
	case status != nil:
		logctx = logctx.With("assembly", status.pollURL())
	}
	im.metrics.assembly(outcome, start)
	logctx.Infow("transloadit.resize")

	return status, err
}

// forward streams the artifact at u to w. Cache-Control is set only when the
// artifact host answers 200.
func (im *Imago) forward(w http.ResponseWriter, r *http.Request, u string) {
	method := http.MethodGet
	if r.Method == http.MethodHead {
		method = http.MethodHead
	}

	req, err := http.NewRequestWithContext(r.Context(), method, u, nil)
	if err != nil {
		im.onError(w, r, err)
		return
	}
	copyHeader(req.Header, r.Header, forwardedRequestHeaders...)

	resp, err := im.httpClient.Do(req)
	if err != nil {
		im.onError(w, r, err)
		return
	}
	defer resp.Body.Close()

	for k := range resp.Header {
		if !hopHeaders[k] {
			copyHeader(w.Header(), resp.Header, k)
		}
	}
	if resp.StatusCode == http.StatusOK {
		w.Header().Set("Cache-Control", CacheControl)
	}
	im.metrics.forward(resp.StatusCode)

	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		im.logger.Infow("Error streaming artifact",
			"error", err.Error(),
			"artifact", u,
		)
	}
}

func (im *Imago) defaultErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		im.report(err, map[string]string{"path": r.URL.Path})
	}
	im.logger.Warnw("Error serving image",
		"error", err.Error(),
		"req.URL", r.URL,
		"status", status,
	)
	msg := fmt.Sprintf("error processing image: %s", err.Error())
	http.Error(w, msg, status)
}

func captureError(err error, tags map[string]string) string {
	return raven.CaptureError(err, tags)
}

// StatusFor maps an error from Resolve to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrObjectNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.Canceled):
		return StatusClientClosedRequest
	case errors.Is(err, ErrPollTimeout), errors.Is(err, ErrTooManyPolls), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// copyHeader copies header values from src to dst, adding to any existing
// values with the same header name.  If keys is not empty, only those header
// keys will be copied.
func copyHeader(dst, src http.Header, keys ...string) {
	if len(keys) == 0 {
		for k := range src {
			keys = append(keys, k)
		}
	}
	for _, key := range keys {
		k := http.CanonicalHeaderKey(key)
		for _, v := range src[k] {
			dst.Add(k, v)
		}
	}
}
