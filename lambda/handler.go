// Package lambda serves imago behind an API Gateway HTTP API. Instead of
// streaming the artifact through the function it answers with a redirect to
// it.
package lambda

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/camshaft/imago"
)

// Resolver resolves a request to the URL of its artifact.
type Resolver interface {
	Resolve(*http.Request) (string, error)
	Introspection() ([]byte, error)
}

type Handler struct {
	logger   *zap.SugaredLogger
	resolver Resolver
}

func NewHandler(resolver Resolver, logger *zap.SugaredLogger) *Handler {
	return &Handler{
		logger:   logger,
		resolver: resolver,
	}
}

// Handle answers a single API Gateway v2 request.
func (h *Handler) Handle(ctx context.Context, ev events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	logctx := h.logger.With(
		"func", "Handle",
		"path", ev.RawPath,
		"query", ev.RawQueryString,
	)

	req, err := toRequest(ctx, ev)
	if err != nil {
		logctx.Warnw("Could not build request from event",
			"Error", err.Error(),
		)
		return textResponse(http.StatusBadRequest, err.Error()), nil
	}

	if req.URL.Path == "/" || req.URL.Path == "" {
		b, err := h.resolver.Introspection()
		if err != nil {
			return textResponse(http.StatusInternalServerError, err.Error()), nil
		}
		return events.APIGatewayV2HTTPResponse{
			StatusCode: http.StatusOK,
			Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
			Body:       string(b),
		}, nil
	}

	then := time.Now()

	u, err := h.resolver.Resolve(req)
	if err != nil {
		status := imago.StatusFor(err)
		logctx.Warnw("Could not resolve artifact",
			"Error", err.Error(),
			"status", status,
		)
		return textResponse(status, err.Error()), nil
	}

	logctx.Infow("Resolved",
		"duration", time.Since(then),
		"artifact", u,
	)

	return events.APIGatewayV2HTTPResponse{
		StatusCode: http.StatusFound,
		Headers: map[string]string{
			"Location":      u,
			"Cache-Control": imago.CacheControl,
		},
	}, nil
}

func toRequest(ctx context.Context, ev events.APIGatewayV2HTTPRequest) (*http.Request, error) {
	method := ev.RequestContext.HTTP.Method
	if method == "" {
		method = http.MethodGet
	}

	u := &url.URL{Path: ev.RawPath, RawQuery: ev.RawQueryString}
	if p, err := url.PathUnescape(ev.RawPath); err == nil {
		u.Path = p
		u.RawPath = ev.RawPath
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, err
	}
	for k, v := range ev.Headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

func textResponse(status int, body string) events.APIGatewayV2HTTPResponse {
	return events.APIGatewayV2HTTPResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "text/plain; charset=utf-8"},
		Body:       body,
	}
}
