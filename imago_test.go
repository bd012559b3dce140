package imago

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/camshaft/imago/params"
)

func logger() *zap.SugaredLogger {
	plainLogger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	return plainLogger.Sugar()
}

type fakeClient struct {
	mu     sync.Mutex
	got    []*Assembly
	status *AssemblyStatus
	err    error
}

func (c *fakeClient) Create(ctx context.Context, a *Assembly) (*AssemblyStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, a)
	return c.status, c.err
}

func (c *fakeClient) calls() []*Assembly {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Assembly(nil), c.got...)
}

type fakePrechecker struct {
	err  error
	keys []string
}

func (p *fakePrechecker) Check(ctx context.Context, bucket, key string) error {
	p.keys = append(p.keys, bucket+"/"+key)
	return p.err
}

type mapCache struct {
	mu sync.Mutex
	m  map[string][]byte
}

func (c *mapCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.m[key]
	return b, ok
}

func (c *mapCache) Set(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = data
}

func (c *mapCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, key)
}

// artifactServer serves a fixed image under /artifacts/ and answers 404
// elsewhere.
func artifactServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		if r.URL.Path != "/artifacts/photo.jpg" {
			w.Header().Set("Cache-Control", "no-cache")
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Cache-Control", "max-age=60")
		w.Header().Set("ETag", `"v1"`)
		w.Write([]byte("JPEG"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func completed(artifact string) *AssemblyStatus {
	return &AssemblyStatus{
		OK:      statusCompleted,
		Results: map[string][]Result{"out": {{URL: artifact}}},
	}
}

func newTestImago(t *testing.T, opts ...Option) *Imago {
	t.Helper()
	opts = append([]Option{WithLogger(logger())}, opts...)
	im, err := New(Config{S3Bucket: "photos", S3Key: "AKIA", S3Secret: "s3cr3t"}, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return im
}

func TestNew_RequiresTransloaditCredentials(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New accepted a config without Transloadit credentials")
	}
	if _, err := New(Config{TransloaditAuthKey: "k", TransloaditAuthSecret: "s"}); err != nil {
		t.Errorf("New returned error: %v", err)
	}
}

func TestServeHTTP_Introspection(t *testing.T) {
	client := &fakeClient{}
	im := newTestImago(t, WithClient(client))

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	im.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("unexpected Content-Type %q", ct)
	}
	if len(client.calls()) != 0 {
		t.Errorf("introspection submitted an assembly")
	}

	var doc struct {
		Params json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatal(err)
	}
	want, err := json.Marshal(params.Default.Describe())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(doc.Params, want) {
		t.Errorf("params document differs from the catalog description")
	}

	var entries map[string]params.Entry
	if err := json.Unmarshal(doc.Params, &entries); err != nil {
		t.Fatal(err)
	}
	if got := entries["quality"]; got.Type != "1-100" || got.Value != float64(92) {
		t.Errorf("quality entry = %#v", got)
	}
}

func TestServeHTTP_Forwards(t *testing.T) {
	var hits int32
	artifacts := artifactServer(t, &hits)
	client := &fakeClient{status: completed(artifacts.URL + "/artifacts/photo.jpg")}
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	im := newTestImago(t, WithClient(client), WithMetrics(m))

	req := httptest.NewRequest("GET", "/photo.jpg?width=200&strip=true", nil)
	w := httptest.NewRecorder()
	im.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := w.Body.String(); got != "JPEG" {
		t.Errorf("body = %q, want JPEG", got)
	}
	if got := w.Header().Get("Cache-Control"); got != CacheControl {
		t.Errorf("Cache-Control = %q, want %q", got, CacheControl)
	}
	if got := w.Header().Get("Content-Type"); got != "image/jpeg" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := w.Header().Get("ETag"); got != `"v1"` {
		t.Errorf("ETag = %q", got)
	}

	calls := client.calls()
	if len(calls) != 1 {
		t.Fatalf("submitted %d assemblies, want 1", len(calls))
	}
	out := calls[0].Steps["out"]
	if out["width"] != 200 || out["strip"] != true || out["quality"] != 92 {
		t.Errorf("unexpected out step %#v", out)
	}
	if got := calls[0].Steps["import"]["path"]; got != "photo.jpg" {
		t.Errorf("import path = %#v", got)
	}

	if got := testutil.ToFloat64(m.assemblies.WithLabelValues("completed")); got != 1 {
		t.Errorf("assemblies_total{completed} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.forwarded.WithLabelValues("200")); got != 1 {
		t.Errorf("forward_status_total{200} = %v, want 1", got)
	}
}

func TestServeHTTP_NoCacheHeaderUnlessOK(t *testing.T) {
	var hits int32
	artifacts := artifactServer(t, &hits)
	client := &fakeClient{status: completed(artifacts.URL + "/artifacts/missing.jpg")}
	im := newTestImago(t, WithClient(client))

	w := httptest.NewRecorder()
	im.ServeHTTP(w, httptest.NewRequest("GET", "/photo.jpg", nil))

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if got := w.Header().Get("Cache-Control"); got != "no-cache" {
		t.Errorf("Cache-Control = %q, want the upstream value", got)
	}
}

func TestServeHTTP_ForwardsErrorUnchanged(t *testing.T) {
	var hits int32
	artifactServer(t, &hits)

	boom := errors.New("submission failed")
	var got error
	im := newTestImago(t,
		WithClient(&fakeClient{err: boom}),
		WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			got = err
			w.WriteHeader(http.StatusTeapot)
		}),
	)

	w := httptest.NewRecorder()
	im.ServeHTTP(w, httptest.NewRequest("GET", "/photo.jpg", nil))

	if got != boom {
		t.Errorf("error handler got %v, want %v", got, boom)
	}
	if w.Code != http.StatusTeapot {
		t.Errorf("expected the error handler's status, got %d", w.Code)
	}
	if n := atomic.LoadInt32(&hits); n != 0 {
		t.Errorf("fetched the artifact host %d times after an error", n)
	}
}

func TestServeHTTP_DefaultErrorStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{&AssemblyError{Code: "INVALID", Message: "nope"}, http.StatusBadGateway},
		{fmt.Errorf("%w: somewhere", ErrPollTimeout), http.StatusGatewayTimeout},
		{fmt.Errorf("%w: somewhere", ErrTooManyPolls), http.StatusGatewayTimeout},
		{errors.New("dial tcp: refused"), http.StatusBadGateway},
		{fmt.Errorf("poll: %w", context.Canceled), StatusClientClosedRequest},
		{ErrObjectNotFound, http.StatusNotFound},
	}

	for _, tt := range tests {
		im := newTestImago(t, WithClient(&fakeClient{err: tt.err}))
		var reported []error
		im.report = func(err error, _ map[string]string) string {
			reported = append(reported, err)
			return ""
		}
		w := httptest.NewRecorder()
		im.ServeHTTP(w, httptest.NewRequest("GET", "/photo.jpg", nil))

		if w.Code != tt.status {
			t.Errorf("%v: status %d, want %d", tt.err, w.Code, tt.status)
		}
		want := 0
		if tt.status >= http.StatusInternalServerError {
			want = 1
		}
		if got := len(reported); got != want {
			t.Errorf("%v: reported %d times, want %d", tt.err, got, want)
		}
	}
}

func TestServeHTTP_NoResult(t *testing.T) {
	im := newTestImago(t, WithClient(&fakeClient{status: &AssemblyStatus{OK: statusCompleted}}))
	w := httptest.NewRecorder()
	im.ServeHTTP(w, httptest.NewRequest("GET", "/photo.jpg", nil))

	if w.Code != http.StatusBadGateway {
		t.Errorf("status %d, want %d", w.Code, http.StatusBadGateway)
	}
}

func TestOnAssembly(t *testing.T) {
	var hits int32
	artifacts := artifactServer(t, &hits)
	status := completed(artifacts.URL + "/artifacts/photo.jpg")

	replacement := &Assembly{TemplateID: "from-hook"}
	tests := []struct {
		name string
		hook AssemblyHook
		want func(built *Assembly) *Assembly
	}{
		{
			"replace",
			func(a *Assembly, r *http.Request) *Assembly { return replacement },
			func(*Assembly) *Assembly { return replacement },
		},
		{
			"keep",
			func(a *Assembly, r *http.Request) *Assembly {
				a.Steps["out"]["width"] = 1
				return nil
			},
			nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seenReq *http.Request
			var built *Assembly
			client := &fakeClient{status: status}
			im := newTestImago(t, WithClient(client), WithOnAssembly(func(a *Assembly, r *http.Request) *Assembly {
				seenReq, built = r, a
				return tt.hook(a, r)
			}))

			req := httptest.NewRequest("GET", "/photo.jpg?width=10", nil)
			w := httptest.NewRecorder()
			im.ServeHTTP(w, req)

			if seenReq == nil || seenReq.URL.Path != "/photo.jpg" {
				t.Fatalf("hook did not see the request")
			}
			calls := client.calls()
			if len(calls) != 1 {
				t.Fatalf("submitted %d assemblies", len(calls))
			}
			want := built
			if tt.want != nil {
				want = tt.want(built)
			}
			if calls[0] != want {
				t.Errorf("submitted %#v, want %#v", calls[0], want)
			}
		})
	}
}

func TestResolve_Precheck(t *testing.T) {
	tests := []struct {
		err        error
		wantErr    error
		wantSubmit int
	}{
		{nil, nil, 1},
		{fmt.Errorf("%w: s3://photos/photo.jpg", ErrObjectNotFound), ErrObjectNotFound, 0},
		{errors.New("access denied"), nil, 1},
	}

	for _, tt := range tests {
		client := &fakeClient{status: completed("http://artifacts/photo.jpg")}
		pc := &fakePrechecker{err: tt.err}
		im := newTestImago(t, WithClient(client), WithPrechecker(pc))

		u, err := im.Resolve(httptest.NewRequest("GET", "/photo.jpg", nil))
		if !errors.Is(err, tt.wantErr) || (tt.wantErr == nil && err != nil) {
			t.Errorf("Resolve returned %v, want %v", err, tt.wantErr)
		}
		if tt.wantErr == nil && u != "http://artifacts/photo.jpg" {
			t.Errorf("Resolve returned %q", u)
		}
		if got := len(client.calls()); got != tt.wantSubmit {
			t.Errorf("submitted %d assemblies, want %d", got, tt.wantSubmit)
		}
		if !reflect.DeepEqual(pc.keys, []string{"photos/photo.jpg"}) {
			t.Errorf("prechecked %v", pc.keys)
		}
	}

	im := newTestImago(t,
		WithClient(&fakeClient{}),
		WithPrechecker(&fakePrechecker{err: ErrObjectNotFound}),
	)
	w := httptest.NewRecorder()
	im.ServeHTTP(w, httptest.NewRequest("GET", "/photo.jpg", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("missing source answered %d, want 404", w.Code)
	}
}

func TestServeHTTP_CachesArtifacts(t *testing.T) {
	var hits int32
	artifacts := artifactServer(t, &hits)
	client := &fakeClient{status: completed(artifacts.URL + "/artifacts/photo.jpg")}
	im := newTestImago(t, WithClient(client), WithCache(&mapCache{m: map[string][]byte{}}))

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		im.ServeHTTP(w, httptest.NewRequest("GET", "/photo.jpg", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i, w.Code)
		}
		body, _ := io.ReadAll(w.Body)
		if string(body) != "JPEG" {
			t.Errorf("request %d: body %q", i, body)
		}
		if i == 1 && w.Header().Get("X-From-Cache") != "1" {
			t.Errorf("second response was not served from cache")
		}
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Errorf("artifact host hit %d times, want 1", n)
	}
	if got := len(client.calls()); got != 2 {
		t.Errorf("submitted %d assemblies, want one per request", got)
	}
}

func TestServeHTTP_Head(t *testing.T) {
	var method string
	artifacts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		if r.Header.Get("If-None-Match") != `"v1"` {
			t.Errorf("If-None-Match not forwarded")
		}
		w.WriteHeader(http.StatusNotModified)
	}))
	defer artifacts.Close()

	im := newTestImago(t, WithClient(&fakeClient{status: completed(artifacts.URL + "/a")}))
	req := httptest.NewRequest("HEAD", "/photo.jpg", nil)
	req.Header.Set("If-None-Match", `"v1"`)
	w := httptest.NewRecorder()
	im.ServeHTTP(w, req)

	if method != http.MethodHead {
		t.Errorf("artifact fetched with %s, want HEAD", method)
	}
	if w.Code != http.StatusNotModified {
		t.Errorf("status %d, want 304", w.Code)
	}
	if w.Header().Get("Cache-Control") != "" {
		t.Errorf("Cache-Control set on a 304")
	}
}

func TestCopyHeader(t *testing.T) {
	tests := []struct {
		dst, src http.Header
		keys     []string
		want     http.Header
	}{
		// empty
		{http.Header{}, http.Header{}, nil, http.Header{}},
		{http.Header{}, http.Header{}, []string{}, http.Header{}},
		{http.Header{}, http.Header{}, []string{"A"}, http.Header{}},

		// nothing to copy
		{
			dst:  http.Header{"A": []string{"a1"}},
			src:  http.Header{},
			keys: nil,
			want: http.Header{"A": []string{"a1"}},
		},
		{
			dst:  http.Header{},
			src:  http.Header{"A": []string{"a"}},
			keys: []string{"B"},
			want: http.Header{},
		},

		// copy headers
		{
			dst:  http.Header{},
			src:  http.Header{"A": []string{"a"}},
			keys: nil,
			want: http.Header{"A": []string{"a"}},
		},
		{
			dst:  http.Header{"A": []string{"a"}},
			src:  http.Header{"B": []string{"b"}, "C": []string{"c"}},
			keys: []string{"b"},
			want: http.Header{"A": []string{"a"}, "B": []string{"b"}},
		},
		{
			dst:  http.Header{"A": []string{"a1"}},
			src:  http.Header{"A": []string{"a2"}},
			keys: nil,
			want: http.Header{"A": []string{"a1", "a2"}},
		},
	}

	for _, tt := range tests {
		// copy dst map
		got := make(http.Header)
		for k, v := range tt.dst {
			got[k] = v
		}

		copyHeader(got, tt.src, tt.keys...)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("copyHeader(%v, %v, %v) returned %v, want %v", tt.dst, tt.src, tt.keys, got, tt.want)
		}
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrObjectNotFound, http.StatusNotFound},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{context.Canceled, StatusClientClosedRequest},
		{&AssemblyError{Code: "X"}, http.StatusBadGateway},
		{ErrNoResult, http.StatusBadGateway},
	}
	for _, tt := range tests {
		if got := StatusFor(tt.err); got != tt.want {
			t.Errorf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
