// This command starts an HTTP server that resizes images stored in S3 through
// Transloadit.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/PaulARoy/azurestoragecache"
	"github.com/die-net/lrucache"
	"github.com/die-net/lrucache/twotier"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gomodule/redigo/redis"
	"github.com/gregjones/httpcache/diskcache"
	rediscache "github.com/gregjones/httpcache/redis"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/peterbourgon/diskv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/camshaft/imago"
)

const defaultMemorySize = 100

var addr = flag.String("addr", "localhost:8080", "TCP address to listen on")
var configFile = flag.String("config", "", "optional YAML, TOML, JSON or .env file with imago settings")
var prefix = flag.String("prefix", "", "path prefix to strip before the object key, e.g. /images")
var s3Bucket = flag.String("s3Bucket", "", "bucket to import source images from (default $S3_BUCKET)")
var cache tieredCache
var timeout = flag.Duration("timeout", 0, "time limit for requests served by this server")
var pollTimeout = flag.Duration("pollTimeout", 0, "give up on an assembly after this long (default 5m, negative for no limit)")
var precheck = flag.Bool("precheck", false, "HEAD the source object in S3 before submitting an assembly")
var verbose = flag.Bool("verbose", false, "print verbose logging messages")

func init() {
	flag.Var(&cache, "cache", "location to cache resized images (memory[:size[:age]], /path, redis://, azure://container)")
}

func buildLogger() *zap.SugaredLogger {
	cfg := zap.NewProductionConfig()
	if *verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	plainLogger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return plainLogger.Sugar()
}

func main() {
	var envHelp imago.Config
	flag.Usage = cleanenv.FUsage(flag.CommandLine.Output(), &envHelp, nil, flag.Usage)
	flag.Parse()

	logger := buildLogger()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warnw("Could not read .env",
			"error", err.Error(),
		)
	}

	explicit := imago.Config{
		S3Bucket:    *s3Bucket,
		PollTimeout: *pollTimeout,
		Precheck:    *precheck,
	}

	var cfg imago.Config
	var err error
	if *configFile != "" {
		cfg, err = imago.LoadConfigFile(*configFile, explicit)
	} else {
		cfg, err = imago.LoadConfig(explicit)
	}
	if err != nil {
		logger.Fatalw("Could not read configuration",
			"error", err.Error(),
			"configFile", *configFile,
		)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	im, err := imago.New(cfg,
		imago.WithLogger(logger),
		imago.WithMetrics(imago.NewMetrics(reg)),
		imago.WithCache(cache.Cache),
	)
	if err != nil {
		logger.Fatalw("Could not initialize imago",
			"error", err.Error(),
		)
	}

	var h http.Handler = im
	if *timeout > 0 {
		h = http.TimeoutHandler(h, *timeout, "Gateway timeout waiting for the resized image.")
	}

	server := &http.Server{
		Addr:    *addr,
		Handler: router(h, reg, *prefix),
	}

	logger.Infow("imago listening",
		"server.Addr", server.Addr,
		"prefix", *prefix,
	)
	logger.Fatal(server.ListenAndServe())
}

func router(h http.Handler, reg *prometheus.Registry, prefix string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Respond to health checks
	r.Get("/health-check", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "OK")
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	// Ignore certain urls without submitting anything
	for _, p := range []string{"/favicon.ico", "/apple-touch-icon.png", "/apple-touch-icon-precomposed.png"} {
		r.Get(p, http.NotFound)
	}

	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		r.Handle("/", h)
		r.Handle("/*", h)
		return r
	}
	r.Handle(prefix, http.StripPrefix(prefix, h))
	r.Handle(prefix+"/*", http.StripPrefix(prefix, h))
	return r
}

// tieredCache allows specifying multiple caches via flags, which will create
// tiered caches using the twotier package.
type tieredCache struct {
	imago.Cache
}

func (tc *tieredCache) String() string {
	return fmt.Sprint(*tc)
}

func (tc *tieredCache) Set(value string) error {
	c, err := parseCache(value)
	if err != nil {
		return err
	}

	if tc.Cache == nil {
		tc.Cache = c
	} else {
		tc.Cache = twotier.New(tc.Cache, c)
	}
	return nil
}

// parseCache parses c returns the specified Cache implementation.
func parseCache(c string) (imago.Cache, error) {
	if c == "" {
		return nil, nil
	}

	if c == "memory" {
		c = fmt.Sprintf("memory:%d", defaultMemorySize)
	}

	u, err := url.Parse(c)
	if err != nil {
		return nil, fmt.Errorf("error parsing cache flag: %v", err)
	}

	switch u.Scheme {
	case "azure":
		return azurestoragecache.New("", "", u.Host)
	case "memory":
		return lruCache(u.Opaque)
	case "redis":
		conn, err := redis.DialURL(u.String(), redis.DialPassword(os.Getenv("REDIS_PASSWORD")))
		if err != nil {
			return nil, err
		}
		return rediscache.NewWithClient(conn), nil
	case "file":
		fallthrough
	default:
		return diskCache(u.Path), nil
	}
}

// lruCache creates an LRU Cache with the specified options of the form
// "maxSize:maxAge".  maxSize is specified in megabytes, maxAge is a duration.
func lruCache(options string) (*lrucache.LruCache, error) {
	parts := strings.SplitN(options, ":", 2)
	size, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return nil, err
	}

	var age time.Duration
	if len(parts) > 1 {
		age, err = time.ParseDuration(parts[1])
		if err != nil {
			return nil, err
		}
	}

	return lrucache.New(size*1e6, int64(age.Seconds())), nil
}

func diskCache(path string) *diskcache.Cache {
	d := diskv.New(diskv.Options{
		BasePath: path,

		// For file "c0ffee", store file as "c0/ff/c0ffee"
		Transform: func(s string) []string { return []string{s[0:2], s[2:4]} },
	})
	return diskcache.NewWithDiskv(d)
}
