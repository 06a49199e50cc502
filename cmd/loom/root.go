package main

import (
	"bufio"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"loom/internal/app"
	"loom/internal/chat"
	"loom/internal/realtime"
	"loom/internal/session"
	"loom/internal/token"
)

var rootCmd = &cobra.Command{
	Use:           "loom",
	Short:         "Terminal client for a loom chat server",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	flagBaseURL       string
	flagLogLevel      string
	flagMetricsListen string
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagBaseURL, "base-url", "", "backend origin (overrides LOOM_BASE_URL)")
	flags.StringVar(&flagLogLevel, "log-level", "", "log level (overrides LOOM_LOG_LEVEL)")
	flags.StringVar(&flagMetricsListen, "metrics-listen", "", "serve Prometheus metrics on this address while running")

	rootCmd.AddCommand(signupCmd, loginCmd, logoutCmd, whoamiCmd, contactsCmd, chatCmd, profileCmd)
}

// convRef breaks the construction cycle between the session core and the
// conversation store: the session gets the ref up front, the store (or a
// wrapper around it) is bound after both exist.
type convRef struct {
	inner session.Conversations
}

func (r *convRef) SelectedPeerID() (int64, bool) {
	if r.inner == nil {
		return 0, false
	}
	return r.inner.SelectedPeerID()
}

func (r *convRef) Append(m realtime.Message) {
	if r.inner != nil {
		r.inner.Append(m)
	}
}

// runtime is the wired-up client: config, logger, metrics, token store,
// session core, and conversation store sharing one HTTP client.
type runtime struct {
	cfg     app.Config
	metrics *app.Metrics
	session *session.Store
	chat    *chat.Store
	cache   *chat.Cache
	conv    *convRef
}

func newRuntime() (*runtime, error) {
	cfg := app.LoadConfig()
	if flagBaseURL != "" {
		cfg.BaseURL = flagBaseURL
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}

	logger := app.NewLogger(cfg.LogLevel, cfg.LogPretty)
	metrics := app.NewMetrics()

	tokens, err := openTokenStore(cfg)
	if err != nil {
		return nil, err
	}

	rt := &runtime{cfg: cfg, metrics: metrics, conv: &convRef{}}

	if cfg.CachePath != "" {
		cache, err := chat.OpenCache(cfg.CachePath)
		if err != nil {
			return nil, fmt.Errorf("open message cache: %w", err)
		}
		rt.cache = cache
	}

	st, err := session.New(session.Config{
		BaseURL:       cfg.BaseURL,
		APIPrefix:     cfg.APIPrefix,
		HTTPTimeout:   cfg.HTTPTimeout,
		DialTimeout:   cfg.WSDialTimeout,
		Tokens:        tokens,
		Notify:        stderrNotifier{},
		Conversations: rt.conv,
		Logger:        logger,
		Metrics:       metrics,
	})
	if err != nil {
		return nil, err
	}
	rt.session = st
	rt.chat = chat.NewStore(st.API(), chat.WithCache(rt.cache), chat.WithLogger(logger))
	rt.conv.inner = rt.chat

	if flagMetricsListen != "" {
		go rt.serveMetrics(flagMetricsListen)
	}
	return rt, nil
}

func (rt *runtime) close() {
	rt.session.DisconnectSocket()
	if rt.cache != nil {
		_ = rt.cache.Close()
	}
}

func (rt *runtime) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(rt.metrics.Registry(), promhttp.HandlerOpts{}))
	_ = http.ListenAndServe(addr, mux)
}

func openTokenStore(cfg app.Config) (token.Store, error) {
	path := cfg.TokenPath
	if path == "" {
		p, err := token.DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	if cfg.TokenPassphrase != "" {
		return token.NewSealedFileStore(path, cfg.TokenPassphrase)
	}
	return token.NewFileStore(path)
}

// stderrNotifier renders session notifications on stderr so they never mix
// with machine-readable command output.
type stderrNotifier struct{}

func (stderrNotifier) Success(msg string) { fmt.Fprintf(os.Stderr, "ok: %s\n", msg) }
func (stderrNotifier) Error(msg string) { fmt.Fprintf(os.Stderr, "error: %s\n", msg) }
func (stderrNotifier) Info(msg string) { fmt.Fprintf(os.Stderr, "info: %s\n", msg) }

func promptLine(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
