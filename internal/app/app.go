// Package app wires all voxgate subsystems into a running gateway process.
//
// The App struct owns the full lifecycle: New creates and connects telemetry,
// providers, and the WebSocket gateway; Run serves HTTP until the context is
// cancelled; Shutdown tears everything down in reverse-init order.
//
// For testing, inject mock providers via functional options (WithSTTProvider,
// WithTTSProvider, WithLLMProvider). When an option is not provided, New
// creates real adapters from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/voxgate/voxgate/internal/agent"
	"github.com/voxgate/voxgate/internal/config"
	"github.com/voxgate/voxgate/internal/gateway"
	"github.com/voxgate/voxgate/internal/health"
	"github.com/voxgate/voxgate/internal/observe"
	"github.com/voxgate/voxgate/internal/resilience"
	"github.com/voxgate/voxgate/internal/session"
	"github.com/voxgate/voxgate/internal/transcript"
	"github.com/voxgate/voxgate/pkg/provider/llm"
	"github.com/voxgate/voxgate/pkg/provider/llm/anyllm"
	openaillm "github.com/voxgate/voxgate/pkg/provider/llm/openai"
	"github.com/voxgate/voxgate/pkg/provider/stt"
	"github.com/voxgate/voxgate/pkg/provider/stt/parakeet"
	"github.com/voxgate/voxgate/pkg/provider/tts"
	"github.com/voxgate/voxgate/pkg/provider/tts/kokoro"
	"github.com/voxgate/voxgate/pkg/provider/tts/openaitts"
)

// shutdownTimeout bounds the HTTP drain plus closer teardown in Run.
const shutdownTimeout = 10 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	cfg *config.Config
	log *slog.Logger

	// levelVar, when set, lets config reloads retune log verbosity live.
	levelVar *slog.LevelVar

	metrics   *observe.Metrics
	history   *session.Store
	personas  *agent.Registry
	corrector *transcript.Corrector

	sttProv stt.Provider
	ttsProv map[string]tts.Provider
	llmProv llm.Provider

	gateway *gateway.Server
	healthz *health.Handler
	handler http.Handler

	// sessMu guards the session defaults swapped on config reload. New
	// connections pick up the latest values; existing ones keep theirs.
	sessMu  sync.Mutex
	sessCfg config.SessionConfig

	// closers run in reverse order during Shutdown.
	closers  []func(context.Context) error
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSTTProvider injects the transcription adapter instead of creating a
// parakeet client from config.
func WithSTTProvider(p stt.Provider) Option {
	return func(a *App) { a.sttProv = p }
}

// WithTTSProvider registers a synthesis backend under the given name instead
// of creating kokoro/openai clients from config.
func WithTTSProvider(name string, p tts.Provider) Option {
	return func(a *App) {
		if a.ttsProv == nil {
			a.ttsProv = make(map[string]tts.Provider)
		}
		a.ttsProv[name] = p
	}
}

// WithLLMProvider injects the chat-completion provider instead of creating
// one from config.
func WithLLMProvider(p llm.Provider) Option {
	return func(a *App) { a.llmProv = p }
}

// WithLogger sets the application logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(a *App) { a.log = log }
}

// WithMetrics injects pre-built instruments and skips the global telemetry
// bootstrap. Tests use this to read metrics through a manual reader without
// touching the process-wide Prometheus registry.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevelVar hands the App the level variable backing the process logger so
// config reloads can retune verbosity without a restart.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.levelVar = lv }
}

// New wires the full gateway from cfg. Providers not injected via options are
// built from the config; telemetry is initialised globally.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config must not be nil")
	}
	a := &App{
		cfg:     cfg,
		sessCfg: cfg.Session,
	}
	for _, o := range opts {
		o(a)
	}
	if a.log == nil {
		a.log = slog.Default()
	}

	if a.metrics == nil {
		otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
			ServiceName: "voxgate",
		})
		if err != nil {
			return nil, fmt.Errorf("app: init telemetry: %w", err)
		}
		a.closers = append(a.closers, otelShutdown)
		a.metrics = observe.DefaultMetrics()
	}

	a.history = session.NewStore(session.StoreConfig{})

	var err error
	a.personas, err = agent.NewRegistry(cfg.Personas)
	if err != nil {
		return nil, fmt.Errorf("app: load personas: %w", err)
	}

	a.corrector = transcript.New(transcript.Config{
		Enabled:           cfg.Keywords.Enabled,
		Keywords:          correctorKeywords(cfg, a.personas),
		PhoneticThreshold: cfg.Keywords.PhoneticThreshold,
		FuzzyThreshold:    cfg.Keywords.FuzzyThreshold,
	})

	if err := a.initProviders(); err != nil {
		return nil, err
	}

	a.gateway, err = gateway.NewServer(gateway.ServerConfig{
		ConnConfig: a.connConfig,
		Metrics:    a.metrics,
		Logger:     a.log,
	})
	if err != nil {
		return nil, fmt.Errorf("app: build gateway: %w", err)
	}

	a.healthz = health.New(a.readinessCheckers()...)

	mux := http.NewServeMux()
	a.gateway.Register(mux)
	a.healthz.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	a.handler = observe.Middleware(a.metrics)(mux)

	return a, nil
}

// initProviders builds the adapters not injected through options.
func (a *App) initProviders() error {
	if a.sttProv == nil {
		p, err := parakeet.New(a.cfg.Providers.Parakeet.URL)
		if err != nil {
			return fmt.Errorf("app: parakeet client: %w", err)
		}
		a.sttProv = p
	}

	if a.ttsProv == nil {
		a.ttsProv = make(map[string]tts.Provider)

		var kokoroOpts []kokoro.Option
		if v := a.cfg.Providers.Kokoro.Voice; v != "" {
			kokoroOpts = append(kokoroOpts, kokoro.WithDefaultVoice(v))
		}
		kk, err := kokoro.New(a.cfg.Providers.Kokoro.URL, kokoroOpts...)
		if err != nil {
			return fmt.Errorf("app: kokoro client: %w", err)
		}
		a.ttsProv["kokoro"] = kk

		if key := a.cfg.Providers.OpenAI.APIKey; key != "" {
			oa, err := openaitts.New(key)
			if err != nil {
				return fmt.Errorf("app: openai tts client: %w", err)
			}
			a.ttsProv["openai"] = oa
		}
	}

	if a.llmProv == nil {
		llmCfg := a.cfg.Providers.LLM
		if llmCfg.APIKey == "" {
			llmCfg.APIKey = a.cfg.Providers.OpenAI.APIKey
		}
		p, err := buildLLM(llmCfg)
		if err != nil {
			return fmt.Errorf("app: llm provider: %w", err)
		}
		a.llmProv = p
	}

	return nil
}

// buildLLM creates the chat-completion backend named by the config. OpenAI
// with a configured key goes through the native SDK adapter; everything else
// (including keyless OpenAI relying on OPENAI_API_KEY) rides any-llm.
func buildLLM(cfg config.LLMConfig) (llm.Provider, error) {
	if cfg.Backend == config.BackendOpenAI && cfg.APIKey != "" {
		var opts []openaillm.Option
		if cfg.BaseURL != "" {
			opts = append(opts, openaillm.WithBaseURL(cfg.BaseURL))
		}
		return openaillm.New(cfg.APIKey, cfg.Model, opts...)
	}

	var opts []anyllmlib.Option
	if cfg.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(cfg.BaseURL))
	}
	return anyllm.New(string(cfg.Backend), cfg.Model, opts...)
}

// connConfig builds the dependency stack for one accepted connection. The
// breakers and limiters inside are per-connection; providers, history, and
// personas are shared.
func (a *App) connConfig() gateway.ConnConfig {
	a.sessMu.Lock()
	sess := a.sessCfg
	a.sessMu.Unlock()

	sttRouter := resilience.NewSTTRouter(a.sttProv, resilience.STTRouterConfig{
		OnEvent: func(ev resilience.RouterEvent) {
			a.log.Warn("stt provider availability changed",
				"event", ev.Type, "from", ev.From, "to", ev.To)
			state := "closed"
			if ev.Type == resilience.EventProviderSwitched {
				state = "open"
			}
			a.metrics.RecordBreakerTransition(context.Background(), ev.From, state)
		},
	})

	ttsCfg := resilience.TTSRouterConfig{Preferred: string(sess.TTSProvider)}
	// Registration order fixes the failover order behind the preferred
	// backend.
	for _, name := range []string{"kokoro", "openai"} {
		if p, ok := a.ttsProv[name]; ok {
			ttsCfg.Providers = append(ttsCfg.Providers, resilience.TTSProviderConfig{
				Name:     name,
				Provider: p,
			})
		}
	}
	if _, ok := a.ttsProv[string(sess.TTSProvider)]; !ok {
		ttsCfg.Preferred = ""
	}
	ttsRouter, err := resilience.NewTTSRouter(ttsCfg)
	if err != nil {
		// Unreachable with the bundled providers; kokoro is always built.
		panic(fmt.Sprintf("app: tts router: %v", err))
	}

	return gateway.ConnConfig{
		STT:            sttRouter,
		TTS:            ttsRouter,
		LLM:            a.llmProv,
		History:        a.history,
		Personas:       a.personas,
		Corrector:      a.corrector,
		Metrics:        a.metrics,
		Logger:         a.log,
		DefaultModel:   a.cfg.Providers.LLM.Model,
		Temperature:    a.cfg.Providers.LLM.Temperature,
		MaxTokens:      a.cfg.Providers.LLM.MaxTokens,
		SilenceTimeout: time.Duration(sess.SilenceMs) * time.Millisecond,
		MessageLimit:   sess.MessageLimit,
		MessageWindow:  time.Duration(sess.MessageWindowMs) * time.Millisecond,
		LLMLimit:       sess.LLMLimit,
		LLMWindow:      time.Duration(sess.LLMWindowMs) * time.Millisecond,
		Close: func() {
			sttRouter.Close()
			ttsRouter.Close()
		},
	}
}

// readinessCheckers probes the speech backends for /readyz. The LLM backend
// is not probed; completions surface their own errors per turn.
func (a *App) readinessCheckers() []health.Checker {
	checkers := []health.Checker{{
		Name: "parakeet",
		Check: func(ctx context.Context) error {
			if !a.sttProv.HealthCheck(ctx) {
				return errors.New("stt backend unreachable")
			}
			return nil
		},
	}}
	for name, p := range a.ttsProv {
		checkers = append(checkers, health.Checker{
			Name: name,
			Check: func(ctx context.Context) error {
				if !p.HealthCheck(ctx) {
					return errors.New("tts backend unreachable")
				}
				return nil
			},
		})
	}
	return checkers
}

// Handler returns the full HTTP surface: /ws, /health, /healthz, /readyz,
// and /metrics, wrapped in the telemetry middleware.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Run serves HTTP until ctx is cancelled, then drains connections and tears
// the subsystems down. It blocks and returns the first fatal error.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    a.cfg.Server.ListenAddr,
		Handler: a.handler,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			a.log.Info("gateway listening", "addr", srv.Addr, "tls", true)
			err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			a.log.Info("gateway listening", "addr", srv.Addr)
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := a.Shutdown(shutdownCtx); serr != nil && err == nil {
		err = serr
	}
	return err
}

// Shutdown tears down the subsystems in reverse-init order. It respects the
// context deadline: if ctx expires, remaining closers are skipped and the
// context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down", "closers", len(a.closers))
		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				a.log.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](ctx); err != nil {
				a.log.Warn("closer error", "index", i, "error", err)
			}
		}
		a.log.Info("shutdown complete")
	})
	return shutdownErr
}

// HandleReload applies the live-safe portion of a config change. Restart-only
// changes are logged so operators know what a reload could not pick up.
func (a *App) HandleReload(old, new *config.Config) {
	d := config.Diff(old, new)

	if d.LogLevelChanged && a.levelVar != nil {
		a.levelVar.Set(slogLevel(d.NewLogLevel))
		a.log.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.PersonasChanged {
		if err := a.personas.Replace(new.Personas); err != nil {
			a.log.Warn("persona reload rejected", "error", err)
		} else {
			a.log.Info("personas reloaded", "count", len(new.Personas))
		}
	}
	if d.PersonasChanged || d.KeywordsChanged {
		a.corrector.SetKeywords(correctorKeywords(new, a.personas))
	}
	if d.SessionChanged {
		a.sessMu.Lock()
		a.sessCfg = new.Session
		a.sessMu.Unlock()
		a.log.Info("session defaults updated; applies to new connections")
	}
	for _, path := range d.RestartRequired {
		a.log.Warn("config change requires restart", "path", path)
	}
}

// correctorKeywords merges the configured vocabulary with the persona names
// so spoken agent switches transcribe reliably.
func correctorKeywords(cfg *config.Config, personas *agent.Registry) []string {
	words := append([]string(nil), cfg.Keywords.Words...)
	words = append(words, personas.Names()...)
	return words
}

// slogLevel maps a config log level onto slog.
func slogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
