package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/dexidp/openid1/consumer"
	"github.com/dexidp/openid1/pkg/log"
	"github.com/dexidp/openid1/store"
	"github.com/dexidp/openid1/store/memory"
)

type serveOptions struct {
	config string
}

func commandServe() *cobra.Command {
	options := serveOptions{}

	cmd := &cobra.Command{
		Use:     "serve [flags] [config file]",
		Short:   "Run the demo relying-party HTTP server",
		Example: "openid1demo serve config.yaml",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			cmd.SilenceErrors = true
			options.config = args[0]
			return runServe(options)
		},
	}
	return cmd
}

func runServe(options serveOptions) error {
	configData, err := os.ReadFile(options.config)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", options.config, err)
	}
	c, err := LoadConfig(configData)
	if err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(c.Logger.Level, c.Logger.Format)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger.Infof("config issuer: %s", c.Issuer)

	reg := prometheus.NewRegistry()
	registerMetrics(reg)

	var s store.Store
	s, err = memory.New(c.Dumb)
	if err != nil {
		return fmt.Errorf("initializing store: %w", err)
	}

	fetch := instrumentedFetcher{Fetcher: newHTTPFetcher(), counter: associateTotal}
	gc, err := consumer.New(s, fetch, newStaticDiscoverer(c.Endpoints))
	if err != nil {
		return fmt.Errorf("initializing consumer: %w", err)
	}
	gc.SetLogger(logger)

	trustRoot, err := trustRootOf(c.ReturnToBase)
	if err != nil {
		return fmt.Errorf("deriving trust root from returnToBase: %w", err)
	}

	sessions := newCookieSessions()
	srv := &server{
		consumer:     gc,
		sessions:     sessions,
		returnToBase: c.ReturnToBase,
		trustRoot:    trustRoot,
		log:          logger,
	}

	router := mux.NewRouter()
	router.HandleFunc("/login", srv.handleLogin).Methods(http.MethodGet)
	router.HandleFunc("/return-to", srv.handleReturnTo).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	handler := handlers.CombinedLoggingHandler(os.Stdout, router)

	httpSrv := &http.Server{Addr: c.ListenAddr, Handler: handler}

	var g run.Group
	{
		listener, err := net.Listen("tcp", c.ListenAddr)
		if err != nil {
			return fmt.Errorf("listening on %s: %w", c.ListenAddr, err)
		}
		g.Add(func() error {
			logger.Infof("listening on %s", c.ListenAddr)
			return httpSrv.Serve(listener)
		}, func(error) {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			_ = httpSrv.Shutdown(ctx)
		})
	}
	if c.MetricsAddr != "" {
		metricsSrv := &http.Server{Addr: c.MetricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
		listener, err := net.Listen("tcp", c.MetricsAddr)
		if err != nil {
			return fmt.Errorf("listening on %s: %w", c.MetricsAddr, err)
		}
		g.Add(func() error {
			logger.Infof("serving metrics on %s", c.MetricsAddr)
			return metricsSrv.Serve(listener)
		}, func(error) {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			_ = metricsSrv.Shutdown(ctx)
		})
	}

	return g.Run()
}

// server holds the demo's HTTP handlers. One GenericConsumer is shared
// across every request; a fresh ConsumerFacade is built per request, since
// a facade is not safe to share across concurrent requests.
type server struct {
	consumer     *consumer.GenericConsumer
	sessions     *cookieSessions
	returnToBase string
	trustRoot    string
	log          log.Logger
}

func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	identifier := r.URL.Query().Get("identifier")
	if identifier == "" {
		http.Error(w, "missing identifier query parameter", http.StatusBadRequest)
		return
	}

	facade := consumer.NewFacade(s.consumer, s.sessions.For(w, r), "")
	req, err := facade.Begin(identifier, s.trustRoot, s.returnToBase, false)
	if err != nil {
		s.log.Errorf("begin failed for %s: %v", identifier, err)
		http.Error(w, "authentication could not be started", http.StatusBadGateway)
		return
	}
	if req == nil {
		http.Error(w, fmt.Sprintf("no provider could be discovered for %q", identifier), http.StatusNotFound)
		return
	}

	beginTotal.Inc()
	http.Redirect(w, r, req.RedirectURL, http.StatusFound)
}

func (s *server) handleReturnTo(w http.ResponseWriter, r *http.Request) {
	facade := consumer.NewFacade(s.consumer, s.sessions.For(w, r), "")
	resp := facade.Complete(r.URL.Query())

	completeTotal.WithLabelValues(resp.Kind.String()).Inc()

	switch resp.Kind {
	case consumer.KindSuccess:
		fmt.Fprintf(w, "authenticated as %s\n", resp.IdentityURL)
	case consumer.KindCancel:
		fmt.Fprintf(w, "authentication cancelled\n")
	case consumer.KindSetupNeeded:
		http.Redirect(w, r, resp.SetupURL, http.StatusFound)
	default:
		s.log.Warnf("authentication failed: %s", resp.Message)
		http.Error(w, fmt.Sprintf("authentication failed: %s", resp.Message), http.StatusUnauthorized)
	}
}

// trustRootOf derives a realm from returnToBase's scheme and host, grounded
// on the reference OpenID 2.0 consumer's verifyReturnTo/realm handling: the
// trust root a provider checks the assertion against is the site the user
// is returning to, not the full return_to path.
func trustRootOf(returnToBase string) (string, error) {
	u, err := url.Parse(returnToBase)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("returnToBase %q must be an absolute URL", returnToBase)
	}
	return u.Scheme + "://" + u.Host + "/", nil
}
