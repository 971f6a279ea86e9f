package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	zaplogfmt "github.com/sykesm/zap-logfmt"
	"github.com/thecodeteam/goodbye"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/simplesurance/botmerger/internal/automerge"
	"github.com/simplesurance/botmerger/internal/cfg"
	"github.com/simplesurance/botmerger/internal/evloop"
	"github.com/simplesurance/botmerger/internal/githubclt"
	"github.com/simplesurance/botmerger/internal/logfields"
	"github.com/simplesurance/botmerger/internal/provider/github"
)

const appName = "botmerger"

var logger *zap.Logger

// Version is set via a ldflag on compilation
var Version = "unknown"

const EventChannelBufferSize = 1024

func exitOnErr(msg string, err error) {
	if err == nil {
		return
	}

	fmt.Fprintln(os.Stderr, "ERROR:", msg+", error:", err.Error())
	os.Exit(1)
}

func panicHandler() {
	if r := recover(); r != nil {
		logger.Info(
			"panic caught, terminating gracefully",
			zap.String("panic", fmt.Sprintf("%v", r)),
			zap.StackSkip("stacktrace", 1),
		)

		ctx, cancelFn := context.WithTimeout(context.Background(), time.Minute)
		defer cancelFn()

		goodbye.Exit(ctx, 1)
	}
}

func shutdownServer(name string, srv *http.Server) {
	const shutdownTimeout = 30 * time.Second
	ctx, cancelFn := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelFn()

	logger.Debug(
		"terminating "+name+" server",
		logfields.Event(name+"_server_terminating"),
		zap.Duration("shutdown_timeout", shutdownTimeout),
	)

	err := srv.Shutdown(ctx)
	if err != nil {
		logger.Warn(
			"shutting down "+name+" server failed",
			logfields.Event(name+"_server_termination_failed"),
			zap.Error(err),
		)
	}
}

func startHTTPSServer(listenAddr string, certFile, keyFile string, mux *http.ServeMux) *http.Server {
	httpsServer := http.Server{
		Addr:              listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: time.Minute,
	}

	go func() {
		defer panicHandler()

		logger.Info(
			"https server started",
			logfields.Event("https_server_started"),
			zap.String("listenAddr", listenAddr),
		)

		err := httpsServer.ListenAndServeTLS(certFile, keyFile)
		if errors.Is(err, http.ErrServerClosed) {
			logger.Info("https server terminated", logfields.Event("https_server_terminated"))
			return
		}

		logger.Fatal(
			"https server terminated unexpectedly",
			logfields.Event("https_server_terminated_unexpectedly"),
			zap.Error(err),
		)
	}()

	return &httpsServer
}

func startHTTPServer(listenAddr string, mux *http.ServeMux) *http.Server {
	httpServer := http.Server{
		Addr:              listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: time.Minute,
	}

	go func() {
		defer panicHandler()

		logger.Info(
			"http server started",
			logfields.Event("http_server_started"),
			zap.String("listenAddr", listenAddr),
		)

		err := httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			logger.Info("http server terminated", logfields.Event("http_server_terminated"))
			return
		}

		logger.Fatal(
			"http server terminated unexpectedly",
			logfields.Event("http_server_terminated_unexpectedly"),
			zap.Error(err),
		)
	}()

	return &httpServer
}

type arguments struct {
	Verbose     *bool
	ConfigFile  *string
	ShowVersion *bool
	EventFile   *string
	DryRun      *bool
}

var args arguments

const defConfigFile = "/etc/botmerger/config.toml"

func mustParseCommandlineParams() {
	args = arguments{
		Verbose: pflag.BoolP(
			"verbose",
			"v",
			false,
			"enable verbose logging",
		),
		ConfigFile: pflag.StringP(
			"cfg-file",
			"c",
			defConfigFile,
			"path to the botmerger configuration file",
		),
		ShowVersion: pflag.Bool(
			"version",
			false,
			"print the version and exit",
		),
		EventFile: pflag.StringP(
			"event-file",
			"e",
			"",
			"process the workflow_run webhook payload in the file and exit, instead of running the webhook server",
		),
		DryRun: pflag.Bool(
			"dry-run",
			false,
			"do not approve or merge pull requests, only log what would be done",
		),
	}

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTION]\nApprove and merge pull requests of a trusted bot when their CI run succeeded.\n", appName)
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		pflag.PrintDefaults()
	}

	pflag.Parse()
}

func mustParseCfg() *cfg.Config {
	// we use exitOnErr in this function instead of logger.Fatal() because
	// the logger is not initialized yet

	var config *cfg.Config

	file, err := os.Open(*args.ConfigFile)
	if errors.Is(err, fs.ErrNotExist) && !pflag.CommandLine.Changed("cfg-file") {
		config = cfg.Default()
	} else {
		exitOnErr("could not open configuration file", err)
		defer file.Close()

		config, err = cfg.Load(file)
		exitOnErr(fmt.Sprintf("could not load configuration file: %s", *args.ConfigFile), err)
	}

	exitOnErr("applying environment variables failed", config.ApplyEnv(os.LookupEnv))

	if *args.DryRun {
		config.DryRun = true
	}

	exitOnErr("invalid configuration", config.Validate())

	return config
}

func initLogFmtLogger(config *cfg.Config, logLevel zapcore.Level) *zap.Logger {
	cfg := zapEncoderConfig(config)

	logger := zap.New(zapcore.NewCore(
		zaplogfmt.NewEncoder(cfg),
		os.Stdout,
		logLevel),
	)

	return logger
}

func zapEncoderConfig(config *cfg.Config) zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()

	cfg.LevelKey = "loglevel"
	cfg.TimeKey = config.LogTimeKey
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeDuration = zapcore.StringDurationEncoder

	return cfg
}

func mustInitZapFormatLogger(config *cfg.Config, logLevel zapcore.Level) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Sampling = nil
	cfg.EncoderConfig = zapEncoderConfig(config)
	cfg.OutputPaths = []string{"stdout"}
	cfg.Encoding = config.LogFormat
	cfg.Level = zap.NewAtomicLevelAt(logLevel)

	logger, err := cfg.Build()
	exitOnErr("could not initialize logger", err)

	return logger
}

func mustInitLogger(config *cfg.Config) {
	var logLevel zapcore.Level
	if *args.Verbose {
		logLevel = zapcore.DebugLevel
	} else {
		if err := (&logLevel).Set(config.LogLevel); err != nil {
			fmt.Fprintf(os.Stderr, "can not set log level to %q: %s \n", config.LogLevel, err)
			os.Exit(2)
		}
	}

	switch config.LogFormat {
	case "logfmt":
		logger = initLogFmtLogger(config, logLevel)
	case "console", "json":
		logger = mustInitZapFormatLogger(config, logLevel)
	default:
		fmt.Fprintf(os.Stderr, "unsupported log-format argument: %q\n", config.LogFormat)
		os.Exit(2)
	}

	logger = logger.Named("main")
	zap.ReplaceGlobals(logger)

	goodbye.Register(func(context.Context, os.Signal) {
		if err := logger.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "flushing logs failed: %s\n", err)
		}
	})
}

func hide(in string) string {
	if in == "" {
		return in
	}

	return "**hidden**"
}

// effectiveCfg returns config in TOML format with secrets hidden.
func effectiveCfg(config *cfg.Config) (string, error) {
	hidden := *config
	hidden.GithubAPIToken = hide(hidden.GithubAPIToken)
	hidden.GithubWebHookSecret = hide(hidden.GithubWebHookSecret)

	var buf bytes.Buffer
	if err := hidden.Marshal(&buf); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func mustInitGithubClient(config *cfg.Config) automerge.GithubClient {
	var clt automerge.GithubClient

	if config.UsesGithubApp() {
		appClt, err := githubclt.NewAppInstallation(
			config.GithubAppID,
			config.GithubAppInstallationID,
			config.GithubAppPrivateKeyFile,
		)
		if err != nil {
			logger.Fatal(
				"initializing github app client failed",
				logfields.Event("github_client_init_failed"),
				zap.Error(err),
			)
		}

		clt = appClt
	} else {
		clt = githubclt.New(config.GithubAPIToken)
	}

	if config.DryRun {
		clt = automerge.NewDryGithubClient(clt, logger)
	}

	return clt
}

func pipelineCfg(config *cfg.Config) *automerge.Config {
	return &automerge.Config{
		Repository: automerge.Repository{
			Owner: config.Automerge.Repository.Owner,
			Name:  config.Automerge.Repository.RepositoryName,
		},
		TrustedActor:   config.Automerge.TrustedActor,
		ApproveComment: config.Automerge.ApproveComment,
	}
}

func main() {
	defer panicHandler()

	defer goodbye.Exit(context.Background(), 1)
	goodbye.Notify(context.Background())

	mustParseCommandlineParams()

	if *args.ShowVersion {
		fmt.Printf("%s %s\n", appName, Version)
		os.Exit(0) // nolint:gocritic // defer functions won't run
	}

	config := mustParseCfg()

	mustInitLogger(config)

	runTimeout, err := config.RunTimeoutDuration()
	exitOnErr("invalid configuration", err)

	logger.Info(
		"loaded cfg file",
		logfields.Event("cfg_loaded"),
		zap.String("cfg_file", *args.ConfigFile),
		zap.String("http_server_listen_addr", config.HTTPListenAddr),
		zap.String("https_server_listen_addr", config.HTTPSListenAddr),
		zap.String("github_webhook_endpoint", config.HTTPGithubWebhookEndpoint),
		zap.String("prometheus_metrics_endpoint", config.HTTPMetricsEndpoint),
		zap.String("github_webhook_secret", hide(config.GithubWebHookSecret)),
		zap.String("github_api_token", hide(config.GithubAPIToken)),
		zap.Int64("github_app_id", config.GithubAppID),
		zap.Int64("github_app_installation_id", config.GithubAppInstallationID),
		zap.String("log_format", config.LogFormat),
		zap.String("log_time_key", config.LogTimeKey),
		zap.String("log_level", config.LogLevel),
		zap.Bool("dry_run", config.DryRun),
		zap.Duration("run_timeout", runTimeout),
		zap.Int("max_concurrent_runs", config.MaxConcurrentRuns),
		zap.String("automerge.repository", config.Automerge.Repository.String()),
		zap.String("automerge.trusted_actor", config.Automerge.TrustedActor),
		zap.Strings("automerge.workflows", config.Automerge.Workflows),
	)

	if cfgStr, err := effectiveCfg(config); err == nil {
		logger.Debug(
			"effective configuration",
			logfields.Event("cfg_effective"),
			zap.String("cfg", cfgStr),
		)
	} else {
		logger.Warn(
			"marshaling configuration failed",
			logfields.Event("cfg_marshaling_failed"),
			zap.Error(err),
		)
	}

	pipeline := automerge.NewPipeline(mustInitGithubClient(config), pipelineCfg(config))

	if *args.EventFile != "" {
		ctx, cancelFn := context.WithTimeout(context.Background(), runTimeout)
		exitCode := processEventFile(ctx, pipeline, pipelineCfg(config).Repository, *args.EventFile, os.Stdout)
		cancelFn()

		goodbye.Exit(context.Background(), exitCode)
		return
	}

	goodbye.Register(func(_ context.Context, sig os.Signal) {
		logger.Info(fmt.Sprintf("terminating, received signal %s", sig.String()))
	})

	if config.HTTPListenAddr == "" && config.HTTPSListenAddr == "" {
		fmt.Fprintf(os.Stderr, "https_server_listen_addr or http_server_listen_addr must be defined in the config file, both are unset\n")
		os.Exit(1)
	}

	evLoop := evloop.NewEventLoop(
		pipeline,
		pipelineCfg(config).Repository,
		evloop.WithRunRoutineDeferFunc(panicHandler),
		evloop.WithWorkflows(config.Automerge.Workflows...),
		evloop.WithRunTimeout(runTimeout),
		evloop.WithWorkers(config.MaxConcurrentRuns),
		evloop.WithEventChannelBufferSize(EventChannelBufferSize),
	)

	go func() {
		defer panicHandler()
		evLoop.Start()
	}()

	gh := github.New(
		[]chan<- *github.Event{evLoop.C()},
		github.WithPayloadSecret(config.GithubWebHookSecret),
		github.WithEventTypes("workflow_run"),
	)

	mux := http.NewServeMux()

	mux.HandleFunc(config.HTTPGithubWebhookEndpoint, gh.HTTPHandler)
	logger.Info(
		"registered github webhook event http endpoint",
		logfields.Event("github_http_handler_registered"),
		zap.String("endpoint", config.HTTPGithubWebhookEndpoint),
	)

	if config.HTTPMetricsEndpoint != "" {
		mux.Handle(config.HTTPMetricsEndpoint, promhttp.Handler())
		logger.Info(
			"registered prometheus metrics http endpoint",
			logfields.Event("metrics_http_handler_registered"),
			zap.String("endpoint", config.HTTPMetricsEndpoint),
		)
	}

	var httpServer, httpsServer *http.Server

	if config.HTTPListenAddr != "" {
		httpServer = startHTTPServer(config.HTTPListenAddr, mux)
	}

	if config.HTTPSListenAddr != "" {
		httpsServer = startHTTPSServer(
			config.HTTPSListenAddr,
			config.HTTPSCertFile,
			config.HTTPSKeyFile,
			mux,
		)
	}

	// the servers are shut down before the event loop is stopped, to
	// prevent that events are sent to the closed event loop channel
	goodbye.Register(func(context.Context, os.Signal) {
		if httpServer != nil {
			shutdownServer("http", httpServer)
		}

		if httpsServer != nil {
			shutdownServer("https", httpsServer)
		}

		logger.Debug(
			"stopping event loop",
			logfields.Event("event_loop_stopping"),
		)

		evLoop.Stop()
	})

	select {}
}
