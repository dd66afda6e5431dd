package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	zaplogfmt "github.com/sykesm/zap-logfmt"
	"github.com/thecodeteam/goodbye"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/simplesurance/mergequeue/internal/cfg"
	"github.com/simplesurance/mergequeue/internal/dispatch"
	"github.com/simplesurance/mergequeue/internal/githubclt"
	"github.com/simplesurance/mergequeue/internal/logfields"
	"github.com/simplesurance/mergequeue/internal/mergequeue"
	"github.com/simplesurance/mergequeue/internal/provider/github"
	"github.com/simplesurance/mergequeue/internal/retry"
)

const appName = "mergequeue"

var logger *zap.Logger

// Version is set via a ldflag on compilation
var Version = "unknown"

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
			"panic caught , terminating gracefully",
			zap.String("panic", fmt.Sprintf("%v", r)),
			zap.StackSkip("stacktrace", 1),
		)

		ctx, cancelFn := context.WithTimeout(context.Background(), time.Minute)
		defer cancelFn()

		goodbye.Exit(ctx, 1)
	}
}

func startHTTPSServer(listenAddr string, certFile, keyFile string, mux *http.ServeMux) *http.Server {
	httpsServer := http.Server{
		Addr:              listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 30 * time.Second,
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
		ReadHeaderTimeout: 30 * time.Second,
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

func shutdownHTTPServers(servers []*http.Server) {
	const shutdownTimeout = 30 * time.Second
	ctx, cancelFn := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelFn()

	for _, srv := range servers {
		logger.Debug(
			"terminating http server",
			logfields.Event("http_server_terminating"),
			zap.String("listenAddr", srv.Addr),
			zap.Duration("shutdown_timeout", shutdownTimeout),
		)

		err := srv.Shutdown(ctx)
		if err != nil {
			logger.Warn(
				"shutting down http server failed",
				logfields.Event("http_server_termination_failed"),
				zap.String("listenAddr", srv.Addr),
				zap.Error(err),
			)
		}
	}
}

type arguments struct {
	Verbose         *bool
	ConfigFile      *string
	ShowVersion     *bool
	EventName       *string
	EventPath       *string
	DryRun          *bool
	ProvisionLabels *bool
	PrintDefaultCfg *bool
}

var args arguments

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
			"",
			"path to the mergequeue configuration file, if unset the defaults and environment variables are used",
		),
		ShowVersion: pflag.Bool(
			"version",
			false,
			"print the version and exit",
		),
		EventName: pflag.String(
			"event-name",
			os.Getenv("GITHUB_EVENT_NAME"),
			"github webhook event type of the event in --event-path",
		),
		EventPath: pflag.String(
			"event-path",
			os.Getenv("GITHUB_EVENT_PATH"),
			"process the github webhook event payload stored in the file and exit",
		),
		DryRun: pflag.Bool(
			"dry-run",
			false,
			"simulate changes to pull requests, only read operations are run on GitHub",
		),
		ProvisionLabels: pflag.Bool(
			"provision-labels",
			false,
			"create the labels used by the merge queue in all configured repositories",
		),
		PrintDefaultCfg: pflag.Bool(
			"print-default-cfg",
			false,
			"print the default configuration in TOML format and exit",
		),
	}

	pflag.Usage = func() {
		printUsage(os.Stderr, pflag.CommandLine)
	}

	pflag.Parse()
}

func printUsage(w io.Writer, flags *pflag.FlagSet) {
	fmt.Fprintf(w, "Usage: %s [OPTION]\nMerge GitHub pull requests one after another, controlled via labels.\n", appName)
	fmt.Fprintf(w, "\nOptions:\n")
	fmt.Fprint(w, flags.FlagUsages())
}

func mustParseCfg() *cfg.Config {
	// we use exitOnErr in this function instead of logger.Fatal() because
	// the logger is not initialized yet

	var config *cfg.Config

	if *args.ConfigFile == "" {
		config = cfg.Default()
	} else {
		file, err := os.Open(*args.ConfigFile)
		exitOnErr("could not open configuration files", err)
		defer file.Close()

		config, err = cfg.Load(file)
		exitOnErr(fmt.Sprintf("could not load configuration file: %s", *args.ConfigFile), err)
	}

	config.ApplyEnv(os.LookupEnv)

	if *args.DryRun {
		config.DryRun = true
	}

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

func repositoriesFromCfg(config *cfg.Config) []mergequeue.Repository {
	result := make([]mergequeue.Repository, 0, len(config.Repositories))

	for _, r := range config.Repositories {
		result = append(result, mergequeue.Repository{
			Owner: r.Owner,
			Name:  r.RepositoryName,
		})
	}

	return result
}

func engineCfg(config *cfg.Config) *mergequeue.Config {
	return &mergequeue.Config{
		CommandLabel:               config.MergeQueue.CommandLabel,
		MergingLabel:               config.MergeQueue.MergingLabel,
		QueuedLabel:                config.MergeQueue.QueuedLabel,
		ChecksToSkip:               config.MergeQueue.ChecksToSkip,
		ChecksRequiredForAdmission: config.MergeQueue.ChecksRequiredForAdmission,
		PassingCheckStates:         config.MergeQueue.PassingCheckStates,
		PostComments:               config.PostComments,
	}
}

func mustProvisionLabels(engine *mergequeue.Engine, clt mergequeue.LabelCreator, repos []mergequeue.Repository) {
	if len(repos) == 0 {
		fmt.Fprintln(os.Stderr, "ERROR: --provision-labels requires at least 1 repository in the configuration file")
		os.Exit(1)
	}

	retryer := retry.NewRetryer()
	goodbye.Register(func(context.Context, os.Signal) {
		retryer.Stop()
	})

	for i := range repos {
		repo := &repos[i]

		err := engine.ProvisionLabels(context.Background(), clt, retryer, repo)
		if err != nil {
			logger.Fatal(
				"provisioning labels failed",
				logfields.Event("label_provisioning_failed"),
				zap.Stringer("repository", repo),
				zap.Error(err),
			)
		}

		logger.Info(
			"labels provisioned",
			logfields.Event("labels_provisioned"),
			zap.Stringer("repository", repo),
		)
	}
}

// runEventFile processes the webhook event stored in path and returns the
// exit code.
func runEventFile(evLoop *dispatch.EvLoop, eventName, path string) int {
	logger := logger.With(
		zap.String("github.webhook_type", eventName),
		zap.String("event_file", path),
	)

	payload, err := os.ReadFile(path)
	if err != nil {
		logger.Error("reading event file failed", logfields.Event("event_file_read_failed"), zap.Error(err))
		return 1
	}

	ev, err := github.ParseEvent(eventName, payload)
	if err != nil {
		logger.Info(
			"ignoring event, parsing event failed",
			logfields.Event("event_ignored"),
			zap.Error(err),
		)

		return 0
	}

	err = evLoop.Process(context.Background(), ev)
	if err != nil {
		if errors.Is(err, dispatch.ErrAdmissionUnauthorized) {
			return 0
		}

		logger.Error("processing event failed", logfields.Event("event_processing_failed"), zap.Error(err))
		return 1
	}

	return 0
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

	if *args.PrintDefaultCfg {
		exitOnErr("writing default configuration failed", cfg.Default().Marshal(os.Stdout))
		os.Exit(0)
	}

	config := mustParseCfg()

	mustInitLogger(config)

	repos := repositoriesFromCfg(config)
	repoNames := make([]string, 0, len(repos))
	for i := range repos {
		repoNames = append(repoNames, repos[i].String())
	}

	logger.Info(
		"loaded cfg",
		logfields.Event("cfg_loaded"),
		zap.String("cfg_file", *args.ConfigFile),
		zap.String("http_server_listen_addr", config.HTTPListenAddr),
		zap.String("https_server_listen_addr", config.HTTPSListenAddr),
		zap.String("github_webhook_endpoint", config.HTTPGithubWebhookEndpoint),
		zap.String("queue_list_endpoint", config.HTTPQueueListEndpoint),
		zap.String("metrics_endpoint", config.HTTPMetricsEndpoint),
		zap.String("github_webhook_secret", hide(config.GithubWebHookSecret)),
		zap.String("github_api_token", hide(config.GithubAPIToken)),
		zap.String("log_format", config.LogFormat),
		zap.String("log_time_key", config.LogTimeKey),
		zap.String("log_level", config.LogLevel),
		zap.Bool("dry_run", config.DryRun),
		zap.Bool("post_comments", config.PostComments),
		zap.Strings("checks_to_skip", config.MergeQueue.ChecksToSkip),
		zap.Strings("checks_required_for_admission", config.MergeQueue.ChecksRequiredForAdmission),
		zap.Strings("passing_check_states", config.MergeQueue.PassingCheckStates),
		zap.String("admission_filter_query", config.MergeQueue.AdmissionFilterQuery),
		zap.String("repositories", strings.Join(repoNames, ", ")),
	)

	if config.GithubAPIToken == "" {
		fmt.Fprintln(os.Stderr, "ERROR: github api token is not set")
		os.Exit(1)
	}

	goodbye.Register(func(_ context.Context, sig os.Signal) {
		logger.Info(fmt.Sprintf("terminating, received signal %s", sig.String()))
	})

	githubClient := githubclt.New(config.GithubAPIToken)

	var engineClt mergequeue.GithubClient = githubClient
	var labelClt mergequeue.LabelCreator = githubClient

	if config.DryRun {
		dryClt := mergequeue.NewDryGithubClient(githubClient, logger)
		engineClt = dryClt
		labelClt = dryClt
	}

	engine := mergequeue.NewEngine(engineClt, engineCfg(config))

	evLoopOpts := []func(*dispatch.EvLoop){dispatch.WithRepositories(repos)}

	if config.MergeQueue.AdmissionFilterQuery != "" {
		filter, err := dispatch.NewFilter(config.MergeQueue.AdmissionFilterQuery)
		exitOnErr("could not parse admission_filter_query", err)

		evLoopOpts = append(evLoopOpts, dispatch.WithAdmissionFilter(filter))
	}

	evLoop := dispatch.NewEventLoop(engine, evLoopOpts...)

	if *args.ProvisionLabels {
		mustProvisionLabels(engine, labelClt, repos)
	}

	if *args.EventPath != "" {
		goodbye.Exit(context.Background(), runEventFile(evLoop, *args.EventName, *args.EventPath))
		return
	}

	if config.HTTPListenAddr == "" && config.HTTPSListenAddr == "" {
		if *args.ProvisionLabels {
			goodbye.Exit(context.Background(), 0)
			return
		}

		fmt.Fprintf(os.Stderr, "https_server_listen_addr or http_server_listen_addr must be defined in the config file or an event file must be passed via --event-path, all are unset\n")
		os.Exit(1)
	}

	go func() {
		defer panicHandler()
		evLoop.Start()
	}()

	mux := http.NewServeMux()

	gh := github.New(
		evLoop.C(),
		github.WithPayloadSecret(config.GithubWebHookSecret),
	)

	mux.HandleFunc(config.HTTPGithubWebhookEndpoint, gh.HTTPHandler)
	logger.Info(
		"registered github webhook event http endpoint",
		logfields.Event("github_http_handler_registered"),
		zap.String("endpoint", config.HTTPGithubWebhookEndpoint),
	)

	mux.Handle(config.HTTPQueueListEndpoint, mergequeue.NewQueueListHandler(engine, repos))
	logger.Info(
		"registered merge queue http endpoint",
		logfields.Event("queue_list_http_handler_registered"),
		zap.String("endpoint", config.HTTPQueueListEndpoint),
	)

	mux.Handle(config.HTTPMetricsEndpoint, promhttp.Handler())
	logger.Info(
		"registered prometheus metrics http endpoint",
		logfields.Event("metrics_http_handler_registered"),
		zap.String("endpoint", config.HTTPMetricsEndpoint),
	)

	var servers []*http.Server

	if config.HTTPListenAddr != "" {
		servers = append(servers, startHTTPServer(config.HTTPListenAddr, mux))
	}

	if config.HTTPSListenAddr != "" {
		servers = append(servers, startHTTPSServer(
			config.HTTPSListenAddr,
			config.HTTPSCertFile,
			config.HTTPSKeyFile,
			mux,
		))
	}

	// the event channel is closed by evLoop.Stop(), the servers must be
	// shutdown before, otherwise the webhook handler could send to the
	// closed channel
	goodbye.Register(func(context.Context, os.Signal) {
		shutdownHTTPServers(servers)

		logger.Debug(
			"stopping event loop",
			logfields.Event("event_loop_stopping"),
		)

		evLoop.Stop()

		logger.Info("event loop stopped", logfields.Event("event_loop_stopped"))
	})

	select {}
}
