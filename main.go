package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	uuid "github.com/satori/go.uuid"
	"github.com/schollz/progressbar/v2"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/lumafield/s3-load-benchmark/config"
	"github.com/lumafield/s3-load-benchmark/obmark"
	"github.com/lumafield/s3-load-benchmark/sbmark"
)

// use go build -ldflags "-X main.buildstamp=`date -u '+%Y-%m-%d_%I:%M:%S%p'` -X main.githash=`git rev-parse HEAD`"
var buildstamp = "No build stamp provided"
var githash = "No git hash provided"

const (
	exitOK    = 0
	exitSetup = 1
)

// reporting and upload of the results must not hang forever after an interrupt
const reportTimeout = 30 * time.Second

type options struct {
	showVersion bool

	configPath string
	logPath    string

	// if not empty, the results of the test are saved as .csv / .json file
	csvFileName  string
	jsonFileName string

	// number of buckets to create instead of running the benchmark
	createBuckets int
	bucketPrefix  string
	kmsKeyID      string

	// if not empty, the keys of all configured buckets are written to this file
	listObjects string

	metricsAddr string
}

// program entry point
func main() {
	opts := parseFlags()
	if opts.showVersion {
		displayVersion()
		return
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitSetup)
	}

	logger, err := newLogger(cfg.LogLevel, opts.logPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitSetup)
	}

	app := fx.New(
		fx.Supply(opts, cfg),
		fx.Provide(
			func() *zap.Logger { return logger },
			sbmark.NewMetrics,
			newObjectClient,
		),
		fx.Invoke(
			registerMetricsServer,
			registerCommand,
		),
		// an interrupted run still prints and uploads its summary
		fx.StopTimeout(reportTimeout+time.Minute),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
	)

	// exits with the code passed to Shutdown
	app.Run()
}

func parseFlags() options {
	var opts options
	flag.BoolVar(&opts.showVersion, "version", false, "Displays the version information.")
	flag.StringVar(&opts.configPath, "config", os.Getenv("S3_BENCH_CONFIG"), "Path of the YAML configuration. Defaults to ./config.yaml if present.")
	flag.StringVar(&opts.logPath, "log-path", "", "Directory of the log file. Logs go to stderr only when empty.")
	flag.StringVar(&opts.csvFileName, "csv", "", "Saves the results as .csv file.")
	flag.StringVar(&opts.jsonFileName, "json", "", "Saves the results as .json file.")
	flag.IntVar(&opts.createBuckets, "create-buckets", 0, "Creates this many buckets, prints their names and exits.")
	flag.StringVar(&opts.bucketPrefix, "bucket-prefix", sbmark.DefaultBucketPrefix, "Name prefix of the buckets created with -create-buckets.")
	flag.StringVar(&opts.kmsKeyID, "kms-key-id", "", "Enables default aws:kms encryption with this key on created buckets.")
	flag.StringVar(&opts.listObjects, "list-objects", "", "Lists all objects of the configured buckets into this JSON file and exits.")
	flag.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serves Prometheus metrics on this address, e.g. ':9090'.")
	flag.Parse()
	return opts
}

func displayVersion() {
	fmt.Printf("Git Commit Hash: %s\n", githash)
	fmt.Printf("UTC Build Time: %s\n", buildstamp)
}

// loadConfig applies the file, then the environment, then the flags.
func loadConfig(opts options) (config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return cfg, err
	}
	cfg, err = config.ApplyEnv(cfg, os.LookupEnv)
	if err != nil {
		return cfg, err
	}
	if opts.metricsAddr != "" {
		cfg.MetricsAddr = opts.metricsAddr
	}
	if cfg.TestID == "" {
		cfg.TestID = uuid.NewV4().String()
	}
	return cfg, cfg.Validate()
}

func newLogger(level string, logPath string) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, errors.Wrapf(sbmark.ErrConfiguration, "log level %q", level)
	}
	zcfg.Level = lvl
	zcfg.Sampling = nil
	if logPath != "" {
		zcfg.OutputPaths = append(zcfg.OutputPaths, filepath.Join(logPath, "s3-load-benchmark.log"))
	}
	return zcfg.Build()
}

func newObjectClient(cfg config.Config, logger *zap.Logger) (obmark.ObjectClient, error) {
	accessKey, secretKey, err := sbmark.ResolveCredentials(context.Background(), awsOptions(cfg))
	if err != nil {
		return nil, err
	}
	timeout, err := cfg.ClientTimeout()
	if err != nil {
		return nil, err
	}
	logger.Debug("object client", zap.String("endpoint", cfg.Endpoint), zap.String("region", cfg.Region))
	return obmark.NewS3Client(&obmark.ObjectClientConfig{
		Region:            cfg.Region,
		Endpoint:          cfg.Endpoint,
		AccessKey:         accessKey,
		SecretKey:         secretKey,
		Insecure:          cfg.Client.Insecure,
		DisableKeepAlives: cfg.Client.DisableKeepAlives,
		Timeout:           timeout,
		MaxConnsPerHost:   cfg.Client.MaxConnsPerHost,
		UnsignedPayload:   cfg.Client.UnsignedPayload,
		EscapePath:        cfg.Client.EscapePath,
	})
}

func awsOptions(cfg config.Config) sbmark.AWSOptions {
	return sbmark.AWSOptions{
		Region:    cfg.Region,
		Endpoint:  cfg.Endpoint,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		Insecure:  cfg.Client.Insecure,
	}
}

func registerMetricsServer(lc fx.Lifecycle, cfg config.Config, metrics *sbmark.Metrics, logger *zap.Logger) {
	if cfg.MetricsAddr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	server := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", server.Addr)
			if err != nil {
				return errors.Wrap(err, "metrics listener")
			}
			logger.Info("serving metrics", zap.String("addr", ln.Addr().String()))
			go func() {
				if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
					logger.Error("metrics server", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: server.Shutdown,
	})
}

type command struct {
	opts    options
	cfg     config.Config
	client  obmark.ObjectClient
	metrics *sbmark.Metrics
	logger  *zap.Logger
}

// registerCommand runs the selected command in the background once the app
// started and shuts the app down with its exit code.
func registerCommand(lc fx.Lifecycle, shutdowner fx.Shutdowner, opts options, cfg config.Config, client obmark.ObjectClient, metrics *sbmark.Metrics, logger *zap.Logger) {
	cmd := &command{opts: opts, cfg: cfg, client: client, metrics: metrics, logger: logger}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				code := cmd.run(ctx)
				if err := shutdowner.Shutdown(fx.ExitCode(code)); err != nil {
					logger.Error("shutdown", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}

func (c *command) run(ctx context.Context) int {
	switch {
	case c.opts.createBuckets > 0:
		return c.createBuckets(ctx)
	case c.opts.listObjects != "":
		return c.listObjects(ctx)
	}
	return c.benchmark(ctx)
}

func (c *command) createBuckets(ctx context.Context) int {
	client, err := sbmark.NewSDKClient(ctx, awsOptions(c.cfg))
	if err != nil {
		c.logger.Error("failed to create the S3 client", zap.Error(err))
		return exitSetup
	}
	p := &sbmark.Provisioner{Client: client, Region: c.cfg.Region, Logger: c.logger, Concurrency: 8}
	names, err := p.CreateBuckets(ctx, c.opts.createBuckets, c.opts.bucketPrefix, c.opts.kmsKeyID)
	if err != nil {
		c.logger.Error("failed to create buckets", zap.Error(err))
		return exitSetup
	}
	// ready to be used as BUCKETS
	fmt.Println(strings.Join(names, ";"))
	return exitOK
}

func (c *command) listObjects(ctx context.Context) int {
	fmt.Print("\n--- LIST OBJECTS -------------------------------------------------------------------------------------------------------------\n\n")
	if err := sbmark.ValidateBuckets(ctx, c.client, c.cfg.Buckets, c.logger); err != nil {
		c.logger.Error("bucket validation failed", zap.Error(err))
		return exitSetup
	}

	refs, err := sbmark.ListBuckets(ctx, c.client, c.cfg.Buckets, c.cfg.Listing.Concurrency, c.cfg.Listing.Limit, listingTicker(c.cfg.Listing.Limit, len(c.cfg.Buckets)))
	if err != nil {
		c.logger.Error("listing failed", zap.Error(err))
		return exitSetup
	}

	f, err := os.Create(c.opts.listObjects)
	if err != nil {
		c.logger.Error("failed to create the object file", zap.Error(err))
		return exitSetup
	}
	defer f.Close()
	if err := sbmark.WriteObjectPool(f, refs); err != nil {
		c.logger.Error("failed to write the object file", zap.Error(err))
		return exitSetup
	}
	fmt.Printf("\n\nWrote %d objects to %s\n", len(refs), c.opts.listObjects)
	return exitOK
}

// listingTicker shows a progress bar when the listing has an upper bound.
func listingTicker(limit int, buckets int) sbmark.Ticker {
	if limit <= 0 || buckets <= 0 {
		return &sbmark.NilTicker{}
	}
	return progressbar.NewOptions(limit*buckets, progressbar.OptionSetRenderBlankState(true))
}

func (c *command) benchmark(ctx context.Context) int {
	log := c.logger.With(zap.String("test_id", c.cfg.TestID))

	mode, _ := c.cfg.ParsedMode()
	size, _ := c.cfg.ObjectSizeBytes()
	profile, _ := c.cfg.Profile()
	thresholds, _ := c.cfg.ThresholdSet()

	fmt.Print("\n--- SETUP --------------------------------------------------------------------------------------------------------------------\n\n")
	if err := sbmark.ValidateBuckets(ctx, c.client, c.cfg.Buckets, log); err != nil {
		log.Error("bucket validation failed", zap.Error(err))
		return exitSetup
	}

	payload := sbmark.NewPayload(size)
	var seeded []sbmark.ObjectRef
	if c.cfg.SeedObjects > 0 {
		fmt.Printf("Seeding %d objects of %s\n", c.cfg.SeedObjects, sbmark.ByteFormat(float64(size)))
		seeder := &sbmark.Seeder{
			Client:       c.client,
			Payload:      payload,
			Keys:         sbmark.UUIDKeys{},
			Metrics:      c.metrics,
			Logger:       log,
			Ticker:       progressbar.NewOptions(c.cfg.SeedObjects, progressbar.OptionSetRenderBlankState(true)),
			BatchPerHost: c.cfg.Seeder.BatchPerHost,
			RateLimit:    c.cfg.Seeder.RateLimit,
		}
		var err error
		seeded, err = seeder.Seed(ctx, c.cfg.SeedObjects, c.cfg.Buckets)
		fmt.Println()
		if err != nil {
			log.Error("seeding failed", zap.Error(err))
			return exitSetup
		}
	}

	pool, err := c.objectPool(mode, seeded)
	if err != nil {
		log.Error("failed to load the object pool", zap.Error(err))
		return exitSetup
	}
	c.metrics.SetRunInfo(len(c.cfg.Buckets), pool.Len(), size)

	op, err := sbmark.NewOperation(mode, sbmark.OperationConfig{
		Client:  c.client,
		Pool:    pool,
		Buckets: c.cfg.Buckets,
		Payload: payload,
		Keys:    sbmark.UUIDKeys{},
		Logger:  log,
	})
	if err != nil {
		log.Error("invalid operation", zap.Error(err))
		return exitSetup
	}

	executor := &sbmark.RampingArrivalRate{
		Profile:           profile,
		MaxVUs:            c.cfg.Executor.MaxVUs,
		GracefulStop:      c.cfg.GracefulStop(),
		MaxCriticalErrors: c.cfg.ExecutorCriticalLimit(),
		AbortEvalDelay:    c.cfg.AbortEvalDelay(),
		Metrics:           c.metrics,
		Logger:            log,
	}

	log.Info("starting benchmark",
		zap.String("mode", string(mode)),
		zap.Strings("buckets", c.cfg.Buckets),
		zap.Int("objects", pool.Len()),
		zap.Duration("duration", profile.Duration()))
	summary, runErr := executor.Run(ctx, op.Execute)
	if summary == nil {
		log.Error("benchmark failed", zap.Error(runErr))
		return exitSetup
	}

	summary.TestID = c.cfg.TestID
	summary.Mode = mode
	summary.Endpoint = c.cfg.Endpoint
	summary.Buckets = c.cfg.Buckets
	summary.InitialObjects = pool.Len()
	if mode == sbmark.ModePut {
		summary.ObjectSizeBytes = size
	}
	summary.Thresholds = thresholds.Evaluate(summary)

	sbmark.PrintSummary(os.Stdout, summary)
	c.writeReports(summary)

	reportCtx, cancel := context.WithTimeout(context.Background(), reportTimeout)
	defer cancel()
	reporter := &sbmark.Reporter{Client: c.client, Bucket: c.cfg.ResultsBucket, TestID: c.cfg.TestID, Logger: log}
	if key := reporter.Report(reportCtx, summary); key != "" {
		fmt.Printf("Results uploaded to s3://%s/%s\n", c.cfg.ResultsBucket, key)
	}

	switch {
	case errors.Is(runErr, sbmark.ErrThresholdAbort):
		log.Warn("benchmark aborted", zap.Error(runErr))
		return sbmark.ExitCodeThresholds
	case runErr != nil:
		log.Error("benchmark interrupted", zap.Error(runErr))
		return exitSetup
	case !sbmark.AllPassed(summary.Thresholds):
		log.Warn("thresholds crossed")
		return sbmark.ExitCodeThresholds
	}
	return exitOK
}

// objectPool loads the GET targets from the objects file and adds the seeded objects.
// PUT runs only use the pool for the run info.
func (c *command) objectPool(mode sbmark.Mode, seeded []sbmark.ObjectRef) (*sbmark.ObjectPool, error) {
	var refs []sbmark.ObjectRef
	if c.cfg.ObjectsFile != "" {
		pool, err := sbmark.LoadObjectPool(c.cfg.ObjectsFile)
		switch {
		case err == nil:
			for i := 0; i < pool.Len(); i++ {
				refs = append(refs, pool.At(i))
			}
		case mode == sbmark.ModeGet && len(seeded) == 0:
			return nil, err
		default:
			c.logger.Warn("ignoring object file", zap.String("path", c.cfg.ObjectsFile), zap.Error(err))
		}
	}
	refs = append(refs, seeded...)
	if mode == sbmark.ModeGet && len(refs) == 0 {
		return nil, errors.Wrap(sbmark.ErrConfiguration, "no objects to read, list or seed some first")
	}
	return sbmark.NewObjectPool(refs), nil
}

func (c *command) writeReports(summary *sbmark.Summary) {
	if c.opts.jsonFileName != "" {
		if data, err := sbmark.ToJson(summary); err != nil {
			c.logger.Error("failed to serialize json report", zap.Error(err))
		} else if err := os.WriteFile(c.opts.jsonFileName, data, 0o644); err != nil {
			c.logger.Error("failed to write json report", zap.Error(err))
		} else {
			fmt.Printf("Results saved to %s\n", c.opts.jsonFileName)
		}
	}
	if c.opts.csvFileName != "" {
		if data, err := sbmark.ToCsv(summary); err != nil {
			c.logger.Error("failed to serialize csv report", zap.Error(err))
		} else if err := os.WriteFile(c.opts.csvFileName, data, 0o644); err != nil {
			c.logger.Error("failed to write csv report", zap.Error(err))
		} else {
			fmt.Printf("Results saved to %s\n", c.opts.csvFileName)
		}
	}
}
