package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"runtime/pprof"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	"github.com/23skdu/longbow-ndexec/internal/config"
	"github.com/23skdu/longbow-ndexec/internal/device"
	"github.com/23skdu/longbow-ndexec/internal/executioner"
	"github.com/23skdu/longbow-ndexec/internal/ndarray"
)

var (
	opName      = flag.String("op", "sum", "Op to run (e.g. sum, var, exp, softmax, scalar_add, gt, euclidean)")
	count       = flag.Int("n", 1<<20, "Number of elements when -shape is not given")
	shapeFlag   = flag.String("shape", "", "Comma separated input shape (e.g. 512,1024)")
	axisFlag    = flag.String("axis", "", "Run the op independently along this axis")
	scalar      = flag.Float64("scalar", 1, "Scalar operand of scalar and comparison ops")
	opArgs      = flag.String("args", "", "Comma separated extra op arguments (pow exponent, setrange bounds)")
	bias        = flag.Bool("bias", true, "Bias-corrected variance and standard deviation")
	backendName = flag.String("backend", "", "Compute backend (reference, vectorized, parallel, gpu)")
	dtypeName   = flag.String("dtype", "", "Element type (half, float, double)")
	configPath  = flag.String("config", "", "YAML configuration file")
	workers     = flag.Int("workers", 0, "Parallel backend workers (0 keeps the configured value)")
	ordinal     = flag.Int("device", -1, "Device ordinal for device backends (-1 keeps the configured value)")
	duration    = flag.Duration("duration", 0, "Run soak test for specified duration (e.g. 10s, 20m)")
	concurrency = flag.Int("concurrency", 1, "Goroutines issuing ops during the soak test")
	outFormat   = flag.String("out", "log", "Output format for a single run: log, arrow or cbor (written to stdout)")
	debug       = flag.Bool("debug", false, "Scan op outputs for NaN and Inf")
	verbose     = flag.Bool("verbose", false, "Log every dispatched op")
	metricsAddr = flag.String("metrics", "", "Address to serve /metrics and /health on (e.g. :9100)")
	enableOTel  = flag.Bool("otel", false, "Enable OpenTelemetry tracing (stdout)")
	cpuProfile  = flag.String("cpuprofile", "", "Write cpu profile to file")
	maxInput    = flag.String("max-input", "4GiB", "Largest input allocation to accept (e.g. 4GiB, 512MB, 0 for no limit)")
)

func main() {
	// Initialize logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()

	flag.Parse()

	if *enableOTel {
		shutdown, err := initTracer()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize tracer")
		}
		defer shutdown(context.Background())
	}

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create CPU profile file")
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal().Err(err).Msg("Could not start CPU profile")
		}
		defer pprof.StopCPUProfile()
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.Debug || cfg.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	env := config.Env()
	if err := env.Set(cfg); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	exec, err := executioner.New(cfg, executioner.WithEnvironment(env))
	if errors.Is(err, device.ErrBackendUnavailable) {
		log.Warn().Err(err).Str("backend", cfg.Backend).Msg("Falling back to reference backend")
		cfg.Backend = "reference"
		exec, err = executioner.New(cfg, executioner.WithEnvironment(env))
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create executioner")
	}

	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	if *metricsAddr != "" {
		go startMetricsServer(*metricsAddr, mem)
	}

	factory := ndarray.Default(mem)
	dtype := factory.DType()
	shape, err := parseShape(*shapeFlag, *count)
	if err != nil {
		log.Fatal().Err(err).Msg("Bad -shape")
	}
	if err := checkBudget(shape, dtype, *maxInput); err != nil {
		log.Fatal().Err(err).Msg("Input too large")
	}
	axis, along, err := parseAxis(*axisFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Bad -axis")
	}
	var axisPtr *int
	if along {
		axisPtr = &axis
	}
	args, err := parseArgs(*opArgs)
	if err != nil {
		log.Fatal().Err(err).Msg("Bad -args")
	}
	spec := opSpec{name: *opName, scalar: *scalar, args: args, bias: *bias}

	x, err := input(factory, shape)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create input")
	}
	log.Info().
		Str("op", spec.name).
		Ints("shape", shape).
		Str("dtype", dtype.String()).
		Str("backend", exec.Backend().Name()).
		Str("allocated", humanize.IBytes(uint64(mem.CurrentAlloc()))).
		Msg("Input ready")

	ctx := context.Background()
	if *duration > 0 {
		if _, err := soak(ctx, exec, spec, x, axisPtr, *duration, *concurrency); err != nil {
			log.Fatal().Err(err).Msg("Soak test failed")
		}
		return
	}

	op, err := spec.build(x)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build op")
	}
	start := time.Now()
	var out *ndarray.NDArray
	if along {
		out, err = exec.ExecAlong(ctx, op, axis)
	} else {
		out, err = exec.Exec(ctx, op)
	}
	elapsed := time.Since(start)
	if err != nil {
		log.Fatal().Err(err).Str("op", spec.name).Msg("Op failed")
	}

	rep := newReport(op.String(), exec.Backend().Name(), out, axisPtr, elapsed)
	if err := writeOutput(os.Stdout, *outFormat, rep, out, mem); err != nil {
		log.Warn().Err(err).Msg("Failed to write output")
	}
}

// loadConfig layers the configuration file, NDEXEC_* variables and flags, in
// that order of increasing precedence.
func loadConfig() (config.Configuration, error) {
	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return cfg, err
		}
	}
	cfg, err := config.FromEnv(cfg)
	if err != nil {
		return cfg, err
	}
	if *backendName != "" {
		cfg.Backend = *backendName
	}
	if *dtypeName != "" {
		cfg.DType = *dtypeName
	}
	if *workers > 0 {
		cfg.Workers = *workers
	} else if cfg.Workers < 1 {
		cfg.Workers = runtime.NumCPU()
	}
	if *ordinal >= 0 {
		cfg.Device = *ordinal
	}
	cfg.Debug = cfg.Debug || *debug
	cfg.Verbose = cfg.Verbose || *verbose
	return cfg, cfg.Validate()
}

func initTracer() (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint(), stdouttrace.WithWriter(os.Stderr))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String("ndexec"),
		)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return tp.Shutdown, nil
}
