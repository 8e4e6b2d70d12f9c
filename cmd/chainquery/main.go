// Package main is the entry point for the chainquery CLI.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/fd1az/chainquery/business/query"
	queryApp "github.com/fd1az/chainquery/business/query/app"
	queryDI "github.com/fd1az/chainquery/business/query/di"
	"github.com/fd1az/chainquery/business/query/domain"
	"github.com/fd1az/chainquery/internal/apm"
	"github.com/fd1az/chainquery/internal/apperror"
	"github.com/fd1az/chainquery/internal/config"
	"github.com/fd1az/chainquery/internal/health"
	"github.com/fd1az/chainquery/internal/logger"
	"github.com/fd1az/chainquery/internal/metrics"
	"github.com/fd1az/chainquery/internal/monolith"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	// Parse flags
	configPath := flag.String("config", "", "Path to configuration file")
	txHash := flag.String("tx", "", "Fetch a transaction by hash")
	address := flag.String("address", "", "Scan recent blocks for an address's transactions")
	limit := flag.Int("limit", 10, "Maximum matches for an address scan")
	blockNumber := flag.Uint64("block", 0, "Fetch a block by number")
	blockSet := false
	showHeight := flag.Bool("height", false, "Print the current chain height")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	flag.Visit(func(f *flag.Flag) {
		if f.Name == "block" {
			blockSet = true
		}
	})

	if *showVersion {
		fmt.Printf("chainquery %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(os.Stderr, "received shutdown signal: %v\n", sig)
		cancel()
	}()

	req := request{
		txHash:   *txHash,
		address:  *address,
		limit:    *limit,
		block:    *blockNumber,
		blockSet: blockSet,
		height:   *showHeight,
	}

	if err := run(ctx, *configPath, req); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// request captures which single query the invocation asked for.
type request struct {
	txHash   string
	address  string
	limit    int
	block    uint64
	blockSet bool
	height   bool
}

func (r request) empty() bool {
	return r.txHash == "" && r.address == "" && !r.blockSet && !r.height
}

func run(ctx context.Context, configPath string, req request) error {
	if req.empty() {
		flag.Usage()
		return fmt.Errorf("one of -tx, -address, -block or -height is required")
	}

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Setup logger
	logLevel := logger.LevelInfo
	switch cfg.App.LogLevel {
	case "debug":
		logLevel = logger.LevelDebug
	case "warn":
		logLevel = logger.LevelWarn
	case "error":
		logLevel = logger.LevelError
	}

	log := logger.New(os.Stderr, logLevel, cfg.App.Name, nil)
	log.Info(ctx, "starting chainquery",
		"version", version,
		"environment", cfg.App.Environment,
		"endpoints", len(cfg.Ethereum.Endpoints),
	)

	// Initialize observability if enabled
	var traceProvider apm.TraceProvider
	if cfg.Telemetry.Enabled {
		if cfg.Telemetry.ServiceName != "" {
			os.Setenv("OTEL_SERVICE_NAME", cfg.Telemetry.ServiceName)
		}
		if cfg.Telemetry.OTLPEndpoint != "" {
			os.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Telemetry.OTLPEndpoint)
		}

		traceProvider = apm.NewTraceProvider(log, apm.WithProvider(apm.ZipkinProvider, log))
		log.Info(ctx, "tracing initialized", "provider", "zipkin", "endpoint", cfg.Telemetry.OTLPEndpoint)

		metrics.NewMetricProvider(
			metrics.WithServiceName(cfg.Telemetry.ServiceName),
			metrics.WithProviderConfig(metrics.ProviderCfg{
				Provider: metrics.PrometheusProvider,
			}),
		)

		port := cfg.Telemetry.PrometheusPort
		if port == 0 {
			port = 9090
		}
		go metrics.ServePrometheusMetrics(metrics.WithPort(strconv.Itoa(port)))
		log.Info(ctx, "prometheus metrics server started", "port", port)
	}
	defer func() {
		if traceProvider != nil {
			traceProvider.Stop()
		}
	}()

	// Create monolith (application container)
	mono, err := monolith.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create monolith: %w", err)
	}

	modules := []monolith.Module{
		&query.Module{},
	}

	if err := mono.RegisterModules(modules...); err != nil {
		return fmt.Errorf("failed to register modules: %w", err)
	}
	if err := mono.StartModules(ctx, modules...); err != nil {
		return fmt.Errorf("failed to start modules: %w", err)
	}

	svc := queryDI.GetQueryService(mono.Services())

	// Start health check server
	healthServer := health.NewServer(cfg.App.HealthPort, version)
	healthServer.RegisterCheck("chain", func(ctx context.Context) (bool, string) {
		height, err := svc.CurrentHeight(ctx)
		if err != nil {
			return false, err.Error()
		}
		return true, fmt.Sprintf("height %d", height)
	})
	if err := healthServer.Start(); err != nil {
		log.Warn(ctx, "failed to start health server", "error", err)
	} else {
		log.Info(ctx, "health server started", "port", cfg.App.HealthPort)
	}
	defer healthServer.Stop(ctx)

	return runQuery(ctx, svc, req)
}

func runQuery(ctx context.Context, svc *queryApp.Service, req request) error {
	switch {
	case req.txHash != "":
		record, err := svc.TransactionByHash(ctx, req.txHash)
		if err != nil {
			if apperror.IsNotFound(err) {
				fmt.Printf("transaction %s not found (it may not be mined yet)\n", req.txHash)
				return nil
			}
			return err
		}
		printTransaction(record)

	case req.address != "":
		records, err := svc.TransactionsByAddress(ctx, req.address, req.limit)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Printf("no transactions for %s in the scan window\n", req.address)
			return nil
		}
		for i, record := range records {
			fmt.Printf("--- match %d ---\n", i+1)
			printTransaction(record)
		}

	case req.blockSet:
		record, err := svc.BlockByNumber(ctx, req.block)
		if err != nil {
			if apperror.IsNotFound(err) {
				fmt.Printf("block %d not found (not produced yet)\n", req.block)
				return nil
			}
			return err
		}
		printBlock(record)

	case req.height:
		height, err := svc.CurrentHeight(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("current height: %d\n", height)
	}

	return nil
}

func printTransaction(r domain.TransactionRecord) {
	fmt.Printf("hash:       %s\n", r.Hash.Hex())
	fmt.Printf("from:       %s\n", r.From.Hex())
	if r.To != nil {
		fmt.Printf("to:         %s\n", r.To.Hex())
	} else {
		fmt.Printf("to:         (contract creation)\n")
	}
	fmt.Printf("value:      %s wei (%s ETH)\n", r.ValueWei(), r.ValueEther().String())
	fmt.Printf("status:     %s\n", r.Status)
	fmt.Printf("gas used:   %d @ %s gwei\n", r.GasUsed, r.GasPriceGwei().String())
	fmt.Printf("block:      %d (%s)\n", r.BlockNumber, r.BlockHash.Hex())
	fmt.Printf("timestamp:  %s\n", r.Timestamp.Format("2006-01-02 15:04:05 MST"))
	fmt.Printf("tx index:   %d\n", r.Index)
	if len(r.Input) > 0 {
		fmt.Printf("input:      %d bytes\n", len(r.Input))
	}
}

func printBlock(r domain.BlockRecord) {
	fmt.Printf("number:     %d\n", r.Number)
	fmt.Printf("hash:       %s\n", r.Hash.Hex())
	fmt.Printf("timestamp:  %s\n", r.Timestamp.Format("2006-01-02 15:04:05 MST"))
	fmt.Printf("gas:        %d / %d\n", r.GasUsed, r.GasLimit)
	fmt.Printf("txs:        %d\n", r.TxCount)
}
