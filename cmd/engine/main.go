// cmd/engine wires every core component into one running process for a
// local demo: a matching engine over a fixed symbol set, a command log
// for durable replay, a virtual mempool ticking on a fixed interval, a
// periodic state snapshotter, and (optionally) a Kafka sink for the
// engine's fan-out bus. It is glue, not core — per spec.md §1 it is the
// one place permitted to read flags.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"clobcore/internal/book"
	"clobcore/internal/kafkasink"
	"clobcore/internal/matching"
	"clobcore/internal/mempool"
	"clobcore/internal/prng"
	"clobcore/internal/snapshotstore"

	"go.uber.org/zap"
)

func main() {
	var (
		symbols          = flag.String("symbols", "ETH-USD,BTC-USD", "comma-separated list of books to open")
		seed             = flag.Uint64("seed", 1, "PRNG seed; every book and the mempool derive sub-streams from this")
		tickSize         = flag.Int64("tick-size", 1, "price tick size for every book")
		lotSize          = flag.Int64("lot-size", 1, "quantity lot size for every book")
		dataDir          = flag.String("data-dir", "./data", "directory holding the command log, mempool ledger, and snapshots")
		blockIntervalMs  = flag.Int64("block-interval-ms", 1000, "mempool block tick cadence")
		maxTxPerBlock    = flag.Int("max-tx-per-block", 16, "mempool inclusion cap per block")
		confirmations    = flag.Uint64("confirmations", 3, "default required confirmations per transaction")
		confirmProb      = flag.Float64("confirm-probability", 0.3, "per-block confirmation probability once the confirmation depth is reached")
		snapshotInterval = flag.Duration("snapshot-interval", 5*time.Second, "how often to write a state snapshot")
		kafkaBrokers     = flag.String("kafka-brokers", "", "comma-separated Kafka broker addresses; empty disables the sink")
		kafkaTopic       = flag.String("kafka-topic", "clob.events", "Kafka topic the fan-out sink publishes to")
	)
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("constructing logger: %v", err)
	}
	defer logger.Sync()

	root := prng.New(*seed)

	books := make([]book.Config, 0)
	for _, sym := range strings.Split(*symbols, ",") {
		sym = strings.TrimSpace(sym)
		if sym == "" {
			continue
		}
		books = append(books, book.Config{
			Symbol:   sym,
			TickSize: *tickSize,
			LotSize:  *lotSize,
			Source:   root.Derive("book:" + sym),
			Logger:   logger,
		})
	}
	if len(books) == 0 {
		log.Fatalf("no symbols configured")
	}

	engine, err := matching.New(matching.Config{
		Books:          books,
		CommandLogPath: dataPath(*dataDir, "commands.jsonl"),
		Logger:         logger,
	})
	if err != nil {
		log.Fatalf("constructing matching engine: %v", err)
	}
	defer engine.Close()

	if result, err := engine.ReplayFromCommandLog(); err != nil {
		logger.Warn("skipping command log replay", zap.Error(err))
	} else {
		logger.Info("replayed command log", zap.Int("applied", result.Applied), zap.Int("skipped", result.Skipped))
	}

	pool, err := mempool.New(mempool.Config{
		BlockIntervalMs:                 *blockIntervalMs,
		MaxTransactionsPerBlock:         *maxTxPerBlock,
		DefaultConfirmations:            *confirmations,
		ConfirmationProbabilityPerBlock: *confirmProb,
		StoreDir:                        dataPath(*dataDir, "mempool"),
		Source:                          root.Derive("mempool"),
		Logger:                          logger,
	}, engine)
	if err != nil {
		log.Fatalf("constructing mempool: %v", err)
	}
	defer pool.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---------------- Mempool block ticker ----------------

	go func() {
		ticker := time.NewTicker(time.Duration(*blockIntervalMs) * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := pool.Tick(nowMs()); err != nil {
					logger.Error("mempool tick failed", zap.Error(err))
				}
			}
		}
	}()

	// ---------------- State snapshotter ----------------

	writer := snapshotstore.NewWriter(dataPath(*dataDir, "snapshot.json"), logger)
	go func() {
		ticker := time.NewTicker(*snapshotInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				doc, err := snapshotstore.BuildDocument(engine, 50, time.Now().UTC().Format(time.RFC3339), nil)
				if err != nil {
					logger.Error("building snapshot document", zap.Error(err))
					continue
				}
				if err := writer.Write(doc); err != nil {
					logger.Error("writing snapshot", zap.Error(err))
				}
			}
		}
	}()

	// ---------------- Kafka sink (optional) ----------------

	if *kafkaBrokers != "" {
		brokers := strings.Split(*kafkaBrokers, ",")
		sink, err := kafkasink.New(brokers, *kafkaTopic, logger)
		if err != nil {
			logger.Error("constructing kafka sink, continuing without it", zap.Error(err))
		} else {
			defer sink.Close()
			go sink.Run(ctx, engine)
		}
	}

	logger.Info("engine running", zap.Strings("symbols", symbolNames(books)), zap.Uint64("seed", *seed))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")
}

func dataPath(dir, name string) string {
	return strings.TrimRight(dir, "/") + "/" + name
}

func symbolNames(cfgs []book.Config) []string {
	out := make([]string, len(cfgs))
	for i, c := range cfgs {
		out[i] = c.Symbol
	}
	return out
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}
