// Command pagecachectl is a small interactive shell over a buffer pool,
// for exercising fetch/new/unpin/flush/delete against a real disk file
// without wiring up a full storage engine. Grounded on the teacher's
// cmd/gojodb_standalone_server/main.go: flag-based configuration with
// inline defaults, a bufio REPL, no config file.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/rdhar/pagecache/core/storage"
	"github.com/rdhar/pagecache/core/wal"
	"github.com/rdhar/pagecache/pkg/logger"
	"github.com/rdhar/pagecache/pkg/telemetry"
)

const (
	defaultDBPath     = "data/pagecache.db"
	defaultWALDir     = "data/wal"
	defaultPoolSize   = 16
	defaultPageSize   = 4096
	defaultLogLevel   = "info"
	defaultLogFormat  = "console"
	defaultMetricsOff = false
)

func main() {
	dbPath := flag.String("db", defaultDBPath, "path to the backing page file")
	walDir := flag.String("wal-dir", defaultWALDir, "directory for the write-ahead log segment")
	poolSize := flag.Int("pool-size", defaultPoolSize, "number of frames in the buffer pool")
	pageSize := flag.Int("page-size", defaultPageSize, "page size in bytes")
	logLevel := flag.String("log-level", defaultLogLevel, "log level: debug, info, warn, error")
	logFormat := flag.String("log-format", defaultLogFormat, "log format: console or json")
	metricsEnabled := flag.Bool("metrics", !defaultMetricsOff, "expose OpenTelemetry/Prometheus metrics")
	metricsPort := flag.Int("metrics-port", 9464, "port for the /metrics endpoint")
	flag.Parse()

	log, err := logger.New(logger.Config{Level: *logLevel, Format: *logFormat, OutputFile: "stdout"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "pagecachectl: creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	tel, shutdown, err := telemetry.New(telemetry.Config{
		Enabled:          *metricsEnabled,
		ServiceName:      "pagecachectl",
		PrometheusPort:   *metricsPort,
		TraceSampleRatio: 1.0,
	})
	if err != nil {
		log.Sugar().Fatalf("creating telemetry: %v", err)
	}
	defer shutdown(context.Background())

	disk, err := storage.NewDiskManager(*dbPath, *pageSize, logger.Component(log, "disk_manager"))
	if err != nil {
		log.Sugar().Fatalf("opening disk manager: %v", err)
	}
	defer disk.Close()

	logManager, err := wal.NewLogManager(*walDir, logger.Component(log, "wal"))
	if err != nil {
		log.Sugar().Fatalf("opening log manager: %v", err)
	}
	defer logManager.Close()

	pool := storage.NewBufferPool(*poolSize, *pageSize, disk, logManager, logger.Component(log, "buffer_pool"), tel)

	log.Info("pagecachectl ready")
	fmt.Printf("pagecachectl: pool_size=%d page_size=%d db=%s\n", *poolSize, *pageSize, *dbPath)
	fmt.Println("commands: new | fetch <id> | unpin <id> [dirty] | flush <id> | flushall | delete <id> | bulkload <n> | quit")

	repl(context.Background(), pool)
}

func repl(ctx context.Context, pool *storage.BufferPool) {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("pagecache> ")
		if !scanner.Scan() {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "quit", "exit":
			return
		case "new":
			frame, pageID, ok := pool.NewPage(ctx)
			if !ok {
				fmt.Println("pool exhausted")
				continue
			}
			fmt.Printf("allocated %s (pin_count=%d)\n", pageID, frame.PinCount())
		case "fetch":
			id, err := parsePageID(fields)
			if err != nil {
				fmt.Println(err)
				continue
			}
			frame, ok := pool.FetchPage(ctx, id)
			if !ok {
				fmt.Println("not found or pool exhausted")
				continue
			}
			fmt.Printf("fetched %s (pin_count=%d, dirty=%v)\n", id, frame.PinCount(), frame.IsDirty())
		case "unpin":
			id, err := parsePageID(fields)
			if err != nil {
				fmt.Println(err)
				continue
			}
			dirty := len(fields) > 2 && fields[2] == "dirty"
			ok := pool.UnpinPage(ctx, id, dirty)
			fmt.Println(ok)
		case "flush":
			id, err := parsePageID(fields)
			if err != nil {
				fmt.Println(err)
				continue
			}
			fmt.Println(pool.FlushPage(ctx, id))
		case "flushall":
			pool.FlushAllPages(ctx)
			fmt.Println("ok")
		case "delete":
			id, err := parsePageID(fields)
			if err != nil {
				fmt.Println(err)
				continue
			}
			fmt.Println(pool.DeletePage(id))
		case "bulkload":
			n := 8
			if len(fields) > 1 {
				if v, err := strconv.Atoi(fields[1]); err == nil {
					n = v
				}
			}
			bulkLoad(ctx, pool, n)
		default:
			fmt.Println("unknown command")
		}
	}
}

// bulkLoad allocates n pages concurrently and immediately unpins each,
// exercising the pool under contention. errgroup collects the first error
// from any goroutine, mirroring the fan-out/collect pattern used by this
// repo's buffer pool concurrency test. The other goroutines still run to
// completion: NewPage does not observe the context's cancellation.
func bulkLoad(ctx context.Context, pool *storage.BufferPool, n int) {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			_, pageID, ok := pool.NewPage(ctx)
			if !ok {
				return fmt.Errorf("bulkload: pool exhausted after allocating fewer than %d pages", n)
			}
			pool.UnpinPage(ctx, pageID, false)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		fmt.Println("bulkload:", err)
		return
	}
	fmt.Printf("bulkload: allocated %d pages\n", n)
}

func parsePageID(fields []string) (storage.PageID, error) {
	if len(fields) < 2 {
		return storage.InvalidPageID, fmt.Errorf("usage: %s <page_id>", fields[0])
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil {
		return storage.InvalidPageID, fmt.Errorf("invalid page id %q: %w", fields[1], err)
	}
	return storage.PageID(n), nil
}
