// Command arcweld runs the adaptive layer correction controller: it prints a
// toolpath layer by layer, scans each deposited surface with the laser
// profiler, and rewrites the following layer's Z targets to compensate the
// measured height deviation.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/arcment-data/arcweld/internal/api"
	"github.com/arcment-data/arcweld/internal/config"
	"github.com/arcment-data/arcweld/internal/db"
	"github.com/arcment-data/arcweld/internal/gcode"
	"github.com/arcment-data/arcweld/internal/job"
	"github.com/arcment-data/arcweld/internal/scanner"
	"github.com/arcment-data/arcweld/internal/scanner/network"
	"github.com/arcment-data/arcweld/internal/transport"
	"github.com/arcment-data/arcweld/internal/version"
)

var (
	gcodeFile   = flag.String("gcode", "", "Path to the toolpath file to print (required)")
	listen      = flag.String("listen", ":8080", "Status API listen address")
	serialPort  = flag.String("port", "/dev/ttyUSB0", "Motion controller serial port")
	baudRate    = flag.Int("baud", 115200, "Motion controller baud rate")
	scannerAddr = flag.String("scanner", ":2430", "UDP address for profiler frames")
	configPath  = flag.String("config", "", "Optional process config JSON file")
	dbFile      = flag.String("db", "arcweld.db", "Scan result database path (empty to disable)")
	devMode     = flag.Bool("dev", false, "Run with mock transport and scanner")
)

// devFrames is the synthetic profile script served in dev mode: a steady
// 0.25mm surface, enough frames for every scan window.
func devFrames() []scanner.Sample {
	frames := make([]scanner.Sample, 50)
	for i := range frames {
		frames[i] = scanner.Sample{
			X:         []float64{-5, 0, 5},
			Z:         []float64{0.25, 0.25, 0.25},
			Timestamp: time.Now(),
		}
	}
	return frames
}

func main() {
	flag.Parse()

	log.Printf("arcweld %s (%s)", version.Version, version.GitSHA)

	if *gcodeFile == "" {
		log.Fatal("-gcode flag is required")
	}

	cfg := config.EmptyProcessConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadProcessConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	f, err := os.Open(*gcodeFile)
	if err != nil {
		log.Fatalf("failed to open toolpath: %v", err)
	}
	parsed, err := gcode.ParseLayers(f)
	f.Close()
	if err != nil {
		log.Fatalf("failed to parse toolpath: %v", err)
	}
	layers := gcode.NewLayerSet(parsed)
	log.Printf("parsed %d layers from %s", layers.Len(), *gcodeFile)

	var tr transport.Transport
	var src scanner.Source
	if *devMode {
		log.Print("dev mode: using mock transport and scanner")
		tr = &transport.Mock{Delay: 50 * time.Millisecond}
		src = scanner.NewMockSource(devFrames())
	} else {
		serialTr, err := transport.OpenSerial(*serialPort, *baudRate)
		if err != nil {
			log.Fatalf("failed to open motion controller: %v", err)
		}
		defer serialTr.Close()
		tr = serialTr
		src = network.NewSource(*scannerAddr)
	}

	runID := uuid.NewString()

	var store *db.DB
	if *dbFile != "" {
		store, err = db.NewDB(*dbFile)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer store.Close()
		if err := store.CreateRun(runID, *gcodeFile, layers.Len()); err != nil {
			log.Fatalf("failed to record run: %v", err)
		}
	}

	runner, err := job.NewRunner(job.Options{
		Layers:    layers,
		Transport: tr,
		Source:    src,
		Config:    cfg,
		Store:     store,
		RunID:     runID,
	})
	if err != nil {
		log.Fatalf("failed to create runner: %v", err)
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Print job goroutine. Completion (or failure) also shuts down the
	// status server.
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer stop()
		if err := runner.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("print job failed: %v", err)
			return
		}
		if store != nil {
			if err := store.FinishRun(runID); err != nil {
				log.Printf("failed to finish run: %v", err)
			}
		}
	}()

	// Status API goroutine.
	wg.Add(1)
	go func() {
		defer wg.Done()

		server := &http.Server{
			Addr:    *listen,
			Handler: api.NewServer(runner, store).ServeMux(),
		}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start status server: %v", err)
			}
		}()

		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("status server shutdown error: %v", err)
		}
	}()

	wg.Wait()
	log.Print("shutdown complete")
}
