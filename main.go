package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"

	"wifiwatch/internal/config"
	"wifiwatch/internal/console"
	"wifiwatch/internal/engine"
	"wifiwatch/internal/logging"
	"wifiwatch/internal/metrics"
	"wifiwatch/internal/tui"
)

func main() {
	configPath := flag.String("config", "", "Path to a TOML config file")
	captureIface := flag.String("i", "", "Interface to capture packets from (e.g., eth0)")
	scanIface := flag.String("w", "", "Monitor-mode wireless interface to scan (e.g., wlan0mon)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	if *captureIface != "" {
		cfg.Capture.Interface = *captureIface
	}
	if *scanIface != "" {
		cfg.Scan.Interface = *scanIface
	}

	// The TUI owns the terminal, so logs go to a file.
	logFile, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Fatalf("Error opening log file: %v", err)
	}
	defer logFile.Close()
	logger := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: logFile})

	ctx := context.Background()

	reg := prometheus.NewRegistry()
	rec, err := metrics.New(reg)
	if err != nil {
		log.Fatalf("Error registering metrics: %v", err)
	}
	if cfg.Metrics.Listen != "" {
		srv := &http.Server{Addr: cfg.Metrics.Listen, Handler: metricsMux(rec), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error(ctx, "metrics server stopped", logging.Err(err))
			}
		}()
		defer srv.Close()
	}

	eng := engine.New(engine.Config{
		ScanInterface:    cfg.Scan.Interface,
		ScanDuration:     cfg.Scan.Duration,
		ProgressInterval: cfg.Scan.ProgressInterval,
		Freshness:        cfg.Scan.Freshness,
		SnapLen:          cfg.Capture.SnapLen,
		Promiscuous:      cfg.Capture.Promiscuous,
		BPF:              cfg.Capture.BPF,
	}, logger)

	if cfg.Capture.Interface == "" {
		ifaces, err := eng.ListInterfaces(ctx)
		if err != nil || len(ifaces) == 0 {
			fmt.Println("No capture interface found; pass one with -i")
			fmt.Println("Example: ./wifiwatch -i eth0 -w wlan0mon")
			return
		}
		cfg.Capture.Interface = ifaces[0]
	}

	c := console.New(eng, console.Options{
		Interface:    cfg.Capture.Interface,
		PollInterval: cfg.Capture.PollInterval,
		PageSize:     cfg.Capture.PageSize,
		ReportDir:    cfg.Report.Dir,
		Log:          logger,
		Metrics:      rec,
	})
	defer c.Close()

	logger.Info(ctx, "wifiwatch starting",
		logging.String("capture_interface", cfg.Capture.Interface),
		logging.String("scan_interface", cfg.Scan.Interface),
		logging.String("metrics", cfg.Metrics.Listen))

	p := tea.NewProgram(tui.NewModel(c), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Printf("Error running TUI: %v", err)
	}
}

func metricsMux(rec *metrics.Recorder) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", rec.Handler())
	return mux
}
