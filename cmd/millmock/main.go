package main

import (
	_ "embed"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/carveratools/millmock/pkg/catalog"
	"github.com/carveratools/millmock/pkg/session"
	"github.com/carveratools/millmock/pkg/vfs"
)

//go:embed testdata/catalog.json
var defaultCatalogJSON []byte

//go:embed testdata/files.json
var defaultFilesJSON []byte

func main() {
	host := flag.String("host", "localhost", "host to bind to")
	port := flag.Int("port", 2222, "port to bind to")
	verbose := flag.Bool("verbose", false, "enable verbose logging")
	configPath := flag.String("config", "", "optional ini file overriding host/port/idle-timeout/catalog/files paths")
	flag.Parse()

	cfg := &config{
		Host:        *host,
		Port:        *port,
		Verbose:     *verbose,
		IdleTimeout: session.DefaultIdleTimeout,
	}
	if *configPath != "" {
		if err := loadConfigFile(cfg, *configPath); err != nil {
			fmt.Fprintf(os.Stderr, "error loading config %v: %v\n", *configPath, err)
			os.Exit(1)
		}
	}

	logLevel := log.InfoLevel
	slogLevel := slog.LevelInfo
	if cfg.Verbose {
		logLevel = log.DebugLevel
		slogLevel = slog.LevelDebug
	}
	log.SetLevel(logLevel)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slogLevel}))

	catalogBytes := defaultCatalogJSON
	if cfg.CatalogPath != "" {
		b, err := os.ReadFile(cfg.CatalogPath)
		if err != nil {
			log.WithFields(log.Fields{"path": cfg.CatalogPath}).Errorf("failed to read catalog: %v", err)
			os.Exit(1)
		}
		catalogBytes = b
	}
	cat, err := catalog.Load(catalogBytes)
	if err != nil {
		log.WithFields(log.Fields{"path": cfg.CatalogPath}).Errorf("failed to parse catalog: %v", err)
		os.Exit(1)
	}

	filesBytes := defaultFilesJSON
	if cfg.FilesPath != "" {
		b, err := os.ReadFile(cfg.FilesPath)
		if err != nil {
			log.WithFields(log.Fields{"path": cfg.FilesPath}).Errorf("failed to read files: %v", err)
			os.Exit(1)
		}
		filesBytes = b
	}
	store := vfs.New()
	if err := vfs.Load(store, filesBytes); err != nil {
		log.WithFields(log.Fields{"path": cfg.FilesPath}).Errorf("failed to parse files: %v", err)
		os.Exit(1)
	}

	srv := session.NewServer(cat, store, logger)
	srv.IdleTimeout = cfg.IdleTimeout

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.WithFields(log.Fields{"addr": addr}).Errorf("bind failed: %v", err)
		os.Exit(1)
	}
	log.WithFields(log.Fields{"addr": addr}).Info("Mock CNC Server started")

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)

	stdinEOF := make(chan struct{})
	go func() {
		io.Copy(io.Discard, os.Stdin)
		close(stdinEOF)
	}()

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case <-sigc:
		log.Info("shutting down on signal")
		ln.Close()
		os.Exit(0)
	case <-stdinEOF:
		log.Info("shutting down on stdin EOF")
		ln.Close()
		os.Exit(0)
	case err := <-errc:
		log.Errorf("server stopped: %v", err)
		os.Exit(1)
	}
}
