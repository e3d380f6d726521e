package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/AdguardTeam/golibs/log"
)

// version is the value printed by --version (set at build time via
// -ldflags in a real release; "dev" is the unreleased default).
var version = "dev"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run covers the external, interfaces-only scope: flag parsing,
// config-file + env loading, then handing the fully-resolved Config to
// the core server. CLI flags override both the config file and the
// environment.
func run(args []string) error {
	fs := flag.NewFlagSet("fileservd", flag.ContinueOnError)

	configPath := fs.String("c", "", "path to KEY=VALUE config file")
	port := fs.Int("p", 0, "listener port (overrides config)")
	metricsPort := fs.Int("mp", 0, "debug metrics listener port (overrides config)")
	workers := fs.Int("w", 0, "number of worker processes/threads-per-worker factor 1 (overrides config)")
	threads := fs.Int("t", 0, "threads per worker (overrides config)")
	daemonize := fs.Bool("d", false, "daemonize (not implemented by the core; reserved for the process supervisor)")
	verbose := fs.Bool("v", false, "verbose logging")
	printVersion := fs.Bool("version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *printVersion {
		fmt.Println("fileservd", version)
		return nil
	}
	_ = daemonize // daemonization is an external concern, not handled by the core.

	config := DefaultConfig()
	if *configPath != "" {
		if err := LoadConfigFile(*configPath, &config); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}
	if err := config.ApplyEnv(); err != nil {
		return fmt.Errorf("apply env config: %w", err)
	}
	if *port != 0 {
		config.Port = *port
	}
	if *metricsPort != 0 {
		config.MetricsPort = *metricsPort
	}
	if *workers != 0 {
		config.NumWorkers = *workers
	}
	if *threads != 0 {
		config.ThreadsPerWorker = *threads
	}
	config.Verbose = config.Verbose || *verbose
	config.normalize()

	if config.Verbose {
		log.SetLevel(log.DEBUG)
	}

	log.Info("Starting fileservd (concurrent static file server)...")
	config.Print()

	srv, err := NewServer(config)
	if err != nil {
		return fmt.Errorf("init server: %w", err)
	}

	signalChannel := make(chan os.Signal, 1)
	signal.Notify(signalChannel, syscall.SIGINT, syscall.SIGTERM)
	signal.Ignore(syscall.SIGPIPE) // SIGPIPE is ignored; broken pipes surface as write errors instead.

	runDone := make(chan struct{})
	go func() {
		srv.Run()
		close(runDone)
	}()

	<-signalChannel
	log.Info("shutdown signal received")
	srv.Shutdown()
	<-runDone
	return nil
}
