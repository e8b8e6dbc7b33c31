package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spamprx/threadshell"
	"github.com/spamprx/threadshell/service/csvlog"
	"github.com/spamprx/threadshell/service/sqlite"
)

func buildEventService(cfg Config) (threadshell.EventService, func(), error) {
	switch cfg.EventLog {
	case "", "none":
		return threadshell.NopEventService{}, func() {}, nil
	case "csv":
		svc, err := csvlog.Open(cfg.EventLogPath)
		if err != nil {
			return nil, nil, err
		}
		return svc, func() { svc.Close() }, nil
	case "sqlite":
		db, err := sqlite.Open(cfg.EventLogPath)
		if err != nil {
			return nil, nil, err
		}
		if err := sqlite.Init(db); err != nil {
			db.Close()
			return nil, nil, err
		}
		return sqlite.NewEventService(db), func() { db.Close() }, nil
	}
	log.Printf("unknown event_log %q, events discarded", cfg.EventLog)
	return threadshell.NopEventService{}, func() {}, nil
}

func main() {
	var (
		addr       string
		configPath string
	)
	defaultAddr := os.Getenv("THREADSHELL_ADDR")
	flag.StringVar(&addr, "addr", defaultAddr, "address to bind")
	flag.StringVar(&configPath, "config", "", "path to threadshell.toml")
	flag.Parse()

	cfg, err := loadConfig(configPath)
	if err != nil {
		log.Fatal(err)
	}
	if addr == "" {
		addr = cfg.Addr
	}
	if cfg.Cores == 0 {
		cfg.Cores = runtime.NumCPU()
	}
	if cfg.Workers == 0 {
		cfg.Workers = runtime.NumCPU()
	}

	svc, closeSvc, err := buildEventService(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer closeSvc()

	scheduler, err := threadshell.New(cfg.Cores, cfg.Workers, svc)
	if err != nil {
		log.Fatal(err)
	}
	if cfg.MaxConcurrent > 0 {
		scheduler.SetMaxConcurrent(cfg.MaxConcurrent)
	}
	if cfg.HistoryLimit > 0 {
		scheduler.SetHistoryLimit(cfg.HistoryLimit)
	}
	if cfg.Policy != "" {
		p, err := threadshell.ParsePolicy(cfg.Policy)
		if err != nil {
			log.Fatal(err)
		}
		scheduler.SetPolicy(p)
	}
	scheduler.EnableCoreAffinity(cfg.CoreAffinity)
	scheduler.Start()

	mux := http.NewServeMux()
	h := &apiHandler{scheduler: scheduler}
	h.register(mux)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		log.Printf("listening on %v", addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Print("shutting down")
	srv.Close()
	scheduler.Stop()
}
