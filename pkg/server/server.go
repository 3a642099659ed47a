package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/crystal-mush/kmud/pkg/command"
	"github.com/crystal-mush/kmud/pkg/events"
	"github.com/crystal-mush/kmud/pkg/service"
	"golang.org/x/sync/errgroup"
)

// Server runs the listeners, the web server and the tick loop over one
// store.
type Server struct {
	Config   Config
	ConfPath string

	Store    Store
	Services *service.Services
	App      *App
	Auth     *AuthService
	Metrics  *Metrics
	Texts    *TextFiles

	// ready, when set, is called with the bound telnet address.
	ready func(addr net.Addr)
}

// NewServer wires a server over an open store and a command registry.
func NewServer(cfg Config, confPath string, st Store, reg *command.Registry) *Server {
	svc := service.New(st, events.NewBus(), cfg.BcryptCost)
	texts := LoadTextFiles(cfg.TextDir)
	metrics := NewMetrics(time.Now())
	return &Server{
		Config:   cfg,
		ConfPath: confPath,
		Store:    st,
		Services: svc,
		App:      NewApp(cfg, reg, svc, texts, metrics),
		Auth:     NewAuthService(svc.Accounts, cfg.JWTSecret, cfg.JWTExpiry),
		Metrics:  metrics,
		Texts:    texts,
	}
}

// Run serves until ctx is done or a component fails. Listeners are bound
// before Run returns its first error, so a port in use fails fast.
func (s *Server) Run(ctx context.Context) error {
	cfg := s.Config
	if err := cfg.Validate(); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	fail := func(err error) error {
		cancel()
		g.Wait()
		return err
	}

	var tlsSetup *TLSSetup
	if cfg.TLS || (cfg.WebEnabled && (cfg.WebDomain != "" || cfg.TLSCert != "")) {
		var err error
		if tlsSetup, err = SetupTLS(cfg); err != nil {
			return err
		}
	}

	if cfg.Cleartext {
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
		if err != nil {
			return fail(fmt.Errorf("cleartext listener: %w", err))
		}
		log.Printf("Listening (cleartext) on %s", ln.Addr())
		if s.ready != nil {
			s.ready(ln.Addr())
		}
		g.Go(func() error { return ServeTCP(ctx, ln, s.App, cfg) })
	}
	if cfg.TLS {
		ln, err := tls.Listen("tcp", fmt.Sprintf(":%d", cfg.TLSPort), tlsSetup.Config)
		if err != nil {
			return fail(fmt.Errorf("TLS listener: %w", err))
		}
		log.Printf("Listening (TLS) on %s", ln.Addr())
		g.Go(func() error { return ServeTCP(ctx, ln, s.App, cfg) })
	}
	if cfg.WebEnabled {
		web := NewWebServer(s.App, s.Auth, s.Metrics, cfg)
		var webTLS *TLSSetup
		if cfg.WebDomain != "" || cfg.TLSCert != "" {
			webTLS = tlsSetup
		}
		g.Go(func() error { return web.Serve(ctx, webTLS) })
	}

	g.Go(func() error { return s.tickLoop(ctx) })
	g.Go(func() error { return s.Texts.Watch(ctx) })
	if cfg.ArchiveInterval > 0 {
		g.Go(func() error { return s.archiveLoop(ctx) })
	}

	log.Printf("%s started (%s store, %d commands)", VersionString(), cfg.StoreDriver, s.App.reg.Len())
	err := g.Wait()
	log.Printf("Server stopped")
	return err
}

// tickLoop drains the outbound and close queues every TickInterval.
func (s *Server) tickLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.Config.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.flush()
			return nil
		case <-ticker.C:
			s.App.OnTick()
		}
	}
}

// flush delivers what is still queued before shutdown, giving up once a
// tick makes no progress.
func (s *Server) flush() {
	for {
		if s.App.OnTick().Idle() {
			return
		}
	}
}

func (s *Server) archiveLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.Config.ArchiveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			path, err := CreateBackup(s.Config, s.ConfPath, s.Store)
			if err != nil {
				log.Printf("WARNING: scheduled backup failed: %v", err)
				continue
			}
			log.Printf("Scheduled backup written to %s", path)
		}
	}
}
