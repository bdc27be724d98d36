package service

import (
	"context"
	"errors"
	"net"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/errgroup"

	"github.com/ethereum-optimism/infra/op-testrun/metrics"
)

const (
	HealthzHost = "0.0.0.0"
	HealthzPort = "8080"

	MetricsHost = "0.0.0.0"
	MetricsPort = "7300"
)

var (
	DefaultHealthzAddr = net.JoinHostPort(HealthzHost, HealthzPort)
	DefaultMetricsAddr = net.JoinHostPort(MetricsHost, MetricsPort)
)

type Config struct {
	Log         log.Logger
	HealthzAddr string
	// MetricsAddr is only served when MetricsEnabled is set.
	MetricsEnabled bool
	MetricsAddr    string
}

// Service runs the healthz and metrics servers.
type Service struct {
	cfg     Config
	log     log.Logger
	Healthz *HealthzServer
	Metrics *MetricsServer
	group   *errgroup.Group
}

func New(cfg Config) *Service {
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.HealthzAddr == "" {
		cfg.HealthzAddr = DefaultHealthzAddr
	}
	if cfg.MetricsAddr == "" {
		cfg.MetricsAddr = DefaultMetricsAddr
	}
	return &Service{
		cfg:     cfg,
		log:     cfg.Log,
		Healthz: NewHealthzServer(cfg.Log),
		Metrics: NewMetricsServer(cfg.Log),
	}
}

// Start binds both servers and serves them in the background. A server that
// fails while serving is logged and counted; Shutdown returns its error.
func (s *Service) Start(ctx context.Context) error {
	s.log.Info("service starting")
	if err := s.Healthz.listen(s.cfg.HealthzAddr); err != nil {
		metrics.RecordErrorDetails("healthz_listen", err)
		return err
	}
	servers := []*httpServer{&s.Healthz.httpServer}
	if s.cfg.MetricsEnabled {
		if err := s.Metrics.listen(s.cfg.MetricsAddr); err != nil {
			metrics.RecordErrorDetails("metrics_listen", err)
			_ = s.Healthz.shutdown(ctx)
			return err
		}
		servers = append(servers, &s.Metrics.httpServer)
	}

	s.group = new(errgroup.Group)
	for _, srv := range servers {
		s.group.Go(func() error {
			err := srv.serve()
			if err != nil {
				s.log.Error("error serving", "server", srv.name, "err", err)
				metrics.RecordErrorDetails(srv.name, err)
			}
			return err
		})
	}
	s.log.Info("service started", "healthz", s.Healthz.Addr(), "metrics", s.Metrics.Addr())
	return nil
}

func (s *Service) Shutdown(ctx context.Context) error {
	s.log.Info("service shutting down")
	err := errors.Join(
		s.Healthz.shutdown(ctx),
		s.Metrics.shutdown(ctx),
	)
	if s.group != nil {
		err = errors.Join(err, s.group.Wait())
	}
	s.log.Info("service stopped")
	return err
}
