package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"parallelyou/config"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg.Logging); err != nil {
		logrus.WithError(err).Fatal("Invalid logging configuration")
	}

	g, err := newGateway(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize gateway")
	}
	defer g.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, g); err != nil {
		logrus.WithError(err).Error("Server stopped with error")
		return
	}
	logrus.Info("Server stopped")
}

// run starts every enabled listener and blocks until ctx is cancelled or one
// of them fails
func run(ctx context.Context, g *gateway) error {
	cfg := g.cfg
	eg, ctx := errgroup.WithContext(ctx)
	handler := newHTTPHandler(g)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	eg.Go(func() error {
		beacon("http_listening", logrus.Fields{"port": cfg.Server.HTTPPort})
		return serveHTTP(ctx, httpSrv, func() error { return httpSrv.ListenAndServe() })
	})

	if cfg.Server.HTTPSPort > 0 {
		if certPath, keyPath, found := findSSLCertificates(cfg.Server.TLS); found {
			httpsSrv := &http.Server{
				Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPSPort),
				Handler:           handler,
				ReadHeaderTimeout: 10 * time.Second,
			}
			eg.Go(func() error {
				beacon("https_listening", logrus.Fields{"port": cfg.Server.HTTPSPort, "cert": certPath})
				return serveHTTP(ctx, httpsSrv, func() error { return httpsSrv.ListenAndServeTLS(certPath, keyPath) })
			})
		} else {
			logrus.Warn("SSL certificates not found, HTTPS disabled")
		}
	}

	if cfg.Server.DNSPort > 0 {
		dnsSrv := newDNSServer(g)
		eg.Go(func() error {
			beacon("dns_listening", logrus.Fields{"port": cfg.Server.DNSPort, "zone": cfg.DNS.Zone})
			return dnsSrv.ListenAndServe()
		})
		eg.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return dnsSrv.ShutdownContext(shutdownCtx)
		})
	}

	if cfg.Server.SSHPort > 0 {
		sshSrv, err := newSSHServer(g, cfg.SSH.HostKey, cfg.SSHIdleTimeout())
		if err != nil {
			return err
		}
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.SSHPort))
		if err != nil {
			return fmt.Errorf("ssh: listen failed: %w", err)
		}
		eg.Go(func() error {
			return sshSrv.Serve(ctx, ln)
		})
	}

	return eg.Wait()
}

// serveHTTP runs listen until ctx is cancelled, then drains in-flight
// requests
func serveHTTP(ctx context.Context, srv *http.Server, listen func() error) error {
	errCh := make(chan error, 1)
	go func() {
		if err := listen(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
