package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/libp2p/go-libp2p"
	libp2ppubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	noise "github.com/libp2p/go-libp2p/p2p/security/noise"
	"github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"

	"github.com/DeBrosOfficial/triggermux/pkg/config"
	"github.com/DeBrosOfficial/triggermux/pkg/gateway"
	"github.com/DeBrosOfficial/triggermux/pkg/logging"
	"github.com/DeBrosOfficial/triggermux/pkg/mux"
	"github.com/DeBrosOfficial/triggermux/pkg/transport"
)

func setupLogger(enableColors bool) *logging.ColoredLogger {
	logger, err := logging.NewColoredLogger(logging.ComponentGeneral, enableColors)
	if err != nil {
		panic(err)
	}
	return logger
}

// loadConfig reads the config file named by -config, falling back to
// defaults when the flag is unset.
func loadConfig() (*config.Config, error) {
	path := flag.String("config", os.Getenv("TRIGGERMUX_CONFIG"), "Path to YAML config file")
	flag.Parse()

	if *path == "" {
		return config.Default(), nil
	}
	return config.LoadFromFile(*path)
}

// buildHost creates the libp2p host and gossipsub router from node config.
func buildHost(cfg *config.Config, logger *logging.ColoredLogger) (host.Host, *libp2ppubsub.PubSub, error) {
	listenAddrs := make([]multiaddr.Multiaddr, 0, len(cfg.Node.ListenAddresses))
	for _, addr := range cfg.Node.ListenAddresses {
		ma, err := multiaddr.NewMultiaddr(addr)
		if err != nil {
			return nil, nil, err
		}
		listenAddrs = append(listenAddrs, ma)
	}

	h, err := libp2p.New(
		libp2p.Security(noise.ID, noise.New),
		libp2p.DefaultMuxers,
		libp2p.ListenAddrs(listenAddrs...),
	)
	if err != nil {
		return nil, nil, err
	}

	ps, err := libp2ppubsub.NewGossipSub(context.Background(), h,
		libp2ppubsub.WithPeerExchange(true),
		libp2ppubsub.WithFloodPublish(true),
	)
	if err != nil {
		h.Close()
		return nil, nil, err
	}

	// Best-effort dial of bootstrap peers; the reconnect is gossip's job.
	for _, addr := range cfg.Node.BootstrapPeers {
		ma, err := multiaddr.NewMultiaddr(addr)
		if err != nil {
			logger.ComponentWarn(logging.ComponentGeneral, "Skipping invalid bootstrap peer",
				zap.String("addr", addr), zap.Error(err))
			continue
		}
		info, err := peer.AddrInfoFromP2pAddr(ma)
		if err != nil {
			logger.ComponentWarn(logging.ComponentGeneral, "Skipping bootstrap peer without peer id",
				zap.String("addr", addr), zap.Error(err))
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := h.Connect(ctx, *info); err != nil {
			logger.ComponentWarn(logging.ComponentGeneral, "Failed to connect to bootstrap peer",
				zap.String("peer", info.ID.String()), zap.Error(err))
		}
		cancel()
	}

	logger.ComponentInfo(logging.ComponentGeneral, "LibP2P host started",
		zap.String("peer_id", h.ID().String()),
		zap.Int("bootstrap_peer_count", len(cfg.Node.BootstrapPeers)))

	return h, ps, nil
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		logger := setupLogger(true)
		logger.ComponentError(logging.ComponentGeneral, "Failed to load configuration", zap.Error(err))
		os.Exit(1)
	}

	logger := setupLogger(cfg.Logging.EnableColors)

	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			logger.ComponentError(logging.ComponentGeneral, "Invalid configuration", zap.Error(e))
		}
		os.Exit(1)
	}

	h, ps, err := buildHost(cfg, logger)
	if err != nil {
		logger.ComponentError(logging.ComponentGeneral, "Failed to start LibP2P host", zap.Error(err))
		os.Exit(1)
	}
	defer h.Close()

	codec, err := mux.CodecForEncoding(cfg.Mux.PayloadEncoding)
	if err != nil {
		logger.ComponentError(logging.ComponentGeneral, "Invalid payload encoding", zap.Error(err))
		os.Exit(1)
	}

	tr := transport.NewLibP2P(ps, logger)
	defer tr.Close()

	m := mux.New(tr,
		mux.WithTriggerTransform(mux.NamespaceTransform(cfg.Mux.Namespace)),
		mux.WithCodec(codec),
		mux.WithLogger(logger),
	)
	defer m.Close()

	g := gateway.New(logger, m, cfg.Gateway)

	server := &http.Server{
		Addr:    cfg.Gateway.ListenAddr,
		Handler: g.Routes(),
	}

	go func() {
		logger.ComponentInfo(logging.ComponentGeneral, "Gateway HTTP server starting",
			zap.String("addr", cfg.Gateway.ListenAddr),
			zap.String("namespace", cfg.Mux.Namespace),
			zap.String("payload_encoding", cfg.Mux.PayloadEncoding),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.ComponentError(logging.ComponentGeneral, "HTTP server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	logger.ComponentInfo(logging.ComponentGeneral, "Shutting down gateway HTTP server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.ComponentError(logging.ComponentGeneral, "HTTP server shutdown error", zap.Error(err))
	}
	logger.ComponentInfo(logging.ComponentGeneral, "Gateway shutdown complete")
}
