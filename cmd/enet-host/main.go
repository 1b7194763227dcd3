// Command enet-host runs a listening Host that echoes every reliable
// message it receives back to its sender on the same channel.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/udpnet/enet"
)

func main() {
	var configPath string
	cfg := defaultConfig()

	root := &cobra.Command{
		Use:   "enet-host",
		Short: "Run a reliable-UDP echo host",
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			cfg = loaded
			return run(cfg)
		},
	}
	root.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")
	root.Flags().StringVar(&cfg.Listen, "listen", cfg.Listen, "address to bind")
	root.Flags().Uint32Var(&cfg.PeerCount, "peers", cfg.PeerCount, "maximum concurrent peers")
	root.Flags().Uint32Var(&cfg.ChannelLimit, "channel-limit", cfg.ChannelLimit, "maximum channels per peer")
	root.Flags().Uint32Var(&cfg.IncomingBandwidth, "incoming-bandwidth", cfg.IncomingBandwidth, "incoming bandwidth budget, bytes/sec (0 = unlimited)")
	root.Flags().Uint32Var(&cfg.OutgoingBandwidth, "outgoing-bandwidth", cfg.OutgoingBandwidth, "outgoing bandwidth budget, bytes/sec (0 = unlimited)")
	root.Flags().BoolVar(&cfg.Checksum, "checksum", cfg.Checksum, "verify a CRC32 trailer on every datagram")
	root.Flags().BoolVar(&cfg.Compress, "compress", cfg.Compress, "compress the command section of outgoing datagrams")
	root.Flags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn, or error")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg config) error {
	logger, err := buildLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	opts := []enet.HostOption{
		enet.WithChannelLimit(cfg.ChannelLimit),
		enet.WithBandwidth(cfg.IncomingBandwidth, cfg.OutgoingBandwidth),
		enet.WithLogger(logger),
	}
	if cfg.Checksum {
		opts = append(opts, enet.WithChecksum(enet.NewCRC32Checksum()))
	}
	if cfg.Compress {
		opts = append(opts, enet.WithCompressor(enet.NewFlateCompressor()))
	}

	host, err := enet.NewHost(cfg.Listen, cfg.PeerCount, opts...)
	if err != nil {
		return err
	}
	defer host.Destroy()

	logger.Info("listening", zap.String("addr", cfg.Listen), zap.Uint32("peers", cfg.PeerCount))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case <-sigCh:
			logger.Info("shutting down")
			return nil
		default:
		}

		ev, err := host.Service(100 * time.Millisecond)
		if err != nil {
			logger.Warn("service error", zap.Error(err))
			continue
		}

		switch ev.Type {
		case enet.EventConnect:
			logger.Info("peer connected", zap.Int("peer", ev.Peer.IncomingPeerID))
		case enet.EventDisconnect:
			logger.Info("peer disconnected", zap.Int("peer", ev.Peer.IncomingPeerID))
		case enet.EventReceive:
			logger.Debug("received", zap.Int("peer", ev.Peer.IncomingPeerID), zap.Int("bytes", ev.Packet.Len()))
			echo := enet.NewPacket(append([]byte(nil), ev.Packet.Data...), enet.PacketFlagReliable)
			if err := ev.Peer.Send(ev.ChannelID, echo); err != nil {
				logger.Warn("echo failed", zap.Error(err))
			}
		}
	}
}
