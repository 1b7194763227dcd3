// Command enet-client connects to an enet-host, sends its configured
// message on a fixed interval, and exits cleanly on disconnect or signal.
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
		Use:   "enet-client",
		Short: "Connect to a reliable-UDP host and exchange messages",
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
	root.Flags().StringVar(&cfg.Server, "server", cfg.Server, "host address to connect to")
	root.Flags().Uint32Var(&cfg.ChannelCount, "channels", cfg.ChannelCount, "number of channels to request")
	root.Flags().Uint8Var(&cfg.Channel, "channel", cfg.Channel, "channel to send on")
	root.Flags().StringVar(&cfg.Message, "message", cfg.Message, "message payload to send")
	root.Flags().Uint32Var(&cfg.Interval, "interval", cfg.Interval, "milliseconds between sends")
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

	host, err := enet.NewHost(":0", 1, enet.WithLogger(logger))
	if err != nil {
		return err
	}
	defer host.Destroy()

	peer, err := host.Connect(cfg.Server, cfg.ChannelCount, 0)
	if err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	interval := time.Duration(cfg.Interval) * time.Millisecond
	var nextSend time.Time
	disconnecting := false

	for {
		select {
		case <-sigCh:
			if !disconnecting {
				logger.Info("disconnecting")
				peer.Disconnect(0)
				disconnecting = true
			}
		default:
		}

		ev, err := host.Service(100 * time.Millisecond)
		if err != nil {
			logger.Warn("service error", zap.Error(err))
			continue
		}

		switch ev.Type {
		case enet.EventConnect:
			logger.Info("connected", zap.String("server", cfg.Server))
			nextSend = time.Now()
		case enet.EventDisconnect:
			logger.Info("disconnected")
			return nil
		case enet.EventReceive:
			logger.Info("received", zap.Int("bytes", ev.Packet.Len()), zap.String("data", string(ev.Packet.Data)))
		}

		if !disconnecting && !nextSend.IsZero() && !time.Now().Before(nextSend) {
			packet := enet.NewPacket([]byte(cfg.Message), enet.PacketFlagReliable)
			if err := peer.Send(cfg.Channel, packet); err != nil {
				logger.Warn("send failed", zap.Error(err))
			}
			nextSend = time.Now().Add(interval)
		}
	}
}
