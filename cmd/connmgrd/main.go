// Command connmgrd is a minimal demo node driving connmgr over real TCP
// sockets: listen for inbound connections, dial configured peers outbound
// once at startup, and expose Prometheus metrics for the transitions it
// makes (SPEC_FULL §4.15).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/libp2p/go-libp2p-core/peer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/meridiannet/connmgr"
	"github.com/meridiannet/connmgr/socketio"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "connmgrd",
		Short: "Run a demo connection-managed TCP node",
		RunE:  run,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./connmgrd.yaml)")
	rootCmd.Flags().String("listen", "/ip4/0.0.0.0/tcp/4001", "multiaddr to listen on")
	rootCmd.Flags().StringSlice("dial", nil, "peer multiaddrs to dial outbound on startup")
	rootCmd.Flags().Int("hard-limit", 512, "accepted-connections hard limit")
	rootCmd.Flags().Duration("time-wait", 60*time.Second, "TIME_WAIT linger duration")
	rootCmd.Flags().Bool("watchdog", true, "enable memory-pressure-driven pruning")
	rootCmd.Flags().Int("metrics-port", 9090, "port to serve Prometheus metrics on")

	_ = viper.BindPFlags(rootCmd.Flags())
	viper.SetEnvPrefix("connmgrd")
	viper.AutomaticEnv()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("connmgrd")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}
	_ = viper.ReadInConfig() // absence of a config file is not fatal; flags/env still apply
}

func main() {
	cobra.OnInitialize(initConfig)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	listenAddr, err := ma.NewMultiaddr(viper.GetString("listen"))
	if err != nil {
		return fmt.Errorf("connmgrd: parsing --listen: %w", err)
	}

	registry := prometheus.NewRegistry()
	sockOps := socketio.NewTCPSocketOps()
	handler := socketio.VersionHandler{LocalVersion: 1}

	cm := connmgr.New(connmgr.Config{
		SocketOps: sockOps,
		Handler:   handler,
		// peerAddrFromRemote uses the multiaddr string as the peer's
		// identity, so resolving a peer is parsing that string back.
		AddressResolver: func(p connmgr.PeerAddr) (ma.Multiaddr, error) {
			return ma.NewMultiaddr(string(p))
		},
		DataFlowFromVersion:          socketio.DataFlowFromVersion,
		TimeWaitTimeout:              viper.GetDuration("time-wait"),
		AcceptedConnectionsHardLimit: viper.GetInt("hard-limit"),
		MetricsRegistry:              registry,
		WatchdogEnabled:              viper.GetBool("watchdog"),
	})
	defer cm.Shutdown()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	metricsSrv := &http.Server{Addr: fmt.Sprintf(":%d", viper.GetInt("metrics-port")), Handler: mux}
	go func() { _ = metricsSrv.ListenAndServe() }()
	defer metricsSrv.Close()

	ln, err := socketio.Listen(listenAddr)
	if err != nil {
		return fmt.Errorf("connmgrd: %w", err)
	}
	defer ln.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go acceptLoop(ctx, ln, cm)

	for _, raw := range viper.GetStringSlice("dial") {
		addr, err := ma.NewMultiaddr(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "connmgrd: skipping invalid dial address %q: %s\n", raw, err)
			continue
		}
		go dialPeer(ctx, cm, addr)
	}

	<-ctx.Done()
	return nil
}

func acceptLoop(ctx context.Context, ln *socketio.Listener, cm *connmgr.ConnectionManager) {
	for {
		sock, remote, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			fmt.Fprintf(os.Stderr, "connmgrd: accept: %s\n", err)
			continue
		}
		peerAddr := peerAddrFromRemote(remote)
		go func() {
			result, err := cm.IncludeInbound(ctx, sock, peerAddr, remote)
			if err != nil {
				fmt.Fprintf(os.Stderr, "connmgrd: inbound from %s failed: %s\n", remote, err)
				return
			}
			fmt.Printf("connmgrd: inbound %s connected=%v dataflow=%s\n", remote, result.Connected, result.DataFlow)
		}()
	}
}

func dialPeer(ctx context.Context, cm *connmgr.ConnectionManager, addr ma.Multiaddr) {
	peerAddr := peerAddrFromRemote(addr)
	result, err := cm.RequestOutbound(ctx, peerAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connmgrd: outbound to %s failed: %s\n", addr, err)
		return
	}
	fmt.Printf("connmgrd: outbound %s connected=%v dataflow=%s\n", addr, result.Connected, result.DataFlow)
}

// peerAddrFromRemote derives a stand-in PeerAddr from a dial/accept
// multiaddr. A production node would instead carry a p2p/<peer-id>
// component or perform its own identity handshake; this demo has neither,
// so the address string itself stands in for identity.
func peerAddrFromRemote(addr ma.Multiaddr) connmgr.PeerAddr {
	return peer.ID(addr.String())
}
