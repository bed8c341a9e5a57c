// Command nsdbrokerd runs the NSD broker as a standalone daemon: it
// wires the reference legacy and managed engines to a Broker, serves
// Prometheus metrics over HTTP, and exposes a loopback smoke-test
// command for exercising the broker without a real IPC transport
// (spec.md §1's scope boundary leaves the real transport external).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/nsdbroker/nsdbroker/internal/config"
	"github.com/nsdbroker/nsdbroker/internal/engine"
	"github.com/nsdbroker/nsdbroker/internal/metrics"
	"github.com/nsdbroker/nsdbroker/nsd"
)

var (
	cfgFile    string
	metricsAddr string
)

var rootCmd = &cobra.Command{
	Use:   "nsdbrokerd",
	Short: "nsdbrokerd multiplexes mDNS/DNS-SD clients onto the legacy and managed discovery engines",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the broker until interrupted",
	RunE:  runServe,
}

var smokeCmd = &cobra.Command{
	Use:   "smoke-test",
	Short: "register a loopback client, discover a simulated service, and exit",
	RunE:  runSmokeTest,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./nsdbrokerd.yaml)")
	serveCmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9153", "address to serve Prometheus metrics on")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(smokeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("NSDBROKERD")
	v.AutomaticEnv()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("nsdbrokerd")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			fmt.Fprintf(os.Stderr, "warning: config read failed: %v\n", err)
		}
	}
	return v
}

func buildEngines() nsd.Engines {
	sockets := engine.NewMultiNetworkSocketProvider()
	managed := engine.NewManagedEngine(sockets)
	return nsd.Engines{
		Legacy:            engine.NewUDPLegacyEngine(),
		ManagedDiscovery:  managed,
		ManagedAdvertiser: managed,
		Sockets:           sockets,
		Interfaces:        &engine.OSInterfaceResolver{},
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	zapLogger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer zapLogger.Sync() //nolint:errcheck
	sugar := zapLogger.Sugar()

	v := loadViper()
	cfg, flags := config.Load(v)

	reg := prometheus.NewRegistry()
	recorder := metrics.NewPrometheus(reg)

	broker := nsd.New(cfg, flags, buildEngines(),
		nsd.WithLogger(sugar),
		nsd.WithMetrics(recorder),
		nsd.WithOnStateChange(func(enabled bool) {
			sugar.Infow("broker state changed", "enabled", enabled)
		}),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	brokerDone := make(chan struct{})
	go func() {
		broker.Run(ctx)
		close(brokerDone)
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: metricsAddr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Errorw("metrics server failed", "err", err)
		}
	}()

	sugar.Infow("nsdbrokerd started", "metrics_addr", metricsAddr)
	<-ctx.Done()
	sugar.Infow("shutting down")

	// Close joins the loop goroutine and its lifecycle cleanup timer
	// before returning, so the legacy engine's receive loop is fully
	// stopped by the time this function does — context cancellation
	// alone only asks broker.Run to stop, it doesn't report back that
	// it has.
	broker.Close()
	<-brokerDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

func runSmokeTest(cmd *cobra.Command, args []string) error {
	engines := buildEngines()
	managed := engines.ManagedDiscovery.(*engine.ManagedEngine)

	broker := nsd.New(config.Default(), config.StaticFlags{Discovery: true, Advertiser: false}, engines)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go broker.Run(ctx)

	conn := nsd.NewLoopback()
	broker.RegisterClient(conn, conn)
	defer broker.UnregisterClient(conn)

	broker.DiscoverServices(conn, 1, nsd.ServiceInfo{Type: "_http._tcp"})
	managed.SimulateFound("_http._tcp.local", nsd.ServiceInfo{Name: "demo", Type: "_http._tcp"})
	time.Sleep(50 * time.Millisecond)

	for i := 0; i < conn.Len(); i++ {
		fmt.Printf("%+v\n", conn.EventAt(i))
	}
	return nil
}
