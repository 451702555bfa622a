package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rocinan/dgram"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath  string
	la          string
	lp          int
	logLevel    string
	metricsAddr string
)

var rootCmd = &cobra.Command{
	Use:           "udpecho",
	Short:         "Echo UDP datagrams back to their senders on an edge-triggered epoll loop",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	rootCmd.Flags().StringVar(&la, "listen", "127.0.0.1", "listen address")
	rootCmd.Flags().IntVarP(&lp, "port", "p", 9003, "listen port")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level")
	rootCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
}

func loadConfig(cmd *cobra.Command) (dgram.Config, error) {
	cfg := dgram.NewConfig(la, lp)
	if configPath != "" {
		var err error
		if cfg, err = dgram.LoadConfig(configPath); err != nil {
			return cfg, err
		}
		if cmd.Flags().Changed("listen") {
			cfg.ListenAddr = la
		}
		if cmd.Flags().Changed("port") {
			cfg.ListenPort = lp
		}
	}
	return cfg, cfg.Validate()
}

func run(cmd *cobra.Command, args []string) error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	dgram.Logger().SetLevel(level)

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var opts []dgram.Option
	if metricsAddr != "" {
		reg := prometheus.NewRegistry()
		opts = append(opts, dgram.WithMetrics(dgram.NewMetrics(reg)))
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(metricsAddr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
				dgram.Logger().Warn("metrics server: ", err)
			}
		}()
	}

	server := new(dgram.Server)
	if err := server.Start(&cfg, new(dgram.Echo), opts...); err != nil {
		return err
	}
	fmt.Println("Start Service Successfully")
	fmt.Println("PID: ", os.Getpid())
	fmt.Println("ADDR: " + server.Channel().LocalAddr().String())

	//wait exit
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	<-signalChan
	fmt.Println("")
	server.Stop()
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
