// Command catbusd runs a Catbus node: the UDP protocol dispatcher,
// periodic announce/link-broadcast loop, publish worker, and file-
// session manager, plus the read-only status API. See SPEC_FULL.md §10.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chromatron/catbus/config"
	"github.com/chromatron/catbus/engine"
	"github.com/chromatron/catbus/fsession"
	"github.com/chromatron/catbus/kv"
	"github.com/chromatron/catbus/kvmeta"
	"github.com/chromatron/catbus/link"
	"github.com/chromatron/catbus/metrics"
	"github.com/chromatron/catbus/statusapi"
	"github.com/chromatron/catbus/value"
)

// version is stamped at build time via -ldflags; "dev" otherwise.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "catbusd",
		Short: "Run a Catbus key-value bus node",
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "catbus.toml", "path to the node's TOML configuration file")

	root.AddCommand(newRunCmd(&configPath))
	root.AddCommand(newShowConfigCmd(&configPath))
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print catbusd's version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version)
			return nil
		},
	}
}

func newShowConfigCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show-config",
		Short: "Load the configuration file and print the effective values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadOrDefault(*configPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%+v\n", cfg)
			return nil
		},
	}
}

func newRunCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the node's dispatcher, announce loop, publish worker, and status API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadOrDefault(*configPath)
			if err != nil {
				return err
			}
			return runNode(cmd.Context(), cfg)
		},
	}
}

func loadOrDefault(path string) (config.NodeConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := config.DefaultNodeConfig()
		return cfg, cfg.Valid()
	}
	return config.Load(path)
}

func runNode(ctx context.Context, cfg config.NodeConfig) error {
	log, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return err
	}

	registry, err := kv.NewStaticRegistry(builtinParams(cfg))
	if err != nil {
		return err
	}
	persistPath := filepath.Join(cfg.DataDir, "kv.persist")
	persist, err := kv.OpenPersistStore(persistPath, registry, log)
	if err != nil {
		return err
	}
	defer persist.Close()
	registry.SetPersistStore(persist)

	namesFile, err := os.OpenFile(filepath.Join(cfg.DataDir, "kv.names"), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer namesFile.Close()
	names, err := kv.OpenNameFile(namesFile)
	if err != nil {
		return err
	}
	dynamic := kv.NewDynamicDB(names)
	facade := kv.NewFacade(registry, dynamic)

	linkFile, err := os.OpenFile(filepath.Join(cfg.DataDir, "links.db"), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer linkFile.Close()
	linkStore, err := link.Open(linkFile)
	if err != nil {
		return err
	}

	filesRoot := filepath.Join(cfg.DataDir, "files")
	osfs, err := fsession.NewOSFS(filesRoot)
	if err != nil {
		return err
	}
	files := fsession.NewManager(osfs, log)

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: cfg.DiscoveryPort})
	if err != nil {
		return err
	}
	if err := enableBroadcast(conn); err != nil {
		log.Warn("could not enable SO_BROADCAST on discovery socket", zap.Error(err))
	}

	originID := kvmeta.HashName(cfg.DeviceName)
	node, err := engine.NewNode(cfg.EngineConfig(), conn, uint64(originID), facade, linkStore, files, nil, log)
	if err != nil {
		return err
	}
	for i, tag := range cfg.MetaTags {
		if err := node.SetMetaTag(kvmeta.MetaTagsStart+i, kvmeta.HashName(tag)); err != nil {
			log.Warn("skipping fixed meta-tag slot from config", zap.Int("index", i), zap.Error(err))
		}
	}

	reg := prometheus.NewRegistry()
	met := metrics.NewCollectors(reg)
	node.SetMetrics(met)
	persist.SetFailHook(func() { met.PersistFailures.Inc() })

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { return node.Run(gctx) })
	group.Go(func() error { return runStatusAPI(gctx, cfg.StatusAPIAddr, node, reg, log) })

	err = group.Wait()
	closeErr := node.Close()
	if err != nil {
		return err
	}
	return closeErr
}

func runStatusAPI(ctx context.Context, addr string, node *engine.Node, reg *prometheus.Registry, log *zap.Logger) error {
	if addr == "" {
		<-ctx.Done()
		return nil
	}
	mux := statusapi.NewRouter(node)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	log.Info("status api listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// enableBroadcast sets SO_BROADCAST on conn's underlying file descriptor,
// required on Linux before a UDP socket may send to a broadcast address
// (spec.md §6: ANNOUNCE/LINK are broadcast datagrams).
func enableBroadcast(conn *net.UDPConn) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		sockErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_BROADCAST, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}

// builtinParams declares the small fixed set of device-identity static
// parameters every node exposes, following the firmware's compile-time
// parameter table (SPEC_FULL.md §4.2, §9).
func builtinParams(cfg config.NodeConfig) []kv.StaticParamDef {
	nameBuf := make([]byte, 32)
	copy(nameBuf, cfg.DeviceName)
	return []kv.StaticParamDef{
		{Name: "device_name", Type: value.TypeString32, ArrayLen: 0, Flags: kvmeta.FlagReadOnly, RAM: nameBuf},
	}
}
