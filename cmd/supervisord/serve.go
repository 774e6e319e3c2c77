package main

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/forgebench/infersupervisor/internal/applog"
	"github.com/forgebench/infersupervisor/internal/binaryacquire"
	"github.com/forgebench/infersupervisor/internal/config"
	"github.com/forgebench/infersupervisor/internal/modelcatalog"
	"github.com/forgebench/infersupervisor/internal/modelstore"
	"github.com/forgebench/infersupervisor/internal/orchestrator"
	"github.com/forgebench/infersupervisor/internal/registry"
	"github.com/forgebench/infersupervisor/internal/server"
	"github.com/forgebench/infersupervisor/internal/supervisor"
	"github.com/forgebench/infersupervisor/internal/systeminfo"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the supervisor process and its HTTP control API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadFromEnv(config.DefaultConfig())

		if v, _ := cmd.Flags().GetString("host"); v != "" {
			cfg.Host = v
		}
		if v, _ := cmd.Flags().GetInt("port"); cmd.Flags().Changed("port") {
			cfg.Port = v
		}
		if v, _ := cmd.Flags().GetString("models-dir"); v != "" {
			cfg.ModelsDir = v
		}
		if v, _ := cmd.Flags().GetString("bin-dir"); v != "" {
			cfg.BinDir = v
		}
		if v, _ := cmd.Flags().GetString("log-dir"); v != "" {
			cfg.LogDir = v
		}

		logLevel, _ := cmd.Flags().GetString("log-level")
		applog.Init(applog.Config{Level: logLevel, Format: "console"})

		if err := config.EnsureDirs(); err != nil {
			return fmt.Errorf("ensure data directories: %w", err)
		}

		ramGB, _ := cmd.Flags().GetFloat64("ram-available-gb")
		vramGB, _ := cmd.Flags().GetFloat64("vram-available-gb")
		gpuType, _ := cmd.Flags().GetString("gpu-type")
		system := systeminfo.StaticProvider{Snap: systeminfo.Snapshot{
			Memory: systeminfo.Memory{AvailableBytes: gbToBytes(ramGB), TotalBytes: gbToBytes(ramGB)},
			GPU:    systeminfo.GPU{Available: vramGB > 0, VRAMBytes: gbToBytes(vramGB), Type: gpuType},
		}}

		binaries := binaryacquire.NewLocalResolver(cfg.BinDir)
		models := modelstore.New(cfg.ModelsDir)

		catalogDir, _ := cmd.Flags().GetString("catalog-dir")
		catalog, err := openCatalog(catalogDir)
		if err != nil {
			return fmt.Errorf("open model catalog: %w", err)
		}
		if err := catalog.SeedFromStore(cmd.Context(), models.List()); err != nil {
			applog.Warn().Err(err).Msg("failed to seed model catalog from models directory")
		}

		timeouts := supervisor.DefaultTimeouts()
		llama := supervisor.NewLlamaSupervisor(binaries, models, filepath.Join(cfg.LogDir, "llama.log"), timeouts)
		diffusion := supervisor.NewDiffusionSupervisor(binaries, models, filepath.Join(cfg.LogDir, "diffusion.log"), timeouts, supervisor.NewDefaultImageRequester())

		tunables := orchestrator.Tunables{
			Headroom:                  cfg.HeadroomFraction,
			Multiplier:                cfg.SizeMultiplier,
			TotalLayers:               cfg.DefaultTotalLayers,
			DefaultDiffusionModelSize: gbToBytes(cfg.DefaultDiffusionGiB),
		}
		orch := orchestrator.New(llama, diffusion, models, system, catalog, tunables)

		spillDir, _ := cmd.Flags().GetString("spill-dir")
		regOpts := registry.Options{}
		if spillDir != "" {
			spill, err := registry.OpenSpill(spillDir)
			if err != nil {
				return fmt.Errorf("open generation spill: %w", err)
			}
			defer spill.Close()
			regOpts.Spill = spill
		}
		reg := registry.New(regOpts)
		defer reg.Destroy()

		srv := server.New(server.Config{Host: cfg.Host, Port: cfg.Port}, llama, diffusion, orch, reg)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// The control API runs under a Suture tree so a crash in the HTTP
		// listener itself gets restarted with backoff. This is separate from
		// (and must not be confused with) the llama/diffusion child process
		// lifecycle, which never auto-restarts.
		tree := supervisor.NewTree()
		tree.Add("control-api", srv.Start)
		return tree.Serve(ctx)
	},
}

func gbToBytes(gb float64) int64 {
	return int64(gb * float64(orchestrator.GiB))
}

func openCatalog(dir string) (*modelcatalog.Catalog, error) {
	if dir == "" {
		return modelcatalog.New()
	}
	return modelcatalog.NewPersistent(dir)
}

func init() {
	serveCmd.Flags().String("host", "", "control API bind address (default 127.0.0.1)")
	serveCmd.Flags().Int("port", 0, "control API listen port (default 8079)")
	serveCmd.Flags().String("models-dir", "", "directory containing GGUF and diffusion model files")
	serveCmd.Flags().String("bin-dir", "", "directory containing the llama and diffusion server binaries")
	serveCmd.Flags().String("log-dir", "", "directory for per-server log files")
	serveCmd.Flags().String("log-level", "info", "log level: trace, debug, info, warn, error")
	serveCmd.Flags().String("catalog-dir", "", "persist the GGUF model catalog here instead of keeping it in memory")
	serveCmd.Flags().String("spill-dir", "", "persist reaped generation metadata to a Badger database here")
	serveCmd.Flags().Float64("ram-available-gb", 16, "RAM available for model residency, in GiB (no live probing collaborator is wired in yet)")
	serveCmd.Flags().Float64("vram-available-gb", 0, "VRAM available for model residency, in GiB (0 disables GPU-first accounting)")
	serveCmd.Flags().String("gpu-type", "cuda", "GPU backend reported alongside vram-available-gb")
	rootCmd.AddCommand(serveCmd)
}
