package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/jpequegn/ttsdispatch/internal/config"
	"github.com/jpequegn/ttsdispatch/internal/controller"
	"github.com/jpequegn/ttsdispatch/internal/dispatcher"
	"github.com/jpequegn/ttsdispatch/internal/executor"
	"github.com/jpequegn/ttsdispatch/internal/model"
	"github.com/jpequegn/ttsdispatch/internal/registry"
	"github.com/jpequegn/ttsdispatch/internal/workerpool"
)

var (
	submitDir         string
	submitServersFile string
	submitVoice       string
	submitSpeed       float64
	submitConcurrency int
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Run one batch of markdown documents to completion, standalone",
	Long: `Submit runs a batch against the upstream servers in-process (no HTTP
control plane involved) and blocks until every task reaches a terminal
state, printing the final progress snapshot as JSON.

Example:
  ttsdispatch submit --dir ./docs --servers servers.json --voice en-US-JennyNeural`,
	RunE: runSubmit,
}

func init() {
	rootCmd.AddCommand(submitCmd)

	submitCmd.Flags().StringVar(&submitDir, "dir", "", "directory of .md source documents (required)")
	submitCmd.Flags().StringVar(&submitServersFile, "servers", "", "path to a JSON file listing upstream servers (defaults to the config file's servers)")
	submitCmd.Flags().StringVar(&submitVoice, "voice", "", "voice override")
	submitCmd.Flags().Float64Var(&submitSpeed, "speed", 0, "speed override")
	submitCmd.Flags().IntVar(&submitConcurrency, "concurrency", 1, "default per-worker capacity when a server doesn't specify one")

	_ = submitCmd.MarkFlagRequired("dir")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	store, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := store.Get()

	servers := cfg.Servers
	if submitServersFile != "" {
		servers, err = loadServersFile(submitServersFile)
		if err != nil {
			return err
		}
	}
	if len(servers) == 0 {
		return fmt.Errorf("no upstream servers configured (use --servers or a config file)")
	}

	fs := afero.NewOsFs()
	entries, err := afero.ReadDir(fs, submitDir)
	if err != nil {
		return fmt.Errorf("read --dir: %w", err)
	}

	params := model.DefaultSubmissionParams()
	params.UploadDir = submitDir
	if submitVoice != "" {
		params.Voice = submitVoice
	}
	if submitSpeed > 0 {
		params.Speed = submitSpeed
	}

	reg := registry.New()
	batchID := reg.CreateBatch(params)

	var taskIDs []string
	filenames := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		taskID, err := reg.AddTask(batchID, entry.Name())
		if err != nil {
			return fmt.Errorf("register task: %w", err)
		}
		taskIDs = append(taskIDs, taskID)
		filenames[taskID] = entry.Name()
	}
	if len(taskIDs) == 0 {
		return fmt.Errorf("no .md files found in %s", submitDir)
	}

	pool := workerpool.New(servers, submitConcurrency)
	if err := reg.AttachServers(batchID, pool); err != nil {
		return err
	}

	adaptive := controller.NewAdaptive()
	retry := controller.NewRetryPolicy()
	exec := executor.New(fs, retry, executor.SizeThresholds{
		MinBytes:     cfg.MinAudioSizeBytes,
		BytesPerChar: cfg.MinAudioBytesPerChar,
	}, nil)

	d := dispatcher.New(dispatcher.Config{
		BatchID:             batchID,
		Registry:            reg,
		Pool:                pool,
		Adaptive:            adaptive,
		Executor:            exec,
		Params:              params,
		TaskIDs:             taskIDs,
		Filenames:           filenames,
		ConcurrencyOverride: cfg.BalancerMaxConcurrency,
		Global:              dispatcher.NewGlobalLimiter(cfg.GlobalConcurrencyLimit),
	})

	if err := d.Run(context.Background()); err != nil {
		return fmt.Errorf("dispatcher: %w", err)
	}

	view, err := reg.Snapshot(batchID)
	if err != nil {
		return err
	}
	return json.NewEncoder(os.Stdout).Encode(view)
}

func loadServersFile(path string) ([]model.UpstreamServer, error) {
	raw, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read servers file: %w", err)
	}
	var servers []model.UpstreamServer
	if err := json.Unmarshal(raw, &servers); err != nil {
		return nil, fmt.Errorf("parse servers file: %w", err)
	}
	return servers, nil
}
