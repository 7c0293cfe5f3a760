package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"dirigent/internal/coordinator"
	"dirigent/internal/llm"
	"dirigent/internal/observe"
	"dirigent/internal/protocol"
	"dirigent/internal/store"
	"dirigent/internal/worker"
)

var (
	runCategory string
	runTier     int
	runWatch    bool
	runDir      string
)

// runCmd executes one coordination session for a task description.
var runCmd = &cobra.Command{
	Use:   "run [task description]",
	Short: "Run one coordination session",
	Long: `Runs the full coordination loop for a task:
  1. Ask the generator for directives targeting the declared contracts
  2. Extract, normalize and route each directive to a capable worker
  3. Execute the batch, audit claims against the workspace
  4. Evaluate completion and retry with corrections, or escalate`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSession,
}

func init() {
	runCmd.Flags().StringVar(&runCategory, "category", "build", "task category to evaluate against")
	runCmd.Flags().IntVar(&runTier, "tier", 1, "task complexity tier")
	runCmd.Flags().BoolVar(&runWatch, "watch", false, "verify artifacts via filesystem events instead of stat")
	runCmd.Flags().StringVar(&runDir, "dir", ".", "workspace root for artifact verification")
}

func runSession(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	task := strings.Join(args, " ")

	defs, err := loadDefinitions(workersPath)
	if err != nil {
		return err
	}

	gen, err := llm.NewFromConfig(ctx, cfg.LLM)
	if err != nil {
		return err
	}

	var obs observe.Observer
	if runWatch {
		watcher, err := observe.NewWatchObserver(runDir)
		if err != nil {
			return fmt.Errorf("start workspace watcher: %w", err)
		}
		defer watcher.Close()
		obs = watcher
	} else {
		obs = observe.NewFileObserver(runDir)
	}

	var st *store.RecordStore
	if cfg.Store.Path != "" {
		st, err = store.Open(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer st.Close()
	}

	engine := coordinator.NewEngine(cfg, gen, obs, st)
	for _, def := range defs.Workers {
		profile := def.Profile
		profile.Live = true
		if err := engine.RegisterWorker(profile, worker.NewLLMWorker(profile, def.Persona, gen)); err != nil {
			return err
		}
	}
	for _, def := range defs.Targets {
		engine.BindTarget(def.Name, def.Contract, def.Requirement)
		if len(def.Renames) > 0 {
			engine.Adapter().RegisterTargetRenames(def.Name, def.Renames)
		}
	}

	sess, runErr := engine.Run(ctx, protocol.TaskRequirement{
		Category:    runCategory,
		Tier:        runTier,
		Description: task,
	})

	fmt.Println(renderSession(sess))
	if runErr != nil && !errors.Is(runErr, protocol.ErrIterationBound) {
		return runErr
	}
	return nil
}
