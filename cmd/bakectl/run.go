package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/breadml/bakectl/internal/bakery"
	"github.com/breadml/bakectl/internal/pipeline"
	"github.com/breadml/bakectl/internal/plan"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a bake plan end to end",
	Long: `Execute a bake plan: create the repo, upload prompts and targets,
generate stimuli and rollouts for each target, then configure and start
the bake.

By default the command returns once the bake is submitted; pass
--wait-bake to block until training finishes.

Examples:
  bakectl run --plan examples/persona.json
  bakectl run --plan examples/toolcall.json --wait-bake`,
	RunE: func(cmd *cobra.Command, args []string) error {
		planPath, _ := cmd.Flags().GetString("plan")
		waitBake, _ := cmd.Flags().GetBool("wait-bake")
		if planPath == "" {
			return fmt.Errorf("--plan is required")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		p, err := plan.Load(planPath)
		if err != nil {
			return err
		}

		poller, err := newPoller(cfg)
		if err != nil {
			return err
		}

		store, err := openJournal(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		runner := &pipeline.Runner{
			Bakery:      newBakeryClient(cfg),
			Poller:      poller,
			Journal:     store,
			Logger:      slog.Default(),
			WaitForBake: waitBake,
			OnSample:    printSamples,
		}

		printStep("Running plan %s (%s/%s)", planPath, p.Repo, p.Bake.Name)
		res, err := runner.Run(cmd.Context(), p, planPath)
		if err != nil {
			return err
		}

		if waitBake && res.BakeStatus.Status == bakery.StatusComplete {
			printSuccess("Bake %s finished — chat with it: bakectl chat --model %s", res.Bake, p.Bake.ModelName)
		} else {
			printSuccess("Bake %s submitted — check progress: bakectl status --repo %s --bake %s", res.Bake, res.Repo, res.Bake)
		}
		printField("Run ID", "%s", res.RunID)
		return nil
	},
}

func init() {
	runCmd.Flags().String("plan", "", "path to the bake plan JSON file")
	runCmd.Flags().Bool("wait-bake", false, "wait for the bake's training job to finish")
}
