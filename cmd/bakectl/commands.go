package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/breadml/bakectl/internal/bakery"
	"github.com/breadml/bakectl/internal/config"
	"github.com/breadml/bakectl/internal/journal"
)

// --- repos ---

var reposCmd = &cobra.Command{
	Use:   "repos",
	Short: "List repositories visible to the API key",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		list, err := newBakeryClient(cfg).ListRepos(cmd.Context())
		if err != nil {
			return err
		}

		if len(list.Items) == 0 {
			fmt.Println("No repos found.")
			return nil
		}

		for _, repo := range list.Items {
			if repo.BaseModel != "" {
				fmt.Printf("%s  %s\n", colorize(colorBold, repo.Name), repo.BaseModel)
			} else {
				fmt.Println(colorize(colorBold, repo.Name))
			}
		}
		return nil
	},
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current status of a bake's training job",
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, _ := cmd.Flags().GetString("repo")
		bake, _ := cmd.Flags().GetString("bake")
		if repo == "" || bake == "" {
			return fmt.Errorf("--repo and --bake are required")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		status, err := newBakeryClient(cfg).BakeStatus(cmd.Context(), repo, bake)
		if err != nil {
			return err
		}

		printField("Bake", "%s/%s", repo, bake)
		printField("Status", "%s", status.Status)
		switch status.Status {
		case bakery.StatusComplete:
			printSuccess("Bake finished — the model is ready to chat")
		case bakery.StatusFailed:
			printError("Bake failed, check your configuration")
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().String("repo", "", "repository name")
	statusCmd.Flags().String("bake", "", "bake name")
}

// --- runs ---

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect locally recorded pipeline runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		store, err := openJournal(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		runs, err := store.ListRuns(limit)
		if err != nil {
			return err
		}

		if len(runs) == 0 {
			fmt.Println("No runs recorded.")
			return nil
		}

		for _, r := range runs {
			line := fmt.Sprintf("%s  %s  %s/%s  %s",
				colorize(colorCyan, shortID(r.ID)),
				r.StartedAt.Format("2006-01-02 15:04"),
				r.Repo, r.Bake,
				runStatusLabel(r.Status),
			)
			fmt.Println(line)
		}
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single run with its events",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		store, err := openJournal(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		run, err := resolveRun(store, args[0])
		if err != nil {
			return err
		}

		printField("Run", "%s", run.ID)
		printField("Plan", "%s", run.PlanPath)
		printField("Bake", "%s/%s", run.Repo, run.Bake)
		printField("Status", "%s", runStatusLabel(run.Status))
		if run.Error != "" {
			printField("Error", "%s", run.Error)
		}

		events, err := store.ListEvents(run.ID)
		if err != nil {
			return err
		}
		for _, ev := range events {
			line := ev.Step
			if ev.Target != "" {
				line += " " + ev.Target
			}
			if ev.Lines > 0 {
				line += fmt.Sprintf(" (%d lines)", ev.Lines)
			}
			if ev.Detail != "" {
				line += "  " + ev.Detail
			}
			fmt.Printf("  %s  %s  %s\n", ev.CreatedAt.Format("15:04:05"), ev.Status, line)
		}
		return nil
	},
}

// resolveRun accepts a full run ID or an unambiguous prefix.
func resolveRun(store *journal.Store, id string) (journal.Run, error) {
	run, err := store.GetRun(id)
	if err == nil {
		return run, nil
	}

	runs, err := store.ListRuns(100)
	if err != nil {
		return journal.Run{}, err
	}
	var match *journal.Run
	for i := range runs {
		if len(id) <= len(runs[i].ID) && runs[i].ID[:len(id)] == id {
			if match != nil {
				return journal.Run{}, fmt.Errorf("run ID prefix %q is ambiguous", id)
			}
			match = &runs[i]
		}
	}
	if match == nil {
		return journal.Run{}, fmt.Errorf("run %q not found", id)
	}
	return *match, nil
}

func init() {
	runsListCmd.Flags().Int("limit", 20, "maximum number of runs to list")
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
