package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/imoran/clade/pkg/config"
	"github.com/imoran/clade/pkg/core"
	"github.com/imoran/clade/pkg/cycles"
	"github.com/imoran/clade/pkg/lineage"
)

// runOnce executes one evolution cycle from a mandate file and prints the
// outcome.
func runOnce(ctx context.Context, cfg *config.Config, mandatePath string, asJSON bool) error {
	mandate, err := loadMandate(mandatePath)
	if err != nil {
		return err
	}
	mandateDefaults(cfg, mandate)

	eng, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer eng.store.Close()

	id, err := eng.manager.Start(ctx, *mandate)
	if err != nil {
		return err
	}
	if err := eng.manager.Wait(ctx, id); err != nil {
		return err
	}

	cycle, err := eng.manager.Get(id)
	if err != nil {
		return err
	}
	if cycle.Error != "" {
		return fmt.Errorf("cycle failed: %s", cycle.Error)
	}

	if asJSON {
		return json.NewEncoder(os.Stdout).Encode(cycle)
	}
	stats, _ := eng.manager.Stats(id)
	printResult(cycle, stats)
	return nil
}

func loadMandate(path string) (*core.Mandate, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mandate: %w", err)
	}
	var mandate core.Mandate
	if err := yaml.Unmarshal(raw, &mandate); err != nil {
		return nil, fmt.Errorf("parse mandate: %w", err)
	}
	if err := mandate.Validate(); err != nil {
		return nil, err
	}
	return &mandate, nil
}

func printResult(cycle *cycles.Cycle, stats lineage.Stats) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "cycle\t%s\n", cycle.ID)
	if res := cycle.Result; res != nil {
		fmt.Fprintf(w, "reason\t%s\n", res.Reason)
		fmt.Fprintf(w, "success\t%t\n", res.Success)
		fmt.Fprintf(w, "iterations\t%d\n", res.Iterations)
		fmt.Fprintf(w, "agents spawned\t%d\n", res.AgentsSpawned)
		fmt.Fprintf(w, "duration\t%s\n", res.ExecutionTime)
		if res.FinalSynthesis != nil {
			fmt.Fprintf(w, "consensus\t%.2f\n", res.FinalSynthesis.ConsensusLevel)
			fmt.Fprintf(w, "approach\t%s\n", res.FinalSynthesis.CombinedApproach)
		}
	}
	fmt.Fprintf(w, "population\t%d agents, max generation %d\n", stats.TotalAgents, stats.MaxGeneration)
	w.Flush()
}
