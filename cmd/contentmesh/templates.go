package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aristath/contentmesh/internal/agent"
	"github.com/aristath/contentmesh/internal/content"
	"github.com/aristath/contentmesh/internal/events"
	"github.com/aristath/contentmesh/internal/orchestrator"
)

// cliID is the bus identity of the command line.
const cliID = "cli"

func templatesCmd(g *globalOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "templates [name...]",
		Short: "List page templates served by the template provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range args {
				if _, err := content.TemplateByName(name); err != nil {
					return err
				}
			}
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			logger, err := setupLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			rt, err := orchestrator.NewRuntime(cfg, logger)
			if err != nil {
				return err
			}
			if err := rt.Start(cmd.Context()); err != nil {
				return err
			}
			defer rt.Stop(cmd.Context()) //nolint:errcheck

			templates, err := fetchTemplates(cmd, rt.Bus, args)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(templates)
			}
			for _, t := range templates {
				fmt.Fprintf(out, "%-16s priority %-3d %s\n", t.Name, t.Priority, t.Title)
				fmt.Fprintf(out, "  %s\n", t.Description)
				fmt.Fprintf(out, "  requires: %s\n", strings.Join(t.RequiredBlocks, ", "))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

// fetchTemplates asks the template provider over the bus, the same way the
// page assembler does.
func fetchTemplates(cmd *cobra.Command, bus *events.Bus, names []string) ([]content.Template, error) {
	reply, err := bus.Request(cmd.Context(), cliID,
		events.TopicTemplatesRequested, events.TopicTemplatesReady,
		events.TemplatesRequested{Names: names}, agent.TemplateProviderID, 0)
	if err != nil {
		return nil, fmt.Errorf("requesting templates: %w", err)
	}
	ready, ok := reply.Payload.(events.TemplatesReady)
	if !ok {
		return nil, fmt.Errorf("requesting templates: unexpected payload %T", reply.Payload)
	}
	return ready.Templates, nil
}
