package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/agentbridge/internal/dependency"
	"github.com/crystaldolphin/agentbridge/internal/generation"
	"github.com/crystaldolphin/agentbridge/internal/value"
)

var generateMode string

var generateCmd = &cobra.Command{
	Use:   "generate <request.json>",
	Short: "Run one llm:generate request against the configured model",
	Long: `Reads a JSON file shaped like an llm:generate payload
({threadId, systemPrompt, timeline, tools}) and prints the decision the
configured local model makes. Registered tools are offered when the file
has none.`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVarP(&generateMode, "mode", "m", "", "dynamic or static (overrides generation.mode)")
}

func runGenerate(_ *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if generateMode != "" {
		cfg.Generation.Mode = generateMode
	}
	if !cfg.Generation.Enabled {
		return fmt.Errorf("generation is disabled; set generation.enabled in %s", resolvedConfigPath())
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read request: %w", err)
	}
	v, err := value.Parse(data)
	if err != nil {
		return fmt.Errorf("parse request: %w", err)
	}
	fields, ok := v.AsObject()
	if !ok {
		return fmt.Errorf("request must be a JSON object, got %s", v.Kind())
	}

	c, err := dependency.New(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	req, err := generation.RequestFromValue(fields, c.Registry().Definitions())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Generation.TimeoutSeconds+5)*time.Second)
	defer cancel()
	start := time.Now()
	d, err := c.Generator().Generate(ctx, req)
	if err != nil {
		return fmt.Errorf("%s: %w", generation.CodeOf(err), err)
	}

	fmt.Printf("%s %s in %s (%d in / %d out tokens)\n", logo, d.ToolName, time.Since(start).Round(time.Millisecond), d.InputTokens, d.OutputTokens)
	return printJSON(value.ObjectOf(d.ToolArgs))
}
