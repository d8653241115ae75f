package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/agentbridge/internal/dependency"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show agentbridge status",
	RunE:  runStatus,
}

func mark(ok bool) string {
	if ok {
		return "✓"
	}
	return "✗"
}

func runStatus(_ *cobra.Command, _ []string) error {
	cfgPath := resolvedConfigPath()

	fmt.Printf("%s agentbridge Status\n\n", logo)

	_, statErr := os.Stat(cfgPath)
	fmt.Printf("Config:    %s %s\n", cfgPath, mark(statErr == nil))

	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("  (could not load config: %v)\n", err)
		return nil
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("  (config problems: %v)\n", err)
		return nil
	}

	_, dirErr := os.Stat(cfg.StateDir())
	fmt.Printf("Data dir:  %s %s\n", cfg.StateDir(), mark(dirErr == nil))
	fmt.Printf("Listen:    ws://%s%s\n\n", cfg.Channel.ListenAddr, cfg.Channel.Path)

	c, err := dependency.New(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	gen := c.Generator()
	fmt.Println("Capabilities:")
	fmt.Printf("  %-10s %s\n", "mcp", mark(true))
	fmt.Printf("  %-10s %s\n", "dom", mark(cfg.Bridge.Capabilities.DOM))
	fmt.Printf("  %-10s %s\n", "storage", mark(cfg.Bridge.Capabilities.Storage))
	fmt.Printf("  %-10s %s\n", "llm", mark(gen.Available()))

	fmt.Println("\nGeneration:")
	if gen.Available() {
		fmt.Printf("  %s %s (%s mode)\n", cfg.Generation.APIBase, cfg.Generation.Model, gen.Mode())
	} else {
		fmt.Println("  disabled")
	}

	fmt.Printf("\nTools:     %d registered\n", c.Registry().Len())
	fmt.Printf("MCP:       %d servers configured\n", len(cfg.Tools.MCPServers))
	fmt.Printf("Sessions:  %d known\n", c.Sessions().Len())
	return nil
}
