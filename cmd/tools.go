package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/agentbridge/internal/dependency"
	"github.com/crystaldolphin/agentbridge/internal/tools"
	"github.com/crystaldolphin/agentbridge/internal/value"
)

var (
	toolsJSON bool
	toolsMCP  bool
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools advertised to the web client",
	RunE:  runTools,
}

func init() {
	toolsCmd.Flags().BoolVar(&toolsJSON, "json", false, "Print the mcp:tools payload as JSON")
	toolsCmd.Flags().BoolVar(&toolsMCP, "mcp", false, "Also connect to configured MCP servers")
}

func runTools(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c, err := dependency.New(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	if toolsMCP {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		c.ConnectMCP(ctx, false)
	}
	defs := c.Registry().Definitions()

	if toolsJSON {
		payload := value.ObjectOf(value.Object{"tools": tools.DefinitionsToValue(defs)})
		return printJSON(payload)
	}

	fmt.Printf("%-24s %-10s %s\n", "Name", "Timeout", "Parameters")
	fmt.Println(repeatStr("-", 72))
	for _, d := range defs {
		timeout := "none"
		if d.Timeout > 0 {
			timeout = d.Timeout.String()
		}
		fmt.Printf("%-24s %-10s %s\n", d.Name, timeout, paramSummary(d.Params))
	}
	fmt.Printf("\n%d tools, duplicate policy %s\n", len(defs), c.Registry().Policy())
	return nil
}

func paramSummary(params []tools.Param) string {
	var buf bytes.Buffer
	for i, p := range params {
		if i > 0 {
			buf.WriteString(", ")
		}
		buf.WriteString(p.Name)
		if p.Required {
			buf.WriteString("*")
		}
	}
	return buf.String()
}

func printJSON(v value.Value) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		return err
	}
	fmt.Println(out.String())
	return nil
}

func repeatStr(s string, n int) string {
	return string(bytes.Repeat([]byte(s), n))
}
