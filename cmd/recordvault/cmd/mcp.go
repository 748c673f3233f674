package cmd

import (
	mcpserver "github.com/recordvault/recordvault/internal/mcp"
	"github.com/spf13/cobra"
)

var mcpEngine string

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run MCP server for Claude Desktop integration",
	Long: `Start an MCP (Model Context Protocol) server over stdio.

This lets Claude Desktop (or any MCP client) query the vault using
tools like list_cases, list_conversations, get_conversation,
search_messages, case_stats, aggregate and get_attachment. The server
only reads the vault; it never modifies a case.

Add to Claude Desktop config:
  {
    "mcpServers": {
      "recordvault": {
        "command": "recordvault",
        "args": ["mcp"]
      }
    }
  }`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		engine, err := newEngine(s, mcpEngine)
		if err != nil {
			return err
		}
		defer engine.Close()

		return mcpserver.Serve(cmd.Context(), s, engine, cfg.AttachmentsDir())
	},
}

func init() {
	mcpCmd.Flags().StringVar(&mcpEngine, "engine", "", "query engine: sqlite (default) or duckdb")
	rootCmd.AddCommand(mcpCmd)
}
