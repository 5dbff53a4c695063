// a2a-mcp-bridge exposes the AgentLink A2A client as MCP tools, allowing
// Claude Desktop and any MCP-compatible AI host to discover A2A agents and
// send them tasks.
//
// Add to Claude Desktop (~/.claude/claude_desktop_config.json):
//
//	{
//	  "mcpServers": {
//	    "a2a": {
//	      "command": "/path/to/a2a-mcp-bridge",
//	      "args": ["--agent", "https://billing.example.com"]
//	    }
//	  }
//	}
package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/agentlink-protocol/agentlink/internal/toolbridge"
	"github.com/agentlink-protocol/agentlink/pkg/client"
	"github.com/spf13/cobra"
)

var (
	agentURLs  []string
	timeoutSec int
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "a2a-mcp-bridge",
	Short: "MCP bridge for the AgentLink A2A client",
	Long: `a2a-mcp-bridge is a stdio MCP server that exposes three A2A tools to any
MCP-compatible AI host (Claude Desktop, Claude API, etc.):

  a2a_discover_agent         - fetch and cache an agent's card
  a2a_list_discovered_agents - list agents discovered so far
  a2a_send_message           - send a task and wait for its outcome

The bridge runs in stdio mode (the MCP standard for local servers).
All logging goes to stderr so it does not interfere with the protocol.`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringArrayVar(&agentURLs, "agent", nil, "Agent URL to discover at startup (repeatable)")
	rootCmd.Flags().IntVar(&timeoutSec, "timeout", 0, "Per-call timeout in seconds (0 = default)")
}

func run(cmd *cobra.Command, _ []string) error {
	logger := log.New(os.Stderr, "[a2a-mcp] ", log.LstdFlags)

	opts := []client.Option{}
	if len(agentURLs) > 0 {
		opts = append(opts, client.WithKnownAgentURLs(agentURLs...))
	}
	if timeoutSec > 0 {
		opts = append(opts, client.WithTimeout(time.Duration(timeoutSec)*time.Second))
	}

	c, err := client.New(opts...)
	if err != nil {
		return fmt.Errorf("create A2A client: %w", err)
	}

	if len(agentURLs) > 0 {
		if err := c.DiscoverKnownAgents(cmd.Context()); err != nil {
			logger.Printf("startup discovery incomplete: %v", err)
		}
	}

	tools := toolbridge.NewToolRegistry(c)
	server := toolbridge.NewServer(os.Stdout, tools, logger)

	logger.Printf("A2A MCP bridge ready, %d agent(s) preloaded", len(c.ListDiscoveredAgents()))
	logger.Printf("tools: a2a_discover_agent, a2a_list_discovered_agents, a2a_send_message")

	return server.Serve(cmd.Context(), os.Stdin)
}
