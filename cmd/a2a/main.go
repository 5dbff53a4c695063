package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/agentlink-protocol/agentlink/internal/health"
	"github.com/agentlink-protocol/agentlink/internal/webhook"
	"github.com/agentlink-protocol/agentlink/pkg/a2a"
	"github.com/agentlink-protocol/agentlink/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/oauth2/clientcredentials"
)

// version is overridden by goreleaser via -ldflags "-X main.version=...".
var version = "dev"

var cfgFile string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "a2a",
	Short: "AgentLink A2A client CLI",
	Long: `a2a is the command-line interface for the AgentLink A2A client engine.

It discovers A2A agents by fetching their agent cards, sends them tasks over
JSON-RPC, and follows task progress by polling or via push notifications.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.a2a")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.a2a/config.yaml)")

	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

// ── configuration ────────────────────────────────────────────────────────────

// agentConfig is one entry under the "agents" key of the config file.
type agentConfig struct {
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
	OAuth   *oauthConfig      `mapstructure:"oauth"`
}

type oauthConfig struct {
	TokenURL     string   `mapstructure:"token_url"`
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	Scopes       []string `mapstructure:"scopes"`
}

// buildClient assembles a client from the config file and environment.
func buildClient(logger *zap.Logger) (*client.Client, error) {
	opts := []client.Option{client.WithLogger(logger)}

	if d := viper.GetDuration("timeout"); d > 0 {
		opts = append(opts, client.WithTimeout(d))
	}

	var agents []agentConfig
	if err := viper.UnmarshalKey("agents", &agents); err != nil {
		return nil, fmt.Errorf("parse agents config: %w", err)
	}
	for _, a := range agents {
		if a.URL == "" {
			return nil, fmt.Errorf("agents entry is missing its url")
		}
		opts = append(opts, client.WithKnownAgentURLs(a.URL))
		if len(a.Headers) > 0 {
			opts = append(opts, client.WithHeaders(a.URL, client.HeaderSet(a.Headers)))
		}
		if a.OAuth != nil {
			opts = append(opts, client.WithOAuth2(a.URL, clientcredentials.Config{
				TokenURL:     a.OAuth.TokenURL,
				ClientID:     a.OAuth.ClientID,
				ClientSecret: a.OAuth.ClientSecret,
				Scopes:       a.OAuth.Scopes,
			}))
		}
	}

	if url := viper.GetString("webhook.url"); url != "" {
		opts = append(opts, client.WithWebhook(url, viper.GetString("webhook.token")))
		if key := viper.GetString("webhook.jwt_key"); key != "" {
			opts = append(opts, client.WithWebhookJWTKey([]byte(key)))
		}
	}

	if rps := viper.GetFloat64("rate_limit.rps"); rps > 0 {
		burst := viper.GetInt("rate_limit.burst")
		if burst == 0 {
			burst = 1
		}
		opts = append(opts, client.WithRateLimit(rps, burst))
	}

	return client.New(opts...)
}

// ── discover ─────────────────────────────────────────────────────────────────

// discoverRow holds the outcome of a single discovery attempt.
type discoverRow struct {
	url  string
	card *a2a.AgentCard
	err  error
}

var discoverFormat string

var discoverCmd = &cobra.Command{
	Use:   "discover <url> [url] ...",
	Short: "Fetch and cache the agent card for one or more agent URLs",
	Long: `Discover fetches each agent's card from its well-known path and prints it.

Multiple URLs are discovered concurrently and displayed as a table:

  a2a discover https://billing.example.com https://support.example.com`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().StringVar(&discoverFormat, "format", "text", "Output format: text or json")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	c, err := buildClient(zap.NewNop())
	if err != nil {
		return err
	}
	ctx := context.Background()

	resultsCh := make(chan discoverRow, len(args))
	for _, url := range args {
		url := url
		go func() {
			card, err := c.DiscoverAgent(ctx, url)
			resultsCh <- discoverRow{url: url, card: card, err: err}
		}()
	}

	// Collect in input order.
	byURL := make(map[string]discoverRow, len(args))
	for range args {
		r := <-resultsCh
		byURL[r.url] = r
	}
	ordered := make([]discoverRow, len(args))
	for i, url := range args {
		ordered[i] = byURL[url]
	}

	switch discoverFormat {
	case "json":
		return printDiscoverJSON(ordered)
	default:
		return printDiscoverText(ordered)
	}
}

func printDiscoverJSON(results []discoverRow) error {
	type jsonRow struct {
		URL   string         `json:"url"`
		Card  *a2a.AgentCard `json:"card,omitempty"`
		Error string         `json:"error,omitempty"`
	}
	rows := make([]jsonRow, len(results))
	for i, r := range results {
		rows[i] = jsonRow{URL: r.url, Card: r.card}
		if r.err != nil {
			rows[i].Error = r.err.Error()
		}
	}
	// Single result: unwrap from array for convenience.
	var v any = rows
	if len(rows) == 1 {
		v = rows[0]
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printDiscoverText(results []discoverRow) error {
	if len(results) == 1 {
		r := results[0]
		if r.err != nil {
			return fmt.Errorf("discover %q: %w", r.url, r.err)
		}
		fmt.Printf("Name:        %s\n", r.card.Name)
		if r.card.Description != "" {
			fmt.Printf("Description: %s\n", r.card.Description)
		}
		fmt.Printf("URL:         %s\n", r.card.URL)
		fmt.Printf("Version:     %s\n", r.card.Version)
		if len(r.card.Skills) > 0 {
			fmt.Println("Skills:")
			for _, s := range r.card.Skills {
				fmt.Printf("  - %s (%s)\n", s.Name, s.ID)
			}
		}
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "URL\tNAME\tVERSION\tSKILLS\tERROR")
	for _, r := range results {
		if r.err != nil {
			fmt.Fprintf(w, "%s\t\t\t\t%s\n", r.url, r.err.Error())
		} else {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t\n",
				r.url, r.card.Name, r.card.Version, len(r.card.Skills))
		}
	}
	return w.Flush()
}

// ── list ─────────────────────────────────────────────────────────────────────

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List discovered agents, discovering configured ones first",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := buildClient(zap.NewNop())
		if err != nil {
			return err
		}

		// Unreachable configured agents are reported but do not abort.
		if err := c.DiscoverKnownAgents(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		}

		agents := c.ListDiscoveredAgents()
		if len(agents) == 0 {
			fmt.Println("No agents discovered. Add agents to the config or run 'a2a discover <url>'.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "URL\tNAME\tVERSION\tSTREAMING\tPUSH")
		for _, a := range agents {
			fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%v\n",
				a.URL, a.Card.Name, a.Card.Version,
				a.Card.Capabilities.Streaming, a.Card.Capabilities.PushNotifications)
		}
		return w.Flush()
	},
}

// ── send ─────────────────────────────────────────────────────────────────────

var (
	sendNoWait       bool
	sendPollInterval time.Duration
)

var sendCmd = &cobra.Command{
	Use:   "send <url> <message...>",
	Short: "Send a text message to an agent and follow the task to completion",
	Long: `Send submits a message to the agent at the given URL as a task.

The agent is discovered first when not already cached. By default the command
polls until the task reaches a final state and prints the outcome with any
text artifacts. With --no-wait the task id is printed immediately; follow up
with 'a2a task <url> <task-id>'.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runSend,
}

func init() {
	sendCmd.Flags().BoolVar(&sendNoWait, "no-wait", false, "Print the task id and exit without waiting")
	sendCmd.Flags().DurationVar(&sendPollInterval, "poll-interval", 2*time.Second, "How often to poll task state while waiting")
}

func runSend(cmd *cobra.Command, args []string) error {
	url := args[0]
	text := strings.Join(args[1:], " ")
	ctx := context.Background()

	c, err := buildClient(zap.NewNop())
	if err != nil {
		return err
	}

	handle, err := c.SendMessage(ctx, url, text)
	if err != nil {
		return fmt.Errorf("send to %s: %w", url, err)
	}

	// Synchronous agents answer with a message instead of a task.
	if reply := handle.Reply(); reply != nil {
		fmt.Println(reply.Text())
		return nil
	}

	fmt.Printf("Task submitted: %s (%s)\n", handle.ID, handle.State())
	if sendNoWait {
		return nil
	}

	spinner := []string{"|", "/", "-", "\\"}
	spinIdx := 0
	for !handle.Terminal() {
		fmt.Printf("\rWaiting... %s state=%s ", spinner[spinIdx%len(spinner)], handle.State())
		spinIdx++
		time.Sleep(sendPollInterval)
		if err := c.PollTask(ctx, handle); err != nil {
			fmt.Println()
			return fmt.Errorf("poll task %s: %w", handle.ID, err)
		}
		if handle.State() == a2a.TaskStateInputRequired {
			fmt.Println()
			fmt.Println("Agent is waiting for more input. Send a follow-up message to continue.")
			return nil
		}
	}
	fmt.Println()

	fmt.Printf("Task %s: %s\n", handle.ID, handle.State())
	for _, art := range handle.Artifacts() {
		for _, p := range art.Parts {
			if p.Kind == "text" && p.Text != "" {
				fmt.Println()
				fmt.Println(p.Text)
			}
		}
	}
	if handle.State() != a2a.TaskStateCompleted {
		os.Exit(1)
	}
	return nil
}

// ── task ─────────────────────────────────────────────────────────────────────

var taskCmd = &cobra.Command{
	Use:   "task <url> <task-id>",
	Short: "Show the current server-side state of a task",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		url, taskID := args[0], args[1]
		ctx := context.Background()

		c, err := buildClient(zap.NewNop())
		if err != nil {
			return err
		}
		if _, err := c.DiscoverAgent(ctx, url); err != nil {
			return fmt.Errorf("discover %q: %w", url, err)
		}

		task, err := c.GetTask(ctx, url, taskID)
		if err != nil {
			return fmt.Errorf("get task %s: %w", taskID, err)
		}

		out, _ := json.MarshalIndent(task, "", "  ")
		fmt.Println(string(out))
		return nil
	},
}

// ── serve ────────────────────────────────────────────────────────────────────

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the push-notification webhook receiver and agent prober",
	Long: `Serve runs the long-lived side of the engine: the HTTP receiver that
agents deliver task updates to, plus a background prober that watches the
availability of discovered agents. Metrics are exposed on /metrics.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	viper.SetDefault("webhook.listen", ":8089")
	viper.SetDefault("probe.interval", "5m")
	viper.SetDefault("probe.fail_threshold", 3)

	c, err := buildClient(logger)
	if err != nil {
		return err
	}

	if err := c.DiscoverKnownAgents(context.Background()); err != nil {
		logger.Warn("initial discovery incomplete", zap.Error(err))
	}
	logger.Info("discovered agents", zap.Int("count", len(c.ListDiscoveredAgents())))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	prober := health.New(agentLister{c}, health.Config{
		CheckInterval: viper.GetDuration("probe.interval"),
		FailThreshold: viper.GetInt("probe.fail_threshold"),
	}, logger)
	proberStop := make(chan struct{})
	go prober.Start(proberStop)

	router := webhook.NewRouter(c.Notifications(), logger)
	srv := &http.Server{
		Addr:              viper.GetString("webhook.listen"),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("webhook receiver listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen error", zap.Error(err))
		}
	}()

	<-quit
	close(proberStop)
	logger.Info("shutting down webhook receiver...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// agentLister adapts the client registry to the prober's lister interface.
type agentLister struct {
	c *client.Client
}

func (l agentLister) AgentURLs() []string {
	agents := l.c.ListDiscoveredAgents()
	urls := make([]string, len(agents))
	for i, a := range agents {
		urls[i] = a.URL
	}
	return urls
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the a2a CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("a2a %s (AgentLink)\n", version)
	},
}
