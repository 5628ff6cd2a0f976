// Command meetsense runs the decision layer from the terminal: it classifies
// a question, computes context layers and the answer-contract chain, and
// prints the result as JSON for the answer generator to consume.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"meetsense/internal/config"
	"meetsense/internal/decision"
	"meetsense/internal/llm"
	"meetsense/internal/logging"
	"meetsense/internal/store"
)

var version = "dev"

var (
	verbose      bool
	threadInput  string
	meetingCount int
)

var rootCmd = &cobra.Command{
	Use:   "meetsense",
	Short: "meetsense - decision layer for the meeting assistant",
	Long: `meetsense resolves a natural-language question to exactly one intent,
a gated set of context layers, and an ordered answer-contract chain.

Deterministic signals (keywords, regexes, known entities) are tried first;
LLM calls are reserved for validation of weak matches and interpretation of
questions nothing else could classify.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Initialize(verbose)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

var decideCmd = &cobra.Command{
	Use:   "decide [question]",
	Short: "Classify a question and print the decision as JSON",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDecide,
}

var entitiesCmd = &cobra.Command{
	Use:   "entities",
	Short: "Show the entity cache contents and expiry",
	RunE:  runEntities,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the meetsense version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("meetsense %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	decideCmd.Flags().StringVar(&threadInput, "thread", "", "prior thread messages, 'user:...|bot:...' separated by |")
	decideCmd.Flags().IntVar(&meetingCount, "meeting-count", 0, "candidate meeting population for the scope check")
	rootCmd.AddCommand(decideCmd, entitiesCmd, versionCmd)
}

func buildClient(cfg *config.Config) llm.Client {
	llmCfg := llm.Config{
		APIKey:     cfg.LLM.APIKey,
		BaseURL:    cfg.LLM.BaseURL,
		Model:      cfg.LLM.Model,
		Timeout:    cfg.LLM.Timeout,
		MaxRetries: 1,
	}
	if cfg.LLM.Provider == "anthropic" {
		return llm.NewAnthropicClientWithConfig(llmCfg)
	}
	return llm.NewChatClientWithConfig(llmCfg)
}

func runDecide(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	question := strings.Join(args, " ")
	thread := parseThread(threadInput)

	entityStore := &store.StaticEntityStore{}
	for _, name := range store.FallbackCompanies() {
		entityStore.Companies = append(entityStore.Companies, store.Company{Name: name})
	}

	orch := decision.New(decision.Deps{
		Client:     buildClient(cfg),
		Entities:   decision.NewEntityCacheFromStore(entityStore, "", decision.WithTTL(cfg.EntityTTL)),
		Counts:     &store.StaticMeetingCounts{Count: meetingCount},
		Thresholds: cfg.Thresholds,
	})

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()

	result := orch.Run(ctx, question, thread)

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

func runEntities(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	entityStore := &store.StaticEntityStore{}
	for _, name := range store.FallbackCompanies() {
		entityStore.Companies = append(entityStore.Companies, store.Company{Name: name})
	}
	cache := decision.NewEntityCacheFromStore(entityStore, "", decision.WithTTL(cfg.EntityTTL))

	names := cache.Names(cmd.Context())
	_, expiry := cache.Snapshot()

	fmt.Printf("%d known entities (cache expires %s):\n", len(names), expiry.Format(time.RFC3339))
	for _, name := range names {
		fmt.Printf("  %s\n", name)
	}
	return nil
}

// parseThread turns "user:hi|bot:hello" into a ThreadContext.
func parseThread(raw string) *decision.ThreadContext {
	if raw == "" {
		return nil
	}
	thread := &decision.ThreadContext{}
	for _, part := range strings.Split(raw, "|") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		msg := decision.Message{Text: part}
		if strings.HasPrefix(part, "bot:") {
			msg = decision.Message{Text: strings.TrimPrefix(part, "bot:"), IsBot: true}
		} else {
			msg.Text = strings.TrimPrefix(part, "user:")
		}
		thread.Messages = append(thread.Messages, msg)
	}
	if len(thread.Messages) == 0 {
		return nil
	}
	return thread
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
