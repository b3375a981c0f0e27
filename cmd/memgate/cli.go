package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/sethgregory/memgate/pkg/assembly"
	"github.com/sethgregory/memgate/pkg/config"
	"github.com/sethgregory/memgate/pkg/service"
)

var (
	flagConfig string
	flagUser   string
)

func buildRootCommand() *cobra.Command {
	var showVersion bool

	root := &cobra.Command{
		Use:   "memgate",
		Short: "Per-user long-term memory store with routed recall",
		Long: strings.TrimSpace(`memgate captures conversational memory fragments into per-user
categories and assembles token-budgeted context for new queries.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				printVersion()
				return nil
			}
			_ = cmd.Help()
			return fmt.Errorf("a subcommand is required")
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.Flags().BoolVarP(&showVersion, "version", "v", false, "Show build/version metadata")
	root.PersistentFlags().StringVarP(&flagConfig, "config", "c", defaultConfigPath(), "Path to JSON config file")
	root.PersistentFlags().StringVarP(&flagUser, "user", "u", "default", "User whose memory to operate on")

	root.AddCommand(newRememberCommand())
	root.AddCommand(newRecallCommand())
	root.AddCommand(newRouteCommand())
	root.AddCommand(newStatsCommand())
	root.AddCommand(newReplCommand())
	root.AddCommand(newVersionCommand())

	return root
}

func defaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".memgate", "config.json")
}

func openService() (*service.Service, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return service.New(cfg)
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   "Show build/version metadata",
		Example: "  memgate version",
		RunE: func(cmd *cobra.Command, args []string) error {
			printVersion()
			return nil
		},
	}
}

func newRememberCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "remember <content>",
		Short: "Route content to a memory category and persist it",
		Args:  cobra.MinimumNArgs(1),
		Example: strings.Join([]string{
			"  memgate remember \"my daughter Emma starts school in September\"",
			"  memgate --user alice remember \"I drive a 2019 Outback\"",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openService()
			if err != nil {
				return err
			}
			defer svc.Close()

			content := strings.Join(args, " ")
			f, err := svc.Remember(cmd.Context(), flagUser, content, nil)
			if err != nil {
				return err
			}

			fmt.Printf("✓ Remembered in %s/%s\n", f.Category, f.Subcategory)
			fmt.Printf("  ID: %s\n", f.ID)
			fmt.Printf("  Tokens: %s\n", humanize.Comma(int64(f.TokenCount)))
			fmt.Printf("  Relevance: %.3f\n", f.RelevanceScore)
			return nil
		},
	}
}

func newRecallCommand() *cobra.Command {
	var budget int

	cmd := &cobra.Command{
		Use:   "recall <query>",
		Short: "Assemble token-budgeted memory context for a query",
		Args:  cobra.MinimumNArgs(1),
		Example: strings.Join([]string{
			"  memgate recall \"what car do I drive?\"",
			"  memgate recall --budget 2000 \"tell me about my family\"",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openService()
			if err != nil {
				return err
			}
			defer svc.Close()

			res := svc.Recall(cmd.Context(), flagUser, strings.Join(args, " "), budget)
			printRecallResult(res)
			return nil
		},
	}

	cmd.Flags().IntVarP(&budget, "budget", "b", 0, "Token budget (0 uses the configured default)")
	return cmd
}

func printRecallResult(res assembly.Result) {
	fmt.Printf("Routed to %s", res.Routing.PrimaryCategory)
	if res.Routing.Subcategory != "" {
		fmt.Printf("/%s", res.Routing.Subcategory)
	}
	fmt.Printf(" (confidence %s, status %s)\n", res.Routing.ConfidenceString(), res.Status)

	if len(res.Fragments) == 0 {
		fmt.Println("No memories matched.")
		return
	}

	fmt.Printf("\n%d fragments, %s tokens, categories: %s\n\n",
		len(res.Fragments),
		humanize.Comma(int64(res.TotalTokens)),
		strings.Join(res.CategoriesUsed, ", "))

	for i, f := range res.Fragments {
		marker := ""
		if f.Truncated {
			marker = " [truncated]"
		}
		fmt.Printf("%2d. [%.2f] %s/%s (%s, %s tok)%s\n", i+1,
			f.Score, f.Category, f.Subcategory,
			humanize.Time(f.CreatedAt),
			humanize.Comma(int64(f.TokenCount)), marker)
		fmt.Printf("    %s\n", f.Content)
	}
}

func newRouteCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "route <text>",
		Short:   "Classify text without storing anything",
		Args:    cobra.MinimumNArgs(1),
		Example: "  memgate route \"my chest hurts, should I worry?\"",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openService()
			if err != nil {
				return err
			}
			defer svc.Close()

			res := svc.Route(flagUser, strings.Join(args, " "))
			fmt.Printf("Category:    %s\n", res.PrimaryCategory)
			fmt.Printf("Subcategory: %s\n", res.Subcategory)
			fmt.Printf("Confidence:  %s\n", res.ConfidenceString())
			if res.AlternativeCategory != "" {
				fmt.Printf("Alternative: %s\n", res.AlternativeCategory)
			}
			fmt.Printf("Reasoning:   %s\n", res.Reasoning)
			return nil
		},
	}
}

func newStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "stats",
		Short:   "Show per-category token usage for a user",
		Example: "  memgate --user alice stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openService()
			if err != nil {
				return err
			}
			defer svc.Close()

			states, err := svc.CategoryStats(cmd.Context(), flagUser)
			if err != nil {
				return err
			}
			if len(states) == 0 {
				fmt.Printf("No memory stored for user %q yet.\n", flagUser)
				return nil
			}

			fmt.Printf("Memory usage for %s (store: %s)\n\n", flagUser, svc.Provider())
			for _, cs := range states {
				name := cs.Name
				if cs.IsDynamic && cs.Focus != "" {
					name = fmt.Sprintf("%s (%s)", cs.Name, cs.Focus)
				}
				pct := 0.0
				if cs.MaxTokens > 0 {
					pct = float64(cs.CurrentTokens) / float64(cs.MaxTokens) * 100
				}
				fmt.Printf("  %-28s %8s / %s tokens (%.1f%%), last used %s\n",
					name,
					humanize.Comma(int64(cs.CurrentTokens)),
					humanize.Comma(int64(cs.MaxTokens)),
					pct,
					humanize.Time(cs.LastAccessedAt))
			}
			return nil
		},
	}
}

func newReplCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Interactive session: store lines, recall with /recall",
		Long: strings.TrimSpace(`Start an interactive memory session. Plain lines are remembered;
slash commands query the store:

  /recall <query>   assemble context for a query
  /route <text>     classify without storing
  /stats            show category usage
  exit, quit        leave the session`),
		Example: "  memgate --user alice repl",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openService()
			if err != nil {
				return err
			}
			defer svc.Close()

			fmt.Printf("%s interactive mode, user %q (Ctrl+C to exit)\n\n", appName, flagUser)
			return replLoop(svc)
		},
	}
}

func replLoop(svc *service.Service) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          fmt.Sprintf("%s> ", appName),
		HistoryFile:     filepath.Join(os.TempDir(), ".memgate_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("initializing readline: %w", err)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				fmt.Println("\nGoodbye!")
				return nil
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			fmt.Println("Goodbye!")
			return nil
		}

		replDispatch(svc, input)
	}
}

func replDispatch(svc *service.Service, input string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch {
	case strings.HasPrefix(input, "/recall "):
		res := svc.Recall(ctx, flagUser, strings.TrimPrefix(input, "/recall "), 0)
		printRecallResult(res)
		fmt.Println()

	case strings.HasPrefix(input, "/route "):
		res := svc.Route(flagUser, strings.TrimPrefix(input, "/route "))
		fmt.Printf("%s/%s (confidence %s)\n\n", res.PrimaryCategory, res.Subcategory, res.ConfidenceString())

	case input == "/stats":
		states, err := svc.CategoryStats(ctx, flagUser)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		for _, cs := range states {
			fmt.Printf("  %-28s %s / %s tokens\n", cs.Name,
				humanize.Comma(int64(cs.CurrentTokens)),
				humanize.Comma(int64(cs.MaxTokens)))
		}
		fmt.Println()

	case strings.HasPrefix(input, "/"):
		fmt.Println("Unknown command. Try /recall, /route or /stats.")

	default:
		f, err := svc.Remember(ctx, flagUser, input, nil)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		fmt.Printf("✓ %s/%s (%s tokens)\n\n", f.Category, f.Subcategory, humanize.Comma(int64(f.TokenCount)))
	}
}
