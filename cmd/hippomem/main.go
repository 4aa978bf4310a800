// Command hippomem is a CLI front-end over the hippomem engine: ingest
// notes, search them, and run or inspect background maintenance.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/hippomem/hippomem/pkg/store"
	hippomem "github.com/hippomem/hippomem"
)

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedEdgeTypeKeys(m map[store.EdgeType]int) []store.EdgeType {
	keys := make([]store.EdgeType, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

var (
	dbPath  string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "hippomem",
	Short: "CLI for the hippomem long-term memory store",
	Long:  `A command-line interface for ingesting, searching, and maintaining a hippomem note graph.`,
}

func openEngine(ctx context.Context) (*hippomem.Engine, error) {
	cfg := hippomem.ConfigFromEnv()
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	return hippomem.Open(ctx, cfg)
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <content>",
	Short: "Add a new note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		e, err := openEngine(ctx)
		if err != nil {
			return fmt.Errorf("open engine: %w", err)
		}
		defer e.Close()

		category, _ := cmd.Flags().GetString("category")
		importance, _ := cmd.Flags().GetString("importance")
		force, _ := cmd.Flags().GetBool("force")
		outputJSON, _ := cmd.Flags().GetBool("json")

		res, err := e.AddNote(ctx, args[0], hippomem.AddNoteOptions{
			Category:   category,
			Importance: store.Importance(importance),
			Force:      force,
		})
		if err != nil {
			if dupErr, ok := err.(*store.DuplicateError); ok {
				return fmt.Errorf("duplicate of note %d (similarity %.3f); pass --force to add anyway", dupErr.ExistingID, dupErr.Similarity)
			}
			return fmt.Errorf("add note: %w", err)
		}

		if outputJSON {
			return json.NewEncoder(os.Stdout).Encode(res)
		}
		fmt.Printf("added note %d (%d entity links, %d semantic links)\n", res.NodeID, res.EntityLinks, res.SemanticLinks)
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search notes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		e, err := openEngine(ctx)
		if err != nil {
			return fmt.Errorf("open engine: %w", err)
		}
		defer e.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		category, _ := cmd.Flags().GetString("category")
		detail, _ := cmd.Flags().GetString("detail")
		rerank, _ := cmd.Flags().GetBool("rerank")
		outputJSON, _ := cmd.Flags().GetBool("json")

		results, meta, err := e.Search(ctx, args[0], hippomem.SearchOptions{
			Limit:          limit,
			CategoryFilter: category,
			DetailMode:     detail,
			RerankEnabled:  rerank,
		})
		if err != nil {
			return fmt.Errorf("search: %w", err)
		}

		if outputJSON {
			return json.NewEncoder(os.Stdout).Encode(map[string]any{"results": results, "meta": meta})
		}
		for i, r := range results {
			fmt.Printf("%d. [%d] score=%.4f %s\n", i+1, r.NodeID, r.Score, r.FirstLine)
		}
		fmt.Printf("activated %d nodes in %.1fms\n", meta.TotalActivated, meta.LatencyMS)
		return nil
	},
}

var sleepCmd = &cobra.Command{
	Use:   "sleep",
	Short: "Run one sleep-compute maintenance cycle",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		e, err := openEngine(ctx)
		if err != nil {
			return fmt.Errorf("open engine: %w", err)
		}
		defer e.Close()

		outputJSON, _ := cmd.Flags().GetBool("json")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		report, err := e.SleepCompute(ctx, dryRun)
		if outputJSON {
			return json.NewEncoder(os.Stdout).Encode(report)
		}
		for _, step := range report.Steps {
			status := "ok"
			if step.Err != nil {
				status = step.Err.Error()
			}
			fmt.Printf("%-16s %s\n", step.Name, status)
		}
		if report.SnapshotPath != "" {
			fmt.Printf("snapshot: %s\n", report.SnapshotPath)
		}
		return err
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		e, err := openEngine(ctx)
		if err != nil {
			return fmt.Errorf("open engine: %w", err)
		}
		defer e.Close()

		outputJSON, _ := cmd.Flags().GetBool("json")

		stats, err := e.Stats(ctx)
		if err != nil {
			return fmt.Errorf("stats: %w", err)
		}
		if outputJSON {
			return json.NewEncoder(os.Stdout).Encode(stats)
		}
		fmt.Printf("notes:    %s\n", humanize.Comma(int64(stats.NoteCount)))
		fmt.Printf("edges:    %s\n", humanize.Comma(int64(stats.EdgeCount)))
		fmt.Printf("entities: %s\n", humanize.Comma(int64(stats.EntityCount)))
		fmt.Printf("communities: %d\n", stats.Communities)
		if len(stats.NodesByCategory) > 0 {
			fmt.Println("notes by category:")
			for _, cat := range sortedKeys(stats.NodesByCategory) {
				fmt.Printf("  %-20s %s\n", cat, humanize.Comma(int64(stats.NodesByCategory[cat])))
			}
		}
		if len(stats.EdgesByType) > 0 {
			fmt.Println("edges by type:")
			for _, typ := range sortedEdgeTypeKeys(stats.EdgesByType) {
				fmt.Printf("  %-20s %s\n", typ, humanize.Comma(int64(stats.EdgesByType[typ])))
			}
		}
		if len(stats.TopPageRank) > 0 {
			fmt.Println("top pagerank:")
			for _, ns := range stats.TopPageRank {
				fmt.Printf("  #%d %.4f\n", ns.NodeID, ns.Score)
			}
		}
		if !stats.LastSleepAt.IsZero() {
			fmt.Printf("last sleep: %s\n", humanize.Time(stats.LastSleepAt))
		}
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <note-id>",
	Short: "Show a note's prior versions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		e, err := openEngine(ctx)
		if err != nil {
			return fmt.Errorf("open engine: %w", err)
		}
		defer e.Close()

		var id int64
		if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil {
			return fmt.Errorf("invalid note id: %w", err)
		}
		limit, _ := cmd.Flags().GetInt("limit")
		outputJSON, _ := cmd.Flags().GetBool("json")

		versions, err := e.History(ctx, id, limit)
		if err != nil {
			return fmt.Errorf("history: %w", err)
		}
		if outputJSON {
			return json.NewEncoder(os.Stdout).Encode(versions)
		}
		for _, v := range versions {
			fmt.Printf("v%d  %s  %s\n", v.VersionNumber, v.CreatedAt.Format(time.RFC3339), v.Content)
		}
		return nil
	},
}

var searchStatsCmd = &cobra.Command{
	Use:   "search-stats",
	Short: "Summarize recent search performance",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		e, err := openEngine(ctx)
		if err != nil {
			return fmt.Errorf("open engine: %w", err)
		}
		defer e.Close()

		hours, _ := cmd.Flags().GetInt("hours")
		outputJSON, _ := cmd.Flags().GetBool("json")

		stats, err := e.SearchStats(ctx, hours)
		if err != nil {
			return fmt.Errorf("search-stats: %w", err)
		}
		if outputJSON {
			return json.NewEncoder(os.Stdout).Encode(stats)
		}
		fmt.Printf("searches (window):   %s\n", humanize.Comma(int64(stats.TotalSearchesWindow)))
		fmt.Printf("searches (all-time): %s\n", humanize.Comma(int64(stats.TotalSearchesAllTime)))
		fmt.Printf("zero-result (window): %d\n", stats.ZeroResultsWindow)
		fmt.Printf("latency p50/p95/p99/max (ms): %.1f / %.1f / %.1f / %.1f\n", stats.LatencyP50, stats.LatencyP95, stats.LatencyP99, stats.LatencyMax)
		fmt.Printf("avg top1 score: %.4f, avg result count: %.1f\n", stats.AvgTop1Score, stats.AvgResultsCount)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database file path (overrides DB_PATH)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	ingestCmd.Flags().String("category", "", "Note category")
	ingestCmd.Flags().String("importance", "normal", "Note importance (critical/normal/low)")
	ingestCmd.Flags().Bool("force", false, "Add even if a near-duplicate exists")
	ingestCmd.Flags().Bool("json", false, "Output as JSON")

	searchCmd.Flags().Int("limit", 5, "Number of results")
	searchCmd.Flags().String("category", "", "Restrict to one category")
	searchCmd.Flags().String("detail", "brief", "Result detail mode (brief/full)")
	searchCmd.Flags().Bool("rerank", false, "Enable cross-encoder reranking")
	searchCmd.Flags().Bool("json", false, "Output as JSON")

	sleepCmd.Flags().Bool("json", false, "Output as JSON")
	sleepCmd.Flags().Bool("dry-run", false, "Report what would change without writing")
	statsCmd.Flags().Bool("json", false, "Output as JSON")

	historyCmd.Flags().Int("limit", 5, "Number of versions")
	historyCmd.Flags().Bool("json", false, "Output as JSON")

	searchStatsCmd.Flags().Int("hours", 24, "Window size in hours")
	searchStatsCmd.Flags().Bool("json", false, "Output as JSON")

	rootCmd.AddCommand(ingestCmd, searchCmd, sleepCmd, statsCmd, historyCmd, searchStatsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
