package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bull/coursemap/internal/answer"
	"github.com/bull/coursemap/internal/app"
	"github.com/bull/coursemap/internal/course"
	ghclient "github.com/bull/coursemap/internal/github"
	"github.com/bull/coursemap/internal/indexer"
	"github.com/bull/coursemap/internal/topics"
)

var (
	ingestOrder int
	ingestTitle string

	syncOwner string
	syncRepo  string
	syncPath  string

	detectMethod  string
	detectMinSize int

	askSession int
	askTopK    int
)

func init() {
	ingestCmd.Flags().IntVar(&ingestOrder, "order", 0, "session order (default: number in the file name)")
	ingestCmd.Flags().StringVar(&ingestTitle, "title", "", "session title (default: from the file name)")

	syncCmd.Flags().StringVar(&syncOwner, "owner", "", "GitHub owner (default: github.owner)")
	syncCmd.Flags().StringVar(&syncRepo, "repo", "", "GitHub repository (default: github.repo)")
	syncCmd.Flags().StringVar(&syncPath, "path", "", "directory holding lecture files (default: github.path)")

	detectCmd.Flags().StringVar(&detectMethod, "method", "", "clustering method: density or centroid")
	detectCmd.Flags().IntVar(&detectMinSize, "min-cluster-size", 0, "smallest chunk group that forms a topic")

	askCmd.Flags().IntVar(&askSession, "session", 0, "only use lectures up to this session order")
	askCmd.Flags().IntVar(&askTopK, "top-k", 0, "number of chunks to retrieve")
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <course> <file>...",
	Short: "Ingest lecture files (.md, .pdf, .txt) as sessions",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if ingestOrder != 0 && len(args) > 2 {
			return course.ErrorfInput("--order can only be used with a single file")
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			for _, file := range args[1:] {
				data, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("%w: %w", course.ErrInput, err)
				}
				order := ingestOrder
				if order == 0 {
					n, ok := indexer.ParseSessionOrder(file)
					if !ok {
						return course.ErrorfInput("cannot read a session number from %s; use --order", file)
					}
					order = n
				}
				res, err := a.Pipeline.IngestLecture(ctx, indexer.LectureInput{
					CourseID:     args[0],
					SessionOrder: order,
					Title:        ingestTitle,
					FileName:     filepath.Base(file),
					Data:         data,
				})
				if err != nil {
					return err
				}
				fmt.Printf("Ingested %s as session %d %q (%d chunks, id %s)\n",
					file, res.Session.Order, res.Session.Title, res.Chunks, res.Session.ID)
			}
			return nil
		})
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync <course>",
	Short: "Ingest new lecture files from a GitHub repository directory",
	Long: `Lists lecture files below the configured repository path and ingests
every file whose session number the course does not have yet.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			gh := a.Config.GitHub
			owner, repo, dir := firstNonEmpty(syncOwner, gh.Owner), firstNonEmpty(syncRepo, gh.Repo), firstNonEmpty(syncPath, gh.Path)
			if owner == "" || repo == "" {
				return course.ErrorfInput("github owner and repo are required")
			}
			client, err := ghclient.NewClient(gh.Token)
			if err != nil {
				return fmt.Errorf("failed to create GitHub client: %w", err)
			}

			fmt.Printf("Syncing %s/%s/%s...\n", owner, repo, dir)
			result, err := a.Pipeline.Sync(ctx, args[0], ghclient.NewFetcher(client, owner, repo, dir))
			if result != nil {
				fmt.Println()
				fmt.Printf("  Lectures: %d ingested, %d already present, %d total\n", result.SuccessfulDocs, result.SkippedDocs, result.TotalDocs)
				fmt.Printf("  Chunks: %d\n", result.TotalChunks)
				fmt.Printf("  Duration: %s\n", result.Duration.Round(time.Second))
				fmt.Printf("  Commit: %s\n", result.Revision)
				if len(result.FailedDocs) > 0 {
					fmt.Println()
					fmt.Println("Failed lectures:")
					for _, failed := range result.FailedDocs {
						fmt.Printf("  - %s: %s\n", failed.Path, failed.Reason)
					}
				}
			}
			return err
		})
	},
}

var detectCmd = &cobra.Command{
	Use:   "detect <course>",
	Short: "Rebuild the course topic map",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			res, err := a.Detector.Detect(ctx, args[0], topics.Options{Method: detectMethod, MinClusterSize: detectMinSize})
			if err != nil {
				return err
			}
			fmt.Printf("Detected %d topics and %d prerequisite edges from %d chunks (%d noise, %s, %s)\n",
				len(res.Generation.Topics), len(res.Generation.Edges), res.Chunks, res.Noise, res.Method, res.Duration.Round(time.Millisecond))
			return nil
		})
	},
}

var askCmd = &cobra.Command{
	Use:   "ask <course> <question>...",
	Short: "Answer a question from lecture material",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			req := answer.Request{CourseID: args[0], Question: strings.Join(args[1:], " "), TopK: askTopK}
			if askSession > 0 {
				req.CurrentSessionOrder = &askSession
			}
			ans, err := a.Answers.Answer(ctx, req)
			if err != nil {
				return err
			}
			fmt.Println(ans.Text)
			fmt.Println()
			fmt.Printf("Confidence: %s (top score %.2f, %d chunks)\n", ans.Confidence, ans.TopScore, ans.Retrieved)
			for _, c := range ans.Citations {
				fmt.Printf("  [Source %d] Session %d %q, position %d\n", c.Label, c.SessionOrder, c.SessionTitle, c.Position)
			}
			return nil
		})
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary <course> <topic-id>",
	Short: "Summarize how a topic develops across sessions",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			s, err := a.Answers.SummarizeTopic(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Printf("%s\n\n%s\n", s.TopicName, s.Summary)
			if len(s.KeyPoints) > 0 {
				fmt.Println()
				for _, p := range s.KeyPoints {
					fmt.Printf("  - %s\n", p)
				}
			}
			fmt.Println()
			for _, src := range s.Sources {
				fmt.Printf("  Session %d %q (%d chunks)\n", src.SessionOrder, src.SessionTitle, src.Frequency)
			}
			return nil
		})
	},
}

var topicsCmd = &cobra.Command{
	Use:   "topics <course>",
	Short: "Print the current topic map",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			courseID := course.NormalizeCourseID(args[0])
			gen, err := a.Store.CurrentGeneration(ctx, courseID)
			if err != nil {
				return err
			}
			if len(gen.Topics) == 0 {
				fmt.Printf("No topics for %s yet. Run: coursemap detect %s\n", courseID, courseID)
				return nil
			}
			names := make(map[string]string, len(gen.Topics))
			for _, t := range gen.Topics {
				names[t.ID] = t.Name
			}
			for _, t := range gen.Topics {
				var orders []string
				for _, ap := range gen.Appearances {
					if ap.TopicID == t.ID {
						orders = append(orders, fmt.Sprintf("S%d×%d", ap.SessionOrder, ap.Frequency))
					}
				}
				fmt.Printf("%s  %s\n    %s\n    sessions: %s\n", t.ID, t.Name, t.Description, strings.Join(orders, " "))
			}
			if len(gen.Edges) > 0 {
				fmt.Println()
				fmt.Println("Prerequisites:")
				for _, e := range gen.Edges {
					fmt.Printf("  %s -> %s\n", names[e.FromTopicID], names[e.ToTopicID])
				}
			}
			return nil
		})
	},
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions <course>",
	Short: "List the sessions of a course",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			sessions, err := a.Store.ListSessions(ctx, course.NormalizeCourseID(args[0]))
			if err != nil {
				return err
			}
			for _, s := range sessions {
				fmt.Printf("%3d  %-40s  %s\n", s.Order, s.Title, s.ID)
			}
			return nil
		})
	},
}

var deleteSessionCmd = &cobra.Command{
	Use:   "delete-session <course> <session-id>",
	Short: "Delete a session with its chunks and topic appearances",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			s, err := a.Pipeline.RemoveSession(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Printf("Deleted session %d %q. Run detect to refresh the topic map.\n", s.Order, s.Title)
			return nil
		})
	},
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
