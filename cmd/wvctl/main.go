// Command wvctl drives the workflow visualizer API from a terminal.
package main

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/andiegogiap/AI-WORKFLOW/domain"
	"github.com/andiegogiap/AI-WORKFLOW/structurer"
)

var Version = "dev"

type boardResponse struct {
	Board    domain.Board    `json:"board"`
	Progress domain.Progress `json:"progress"`
}

type notesResponse struct {
	Notes []domain.Note `json:"notes"`
}

type options struct {
	addr   string
	token  string
	asJSON bool
}

func (o *options) client() *Client {
	return NewClient(o.addr, o.token)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "wvctl",
		Short:         "Command line client for the workflow visualizer",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&opts.addr, "addr", envOr("WVCTL_ADDR", "http://localhost:8080"), "API base URL")
	root.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("WVCTL_TOKEN"), "bearer token")
	root.PersistentFlags().BoolVar(&opts.asJSON, "json", false, "print raw JSON")

	root.AddCommand(visualizeCmd(opts))
	root.AddCommand(boardCmd(opts))
	root.AddCommand(progressCmd(opts))
	root.AddCommand(notesCmd(opts))
	return root
}

func visualizeCmd(opts *options) *cobra.Command {
	var (
		file   string
		sample bool
	)
	cmd := &cobra.Command{
		Use:   "visualize",
		Short: "Structure a plan into a board",
		Long: `Send plan text to the service, which structures it into phases and steps
and replaces the current board. Text comes from --file, --sample or stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readPlan(cmd.InOrStdin(), file, sample)
			if err != nil {
				return err
			}
			var resp boardResponse
			if err := opts.client().PostJSON(cmd.Context(), "/api/board/visualize", map[string]string{"text": text}, &resp); err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts, resp, printBoard)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "read the plan from a file")
	cmd.Flags().BoolVar(&sample, "sample", false, "use the built-in sample plan")
	cmd.MarkFlagsMutuallyExclusive("file", "sample")
	return cmd
}

func boardCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "board",
		Short: "Show the current board",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp boardResponse
			if err := opts.client().GetJSON(cmd.Context(), "/api/board", &resp); err != nil {
				var apiErr *APIError
				if errors.As(err, &apiErr) && apiErr.Status == 404 {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no board loaded")
					return nil
				}
				return err
			}
			return render(cmd.OutOrStdout(), opts, resp, printBoard)
		},
	}
}

func progressCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "progress",
		Short: "Show completion of the current board",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var p domain.Progress
			if err := opts.client().GetJSON(cmd.Context(), "/api/board/progress", &p); err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts, p, func(w io.Writer, p domain.Progress) {
				_, _ = fmt.Fprintf(w, "%d/%d steps done (%d%%)\n", p.CompletedSteps, p.TotalSteps, p.ProgressPercentage)
			})
		},
	}
}

func notesCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notes",
		Short: "Manage saved notes",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List notes, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp notesResponse
			if err := opts.client().GetJSON(cmd.Context(), "/api/notes", &resp); err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts, resp, printNotes)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.client().Delete(cmd.Context(), "/api/notes/"+url.PathEscape(args[0])); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	})
	return cmd
}

func readPlan(stdin io.Reader, file string, sample bool) (string, error) {
	switch {
	case sample:
		return structurer.SamplePlan, nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read plan: %w", err)
		}
		return string(data), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), nil
}

func render[T any](w io.Writer, opts *options, v T, pretty func(io.Writer, T)) error {
	if opts.asJSON {
		data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}
	pretty(w, v)
	return nil
}

func printBoard(w io.Writer, resp boardResponse) {
	for i, phase := range resp.Board.Phases {
		_, _ = fmt.Fprintf(w, "%d. %s\n", i+1, phase.Title)
		for j, st := range phase.Steps {
			done := 0
			for _, t := range st.SubTasks {
				if t.Completed {
					done++
				}
			}
			line := fmt.Sprintf("   %d.%d [%s] %s", i+1, j+1, st.Status, st.Title)
			if st.Agent != "" && st.Agent != domain.DefaultAgent {
				line += " @" + st.Agent
			}
			if len(st.SubTasks) > 0 {
				line += fmt.Sprintf(" (%d/%d sub-tasks)", done, len(st.SubTasks))
			}
			_, _ = fmt.Fprintln(w, line)
		}
	}
	p := resp.Progress
	_, _ = fmt.Fprintf(w, "\n%d/%d steps done (%d%%)\n", p.CompletedSteps, p.TotalSteps, p.ProgressPercentage)
}

func printNotes(w io.Writer, resp notesResponse) {
	if len(resp.Notes) == 0 {
		_, _ = fmt.Fprintln(w, "no notes")
		return
	}
	for _, n := range resp.Notes {
		src := ""
		if n.Source.PhaseTitle != "" || n.Source.StepTitle != "" {
			src = fmt.Sprintf(" (%s / %s)", n.Source.PhaseTitle, n.Source.StepTitle)
		}
		_, _ = fmt.Fprintf(w, "%s  %s  %s%s\n", n.ID, n.CreatedAt.Local().Format("2006-01-02 15:04"), n.Title, src)
		if c := strings.TrimSpace(n.Content); c != "" {
			_, _ = fmt.Fprintf(w, "    %s\n", strings.ReplaceAll(c, "\n", "\n    "))
		}
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

