package cmd

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/recordvault/recordvault/internal/store"
	"github.com/recordvault/recordvault/internal/tui"
	"github.com/spf13/cobra"
)

var tuiEngine string

var tuiCmd = &cobra.Command{
	Use:   "tui [case]",
	Short: "Open the interactive terminal UI",
	Long: `Open an interactive terminal UI for browsing a case.

With a single case in the vault the argument may be omitted. The UI
opens on the conversation list and drills into transcripts; search
accepts the same operators as 'recordvault search'.

Navigation:
  ↑/k, ↓/j       Move up/down
  PgUp/PgDn      Page up/down
  Enter          Open conversation / search hit
  Esc            Go back
  /              Search the case
  g/G            Jump to top/bottom of a transcript
  r              Reload the conversation list
  q              Quit`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !isatty.IsTerminal(os.Stdout.Fd()) {
			return fmt.Errorf("the TUI needs a terminal; use 'recordvault conversations' or 'recordvault search' for scripted output")
		}

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		var c *store.Case
		if len(args) == 1 {
			c, err = resolveCase(s, args[0])
		} else {
			c, err = defaultCase(s)
		}
		if err != nil {
			return err
		}

		engine, err := newEngine(s, tuiEngine)
		if err != nil {
			return err
		}
		defer engine.Close()

		model := tui.New(engine, tui.Options{CaseID: c.ID, CaseName: c.Name, Version: Version})
		p := tea.NewProgram(model, tea.WithAltScreen())

		if _, err := p.Run(); err != nil {
			return fmt.Errorf("run tui: %w", err)
		}
		return nil
	},
}

func init() {
	tuiCmd.Flags().StringVar(&tuiEngine, "engine", "", "query engine: sqlite (default) or duckdb")
	rootCmd.AddCommand(tuiCmd)
}
