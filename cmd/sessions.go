package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/agentbridge/internal/session"
	"github.com/crystaldolphin/agentbridge/internal/shared/stringutils"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect the session index",
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsRemoveCmd)
}

func openSessions() (*session.Index, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	path := cfg.SessionsPath()
	if path == "" {
		return nil, fmt.Errorf("session persistence is disabled (sessions.persist)")
	}
	return session.NewIndex(path), nil
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known threads, most recent first",
	RunE: func(_ *cobra.Command, _ []string) error {
		idx, err := openSessions()
		if err != nil {
			return err
		}
		list := idx.List()
		if len(list) == 0 {
			fmt.Println("No sessions.")
			return nil
		}
		fmt.Printf("%-38s %-30s %-17s\n", "Thread", "Title", "Updated")
		fmt.Println(repeatStr("-", 87))
		for _, s := range list {
			fmt.Printf("%-38s %-30s %-17s\n", s.ThreadID, stringutils.Truncate(s.Title, 29), s.UpdatedAt.Local().Format("2006-01-02 15:04"))
		}
		return nil
	},
}

var sessionsRemoveCmd = &cobra.Command{
	Use:   "remove <threadId>",
	Short: "Forget a thread",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		idx, err := openSessions()
		if err != nil {
			return err
		}
		if !idx.Remove(args[0]) {
			return fmt.Errorf("no session %q", args[0])
		}
		fmt.Printf("✓ Removed session %s\n", args[0])
		return nil
	},
}
