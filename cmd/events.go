package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/agentbridge/internal/calendar"
	"github.com/crystaldolphin/agentbridge/internal/config"
	"github.com/crystaldolphin/agentbridge/internal/shared/stringutils"
)

var (
	eventsDays  int
	eventsQuery string
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show upcoming events from the calendar store",
	RunE:  runEvents,
}

func init() {
	eventsCmd.Flags().IntVarP(&eventsDays, "days", "d", 7, "How many days ahead to show")
	eventsCmd.Flags().StringVarP(&eventsQuery, "query", "q", "", "Only events matching this text")
}

func runEvents(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openCalendar(cfg)
	if err != nil {
		return err
	}

	now := time.Now().In(store.Location())
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	to := from.AddDate(0, 0, eventsDays)
	occ := store.Search(eventsQuery, &from, &to)
	if len(occ) == 0 {
		fmt.Println("No events.")
		return nil
	}

	fmt.Printf("%-10s %-17s %-8s %-30s %s\n", "ID", "Start", "Length", "Title", "Repeats")
	fmt.Println(repeatStr("-", 88))
	for _, o := range occ {
		repeats := ""
		if o.Recurring {
			repeats = o.Recurrence
		}
		fmt.Printf("%-10s %-17s %-8s %-30s %s\n",
			o.ID, o.Start.Format("2006-01-02 15:04"), o.End.Sub(o.Start).String(), stringutils.Truncate(o.Title, 29), repeats)
	}
	return nil
}

func openCalendar(cfg *config.Config) (*calendar.Store, error) {
	path := cfg.CalendarPath()
	if path == "" {
		return nil, fmt.Errorf("calendar persistence is disabled (tools.calendar.persist)")
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return calendar.NewStore(path, loc), nil
}
