package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/teslashibe/go-ev3way/internal/config"
	"github.com/teslashibe/go-ev3way/pkg/logbook"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		config.Exitf("logbook: %v", err)
	}

	path := flag.String("logbook", cfg.Logbook, "SQLite logbook path")
	mission := flag.String("mission", "", "Show the events of one mission")
	limit := flag.Int("limit", 10, "Missions to list (0 for all)")
	asJSON := flag.Bool("json", false, "Print JSON instead of a table")
	flag.Parse()

	ctx := context.Background()
	store, err := logbook.Open(ctx, *path)
	if err != nil {
		config.Exitf("logbook: %v", err)
	}
	defer store.Close()

	if *mission != "" {
		err = showMission(ctx, store, *mission, *asJSON)
	} else {
		err = listMissions(ctx, store, *limit, *asJSON)
	}
	if err != nil {
		store.Close()
		config.Exitf("logbook: %v", err)
	}
}

func listMissions(ctx context.Context, store *logbook.Store, limit int, asJSON bool) error {
	missions, err := store.ListMissions(ctx, limit)
	if err != nil {
		return err
	}
	if asJSON {
		return json.NewEncoder(os.Stdout).Encode(missions)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MISSION\tSTARTED\tDURATION\tOUTCOME")
	for _, m := range missions {
		duration, outcome := "-", m.Outcome
		if m.Open() {
			outcome = "in flight"
		} else {
			duration = m.EndedAt.Sub(m.StartedAt).Round(time.Millisecond).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.ID, m.StartedAt.Local().Format(time.DateTime), duration, outcome)
	}
	return w.Flush()
}

func showMission(ctx context.Context, store *logbook.Store, id string, asJSON bool) error {
	m, err := store.GetMission(ctx, id)
	if err != nil {
		return err
	}
	events, err := store.ListEvents(ctx, id)
	if err != nil {
		return err
	}
	if asJSON {
		return json.NewEncoder(os.Stdout).Encode(struct {
			Mission logbook.Mission `json:"mission"`
			Events  []logbook.Event `json:"events"`
		}{m, events})
	}

	fmt.Printf("%s  %s\n\n", m.ID, m.Banner)
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "T+\tKIND\tROLE\tDETAIL")
	for _, e := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Time.Sub(m.StartedAt).Round(time.Millisecond), e.Kind, e.Role, e.Detail)
	}
	return w.Flush()
}
