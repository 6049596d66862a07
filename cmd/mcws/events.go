package main

import (
	"fmt"
	"sort"

	"github.com/lightforgemedia/go-mcws/pkg/events"
	natsrelay "github.com/lightforgemedia/go-mcws/pkg/relay/nats"
	"github.com/spf13/cobra"
)

func eventsCmd() *cobra.Command {
	var (
		sorted   bool
		subjects bool
		prefix   string
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List the event names the game is known to send",
		RunE: func(cmd *cobra.Command, args []string) error {
			names := append([]string(nil), events.Known...)
			if sorted {
				sort.Strings(names)
			}
			out := cmd.OutOrStdout()
			for _, name := range names {
				if subjects {
					fmt.Fprintf(out, "%-32s %s\n", name, natsrelay.EventSubject(prefix, name))
					continue
				}
				fmt.Fprintln(out, name)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&sorted, "sort", false, "sort names alphabetically")
	cmd.Flags().BoolVar(&subjects, "subjects", false, "also print the NATS subject each event is relayed on")
	cmd.Flags().StringVar(&prefix, "prefix", natsrelay.DefaultSubjectPrefix, "NATS subject prefix used with --subjects")
	return cmd
}
