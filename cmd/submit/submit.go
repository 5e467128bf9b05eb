// Package submit implements the submit command, a small client that posts
// a time entry through the retrying transport and reports its tracking id.
package submit

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/monosense-io/synergyflow/internal/apiclient"
	"github.com/monosense-io/synergyflow/internal/conf"
	"github.com/monosense-io/synergyflow/internal/events"
	"github.com/monosense-io/synergyflow/internal/timetray"
)

// Command returns the submit subcommand.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		userID      string
		minutes     int
		description string
		targets     []string
		token       string
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a time entry to the intake server",
		Long: "Submit a time entry. Targets are given as TYPE:ID pairs " +
			"(for example incident:INC-42); when omitted they are inferred " +
			"from references like \"incident #42\" in the description.",
		RunE: func(cmd *cobra.Command, args []string) error {
			refs, err := parseTargets(targets)
			if err != nil {
				return err
			}

			cfg := apiclient.DefaultConfig()
			cfg.BaseURL = settings.Client.BaseURL
			cfg.Retries = settings.Client.Retries
			cfg.RetryDelayBase = settings.Client.RetryDelayBase
			cfg.DefaultTimeout = settings.Client.Timeout
			client := apiclient.New(&cfg)
			defer client.Close()
			if token != "" {
				client.SetAuthToken(token)
			}

			tracker := timetray.NewTracker()
			submitter := timetray.NewSubmitter(client, tracker)

			entry, err := submitter.Submit(cmd.Context(), timetray.SubmitInput{
				UserID:          userID,
				DurationMinutes: minutes,
				Description:     description,
				Targets:         refs,
			})
			if err != nil {
				return err
			}

			fmt.Printf("accepted: entry %s tracking %s\n", entry.ID, entry.TrackingID)
			for _, target := range entry.Targets {
				fmt.Printf("  mirroring to %s %s\n", target.Type, target.EntityID)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "User id the entry belongs to")
	cmd.Flags().IntVarP(&minutes, "minutes", "m", 0, "Duration in minutes")
	cmd.Flags().StringVar(&description, "description", "", "What the time was spent on")
	cmd.Flags().StringArrayVarP(&targets, "target", "t", nil, "Mirroring target as TYPE:ID (repeatable)")
	cmd.Flags().StringVar(&token, "token", "", "Bearer token for authenticated servers")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("minutes")
	_ = cmd.MarkFlagRequired("description")

	return cmd
}

func parseTargets(raw []string) ([]events.TargetRef, error) {
	refs := make([]events.TargetRef, 0, len(raw))
	for _, pair := range raw {
		entityType, entityID, found := strings.Cut(pair, ":")
		if !found || entityID == "" {
			return nil, fmt.Errorf("invalid target %q, expected TYPE:ID", pair)
		}
		ref := events.TargetRef{
			Type:     events.EntityType(strings.ToUpper(entityType)),
			EntityID: entityID,
		}
		if !ref.Type.Valid() {
			return nil, fmt.Errorf("invalid target type %q, expected incident, task or project", entityType)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}
