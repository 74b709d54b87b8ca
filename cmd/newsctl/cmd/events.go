package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/NewsDiscover/internal/domain"
	"github.com/NewsDiscover/internal/infra/queue"
	"github.com/NewsDiscover/pkg/config"
	"github.com/spf13/cobra"
)

func newEventsCmd(opts *options) *cobra.Command {
	var group string
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Tail the search events topic",
		Long:  "Print search events published by the server until interrupted. Requires KAFKA_BROKERS.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if !cfg.KafkaEnabled() {
				return errors.New("KAFKA_BROKERS is not set")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			consumer := queue.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, group)
			defer func() { _ = consumer.Close() }()

			out := cmd.OutOrStdout()
			return consumer.Start(ctx, func(_ context.Context, event domain.SearchEvent) error {
				if opts.asJSON {
					return printJSON(out, event)
				}
				_, err := fmt.Fprintf(out, "%s session=%s q=%q category=%s page=%d total=%d degraded=%t\n",
					event.OccurredAt.Format("15:04:05"), event.SessionID, event.Keyword,
					event.CategoryID, event.Page, event.TotalCount, event.Degraded)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&group, "group", "", "consumer group id (empty reads from the latest offset)")
	return cmd
}
