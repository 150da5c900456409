package monitor

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tphakala/audiosessions/internal/conf"
	"github.com/tphakala/audiosessions/internal/service"
)

// Command creates the long-running monitor command.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Track audio sessions and serve them over HTTP and MQTT",
		Long: "Attaches every configured device, keeps the per-device session trees " +
			"current and publishes them until interrupted.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return service.Run(ctx, settings)
		},
	}
}
