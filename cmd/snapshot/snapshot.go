package snapshot

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/audiosessions/internal/conf"
	"github.com/tphakala/audiosessions/internal/errors"
	"github.com/tphakala/audiosessions/internal/service"
	"github.com/tphakala/audiosessions/internal/sessions"
)

// Command creates the snapshot command. It attaches the configured devices,
// waits for the initial enumeration to settle and prints the session trees.
func Command(settings *conf.Settings) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "snapshot [device-id]",
		Short: "Print the session tree of configured devices",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// one-shot: no listeners, no broker
			local := *settings
			local.API.Enabled = false
			local.MQTT.Enabled = false

			s, err := service.New(&local)
			if err != nil {
				return err
			}
			defer s.Shutdown()

			ctx := cmd.Context()
			if err := s.Start(ctx); err != nil {
				return err
			}
			if err := s.Queue().Flush(ctx); err != nil {
				return err
			}

			var snaps []sessions.DeviceSnapshot
			if len(args) == 1 {
				snap, err := s.Manager().Snapshot(ctx, args[0])
				if err != nil {
					return err
				}
				snaps = append(snaps, snap)
			} else {
				snaps, err = s.Manager().SnapshotAll(ctx)
				if err != nil {
					return err
				}
			}
			return render(cmd.OutOrStdout(), snaps, format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "Output format: yaml or json")
	return cmd
}

func render(w io.Writer, snaps []sessions.DeviceSnapshot, format string) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(snaps)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(snaps)
	default:
		return errors.ValidationError(fmt.Sprintf("unknown output format %q", format))
	}
}
