package devices

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/audiosessions/internal/conf"
	"github.com/tphakala/audiosessions/internal/devices"
	"github.com/tphakala/audiosessions/internal/errors"
	"github.com/tphakala/audiosessions/internal/logger"
)

// Command creates the devices command, which lists platform endpoints.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		kind       string
		format     string
		configured bool
	)

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List audio endpoints",
		Long: "Lists the playback and capture endpoints reported by the platform audio " +
			"stack. With --configured the devices from the config file are listed instead.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var enum devices.Enumerator = devices.NewMalgoEnumerator()
			if configured {
				enum = configuredEndpoints(settings)
			}

			endpoints, err := enum.Endpoints(cmd.Context())
			if err != nil {
				logger.Global().Module("devices").Warn("platform enumeration failed, listing configured devices",
					logger.Error(err))
				endpoints, err = configuredEndpoints(settings).Endpoints(cmd.Context())
				if err != nil {
					return err
				}
			}

			filtered, err := filterKind(endpoints, kind)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), filtered, format)
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "Only list endpoints of this kind (playback or capture)")
	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format: table, json or yaml")
	cmd.Flags().BoolVar(&configured, "configured", false, "List configured devices instead of platform endpoints")

	return cmd
}

func configuredEndpoints(settings *conf.Settings) devices.StaticEnumerator {
	endpoints := make(devices.StaticEnumerator, 0, len(settings.Devices))
	for i, d := range settings.Devices {
		endpoints = append(endpoints, devices.Endpoint{
			ID:      d.ID,
			Name:    d.Name,
			Kind:    devices.KindPlayback,
			Default: i == 0,
		})
	}
	return endpoints
}

func filterKind(endpoints []devices.Endpoint, kind string) ([]devices.Endpoint, error) {
	switch devices.Kind(kind) {
	case "":
		return endpoints, nil
	case devices.KindPlayback, devices.KindCapture:
	default:
		return nil, errors.ValidationError(fmt.Sprintf("unknown endpoint kind %q", kind))
	}

	var out []devices.Endpoint
	for _, e := range endpoints {
		if e.Kind == devices.Kind(kind) {
			out = append(out, e)
		}
	}
	return out, nil
}

func render(w io.Writer, endpoints []devices.Endpoint, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(endpoints)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(endpoints)
	case "table":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "KIND\tDEFAULT\tNAME\tID")
		for _, e := range endpoints {
			def := ""
			if e.Default {
				def = "*"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Kind, def, e.Name, e.ID)
		}
		return tw.Flush()
	default:
		return errors.ValidationError(fmt.Sprintf("unknown output format %q", format))
	}
}
