package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nixxel-company-limited/posprint/adapter"
)

func buildDiscoverCommand() *cobra.Command {
	var (
		kinds   []string
		subnet  string
		port    int
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Look for printers on every transport",
		Long: `Scan the local /24 (or --subnet) for raw printing ports, list serial
ports with Bluetooth ones first, and list USB printer-class devices.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var found []adapter.Device
			for _, k := range kinds {
				kind, err := adapter.ParseKind(k)
				if err != nil {
					return err
				}

				var devices []adapter.Device
				switch kind {
				case adapter.KindSocket:
					cidr := subnet
					if cidr == "" {
						if cidr, err = localSubnet(); err != nil {
							return err
						}
					}
					devices, err = adapter.DiscoverSocket(contextOf(cmd), cidr, port, timeout)
				case adapter.KindWireless:
					devices, err = adapter.DiscoverSerialPorts()
				case adapter.KindCable:
					devices, err = adapter.DiscoverUSB()
				}
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s discovery failed: %v\n", kind, err)
					continue
				}
				found = append(found, devices...)
			}
			return writeDevices(cmd.OutOrStdout(), found)
		},
	}

	cmd.Flags().StringSliceVar(&kinds, "kind", []string{"socket", "wireless", "cable"}, "transports to search")
	cmd.Flags().StringVar(&subnet, "subnet", "", "CIDR to scan for socket printers (default: local /24)")
	cmd.Flags().IntVar(&port, "port", adapter.DefaultSocketPort, "raw printing port")
	cmd.Flags().DurationVar(&timeout, "timeout", 500*time.Millisecond, "per-host probe timeout")

	return cmd
}

func localSubnet() (string, error) {
	ip, err := adapter.LocalIPv4()
	if err != nil {
		return "", fmt.Errorf("cannot determine local subnet, pass --subnet: %w", err)
	}
	prefix, err := ip.Prefix(24)
	if err != nil {
		return "", err
	}
	return prefix.String(), nil
}

func writeDevices(w io.Writer, devices []adapter.Device) error {
	if len(devices) == 0 {
		_, err := fmt.Fprintln(w, "no printers found")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tADDRESS\tNAME")
	for _, d := range devices {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", d.Kind, d.Address, d.Name)
	}
	return tw.Flush()
}
