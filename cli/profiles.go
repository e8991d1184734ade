package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nixxel-company-limited/posprint/adapter"
	"github.com/nixxel-company-limited/posprint/profile"
	"github.com/nixxel-company-limited/posprint/receipt"
)

func buildProfilesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "Manage saved printers",
	}
	cmd.AddCommand(buildProfilesListCommand())
	cmd.AddCommand(buildProfilesAddCommand())
	cmd.AddCommand(buildProfilesRemoveCommand())
	cmd.AddCommand(buildProfilesDefaultCommand())
	return cmd
}

func buildProfilesListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved printers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnvironment(contextOf(cmd))
			if err != nil {
				return err
			}
			defer env.close()

			profiles, err := env.store.List(contextOf(cmd))
			if err != nil {
				return err
			}
			return writeProfiles(cmd.OutOrStdout(), profiles)
		},
	}
}

func writeProfiles(w io.Writer, profiles []profile.Profile) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tKIND\tADDRESS\tPAPER\tDEFAULT\tLAST CONNECTED")
	for _, p := range profiles {
		last := "-"
		if p.LastConnectedAt != nil {
			last = p.LastConnectedAt.Local().Format(time.DateTime)
		}
		def := ""
		if p.IsDefault {
			def = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", p.ID, p.Name, p.Kind, p.Address, p.PaperWidth, def, last)
	}
	return tw.Flush()
}

func buildProfilesAddCommand() *cobra.Command {
	var (
		name      string
		kind      string
		address   string
		width     string
		isDefault bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Save a printer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := adapter.ParseKind(kind)
			if err != nil {
				return err
			}
			w, err := receipt.ParsePaperWidth(width)
			if err != nil {
				return err
			}

			env, err := loadEnvironment(contextOf(cmd))
			if err != nil {
				return err
			}
			defer env.close()

			p := profile.New(name, k, address, w)
			p.IsDefault = isDefault
			if err := env.store.Save(contextOf(cmd), p); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), p.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&kind, "kind", "", "wireless, cable or socket")
	cmd.Flags().StringVar(&address, "address", "", "serial port, vid:pid[:serial] or host[:port]")
	cmd.Flags().StringVar(&width, "width", "58mm", "paper width: 58mm or 80mm")
	cmd.Flags().BoolVar(&isDefault, "default", false, "make this the default printer")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("kind")

	return cmd
}

func buildProfilesRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Delete a saved printer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnvironment(contextOf(cmd))
			if err != nil {
				return err
			}
			defer env.close()
			return env.store.Delete(contextOf(cmd), args[0])
		},
	}
}

func buildProfilesDefaultCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "default <id>",
		Short: "Make a saved printer the default",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnvironment(contextOf(cmd))
			if err != nil {
				return err
			}
			defer env.close()
			return env.store.SetDefault(contextOf(cmd), args[0])
		},
	}
}
