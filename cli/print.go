package cli

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nixxel-company-limited/posprint/adapter"
	"github.com/nixxel-company-limited/posprint/config"
	"github.com/nixxel-company-limited/posprint/encoder"
	"github.com/nixxel-company-limited/posprint/orchestrator"
	"github.com/nixxel-company-limited/posprint/profile"
	"github.com/nixxel-company-limited/posprint/receipt"
)

// readDocument decodes the JSON document in path ("-" for stdin).
func readDocument(in io.Reader, path, jobType string) (receipt.JobType, receipt.Document, error) {
	t, err := receipt.ParseJobType(jobType)
	if err != nil {
		return "", nil, err
	}

	var raw []byte
	if path == "-" {
		raw, err = io.ReadAll(in)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return "", nil, fmt.Errorf("failed to read document: %w", err)
	}

	doc, err := receipt.Decode(t, raw)
	if err != nil {
		return "", nil, err
	}
	return t, doc, nil
}

func buildPrintCommand() *cobra.Command {
	var (
		jobType   string
		file      string
		profileID string
		kind      string
		address   string
		width     string
		timeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "print",
		Short: "Print a document and wait for the printer",
		Long: `Print a JSON document on a saved profile (--profile), an ad-hoc
printer (--kind/--address/--width) or the preferred profile.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, doc, err := readDocument(cmd.InOrStdin(), file, jobType)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(contextOf(cmd), timeout)
			defer cancel()

			env, err := loadEnvironment(ctx)
			if err != nil {
				return err
			}
			defer env.close()

			orch := orchestrator.New(env.cfg.Orchestrator(), env.cfg.Adapters(env.log), env.store,
				orchestrator.WithLogger(env.log))
			defer orch.Close()

			if err := connectFor(ctx, orch, env.store, profileID, kind, address, width); err != nil {
				return err
			}

			id, err := orch.Submit(t, doc)
			if err != nil {
				return err
			}
			env.log.Debug("waiting for job", zap.String("job_id", id))
			if err := orch.Await(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "printed %s job %s\n", t, id)
			return nil
		},
	}

	cmd.Flags().StringVarP(&jobType, "type", "t", "", "job type: INVOICE, KOT, BARCODE or BARCODE_LABEL")
	cmd.Flags().StringVarP(&file, "file", "f", "-", "document JSON file, - for stdin")
	cmd.Flags().StringVar(&profileID, "profile", "", "saved profile id")
	cmd.Flags().StringVar(&kind, "kind", "", "ad-hoc printer kind: wireless, cable or socket")
	cmd.Flags().StringVar(&address, "address", "", "ad-hoc printer address")
	cmd.Flags().StringVar(&width, "width", "58mm", "ad-hoc paper width: 58mm or 80mm")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "how long to wait for the job")
	_ = cmd.MarkFlagRequired("type")

	return cmd
}

// connectFor picks the printer for a one-shot print. An ad-hoc printer
// reuses a saved profile with the same kind and address when there is one.
func connectFor(ctx context.Context, orch *orchestrator.Orchestrator, store profile.Store, id, kind, address, width string) error {
	switch {
	case id != "":
		p, err := store.Get(ctx, id)
		if err != nil {
			return err
		}
		return orch.Connect(ctx, p)

	case kind != "":
		p, err := adHocProfile(ctx, store, kind, address, width)
		if err != nil {
			return err
		}
		return orch.Connect(ctx, p)
	}
	return orch.ConnectPreferred(ctx)
}

func adHocProfile(ctx context.Context, store profile.Store, kind, address, width string) (profile.Profile, error) {
	k, err := adapter.ParseKind(kind)
	if err != nil {
		return profile.Profile{}, err
	}
	w, err := receipt.ParsePaperWidth(width)
	if err != nil {
		return profile.Profile{}, err
	}

	saved, ok, err := profile.Match(ctx, store, k, address)
	if err != nil {
		return profile.Profile{}, err
	}
	if ok {
		saved.PaperWidth = w
		return saved, nil
	}
	return profile.New(fmt.Sprintf("%s %s", k, address), k, address, w), nil
}

func buildRenderCommand() *cobra.Command {
	var (
		jobType string
		file    string
		width   string
		format  string
		output  string
	)

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Encode a document without printing it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, doc, err := readDocument(cmd.InOrStdin(), file, jobType)
			if err != nil {
				return err
			}
			w, err := receipt.ParsePaperWidth(width)
			if err != nil {
				return err
			}

			// same layout settings the server prints with
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			data, err := encoder.New(w, cfg.Orchestrator().EncoderOptions...).Encode(t, doc)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}

			switch format {
			case "raw":
				_, err = out.Write(data)
			case "hex":
				_, err = io.WriteString(out, hex.Dump(data))
			default:
				err = fmt.Errorf("unknown format %q, want hex or raw", format)
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&jobType, "type", "t", "", "job type: INVOICE, KOT, BARCODE or BARCODE_LABEL")
	cmd.Flags().StringVarP(&file, "file", "f", "-", "document JSON file, - for stdin")
	cmd.Flags().StringVar(&width, "width", "58mm", "paper width: 58mm or 80mm")
	cmd.Flags().StringVar(&format, "format", "hex", "output format: hex or raw")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to a file instead of stdout")
	_ = cmd.MarkFlagRequired("type")

	return cmd
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
