package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/osvaldoandrade/modelhub/internal/prompt"
	"github.com/osvaldoandrade/modelhub/pkg/api"
	"github.com/osvaldoandrade/modelhub/pkg/domain"
	"github.com/osvaldoandrade/modelhub/pkg/form"
	"github.com/osvaldoandrade/modelhub/pkg/present"
	"github.com/osvaldoandrade/modelhub/pkg/workflow"
)

const maxParallelUploads = 4

func modelCmd(g *globals, ui *ui) *cobra.Command {
	model := &cobra.Command{
		Use:   "model",
		Short: "Browse models",
	}

	show := &cobra.Command{
		Use:   "show <model-id>",
		Short: "Show a model and its inputs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := g.app(cmd)
			if err != nil {
				return err
			}
			defer closeApp(application)

			spin := startSpinner("Loading model...")
			m, err := application.Catalog.Model(cmd.Context(), args[0])
			spin.Stop()
			if err != nil {
				return err
			}
			printModel(m, ui)
			return nil
		},
	}

	var search, sortBy string
	list := &cobra.Command{
		Use:   "list",
		Short: "Search the model catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := g.app(cmd)
			if err != nil {
				return err
			}
			defer closeApp(application)

			spin := startSpinner("Searching models...")
			models, err := application.API.ListModels(cmd.Context(), api.ModelQuery{Search: search, Sort: sortBy})
			spin.Stop()
			if err != nil {
				return err
			}
			if len(models) == 0 {
				fmt.Printf("%s No models found\n", ui.info("[INFO]"))
				return nil
			}
			for _, m := range models {
				fmt.Printf("%-26s %-32s %s\n", m.ID, form.Sanitize(m.Name), ui.dim(fmt.Sprintf("%d credits", m.CreditCost)))
			}
			return nil
		},
	}
	list.Flags().StringVar(&search, "search", "", "Search text")
	list.Flags().StringVar(&sortBy, "sort", "", "Sort order (default popularity)")

	model.AddCommand(show, list)
	return model
}

func printModel(m *domain.Model, ui *ui) {
	fmt.Printf("%s %s\n", ui.title("Model:"), form.Sanitize(m.Name))
	fmt.Printf("%s %s\n", ui.title("ID:"), m.ID)
	fmt.Printf("%s %d credits\n", ui.title("Cost:"), m.CreditCost)
	if d := form.Sanitize(m.Description); d != "" {
		fmt.Printf("%s %s\n", ui.title("About:"), d)
	}
	fmt.Println(ui.title("Inputs:"))
	for _, f := range m.RequiredInputs {
		if !f.Type.Known() {
			continue
		}
		req := ""
		if f.Required {
			req = ui.warn(" (required)")
		}
		fmt.Printf("  %-18s %-16s %s%s\n", f.Key, f.Type, form.Label(f), req)
		if h := form.Help(f); h != "" {
			fmt.Printf("  %-18s %-16s %s\n", "", "", ui.dim(h))
		}
		for _, o := range f.Options {
			fmt.Printf("  %-18s %-16s %s\n", "", "", ui.dim("- "+o))
		}
	}
	if len(m.ExampleOutputs) > 0 {
		fmt.Println(ui.title("Examples:"))
		for _, u := range m.ExampleOutputs {
			fmt.Printf("  %s\n", u)
		}
	}
}

func runCmd(g *globals, ui *ui) *cobra.Command {
	var (
		sets     []string
		imageURL string
		download bool
		chain    string
		noPrompt bool
	)
	cmd := &cobra.Command{
		Use:   "run <model-id>",
		Short: "Fill a model's inputs and run it",
		Example: "modelhub run upscaler --set src=./photo.png --set scale=4 --download\n" +
			"modelhub run restyle --image-url https://cdn.modelhub.ai/out.png",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			application, err := g.app(cmd)
			if err != nil {
				return err
			}
			defer closeApp(application)

			out := present.NewTerminal(os.Stdout)
			defer out.Close()

			var wf *workflow.Workflow
			wf = application.NewWorkflow(args[0],
				workflow.WithHandoff(imageURL),
				workflow.WithHooks(workflow.Hooks{
					OnUpdate: func(run domain.JobRun) { out.Render(present.Present(wf.Model(), run)) },
				}),
			)
			spin := startSpinner("Loading model...")
			err = wf.Start(ctx)
			spin.Stop()
			if err != nil {
				return err
			}
			defer wf.Stop()

			m := wf.Model()
			fmt.Printf("%s %s %s\n", ui.title(form.Sanitize(m.Name)), ui.dim("·"), ui.dim(fmt.Sprintf("%d credits", m.CreditCost)))

			if len(sets) > 0 {
				if err := applySets(ctx, wf, sets, ui); err != nil {
					return err
				}
			} else if !noPrompt && term.IsTerminal(int(os.Stdin.Fd())) {
				if err := promptFields(ctx, wf, prompt.New(), ui); err != nil {
					return err
				}
			}

			run, err := wf.Submit(ctx)
			if err != nil {
				return err
			}
			out.Close()

			switch run.State {
			case domain.RunFailed:
				f := present.Present(m, run)
				if f.Details != "" {
					fmt.Fprintln(os.Stderr, ui.dim(f.Details))
				}
				return errors.New(f.Message)
			case domain.RunSucceeded:
				if run.Result == nil {
					return domain.ErrNoResult
				}
			default:
				return fmt.Errorf("run ended in state %s", run.State)
			}

			fmt.Printf("%s Result: %s\n", ui.ok("[OK]"), run.Result.URL)
			if download {
				spin := startSpinner("Downloading...")
				path, err := wf.Download(ctx, application.Config.OutputDir)
				spin.Stop()
				if err != nil {
					return err
				}
				fmt.Printf("%s Saved %s\n", ui.ok("[OK]"), path)
			}
			if chain != "" {
				seed, err := wf.Chain(ctx, chain)
				if err != nil {
					return err
				}
				fmt.Printf("%s Continue with: modelhub run %s --image-url %s\n", ui.info("[INFO]"), chain, seed[workflow.HandoffKey])
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&sets, "set", nil, "Field value as key=value (image values may be local paths)")
	cmd.Flags().StringVar(&imageURL, "image-url", "", "Seed the first image input with this URL")
	cmd.Flags().BoolVar(&download, "download", false, "Save the result as image.jpg in the output directory")
	cmd.Flags().StringVar(&chain, "chain", "", "Prepare a follow-up run of this model seeded with the result")
	cmd.Flags().BoolVar(&noPrompt, "no-prompt", false, "Disable interactive prompts")
	return cmd
}

// applySets parses --set values. Local image paths are uploaded in
// parallel; a failed upload leaves its field unset.
func applySets(ctx context.Context, wf *workflow.Workflow, sets []string, ui *ui) error {
	m := wf.Model()
	type pending struct {
		key  string
		file *domain.LocalFile
	}
	var uploads []pending
	for _, kv := range sets {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("invalid --set %q (expected key=value)", kv)
		}
		k = strings.TrimSpace(k)
		f, ok := m.Field(k)
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrUnknownField, k)
		}
		val, err := form.Parse(f, v)
		if err != nil {
			return err
		}
		if lf, ok := val.(*domain.LocalFile); ok && f.Type == domain.FieldImage {
			uploads = append(uploads, pending{key: k, file: lf})
			continue
		}
		if err := wf.SetField(k, val); err != nil {
			return err
		}
	}
	if len(uploads) == 0 {
		return nil
	}

	spin := startSpinner(fmt.Sprintf("Uploading %d image(s)...", len(uploads)))
	var mu sync.Mutex
	var failed []string
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(maxParallelUploads)
	for _, u := range uploads {
		u := u
		eg.Go(func() error {
			if err := wf.Upload(egCtx, u.key, u.file); err != nil {
				if errors.Is(err, domain.ErrUpload) {
					mu.Lock()
					failed = append(failed, u.key)
					mu.Unlock()
					return nil
				}
				return err
			}
			return nil
		})
	}
	err := eg.Wait()
	spin.Stop()
	for _, k := range failed {
		fmt.Fprintf(os.Stderr, "%s Upload failed for %s\n", ui.warn("[WARN]"), k)
	}
	return err
}

// promptFields renders one control per known field, in descriptor order.
func promptFields(ctx context.Context, wf *workflow.Workflow, p form.Prompter, ui *ui) error {
	env := form.Env{
		Prompter: p,
		Set: func(key string, value any) {
			if err := wf.SetField(key, value); err != nil {
				fmt.Fprintf(os.Stderr, "%s %v\n", ui.warn("[WARN]"), err)
			}
		},
		Upload: func(ctx context.Context, key string, file *domain.LocalFile) error {
			spin := startSpinner("Uploading...")
			defer spin.Stop()
			return wf.Upload(ctx, key, file)
		},
	}
	for _, f := range wf.Model().RequiredInputs {
		if err := form.Render(ctx, env, f, wf.Inputs()[f.Key]); err != nil {
			return err
		}
	}
	if missing := wf.Missing(); len(missing) > 0 {
		fmt.Fprintf(os.Stderr, "%s Please provide: %s\n", ui.warn("[WARN]"), strings.Join(missing, ", "))
	}
	return nil
}
