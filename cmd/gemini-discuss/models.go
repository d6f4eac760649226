package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/manifoldco/promptui"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/fpt/gemini-discuss/internal/config"
	"github.com/fpt/gemini-discuss/internal/store"
	"github.com/fpt/gemini-discuss/pkg/client/gemini"
	"github.com/fpt/gemini-discuss/pkg/discuss"
)

func modelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Manage the Gemini model table",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List models; the selected one is marked with *",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withModels(func(ctx context.Context, settings *config.Settings, st *store.Store) error {
				models, err := st.ListModels(ctx)
				if err != nil {
					return err
				}
				selected, err := config.NewLayeredParams(st, settings).Get(ctx, discuss.ParamModelKey)
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "\tID\tKEY\tMODEL")
				for _, m := range models {
					mark := ""
					if isSelected(m, selected) {
						mark = "*"
					}
					fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", mark, m.ID, m.Key, m.Name)
				}
				return w.Flush()
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add <key> <model-name>",
		Short: "Add a model row",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withModels(func(ctx context.Context, _ *config.Settings, st *store.Store) error {
				m, err := st.AddModel(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Printf("Added model %d: %s (%s)\n", m.ID, m.Key, m.Name)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <id|key>",
		Short: "Remove a model row",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withModels(func(ctx context.Context, _ *config.Settings, st *store.Store) error {
				if err := st.RemoveModel(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("Removed model %s\n", args[0])
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "select [id|key]",
		Short: "Select the model used for messages with images",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withModels(func(ctx context.Context, _ *config.Settings, st *store.Store) error {
				var (
					m   gemini.Model
					err error
				)
				switch {
				case len(args) == 1:
					m, err = st.LookupModel(ctx, args[0])
				case isInteractive():
					m, err = selectModel(ctx, st)
				default:
					return errors.New("specify a model id or key")
				}
				if err != nil {
					return err
				}
				if err := st.Set(ctx, discuss.ParamModelKey, strconv.FormatInt(m.ID, 10)); err != nil {
					return err
				}
				fmt.Printf("Selected model %d: %s (%s)\n", m.ID, m.Key, m.Name)
				return nil
			})
		},
	})

	return cmd
}

func withModels(fn func(ctx context.Context, settings *config.Settings, st *store.Store) error) error {
	settings, _, err := loadSettings()
	if err != nil {
		return err
	}
	ctx := context.Background()
	st, err := openStore(ctx, settings)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(ctx, settings, st)
}

func isSelected(m gemini.Model, selected string) bool {
	return selected != "" && (selected == strconv.FormatInt(m.ID, 10) || selected == m.Key)
}

// selectModel shows an interactive model selector using promptui
func selectModel(ctx context.Context, st *store.Store) (gemini.Model, error) {
	models, err := st.ListModels(ctx)
	if err != nil {
		return gemini.Model{}, err
	}
	if len(models) == 0 {
		return gemini.Model{}, errors.New("model table is empty")
	}

	templates := &promptui.SelectTemplates{
		Label:    "{{ . }}?",
		Active:   "▸ {{ .Key | cyan }} - {{ .Name | faint }}",
		Inactive: "  {{ .Key | cyan }} - {{ .Name | faint }}",
		Selected: "{{ .Key | cyan }}",
	}

	prompt := promptui.Select{
		Label:     "Choose a model",
		Items:     models,
		Templates: templates,
		Size:      10,
	}

	i, _, err := prompt.Run()
	if err != nil {
		return gemini.Model{}, err
	}
	return models[i], nil
}
