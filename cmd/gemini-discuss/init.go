package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/fpt/gemini-discuss/internal/config"
	"github.com/fpt/gemini-discuss/pkg/discuss"
	pkgLogger "github.com/fpt/gemini-discuss/pkg/logger"
)

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write default settings, seed the model table and store the API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath
			if path == "" {
				path = config.DefaultSettingsPath()
			}
			if _, err := os.Stat(path); err == nil && !force {
				fmt.Printf("Settings file already exists: %s (use --force to overwrite)\n", path)
			} else {
				if err := config.SaveSettings(path, config.GetDefaultSettings()); err != nil {
					return err
				}
				fmt.Printf("Wrote default settings to %s\n", path)
			}

			settings, logger, err := loadSettings()
			if err != nil {
				return err
			}

			ctx := context.Background()
			st, err := openStore(ctx, settings)
			if err != nil {
				return err
			}
			defer st.Close()

			models, err := st.ListModels(ctx)
			if err != nil {
				return err
			}
			logger.InfoWithIntention(pkgLogger.IntentionConfig, "Model table ready", "models", len(models), "db", settings.Store.Path)

			if !isInteractive() {
				fmt.Println("Set the API key with: gemini-discuss config set api_key <key>")
				return nil
			}

			prompt := promptui.Prompt{
				Label: "Gemini API key (leave empty to skip)",
				Mask:  '*',
			}
			key, err := prompt.Run()
			if err != nil {
				if err == promptui.ErrInterrupt {
					fmt.Println("\nCancelled.")
					return nil
				}
				return err
			}
			if key = strings.TrimSpace(key); key == "" {
				return nil
			}
			if err := st.Set(ctx, discuss.ParamAPIKey, key); err != nil {
				return err
			}
			logger.InfoWithIntention(pkgLogger.IntentionSuccess, "Stored Gemini API key")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing settings file")
	return cmd
}
