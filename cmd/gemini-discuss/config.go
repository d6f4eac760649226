package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fpt/gemini-discuss/internal/config"
	"github.com/fpt/gemini-discuss/pkg/discuss"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read and write runtime parameters",
		Long:  "Runtime parameters are read on every reply. Short names api_key and model_key are accepted.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get <key>",
		Short: "Print a parameter (the effective value, including settings fallbacks)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, settings *config.Settings, st paramStore) error {
				key := config.ParamKey(args[0])
				v, err := config.NewLayeredParams(st, settings).Get(ctx, key)
				if err != nil {
					return err
				}
				if key == discuss.ParamAPIKey {
					v = maskSecret(v)
				}
				fmt.Println(v)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store a parameter",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, _ *config.Settings, st paramStore) error {
				key := config.ParamKey(args[0])
				if err := st.Set(ctx, key, args[1]); err != nil {
					return err
				}
				fmt.Printf("Set %s\n", key)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "unset <key>",
		Short: "Remove a stored parameter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, _ *config.Settings, st paramStore) error {
				key := config.ParamKey(args[0])
				if err := st.Delete(ctx, key); err != nil {
					return err
				}
				fmt.Printf("Unset %s\n", key)
				return nil
			})
		},
	})

	return cmd
}

type paramStore interface {
	discuss.ParameterStore
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

func withStore(fn func(ctx context.Context, settings *config.Settings, st paramStore) error) error {
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

// maskSecret keeps the last four characters of a credential.
func maskSecret(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}
