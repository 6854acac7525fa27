package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"n8nstack/cmd/n8nstack/ui"
	"n8nstack/internal/apikey"
	"n8nstack/internal/config"

	"github.com/spf13/cobra"
)

func apiKeyCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "api-key",
		Short: "Store or show the n8n public API key",
	}
	cmd.AddCommand(apiKeySaveCmd(g))
	cmd.AddCommand(apiKeyShowCmd(g))
	return cmd
}

func apiKeySaveCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "save [key]",
		Short: "Save the API key to the config directory",
		Long:  "Saves the key to <config dir>/" + apikey.FileName + " with mode 0600. Without an argument, or with -, the key is read from stdin.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig(cmd.Context(), config.SectionAPIKey)
			if err != nil {
				return err
			}

			key, err := keyArg(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			path, err := apikey.Save(cfg.APIKey.Dir, key)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.Line(ui.Good, "saved api key %s to %s", apikey.Mask(strings.TrimSpace(key)), ui.Active.Render(path)))
			return nil
		},
	}
}

func apiKeyShowCmd(g *globalFlags) *cobra.Command {
	var reveal bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the stored API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig(cmd.Context(), config.SectionAPIKey)
			if err != nil {
				return err
			}

			key, source, err := apikey.Load(cfg.APIKey.Dir, cfg.APIKey.Key)
			if err != nil {
				if errors.Is(err, apikey.ErrEmptyKey) {
					return fmt.Errorf("no api key in %s or N8N_API_KEY; save one with `n8nstack api-key save`", apikey.Path(cfg.APIKey.Dir))
				}
				return err
			}
			if reveal {
				fmt.Fprintln(cmd.OutOrStdout(), key)
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), ui.NewFields("  ").
				Add("key", apikey.Mask(key)).
				Add("source", sourceLabel(source, cfg.APIKey.Dir)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&reveal, "reveal", false, "Print the key unmasked")
	return cmd
}

func keyArg(args []string, stdin io.Reader) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}
	data, err := io.ReadAll(io.LimitReader(stdin, 64<<10))
	if err != nil {
		return "", fmt.Errorf("read api key from stdin: %w", err)
	}
	return string(data), nil
}

func sourceLabel(s apikey.Source, dir string) string {
	if s == apikey.SourceFile {
		return apikey.Path(dir)
	}
	return "N8N_API_KEY"
}
