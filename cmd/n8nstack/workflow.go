package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"n8nstack/cmd/n8nstack/ui"
	"n8nstack/internal/apikey"
	"n8nstack/internal/config"
	"n8nstack/internal/n8napi"

	"github.com/spf13/cobra"
)

func workflowCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "List, export, import and delete workflows on the running n8n",
		Long: "Talks to n8n at N8N_URL. Requests use an owner login when the admin\n" +
			"credentials are available (.secret or N8N_ADMIN_EMAIL/N8N_ADMIN_PASSWORD) and\n" +
			"fall back to the saved API key otherwise.",
	}
	cmd.AddCommand(workflowListCmd(g))
	cmd.AddCommand(workflowGetCmd(g))
	cmd.AddCommand(workflowImportCmd(g))
	cmd.AddCommand(workflowDeleteCmd(g))
	return cmd
}

func workflowListCmd(g *globalFlags) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workflows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := g.loadConfig(ctx, config.SectionWorkflow)
			if err != nil {
				return err
			}
			client, err := connectN8N(ctx, cfg)
			if err != nil {
				return err
			}
			workflows, err := client.Workflows(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(workflows)
			}
			if len(workflows) == 0 {
				fmt.Fprintln(out, ui.Line(ui.Neutral, "no workflows on %s", client.BaseURL()))
				return nil
			}
			rows := make([][]string, 0, len(workflows))
			for _, w := range workflows {
				rows = append(rows, []string{w.ID.String(), w.Name, activeLabel(w.Active), updatedLabel(w.UpdatedAt)})
			}
			fmt.Fprintln(out, ui.Table([]string{"ID", "NAME", "ACTIVE", "UPDATED"}, rows))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the list as JSON")
	return cmd
}

func workflowGetCmd(g *globalFlags) *cobra.Command {
	var save bool

	cmd := &cobra.Command{
		Use:   "get <id|name>",
		Short: "Print a workflow definition",
		Long:  "Prints the workflow as JSON. With --save it is written to the workflows directory instead.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := g.loadConfig(ctx, config.SectionWorkflow)
			if err != nil {
				return err
			}
			client, err := connectN8N(ctx, cfg)
			if err != nil {
				return err
			}
			w, err := client.Resolve(ctx, args[0])
			if err != nil {
				return err
			}
			def, err := client.Export(ctx, w.ID)
			if err != nil {
				return err
			}

			var pretty bytes.Buffer
			if err := json.Indent(&pretty, def, "", "  "); err != nil {
				return fmt.Errorf("format workflow %s: %w", w.ID, err)
			}
			pretty.WriteByte('\n')

			if !save {
				_, err := cmd.OutOrStdout().Write(pretty.Bytes())
				return err
			}
			path, err := saveDefinition(cfg.N8N.WorkflowsDir, w.Name, time.Now(), pretty.Bytes())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.Line(ui.Good, "saved %q to %s", w.Name, ui.Active.Render(path)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&save, "save", false, "Write the definition to the workflows directory")
	return cmd
}

func workflowImportCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Create a workflow from an exported definition",
		Long:  "Reads a workflow JSON file, or stdin with -, and creates it on n8n. Ids, tags and the active flag in the file are ignored.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := g.loadConfig(ctx, config.SectionWorkflow)
			if err != nil {
				return err
			}
			def, err := readDefinition(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			client, err := connectN8N(ctx, cfg)
			if err != nil {
				return err
			}
			w, err := client.Import(ctx, def)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.Line(ui.Good, "imported %q as %s", w.Name, ui.Active.Render(w.ID.String())))
			return nil
		},
	}
}

func workflowDeleteCmd(g *globalFlags) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a workflow by its exact name",
		Long:  "Deletes the one workflow with this exact name. Asks first unless --force is given; without a terminal --force is required.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := g.loadConfig(ctx, config.SectionWorkflow)
			if err != nil {
				return err
			}
			client, err := connectN8N(ctx, cfg)
			if err != nil {
				return err
			}
			return runDeleteWorkflow(ctx, cmd.OutOrStdout(), client, args[0], force, ui.Confirm)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Delete without asking")
	return cmd
}

type confirmFunc func(question, bypassHint string) (bool, error)

func runDeleteWorkflow(ctx context.Context, out io.Writer, client *n8napi.Client, name string, force bool, confirm confirmFunc) error {
	w, err := client.FindByName(ctx, name)
	if err != nil {
		return err
	}

	if !force {
		fmt.Fprintln(out, ui.Line(ui.Warn, "about to delete a workflow; this cannot be undone"))
		fmt.Fprint(out, ui.NewFields("  ").Add("name", w.Name).Add("id", w.ID.String()))
		ok, err := confirm("Delete this workflow?", "use --force to delete without asking")
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(out, ui.Line(ui.Neutral, "deletion cancelled"))
			return nil
		}
	}

	if err := client.Delete(ctx, w.ID); err != nil {
		return err
	}
	fmt.Fprintln(out, ui.Line(ui.Good, "deleted workflow %q (%s)", w.Name, w.ID))
	return nil
}

// connectN8N authenticates with the owner login when the admin credentials
// are set and with the API key otherwise, or when the login is refused.
func connectN8N(ctx context.Context, cfg config.Config) (*n8napi.Client, error) {
	nc := cfg.N8N
	if cfg.Admin.Email != "" && cfg.Admin.Password != "" {
		client, err := n8napi.NewClient(nc.URL, n8napi.WithTimeout(nc.Timeout))
		if err != nil {
			return nil, err
		}
		err = client.Login(ctx, cfg.Admin.Email, cfg.Admin.Password)
		var ae *n8napi.APIError
		switch {
		case err == nil:
			slog.Debug("authenticated", "url", nc.URL, "auth", client.Auth(), "email", cfg.Admin.Email)
			return client, nil
		case n8napi.IsUnauthorized(err):
			slog.Warn("owner login refused, trying the api key", "email", cfg.Admin.Email)
		case errors.As(err, &ae):
			slog.Warn("owner login failed, trying the api key", "err", err)
		default:
			return nil, fmt.Errorf("connect to n8n at %s: %w", nc.URL, err)
		}
	}

	key, source, err := apikey.Load(cfg.APIKey.Dir, cfg.APIKey.Key)
	if err != nil {
		if errors.Is(err, apikey.ErrEmptyKey) {
			return nil, errors.New("no way to authenticate to n8n: set N8N_ADMIN_EMAIL and N8N_ADMIN_PASSWORD (or the .secret file), " +
				"or create an API key under Settings > n8n API and save it with `n8nstack api-key save`")
		}
		return nil, err
	}
	client, err := n8napi.NewClient(nc.URL, n8napi.WithTimeout(nc.Timeout), n8napi.WithAPIKey(key))
	if err != nil {
		return nil, err
	}
	slog.Debug("authenticated", "url", nc.URL, "auth", client.Auth(), "source", sourceLabel(source, cfg.APIKey.Dir))
	return client, nil
}

func readDefinition(arg string, stdin io.Reader) ([]byte, error) {
	if arg == "-" {
		data, err := io.ReadAll(io.LimitReader(stdin, 32<<20))
		if err != nil {
			return nil, fmt.Errorf("read workflow from stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(arg)
	if err != nil {
		return nil, fmt.Errorf("read workflow: %w", err)
	}
	return data, nil
}

// saveDefinition writes def as <name>_<timestamp>.json under dir.
func saveDefinition(dir, name string, now time.Time, def []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create workflows directory: %w", err)
	}
	path := filepath.Join(dir, fileStem(name)+"_"+now.Format("20060102_150405")+".json")
	if err := os.WriteFile(path, def, 0o644); err != nil {
		return "", fmt.Errorf("save workflow: %w", err)
	}
	return path, nil
}

// fileStem keeps letters, digits, dashes and underscores of a workflow name
// and turns spaces into underscores.
func fileStem(name string) string {
	var sb strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r == ' ':
			sb.WriteByte('_')
		case r == '-' || r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r):
			sb.WriteRune(r)
		}
	}
	if sb.Len() == 0 {
		return "workflow"
	}
	return sb.String()
}

func activeLabel(active bool) string {
	if active {
		return ui.Good.Render("yes")
	}
	return ui.Neutral.Render("no")
}

func updatedLabel(t time.Time) string {
	if t.IsZero() {
		return ui.Neutral.Render("-")
	}
	return t.Local().Format(time.DateTime)
}
