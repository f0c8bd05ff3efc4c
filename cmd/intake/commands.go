package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/silverstar/intake/internal/config"
	"github.com/silverstar/intake/internal/ingest"
	"github.com/silverstar/intake/internal/storage"
)

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive intake conversation",
	Long: `Start an interactive intake conversation against the running server.

Type your answers at the prompt; "exit" or Ctrl-D ends the session.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		resp, err := client.post(ctx, "/sessions", map[string]string{"user_id": userID})
		if err != nil {
			return err
		}
		var created struct {
			SessionID string `json:"session_id"`
		}
		if err := decodeJSON(resp, &created); err != nil {
			return err
		}

		// The greeting comes back from the first turn; kick it off so the
		// user is not staring at an empty prompt.
		reply, err := sendTurn(ctx, client, created.SessionID, "hello")
		if err != nil {
			return err
		}
		fmt.Println(reply)

		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Print(colorize(colorBold, "> "))
			if !scanner.Scan() {
				break
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if line == "exit" || line == "quit" {
				break
			}

			reply, err := sendTurn(ctx, client, created.SessionID, line)
			if err != nil {
				if ctx.Err() != nil {
					break
				}
				printError("%v", err)
				continue
			}
			fmt.Println(reply)
		}

		fmt.Println("Goodbye!")
		return scanner.Err()
	},
}

func sendTurn(ctx context.Context, client *apiClient, sessionID, message string) (string, error) {
	resp, err := client.post(ctx, "/sessions/"+sessionID+"/messages", map[string]string{"message": message})
	if err != nil {
		return "", err
	}
	var body struct {
		Reply string `json:"reply"`
	}
	if err := decodeJSON(resp, &body); err != nil {
		return "", err
	}
	return body.Reply, nil
}

func init() {
	chatCmd.Flags().String("user", "", "user ID for profile persistence across sessions")
}

// --- jobs ---

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage job listings",
}

var jobsImportCmd = &cobra.Command{
	Use:   "import <path>",
	Short: "Import job listings from a JSON or HTML export",
	Long: `Import job listings from a JSON export or a classifieds HTML page.
Directories are imported recursively by file; each file becomes its own
source, and re-importing a source replaces its previous listings.

Examples:
  intake jobs import ./exports/portal.json
  intake jobs import ./exports/ --source weekly`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		source, _ := cmd.Flags().GetString("source")

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		importer := ingest.NewImporter(store)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		info, err := os.Stat(path)
		if err != nil {
			return err
		}

		var count int
		if info.IsDir() {
			count, err = importer.ImportDir(ctx, path)
		} else {
			if source == "" {
				source = strings.TrimSuffix(info.Name(), ".json")
				source = strings.TrimSuffix(source, ".html")
			}
			count, err = importer.ImportFile(ctx, path, source)
		}
		if err != nil {
			return err
		}

		printSuccess("Imported %d listings", count)
		return nil
	},
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active job listings",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(context.Background(), fmt.Sprintf("/jobs?limit=%d", limit))
		if err != nil {
			return err
		}

		var body struct {
			Jobs []struct {
				ID       string `json:"id"`
				Title    string `json:"title"`
				Company  string `json:"company"`
				Location string `json:"location"`
				Source   string `json:"source"`
			} `json:"jobs"`
		}
		if err := decodeJSON(resp, &body); err != nil {
			return err
		}

		if len(body.Jobs) == 0 {
			fmt.Println("No active listings.")
			return nil
		}

		for _, j := range body.Jobs {
			line := j.Title
			if j.Company != "" {
				line += " at " + j.Company
			}
			if j.Location != "" {
				line += " (" + j.Location + ")"
			}
			fmt.Printf("%s  %s\n", colorize(colorCyan, shortID(j.ID)), line)
		}
		return nil
	},
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	jobsImportCmd.Flags().String("source", "", "source label for the import (default: file basename)")
	jobsListCmd.Flags().Int("limit", 20, "maximum number of listings")
	jobsCmd.AddCommand(jobsImportCmd)
	jobsCmd.AddCommand(jobsListCmd)
}

// --- profile ---

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Inspect or edit a session's candidate profile",
}

var profileShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show a session's profile as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(context.Background(), "/sessions/"+args[0]+"/profile")
		if err != nil {
			return err
		}

		var p any
		if err := decodeJSON(resp, &p); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	},
}

var profileSetCmd = &cobra.Command{
	Use:   "set <session-id> <field> <value>",
	Short: "Set a profile field and re-validate",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID, field, value := args[0], args[1], args[2]

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		body := map[string]any{"updates": map[string]string{field: value}}
		resp, err := client.patch(context.Background(), "/sessions/"+sessionID+"/profile", body)
		if err != nil {
			return err
		}

		var result struct {
			Summary string `json:"summary"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Set %s = %s", field, value)
		if result.Summary != "" {
			fmt.Println(result.Summary)
		}
		return nil
	},
}

func init() {
	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileSetCmd)
}

// --- seed ---

var seedCmd = &cobra.Command{
	Use:   "seed <session-id>",
	Short: "Pre-fill a session's profile from a PDF resume",
	Long: `Extract candidate details from a PDF resume and seed them into a
session. Fields the user already provided in conversation are never
overwritten.

Example:
  intake seed 3f1c... --resume ./resume.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID := args[0]
		resumePath, _ := cmd.Flags().GetString("resume")
		if resumePath == "" {
			return fmt.Errorf("--resume is required")
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		o, closeOracle, err := buildOracle(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeOracle()

		printStep("Extracting profile from %s...", resumePath)
		fields, err := ingest.SeedFromResume(ctx, o, resumePath)
		if err != nil {
			return err
		}
		if len(fields) == 0 {
			printWarning("No profile fields found in the resume")
			return nil
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(ctx, "/sessions/"+sessionID+"/seed", map[string]any{"fields": fields})
		if err != nil {
			return err
		}
		var result struct {
			State string `json:"state"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Seeded %d fields (session state: %s)", len(fields), result.State)
		return nil
	},
}

func init() {
	seedCmd.Flags().String("resume", "", "path to a PDF resume")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
