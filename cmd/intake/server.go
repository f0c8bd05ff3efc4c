package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/silverstar/intake/internal/api"
	"github.com/silverstar/intake/internal/config"
	"github.com/silverstar/intake/internal/conversation"
	"github.com/silverstar/intake/internal/oracle"
	"github.com/silverstar/intake/internal/profile"
	"github.com/silverstar/intake/internal/recommend"
	"github.com/silverstar/intake/internal/storage"
	"github.com/silverstar/intake/internal/validation"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the intake server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running intake server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show intake system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve MCP tools over stdio",
	Long:  "Serve intake MCP tools over stdio, for MCP clients that spawn the binary directly.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCPStdio()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "intake.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func setupLogging(level string) {
	logLevel := slog.LevelInfo
	switch {
	case strings.EqualFold(level, "debug"):
		logLevel = slog.LevelDebug
	case strings.EqualFold(level, "warn"):
		logLevel = slog.LevelWarn
	case strings.EqualFold(level, "error"):
		logLevel = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

// buildOracle wires the inference stack in preference order: Gemini, then
// any OpenAI-compatible endpoint, then a local Ollama instance. Config
// guarantees at least one backend is configured.
func buildOracle(ctx context.Context, cfg config.Config) (oracle.Oracle, func(), error) {
	var gens []oracle.Generator
	closeFn := func() {}

	if cfg.Oracle.GeminiAPIKey != "" {
		g, err := oracle.NewGemini(ctx, cfg.Oracle.GeminiAPIKey, cfg.Oracle.GeminiModel)
		if err != nil {
			return nil, nil, fmt.Errorf("initializing gemini: %w", err)
		}
		gens = append(gens, g)
		closeFn = func() {
			if err := g.Close(); err != nil {
				slog.Warn("closing gemini client", "error", err)
			}
		}
	}

	if cfg.Oracle.FallbackAPIKey != "" {
		gens = append(gens, oracle.NewChatAPI(cfg.Oracle.FallbackAPIKey, cfg.Oracle.FallbackBaseURL, cfg.Oracle.FallbackModel))
	}

	if cfg.Oracle.OllamaBaseURL != "" {
		local := oracle.NewOllama(cfg.Oracle.OllamaBaseURL, cfg.Oracle.OllamaModel)
		if !local.IsRunning(ctx) {
			slog.Warn("ollama configured but not reachable", "url", cfg.Oracle.OllamaBaseURL)
		}
		gens = append(gens, local)
	}

	if len(gens) == 0 {
		return nil, nil, fmt.Errorf("no oracle backend configured")
	}

	// Fold into a fallback chain, best backend first.
	gen := gens[len(gens)-1]
	for i := len(gens) - 2; i >= 0; i-- {
		gen = &oracle.Fallback{Primary: gens[i], Secondary: gen}
	}
	return oracle.NewClient(gen), closeFn, nil
}

// buildEngine assembles the conversation engine and its collaborators on
// top of an open store.
func buildEngine(o oracle.Oracle, store *storage.Store, cfg config.Config) *conversation.Engine {
	answers := validation.NewAnswerValidator(o)
	profiles := profile.NewValidator(o)
	recommender := recommend.New(o, store)

	eng := conversation.NewEngine(o, answers, profiles, recommender)
	eng.SetRecommendationLimit(cfg.Intake.RecommendationLimit)
	return eng
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "intake version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	apiToken, err := config.GetAPIToken()
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}

	// Refuse to start a second instance.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("intake is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("intake is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	o, closeOracle, err := buildOracle(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeOracle()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	eng := buildEngine(o, store, cfg)
	sessions := api.NewSessions()

	appHandler := api.NewAppHandler(api.AppDeps{
		Engine:   eng,
		Sessions: sessions,
		Jobs:     store,
		Turns:    store,
		Profiles: store,
		Token:    apiToken,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: appHandler,
	}

	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Engine:   eng,
		Sessions: sessions,
		Jobs:     store,
	})
	mcpAddr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.MCPPort)
	sseSrv := server.NewSSEServer(mcpSrv)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "intake listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		slog.Info("MCP server started (SSE transport)", "addr", mcpAddr)
		if err := sseSrv.Start(mcpAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("mcp server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sseSrv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("mcp shutdown", "error", err)
		}
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func runMCPStdio() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	// All diagnostics must stay off stdout; it carries the MCP protocol.
	setupLogging(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	o, closeOracle, err := buildOracle(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeOracle()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()

	eng := buildEngine(o, store, cfg)

	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Engine:   eng,
		Sessions: api.NewSessions(),
		Jobs:     store,
	})

	stdioSrv := server.NewStdioServer(mcpSrv)
	if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp stdio server: %w", err)
	}
	return nil
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("intake is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop intake (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to intake (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	running := false
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	if cfg.Oracle.GeminiAPIKey != "" {
		printStatus("Oracle", "gemini (%s)", cfg.Oracle.GeminiModel)
	}
	if cfg.Oracle.FallbackAPIKey != "" {
		printStatus("Fallback", "%s (%s)", cfg.Oracle.FallbackBaseURL, cfg.Oracle.FallbackModel)
	}
	if cfg.Oracle.OllamaBaseURL != "" {
		printStatus("Ollama", "%s (%s)", cfg.Oracle.OllamaBaseURL, cfg.Oracle.OllamaModel)
	}

	if running {
		if apiToken, tokenErr := config.GetAPIToken(); tokenErr == nil {
			jobsResp, err := apiGet(client, serverURL+"/jobs?limit=200", apiToken)
			if err == nil {
				var body struct {
					Jobs []json.RawMessage `json:"jobs"`
				}
				if json.NewDecoder(jobsResp.Body).Decode(&body) == nil {
					printStatus("Active jobs", "%s", countLabel(len(body.Jobs), 200))
				}
				jobsResp.Body.Close()
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}

func apiGet(client *http.Client, url, token string) (*http.Response, error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return client.Do(req)
}
