package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/annserve/configs"
	"github.com/Aman-CERP/annserve/internal/config"
	"github.com/Aman-CERP/annserve/internal/output"
)

// MCPServerConfig is one entry of .mcp.json.
type MCPServerConfig struct {
	Type    string            `json:"type,omitempty"`
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// MCPConfig is the root of .mcp.json.
type MCPConfig struct {
	MCPServers map[string]MCPServerConfig `json:"mcpServers"`
}

// mcpServerName is the key annserve registers under in .mcp.json.
const mcpServerName = "annserve"

type initFlags struct {
	dir   string
	root  string
	user  bool
	force bool
	mcp   bool
	quiet bool
}

func newInitCmd() *cobra.Command {
	var f initFlags

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write an annotated annserve.yaml",
		Long: `Write an annotated annserve.yaml documenting every setting.

With --mcp, also register 'annserve mcp' in .mcp.json so MCP clients
started in that directory can query the indexes.`,
		Example: `  # Config in the current directory, archives under /data/ann
  annserve init --root /data/ann

  # User-level config (~/.config/annserve/config.yaml)
  annserve init --user

  # Config plus .mcp.json registration
  annserve init --root ./indexes --mcp`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd, f)
		},
	}

	cmd.Flags().StringVar(&f.dir, "dir", ".", "Directory to write annserve.yaml (and .mcp.json) into")
	cmd.Flags().StringVar(&f.root, "root", "", "Set sources.root in the written config")
	cmd.Flags().BoolVar(&f.user, "user", false, "Write the user config instead of annserve.yaml")
	cmd.Flags().BoolVar(&f.force, "force", false, "Overwrite existing files")
	cmd.Flags().BoolVar(&f.mcp, "mcp", false, "Register the MCP server in .mcp.json")
	cmd.Flags().BoolVarP(&f.quiet, "quiet", "q", false, "Only print warnings")
	cmd.MarkFlagsMutuallyExclusive("user", "mcp")

	return cmd
}

func runInit(cmd *cobra.Command, f initFlags) error {
	out := output.New(cmd.OutOrStdout())
	out.SetQuiet(f.quiet)

	dir, err := filepath.Abs(f.dir)
	if err != nil {
		return err
	}

	path := filepath.Join(dir, config.ProjectFileNames[0])
	if f.user {
		path = config.GetUserConfigPath()
	}

	written, err := writeConfigTemplate(out, path, f.root, f.force)
	if err != nil {
		return err
	}

	if f.mcp {
		if err := registerMCPServer(out, dir, path, f.force); err != nil {
			return err
		}
	}

	if written {
		out.Status("", "Next steps:")
		out.Code(fmt.Sprintf("annserve inspect --config %s\nannserve serve --config %s", path, path))
	}
	return nil
}

// writeConfigTemplate writes the embedded template to path. An existing
// file is kept unless force is set.
func writeConfigTemplate(out *output.Writer, path, root string, force bool) (bool, error) {
	if _, err := os.Stat(path); err == nil && !force {
		out.Statusf("ℹ️ ", "%s already exists, skipping (use --force to overwrite)", path)
		return false, nil
	}

	content := configs.ProjectConfigTemplate
	if root != "" {
		abs, err := filepath.Abs(root)
		if err != nil {
			return false, err
		}
		content = strings.Replace(content, "  root: /data/ann\n", fmt.Sprintf("  root: %q\n", abs), 1)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", path, err)
	}
	out.Statusf("📝", "Created %s", path)
	return true, nil
}

// registerMCPServer adds annserve to dir/.mcp.json, keeping other
// servers already listed there.
func registerMCPServer(out *output.Writer, dir, configPath string, force bool) error {
	mcpPath := filepath.Join(dir, ".mcp.json")

	cfg := MCPConfig{MCPServers: make(map[string]MCPServerConfig)}
	if data, err := os.ReadFile(mcpPath); err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("failed to parse existing .mcp.json: %w", err)
		}
		if cfg.MCPServers == nil {
			cfg.MCPServers = make(map[string]MCPServerConfig)
		}
		if _, exists := cfg.MCPServers[mcpServerName]; exists && !force {
			out.Status("ℹ️ ", "annserve already registered in .mcp.json")
			return nil
		}
	}

	bin, err := findBinary()
	if err != nil {
		return err
	}
	cfg.MCPServers[mcpServerName] = MCPServerConfig{
		Type:    "stdio",
		Command: bin,
		Args:    []string{"mcp", "--config", configPath},
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal .mcp.json: %w", err)
	}
	if err := os.WriteFile(mcpPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write .mcp.json: %w", err)
	}
	out.Statusf("📝", "Registered MCP server in %s", mcpPath)
	return nil
}

// findBinary prefers the running executable, then annserve on PATH.
func findBinary() (string, error) {
	if exe, err := os.Executable(); err == nil {
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			return resolved, nil
		}
		return exe, nil
	}
	path, err := exec.LookPath("annserve")
	if err != nil {
		return "", fmt.Errorf("annserve not found in PATH: %w", err)
	}
	return path, nil
}
