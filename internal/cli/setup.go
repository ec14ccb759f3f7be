package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/cxr-assist-server/internal/config"
)

// DefaultServerName is the key under which the tool server is registered.
const DefaultServerName = "cxr-assist"

const mcpBinaryName = "mcp-server"

// MCPServerEntry is one server launched by a desktop MCP client.
type MCPServerEntry struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// ClientConfig is a desktop MCP client configuration file. Keys other than
// mcpServers are preserved as-is.
type ClientConfig struct {
	MCPServers map[string]MCPServerEntry
	other      map[string]json.RawMessage
}

// DefaultClientConfigPath returns the Claude Desktop config location for this OS.
func DefaultClientConfigPath() (string, error) {
	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(home, "Library", "Application Support", "Claude", "claude_desktop_config.json"), nil
	case "linux":
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "Claude", "claude_desktop_config.json"), nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(home, ".config", "Claude", "claude_desktop_config.json"), nil
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		return filepath.Join(appData, "Claude", "claude_desktop_config.json"), nil
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}
}

// LoadClientConfig reads path. A missing file yields an empty config.
func LoadClientConfig(path string) (*ClientConfig, error) {
	cfg := &ClientConfig{
		MCPServers: map[string]MCPServerEntry{},
		other:      map[string]json.RawMessage{},
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, &cfg.other); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if raw, ok := cfg.other["mcpServers"]; ok {
		if err := json.Unmarshal(raw, &cfg.MCPServers); err != nil {
			return nil, fmt.Errorf("failed to parse mcpServers: %w", err)
		}
		delete(cfg.other, "mcpServers")
	}
	if cfg.MCPServers == nil {
		cfg.MCPServers = map[string]MCPServerEntry{}
	}
	return cfg, nil
}

// Save writes the config to path, creating its directory.
func (c *ClientConfig) Save(path string) error {
	out := make(map[string]interface{}, len(c.other)+1)
	for k, v := range c.other {
		out[k] = v
	}
	out["mcpServers"] = c.MCPServers

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// findMCPBinary looks next to the running executable, then on PATH.
func findMCPBinary() (string, error) {
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), mcpBinaryName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	if path, err := exec.LookPath(mcpBinaryName); err == nil {
		return path, nil
	}
	return "", fmt.Errorf("binary %q not found next to cxrctl or on PATH; pass --binary", mcpBinaryName)
}

func (a *app) setupCmd() *cobra.Command {
	var (
		clientConfig string
		binary       string
		dataDir      string
		name         string
	)

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Register the MCP tool server with a desktop MCP client",
	}
	cmd.PersistentFlags().StringVar(&clientConfig, "client-config", "", "client config file (default: the Claude Desktop config for this OS)")
	cmd.PersistentFlags().StringVar(&name, "name", DefaultServerName, "server name in mcpServers")

	resolvePath := func() (string, error) {
		if clientConfig != "" {
			return clientConfig, nil
		}
		return DefaultClientConfigPath()
	}

	register := &cobra.Command{
		Use:   "mcp-client",
		Short: "Add or update the tool server entry in the client config",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := resolvePath()
			if err != nil {
				return err
			}
			if binary == "" {
				if binary, err = findMCPBinary(); err != nil {
					return err
				}
			}

			cfg, err := LoadClientConfig(path)
			if err != nil {
				return err
			}
			entry := MCPServerEntry{Command: binary}
			if a.configFile != "" {
				abs, err := filepath.Abs(a.configFile)
				if err != nil {
					return err
				}
				entry.Args = []string{"--config", abs}
			}
			if dataDir != "" {
				entry.Env = map[string]string{config.DataDirEnv: config.ExpandHome(dataDir)}
			}
			cfg.MCPServers[name] = entry

			if err := cfg.Save(path); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Registered %q in %s\nRestart the client to load the new tools.\n", name, path)
			return err
		},
	}
	register.Flags().StringVar(&binary, "binary", "", "path to "+mcpBinaryName)
	register.Flags().StringVar(&dataDir, "data-dir", "", "data directory passed as "+config.DataDirEnv)

	status := &cobra.Command{
		Use:   "status",
		Short: "Show whether the tool server is registered",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := resolvePath()
			if err != nil {
				return err
			}
			cfg, err := LoadClientConfig(path)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Client config: %s\n", path)
			entry, ok := cfg.MCPServers[name]
			if !ok {
				fmt.Fprintf(out, "Server %q: not registered\n", name)
				return nil
			}
			fmt.Fprintf(out, "Server %q: %s\n", name, entry.Command)
			if _, err := os.Stat(entry.Command); err != nil {
				fmt.Fprintln(out, "Binary: missing")
			} else {
				fmt.Fprintln(out, "Binary: found")
			}
			return nil
		},
	}

	cmd.AddCommand(register, status)
	return cmd
}
