// Package scaffold writes the starter files of an adqueue project: the
// settings file, an .env template and the MCP server entry.
package scaffold

import (
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

//go:embed files/*
var files embed.FS

// templates maps embedded files to their destination names.
var templates = []struct {
	src  string
	dest string
}{
	{"files/adqueue.yml", "adqueue.yml"},
	{"files/env.example", ".env.example"},
}

// mcpConfig represents the structure of a .mcp.json file.
type mcpConfig struct {
	MCPServers map[string]json.RawMessage `json:"mcpServers"`
}

// mcpEntry runs the adqueue MCP server over stdio.
var mcpEntry = json.RawMessage(`{
  "type": "stdio",
  "command": "adqueue",
  "args": ["mcp"]
}`)

// Install writes the starter files into dir. Existing files are kept unless
// force is set. Progress lines go to out.
func Install(dir string, force bool, out io.Writer) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("scaffold: resolve %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return fmt.Errorf("scaffold: create %s: %w", abs, err)
	}

	for _, t := range templates {
		dest := filepath.Join(abs, t.dest)
		if !force {
			if _, err := os.Stat(dest); err == nil {
				fmt.Fprintf(out, "  skipped ./%s (exists, use --force to overwrite)\n", t.dest)
				continue
			}
		}
		data, err := files.ReadFile(t.src)
		if err != nil {
			return fmt.Errorf("scaffold: read embedded %s: %w", t.src, err)
		}
		if err := os.WriteFile(dest, data, 0o644); err != nil {
			return fmt.Errorf("scaffold: write %s: %w", dest, err)
		}
		fmt.Fprintf(out, "  created ./%s\n", t.dest)
	}

	return mergeMCPConfig(filepath.Join(abs, ".mcp.json"), force, out)
}

// mergeMCPConfig creates or merges the adqueue entry into .mcp.json.
func mergeMCPConfig(path string, force bool, out io.Writer) error {
	var cfg mcpConfig

	data, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("scaffold: parse %s: %w", path, err)
		}
	}
	if cfg.MCPServers == nil {
		cfg.MCPServers = make(map[string]json.RawMessage)
	}

	if _, exists := cfg.MCPServers["adqueue"]; exists && !force {
		fmt.Fprintln(out, "  skipped .mcp.json adqueue entry (exists, use --force to overwrite)")
		return nil
	}
	cfg.MCPServers["adqueue"] = mcpEntry

	encoded, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("scaffold: encode .mcp.json: %w", err)
	}
	if err := os.WriteFile(path, append(encoded, '\n'), 0o644); err != nil {
		return fmt.Errorf("scaffold: write %s: %w", path, err)
	}

	action := "created"
	if data != nil {
		action = "updated"
	}
	fmt.Fprintf(out, "  %s .mcp.json with adqueue MCP server\n", action)
	return nil
}
