package appconfig

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// ShowConfig prints the current configuration summary.
func ShowConfig(out io.Writer, file string, cfg *Config) {
	if file == "" {
		fmt.Fprintln(out, "No config file loaded (using defaults).")
	} else {
		fmt.Fprintf(out, "Config file: %s\n\n", file)
	}

	if cfg == nil {
		d := Default()
		cfg = &d
	}

	apiKey := "not set"
	if cfg.APIKey != "" {
		apiKey = "set"
	}

	fmt.Fprintln(out, "Current configuration:")
	fmt.Fprintf(out, "  Provider:            %s\n", cfg.Provider)
	fmt.Fprintf(out, "  Base URL:            %s\n", cfg.BaseURL)
	fmt.Fprintf(out, "  API Key:             %s\n", apiKey)
	fmt.Fprintf(out, "  Chat Model:          %s\n", cfg.ChatModel)
	fmt.Fprintf(out, "  Embedding Model:     %s\n", cfg.EmbeddingModel)
	fmt.Fprintf(out, "  Temperature:         %.2f\n", cfg.Temperature)
	fmt.Fprintf(out, "  Streaming:           %v\n", cfg.Streaming())
	fmt.Fprintf(out, "  Request Timeout:     %s\n", cfg.RequestTimeout())
	fmt.Fprintf(out, "  Requests/Second:     %v\n", cfg.RequestsPerSecond)
	fmt.Fprintf(out, "  DB Path:             %s\n", cfg.DBPath)
	fmt.Fprintf(out, "  Search:              %s (k=%d fetchK=%d lambda=%.2f)\n", cfg.SearchType, cfg.TopK, cfg.FetchK, cfg.LambdaMult)
	fmt.Fprintf(out, "  Memory Window:       %d turns\n", cfg.MemoryWindow)
	fmt.Fprintf(out, "  Reformulation Turns: %d\n", cfg.ReformulationTurns)
	fmt.Fprintf(out, "  Chunking:            size=%d overlap=%d\n", cfg.ChunkSize, cfg.ChunkOverlap)
	fmt.Fprintf(out, "  Chat History File:   %s\n", cfg.ChatHistoryFile)
	fmt.Fprintf(out, "  Log File:            %s\n", cfg.LogFilePath())
	fmt.Fprintf(out, "  Metrics File:        %s\n", cfg.MetricsFile)
	fmt.Fprintf(out, "  Server Address:      %s\n", cfg.ServerAddr)
	fmt.Fprintf(out, "  Tracing:             %s\n", cfg.Tracing())
	fmt.Fprintf(out, "  Debug:               %v\n", cfg.Debug)
}

// MarshalJSON renders cfg as indented JSON. Secrets are never included.
func MarshalJSON(cfg Config) ([]byte, error) {
	return json.MarshalIndent(cfg, "", "  ")
}

// MarshalYAML renders cfg as YAML using the same keys as the JSON form.
func MarshalYAML(cfg Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}
