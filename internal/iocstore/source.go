// Package iocstore loads IOC definitions from files or the IOC server and
// delivers scan reports back to them.
package iocstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/logger"
	"github.com/digggggmori-pixel/agent-ferret-ioc/pkg/types"
)

// Source yields IOC definitions
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]types.Ioc, error)
}

// FileSource reads IOC documents from local JSON or YAML files
type FileSource struct {
	Paths []string
}

// Name identifies the source in logs
func (s *FileSource) Name() string { return "file" }

// Fetch merges the IOCs of every readable file. Unreadable or malformed
// files are logged and skipped.
func (s *FileSource) Fetch(ctx context.Context) ([]types.Ioc, error) {
	var iocs []types.Ioc
	for _, path := range s.Paths {
		if err := ctx.Err(); err != nil {
			return iocs, err
		}
		doc, err := LoadFile(path)
		if err != nil {
			logger.Error("Failed to retrieve IOCs from %s: %v", path, err)
			continue
		}
		logger.Info("Loaded %d IOCs from %s", len(doc.Iocs), path)
		iocs = append(iocs, doc.Iocs...)
	}
	return iocs, nil
}

// LoadFile reads a single IOC document
func LoadFile(path string) (*types.GetIocResponse, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read IOC file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return DecodeYAML(data)
	default:
		return DecodeJSON(data)
	}
}

// DecodeJSON parses a GetIocResponse document or a bare IOC array
func DecodeJSON(data []byte) (*types.GetIocResponse, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var iocs []types.Ioc
		if err := json.Unmarshal(trimmed, &iocs); err != nil {
			return nil, fmt.Errorf("failed to parse IOC json: %w", err)
		}
		return &types.GetIocResponse{Iocs: iocs}, nil
	}
	var doc types.GetIocResponse
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse IOC json: %w", err)
	}
	return &doc, nil
}

// DecodeYAML parses a GetIocResponse document or a bare IOC sequence
func DecodeYAML(data []byte) (*types.GetIocResponse, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("failed to parse IOC yaml: %w", err)
	}
	if len(node.Content) == 0 {
		return &types.GetIocResponse{}, nil
	}
	root := node.Content[0]
	if root.Kind == yaml.SequenceNode {
		var iocs []types.Ioc
		if err := root.Decode(&iocs); err != nil {
			return nil, fmt.Errorf("failed to parse IOC yaml: %w", err)
		}
		return &types.GetIocResponse{Iocs: iocs}, nil
	}
	var doc types.GetIocResponse
	if err := root.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse IOC yaml: %w", err)
	}
	return &doc, nil
}

// Load fetches from every source in order, then validates the merged set.
// A failing source is logged and skipped unless it is the only one.
func Load(ctx context.Context, maxIocs int, sources ...Source) ([]types.Ioc, error) {
	var (
		all     []types.Ioc
		lastErr error
		okCount int
	)
	for _, src := range sources {
		iocs, err := src.Fetch(ctx)
		if err != nil {
			logger.Error("IOC source %s failed: %v", src.Name(), err)
			lastErr = err
			continue
		}
		okCount++
		all = append(all, iocs...)
	}
	if okCount == 0 && lastErr != nil {
		return nil, lastErr
	}
	return Validate(all, maxIocs), nil
}
