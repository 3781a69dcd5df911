// Package templates provides the reader's HTML page templates with user override support.
// Templates are loaded with resolution order:
// 1. User override: overrideDir/{name}.html
// 2. Embedded default: internal/templates/{name}.html
package templates

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

//go:embed *.html
var embedded embed.FS

// Funcs are available to every page
var Funcs = template.FuncMap{
	"date": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format("2 Jan 2006")
	},
	"join": strings.Join,
}

// Load parses every page template, preferring files in overrideDir when present
func Load(overrideDir string) (*template.Template, error) {
	entries, err := fs.ReadDir(embedded, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to list embedded templates: %w", err)
	}

	root := template.New("pages").Funcs(Funcs)
	for _, entry := range entries {
		name := entry.Name()
		data, err := read(name, overrideDir)
		if err != nil {
			return nil, err
		}
		if _, err := root.New(name).Parse(string(data)); err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
	}
	return root, nil
}

func read(name, overrideDir string) ([]byte, error) {
	if overrideDir != "" {
		if data, err := os.ReadFile(filepath.Join(overrideDir, name)); err == nil {
			return data, nil
		}
	}
	data, err := embedded.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("template %s not found: %w", name, err)
	}
	return data, nil
}
