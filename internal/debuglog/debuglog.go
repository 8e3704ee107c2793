// Package debuglog persists every LLM and generation-backend exchange as a
// timestamped JSON file under the project's llm/ folder, so any prompt or raw
// response can be inspected after the fact.
package debuglog

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bobarin/muvi/internal/models"
	"github.com/bobarin/muvi/internal/paths"
)

type Logger struct {
	paths *paths.Manager
}

func New(pm *paths.Manager) *Logger {
	return &Logger{paths: pm}
}

// Entry is one persisted backend exchange.
type Entry struct {
	Kind     string      `json:"kind"` // "llm", "image", "video", "audio"
	Label    string      `json:"label"`
	Model    string      `json:"model,omitempty"`
	TS       string      `json:"ts"`
	Request  interface{} `json:"request,omitempty"`
	Response interface{} `json:"response,omitempty"`
	Error    string      `json:"error,omitempty"`
}

// Write persists an entry under <project>/llm/. Logging failures are reported
// but never fail the call that produced the entry.
func (l *Logger) Write(state *models.State, entry Entry) {
	dir, err := l.paths.LLMDir(state)
	if err != nil {
		log.Printf("[DebugLog] Cannot resolve llm dir: %v", err)
		return
	}
	entry.TS = models.NowISO(time.Now())
	name := fmt.Sprintf("%s_%s_%s.json",
		time.Now().UTC().Format("20060102T150405.000"),
		entry.Kind,
		sanitizeLabel(entry.Label))
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		log.Printf("[DebugLog] Marshal failed for %s: %v", entry.Label, err)
		return
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		log.Printf("[DebugLog] Write failed for %s: %v", name, err)
	}
}

// List returns the persisted log filenames for a project, newest first.
func (l *Logger) List(state *models.State) ([]string, error) {
	dir, err := l.paths.LLMDir(state)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read llm dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

func sanitizeLabel(label string) string {
	if label == "" {
		return "call"
	}
	return paths.SanitizeFilename(label, 60)
}
