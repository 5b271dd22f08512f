package memory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const frontMatterDelimiter = "---"

// playbookMeta is the YAML front matter of an exported pattern.
type playbookMeta struct {
	CreatedAt   time.Time         `yaml:"created_at"`
	UpdatedAt   time.Time         `yaml:"updated_at"`
	Metadata    map[string]string `yaml:"metadata,omitempty"`
	ID          string            `yaml:"id"`
	Name        string            `yaml:"name"`
	Steps       []PatternStep     `yaml:"steps"`
	SuccessRate float64           `yaml:"success_rate"`
	UsageCount  int               `yaml:"usage_count"`
}

// ExportPlaybook renders p as Markdown with YAML front matter. The front
// matter is authoritative; the body is a readable rendering of the steps.
func ExportPlaybook(p *WorkflowPattern) ([]byte, error) {
	meta := playbookMeta{
		ID:          p.ID,
		Name:        p.Name,
		Steps:       p.Steps,
		SuccessRate: p.SuccessRate,
		UsageCount:  p.UsageCount,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
		Metadata:    p.Metadata,
	}
	yamlBytes, err := yaml.Marshal(&meta)
	if err != nil {
		return nil, fmt.Errorf("memory: serialize playbook: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(frontMatterDelimiter + "\n")
	sb.Write(yamlBytes)
	sb.WriteString(frontMatterDelimiter + "\n\n")
	fmt.Fprintf(&sb, "# %s\n\n", p.Name)
	for i, st := range p.Steps {
		fmt.Fprintf(&sb, "%d. %s", i+1, st.Action)
		if st.ExpectedResult != "" {
			fmt.Fprintf(&sb, " (expect: %s)", st.ExpectedResult)
		}
		sb.WriteString("\n")
	}
	return []byte(sb.String()), nil
}

// ImportPlaybook parses a file produced by ExportPlaybook.
func ImportPlaybook(raw []byte) (*WorkflowPattern, error) {
	s := string(raw)
	if !strings.HasPrefix(s, frontMatterDelimiter) {
		return nil, fmt.Errorf("memory: playbook is missing front matter")
	}
	rest := s[len(frontMatterDelimiter):]
	idx := strings.Index(rest, "\n"+frontMatterDelimiter)
	if idx == -1 {
		return nil, fmt.Errorf("memory: playbook front matter is not closed")
	}

	var meta playbookMeta
	if err := yaml.Unmarshal([]byte(rest[:idx]), &meta); err != nil {
		return nil, fmt.Errorf("memory: playbook front matter: %w", err)
	}
	if meta.Name == "" || len(meta.Steps) == 0 {
		return nil, fmt.Errorf("memory: playbook needs a name and at least one step")
	}
	return &WorkflowPattern{
		ID:          meta.ID,
		Name:        meta.Name,
		Steps:       meta.Steps,
		SuccessRate: meta.SuccessRate,
		UsageCount:  meta.UsageCount,
		CreatedAt:   meta.CreatedAt,
		UpdatedAt:   meta.UpdatedAt,
		Metadata:    meta.Metadata,
	}, nil
}

var unsafeFileChars = regexp.MustCompile(`[^a-z0-9]+`)

func playbookFileName(p *WorkflowPattern) string {
	slug := strings.Trim(unsafeFileChars.ReplaceAllString(strings.ToLower(p.Name), "-"), "-")
	if slug == "" {
		slug = p.ID
	}
	return slug + ".md"
}

// ExportPlaybooks writes every pattern of the workspace into dir, one file
// per pattern, replacing files atomically. It returns the paths written.
func (s *Store) ExportPlaybooks(ctx context.Context, workspaceID, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("memory: create playbook dir: %w", err)
	}
	pats, err := s.patterns(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, p := range pats {
		b, err := ExportPlaybook(p)
		if err != nil {
			return paths, err
		}
		path := filepath.Join(dir, playbookFileName(p))
		tmp := path + ".tmp"
		if err := os.WriteFile(tmp, b, 0o600); err != nil {
			return paths, fmt.Errorf("memory: write temp file: %w", err)
		}
		if err := os.Rename(tmp, path); err != nil {
			_ = os.Remove(tmp)
			return paths, fmt.Errorf("memory: atomic rename %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// ImportPlaybooks loads every *.md playbook in dir into the workspace.
// Unreadable or malformed files are skipped. Patterns whose name already
// exists keep their track record; only their steps are replaced.
func (s *Store) ImportPlaybooks(ctx context.Context, workspaceID, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("memory: list %s: %w", dir, err)
	}

	n := 0
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".md" {
			continue
		}
		path := filepath.Join(dir, e.Name())
		b, err := os.ReadFile(path)
		if err != nil {
			debugLog.Debugf("Skipping unreadable playbook %s: %v", path, err)
			continue
		}
		p, err := ImportPlaybook(b)
		if err != nil {
			debugLog.Debugf("Skipping malformed playbook %s: %v", path, err)
			continue
		}
		if _, err := s.SavePattern(ctx, workspaceID, *p); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
