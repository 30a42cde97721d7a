package policy

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// bundleSuffix marks a JSON file holding a PolicyBundle.
const bundleSuffix = ".bundle.json"

// Loader reads house policies from a policies directory. Three file kinds
// are understood:
//
//   - name.rego: a Rego module; the policy is named after the file and its
//     leading comment block supplies the description and header fields
//   - name.json: a single JSON-encoded Policy
//   - name.bundle.json: a PolicyBundle holding several policies
type Loader struct {
	logger zerolog.Logger
	now    func() time.Time
}

// NewLoader creates a new policy loader.
func NewLoader(logger zerolog.Logger) *Loader {
	return &Loader{
		logger: logger.With().Str("component", "policy-loader").Logger(),
		now:    time.Now,
	}
}

// LoadFromPaths loads policies from files and directories in order.
// Directories are walked recursively in lexical order.
func (l *Loader) LoadFromPaths(ctx context.Context, paths []string) ([]Policy, error) {
	var out []Policy
	for _, path := range paths {
		policies, err := l.loadPath(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("failed to load from path %s: %w", path, err)
		}
		out = append(out, policies...)
	}

	l.logger.Info().
		Int("total", len(out)).
		Int("sources", len(paths)).
		Msg("Policies loaded from paths")
	return out, nil
}

func (l *Loader) loadPath(ctx context.Context, path string) ([]Policy, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path: %w", err)
	}
	if !info.IsDir() {
		return l.loadFile(ctx, path)
	}

	var out []Policy
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isPolicyFile(p) {
			return nil
		}
		policies, err := l.loadFile(ctx, p)
		if err != nil {
			return fmt.Errorf("failed to load policy file %s: %w", p, err)
		}
		out = append(out, policies...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}
	return out, nil
}

func isPolicyFile(path string) bool {
	return strings.HasSuffix(path, ".rego") || strings.HasSuffix(path, ".json")
}

// loadFile loads every policy a single file defines.
func (l *Loader) loadFile(ctx context.Context, path string) ([]Policy, error) {
	if strings.HasSuffix(path, bundleSuffix) {
		bundle, err := l.LoadBundle(ctx, path)
		if err != nil {
			return nil, err
		}
		return bundle.Policies, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var p *Policy
	switch filepath.Ext(path) {
	case ".rego":
		p, err = l.parseRego(path, data)
	case ".json":
		p, err = l.parseJSON(data)
	default:
		return nil, fmt.Errorf("unsupported file type: %s", path)
	}
	if err != nil {
		return nil, err
	}

	l.logger.Debug().
		Str("path", path).
		Str("policy", p.Name).
		Str("severity", string(p.Severity)).
		Msg("Policy loaded from file")
	return []Policy{*p}, nil
}

// parseRego builds a policy from a Rego module. Header lines of the form
// "# key: value" set fields:
//
//	# Caps the size of a manual stage crew
//	# severity: error
//	# tags: stage, size
//	# enabled: false
//
// Other comment lines form the description.
func (l *Loader) parseRego(path string, data []byte) (*Policy, error) {
	now := l.now()
	p := &Policy{
		Name:      strings.TrimSuffix(filepath.Base(path), ".rego"),
		Rego:      string(data),
		Severity:  SeverityWarning,
		Enabled:   true,
		Tags:      []string{},
		Metadata:  map[string]interface{}{"source": path},
		CreatedAt: now,
		UpdatedAt: now,
	}

	h := parseHeader(string(data))
	p.Description = h.description
	if v, ok := h.fields["severity"]; ok {
		sev := Severity(strings.ToLower(v))
		if !sev.Valid() {
			return nil, fmt.Errorf("%s: unknown severity %q", path, v)
		}
		p.Severity = sev
	}
	if v, ok := h.fields["tags"]; ok {
		for _, tag := range strings.Split(v, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				p.Tags = append(p.Tags, tag)
			}
		}
	}
	if v, ok := h.fields["enabled"]; ok {
		p.Enabled = !strings.EqualFold(v, "false")
	}
	return p, nil
}

type regoHeader struct {
	description string
	fields      map[string]string
}

var headerKeys = map[string]bool{"severity": true, "tags": true, "enabled": true}

// parseHeader reads the comment block before the first Rego statement.
func parseHeader(content string) regoHeader {
	h := regoHeader{fields: map[string]string{}}
	var desc []string

	sc := bufio.NewScanner(strings.NewReader(content))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "#") {
			break
		}
		text := strings.TrimSpace(strings.TrimPrefix(line, "#"))
		if text == "" {
			continue
		}
		if key, value, ok := strings.Cut(text, ":"); ok && headerKeys[strings.ToLower(strings.TrimSpace(key))] {
			h.fields[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(value)
			continue
		}
		desc = append(desc, text)
	}

	h.description = strings.Join(desc, " ")
	return h
}

// parseJSON decodes a single JSON policy. Enabled is taken as written, so a
// file that omits it loads disabled.
func (l *Loader) parseJSON(data []byte) (*Policy, error) {
	var p Policy
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse JSON policy: %w", err)
	}
	if p.Name == "" {
		return nil, fmt.Errorf("JSON policy has no name")
	}
	l.applyDefaults(&p)
	return &p, nil
}

func (l *Loader) applyDefaults(p *Policy) {
	if p.Severity == "" {
		p.Severity = SeverityWarning
	}
	now := l.now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}
}

// LoadBundle loads a policy bundle.
func (l *Loader) LoadBundle(_ context.Context, bundlePath string) (*PolicyBundle, error) {
	data, err := os.ReadFile(bundlePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read bundle: %w", err)
	}

	var bundle PolicyBundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("failed to parse bundle: %w", err)
	}

	for i := range bundle.Policies {
		p := &bundle.Policies[i]
		if p.Name == "" {
			return nil, fmt.Errorf("bundle %s: policy %d has no name", bundle.Name, i)
		}
		l.applyDefaults(p)
	}

	l.logger.Info().
		Str("bundle", bundle.Name).
		Str("version", bundle.Version).
		Int("policies", len(bundle.Policies)).
		Msg("Policy bundle loaded")

	return &bundle, nil
}
