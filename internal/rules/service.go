package rules

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"alertlens/config"
	"alertlens/internal/logger"
	"alertlens/pkg/models"
)

// Service browses and edits alerting-rule YAML files in a local
// checkout of the rules repository. Rules are matched to a component by
// their component and source_component labels; directories may be
// scoped per business tier.
type Service struct {
	repoPath string
	subDirs  []string
	byTier   map[string][]string
}

// NewService creates a rules service from configuration.
func NewService(cfg config.RulesConfig) *Service {
	return &Service{
		repoPath: cfg.RepoPath,
		subDirs:  cfg.SubDirs,
		byTier:   cfg.ByTier,
	}
}

// ForComponent scans every configured directory and returns the rules
// whose labels match the component.
func (s *Service) ForComponent(component string) ([]models.Rule, error) {
	return s.scan(s.subDirs, component)
}

// ForComponentAndTier scans only the directories mapped to the tier. An
// unmapped tier falls back to all directories.
func (s *Service) ForComponentAndTier(component, tier string) ([]models.Rule, error) {
	dirs, ok := s.byTier[tier]
	if !ok || len(dirs) == 0 {
		logger.Debugf("rules: no directory mapping for tier %q, scanning all", tier)
		dirs = s.subDirs
	}
	return s.scan(dirs, component)
}

// scan walks the directories and collects matching rules. Unreadable
// or malformed files are skipped, not fatal: the repository checkout is
// maintained by humans and partial results beat none.
func (s *Service) scan(dirs []string, component string) ([]models.Rule, error) {
	if s.repoPath == "" {
		return nil, fmt.Errorf("rules: repository path not configured")
	}

	var matched []models.Rule
	for _, dir := range dirs {
		base := filepath.Join(s.repoPath, strings.TrimSpace(dir))

		err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			if !strings.HasSuffix(path, ".yaml") && !strings.HasSuffix(path, ".yml") {
				return nil
			}

			fileRules, err := parseRuleFile(path)
			if err != nil {
				logger.Warnf("rules: parsing %s: %v", path, err)
				return nil
			}

			for _, rule := range fileRules {
				if !ruleMatches(rule, component) {
					continue
				}
				rule.FilePath = path
				rule.Category = filepath.Base(filepath.Dir(path))
				matched = append(matched, rule)
			}
			return nil
		})
		if err != nil {
			logger.Warnf("rules: walking %s: %v", base, err)
		}
	}

	return matched, nil
}

// ruleMatches reports whether a rule's component or source_component
// label contains the component name, case-insensitively. A "*"
// component matches every rule.
func ruleMatches(rule models.Rule, component string) bool {
	if component == "*" {
		return true
	}
	needle := strings.ToLower(component)
	if comp, ok := rule.Labels["component"]; ok {
		if strings.Contains(strings.ToLower(comp), needle) {
			return true
		}
	}
	if comp, ok := rule.Labels["source_component"]; ok {
		if strings.Contains(strings.ToLower(comp), needle) {
			return true
		}
	}
	return false
}

func parseRuleFile(path string) ([]models.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var rf models.RuleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, err
	}

	var out []models.Rule
	for _, group := range rf.Groups {
		for _, rule := range group.Rules {
			if rule.Alert != "" {
				out = append(out, rule)
			}
		}
	}
	return out, nil
}

// UpdateRule rewrites one rule, identified by its current alert name,
// in one file. The file must live inside the configured repository;
// paths outside it are rejected.
func (s *Service) UpdateRule(filePath, oldAlertName string, updated models.Rule) error {
	if err := s.checkPath(filePath); err != nil {
		return err
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("rules: reading %s: %w", filePath, err)
	}

	var rf models.RuleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return fmt.Errorf("rules: parsing %s: %w", filePath, err)
	}

	found := false
	for i := range rf.Groups {
		for j := range rf.Groups[i].Rules {
			if rf.Groups[i].Rules[j].Alert == oldAlertName {
				rf.Groups[i].Rules[j] = updated
				found = true
				break
			}
		}
		if found {
			break
		}
	}
	if !found {
		return fmt.Errorf("rules: rule %q not found in %s", oldAlertName, filePath)
	}

	out, err := yaml.Marshal(&rf)
	if err != nil {
		return fmt.Errorf("rules: encoding %s: %w", filePath, err)
	}
	if err := os.WriteFile(filePath, out, 0o644); err != nil {
		return fmt.Errorf("rules: writing %s: %w", filePath, err)
	}

	logger.Infof("rules: updated %q in %s", oldAlertName, filePath)
	return nil
}

func (s *Service) checkPath(path string) error {
	if s.repoPath == "" {
		return fmt.Errorf("rules: repository path not configured")
	}
	absRepo, err := filepath.Abs(s.repoPath)
	if err != nil {
		return fmt.Errorf("rules: resolving repo path: %w", err)
	}
	absFile, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("rules: resolving file path: %w", err)
	}
	if absFile != absRepo && !strings.HasPrefix(absFile, absRepo+string(filepath.Separator)) {
		return fmt.Errorf("rules: %s is outside the rules repository", path)
	}
	return nil
}
