package classify

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"alertlens/internal/logger"
)

// OtherCategory is the sentinel for components not present in the
// category map. Listings that require a defined category skip it:
// unmapped components are treated as historical dirty data.
const OtherCategory = "Other"

// CategoryMap is the hot-reloadable component-to-category mapping read
// from a YAML file of the form:
//
//	categories:
//	  Compute:
//	    - scheduler
//	    - executor
//	  Resilience:
//	    - backup
//
// Category declaration order is preserved for display. Reload is
// debounced: the file is re-read at most once per reload interval.
type CategoryMap struct {
	path     string
	interval time.Duration

	mu          sync.RWMutex
	byComponent map[string]string
	ordered     []string
	loadedAt    time.Time
}

// NewCategoryMap creates a category map bound to a config file. The
// first load is lazy; a missing or malformed file degrades to an empty
// map (every component is Other) rather than failing.
func NewCategoryMap(path string, reloadInterval time.Duration) *CategoryMap {
	if reloadInterval <= 0 {
		reloadInterval = time.Minute
	}
	return &CategoryMap{
		path:     path,
		interval: reloadInterval,
	}
}

// Category returns the display category for a component. The
// Serverless component is its own fixed category; unmapped components
// return OtherCategory.
func (m *CategoryMap) Category(component string) string {
	if component == serverlessComponent {
		return serverlessComponent
	}

	m.maybeReload()

	m.mu.RLock()
	defer m.mu.RUnlock()
	if cat, ok := m.byComponent[component]; ok {
		return cat
	}
	return OtherCategory
}

// Categories returns the category names in declaration order.
func (m *CategoryMap) Categories() []string {
	m.maybeReload()

	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.ordered))
	copy(out, m.ordered)
	return out
}

// maybeReload re-reads the file if the debounce interval has elapsed.
// Readers never observe a half-written map: the new map is swapped in
// under the write lock.
func (m *CategoryMap) maybeReload() {
	m.mu.RLock()
	fresh := time.Since(m.loadedAt) < m.interval && m.byComponent != nil
	m.mu.RUnlock()
	if fresh {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if time.Since(m.loadedAt) < m.interval && m.byComponent != nil {
		return
	}

	byComponent, ordered, err := loadCategoryFile(m.path)
	if err != nil {
		logger.Warnf("classify: category map load failed: %v", err)
		// Keep serving the previous map; mark loaded to debounce retries.
		if m.byComponent == nil {
			m.byComponent = map[string]string{}
		}
		m.loadedAt = time.Now()
		return
	}

	m.byComponent = byComponent
	m.ordered = ordered
	m.loadedAt = time.Now()
	logger.Infof("classify: loaded %d categories, %d components from %s", len(ordered), len(byComponent), m.path)
}

// loadCategoryFile parses the YAML with yaml.Node so that category
// declaration order survives (map decoding would lose it).
func loadCategoryFile(path string) (map[string]string, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}

	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	byComponent := make(map[string]string)
	var ordered []string

	if len(node.Content) > 0 && node.Content[0].Kind == yaml.MappingNode {
		root := node.Content[0]
		for i := 0; i+1 < len(root.Content); i += 2 {
			if root.Content[i].Value != "categories" {
				continue
			}
			catNode := root.Content[i+1]
			for j := 0; j+1 < len(catNode.Content); j += 2 {
				catName := catNode.Content[j].Value
				ordered = append(ordered, catName)
				for _, comp := range catNode.Content[j+1].Content {
					byComponent[comp.Value] = catName
				}
			}
			break
		}
	}

	return byComponent, ordered, nil
}
