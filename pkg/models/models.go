package models

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/docker/go-units"
	"gopkg.in/yaml.v3"
)

// Model priorities, from must-have to nice-to-have.
const (
	PriorityEssential   = "essential"
	PriorityRecommended = "recommended"
	PriorityOptional    = "optional"
)

// validPriorities is the list of supported priority values.
var validPriorities = map[string]struct{}{
	PriorityEssential:   {},
	PriorityRecommended: {},
	PriorityOptional:    {},
}

// priorityRank orders priorities for display and recommendation.
var priorityRank = map[string]int{
	PriorityEssential:   0,
	PriorityRecommended: 1,
	PriorityOptional:    2,
}

// ModelInfo describes one model in the catalog.
type ModelInfo struct {
	Name string `yaml:"name"`
	// Size is the human-readable download size, e.g. "3.8GB".
	Size string `yaml:"size,omitempty"`
	// RAMRequired is the memory needed to run the model, e.g. "8GB".
	RAMRequired string `yaml:"ram_required,omitempty"`
	Description string `yaml:"description,omitempty"`
	Priority    string `yaml:"priority"`
	Provider    string `yaml:"provider,omitempty"`
	// Fallback names a smaller model to substitute when this one is not
	// available.
	Fallback string `yaml:"fallback,omitempty"`
}

// SizeBytes returns the parsed download size, or 0 when unknown.
func (m ModelInfo) SizeBytes() int64 {
	bytes, err := units.RAMInBytes(m.Size)
	if err != nil {
		return 0
	}

	return bytes
}

// RAMBytes returns the parsed memory requirement, or 0 when unknown.
func (m ModelInfo) RAMBytes() int64 {
	bytes, err := units.RAMInBytes(m.RAMRequired)
	if err != nil {
		return 0
	}

	return bytes
}

// Catalog is the set of models known to the harness.
type Catalog struct {
	Models []ModelInfo `yaml:"models"`
}

// DefaultCatalog returns the built-in model catalog.
func DefaultCatalog() *Catalog {
	return &Catalog{Models: []ModelInfo{
		{
			Name:        "llama2",
			Size:        "3.8GB",
			RAMRequired: "8GB",
			Description: "Base Llama 2 model, good general-purpose model",
			Priority:    PriorityEssential,
			Provider:    "ollama",
		},
		{
			Name:        "codellama",
			Size:        "3.8GB",
			RAMRequired: "8GB",
			Description: "Code-specialized Llama model, excellent for coding tasks",
			Priority:    PriorityEssential,
			Provider:    "ollama",
			Fallback:    "llama2",
		},
		{
			Name:        "mistral",
			Size:        "4.1GB",
			RAMRequired: "8GB",
			Description: "High-quality 7B model with good reasoning",
			Priority:    PriorityRecommended,
			Provider:    "ollama",
			Fallback:    "llama2",
		},
		{
			Name:        "deepseek-coder",
			Size:        "4GB",
			RAMRequired: "8GB",
			Description: "Specialized coding model with strong performance",
			Priority:    PriorityRecommended,
			Provider:    "ollama",
			Fallback:    "codellama",
		},
		{
			Name:        "qwen2.5-coder",
			Size:        "4GB",
			RAMRequired: "8GB",
			Description: "Latest Qwen coding model",
			Priority:    PriorityRecommended,
			Provider:    "ollama",
			Fallback:    "codellama",
		},
		{
			Name:        "codellama:13b",
			Size:        "7.3GB",
			RAMRequired: "16GB",
			Description: "Larger CodeLlama with improved capabilities",
			Priority:    PriorityOptional,
			Provider:    "ollama",
			Fallback:    "codellama",
		},
		{
			Name:        "mixtral",
			Size:        "26GB",
			RAMRequired: "32GB",
			Description: "High-quality MoE model, excellent but resource-intensive",
			Priority:    PriorityOptional,
			Provider:    "ollama",
			Fallback:    "mistral",
		},
		{
			Name:        "llama2:70b",
			Size:        "40GB",
			RAMRequired: "64GB",
			Description: "Large Llama 2 model with superior capabilities",
			Priority:    PriorityOptional,
			Provider:    "ollama",
			Fallback:    "llama2:13b",
		},
	}}
}

// LoadCatalog reads and validates a catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog file: %w", err)
	}

	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("parsing catalog file: %w", err)
	}

	if err := catalog.validate(); err != nil {
		return nil, err
	}

	return &catalog, nil
}

func (c *Catalog) validate() error {
	seen := make(map[string]struct{}, len(c.Models))

	for i, model := range c.Models {
		if model.Name == "" {
			return fmt.Errorf("model %d: name is required", i)
		}

		if _, exists := seen[model.Name]; exists {
			return fmt.Errorf("model %d: duplicate name %q", i, model.Name)
		}

		seen[model.Name] = struct{}{}

		if model.Priority != "" {
			if _, ok := validPriorities[model.Priority]; !ok {
				return fmt.Errorf("model %q: unknown priority %q", model.Name, model.Priority)
			}
		}

		if model.RAMRequired != "" {
			if _, err := units.RAMInBytes(model.RAMRequired); err != nil {
				return fmt.Errorf("model %q: ram_required: %w", model.Name, err)
			}
		}
	}

	return nil
}

// Get looks up a model by its catalog name.
func (c *Catalog) Get(name string) (ModelInfo, bool) {
	for _, model := range c.Models {
		if model.Name == name {
			return model, true
		}
	}

	return ModelInfo{}, false
}

// RecommendFor returns the models that fit within the given total memory,
// ordered by priority then name.
func (c *Catalog) RecommendFor(totalMemBytes uint64) []ModelInfo {
	fits := make([]ModelInfo, 0, len(c.Models))

	for _, model := range c.Models {
		ram := model.RAMBytes()
		if ram == 0 || uint64(ram) <= totalMemBytes {
			fits = append(fits, model)
		}
	}

	sort.Slice(fits, func(i, j int) bool {
		ri, rj := rankOf(fits[i].Priority), rankOf(fits[j].Priority)
		if ri != rj {
			return ri < rj
		}

		return fits[i].Name < fits[j].Name
	})

	return fits
}

func rankOf(priority string) int {
	if rank, ok := priorityRank[priority]; ok {
		return rank
	}

	return len(priorityRank)
}

// ResolveFallbacks maps each requested model to itself when available, or
// to the first available model on its fallback chain. Names that resolve
// to nothing are returned unchanged so the caller can surface them.
func (c *Catalog) ResolveFallbacks(requested []string, has func(string) bool) []string {
	resolved := make([]string, 0, len(requested))

	for _, name := range requested {
		resolved = append(resolved, c.resolveFallback(name, has))
	}

	return resolved
}

func (c *Catalog) resolveFallback(name string, has func(string) bool) string {
	if has(name) {
		return name
	}

	seen := map[string]struct{}{name: {}}
	current := name

	for {
		info, ok := c.Get(current)
		if !ok || info.Fallback == "" {
			return name
		}

		next := info.Fallback
		if _, cycled := seen[next]; cycled {
			return name
		}

		seen[next] = struct{}{}

		if has(next) {
			return next
		}

		current = next
	}
}

// FormatSize renders a byte count for display, e.g. "7.3GiB".
func FormatSize(bytes int64) string {
	return units.BytesSize(float64(bytes))
}

// BaseName strips the tag from a model name: "codellama:13b" -> "codellama".
func BaseName(name string) string {
	if idx := strings.Index(name, ":"); idx >= 0 {
		return name[:idx]
	}

	return name
}
