package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/richinex/quill/llm"
)

// DefaultTools is the toolset an agent gets when its spec has no tools key.
var DefaultTools = []string{"todo"}

// OutputType selects how the final answer is written out.
type OutputType string

const (
	OutputText OutputType = "str"
	OutputJSON OutputType = "json"
)

// Instructions accepts either a single string or a list of strings,
// which are joined with newlines.
type Instructions string

// UnmarshalYAML implements yaml.Unmarshaler.
func (i *Instructions) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		*i = Instructions(s)
	case yaml.SequenceNode:
		var lines []string
		if err := value.Decode(&lines); err != nil {
			return err
		}
		*i = Instructions(strings.Join(lines, "\n"))
	default:
		return fmt.Errorf("line %d: instructions must be a string or a list of strings", value.Line)
	}
	return nil
}

// ModelSettings are per-agent overrides of the generation settings.
type ModelSettings struct {
	// Timeout bounds each model request, in seconds.
	Timeout        float64  `yaml:"timeout"`
	MaxTokens      uint32   `yaml:"max_tokens"`
	Temperature    *float32 `yaml:"temperature"`
	ThinkingBudget uint32   `yaml:"thinking_budget"`
}

// RequestTimeout returns Timeout as a duration; zero means no limit.
func (m ModelSettings) RequestTimeout() time.Duration {
	return time.Duration(m.Timeout * float64(time.Second))
}

// AgentSpec is an agent definition loaded from a YAML file.
type AgentSpec struct {
	Model         string        `yaml:"model"`
	Instructions  Instructions  `yaml:"instructions"`
	Name          string        `yaml:"name"`
	Description   string        `yaml:"description"`
	OutputType    OutputType    `yaml:"output_type"`
	ModelSettings ModelSettings `yaml:"model_settings"`
	Tools         []string      `yaml:"tools"`
	BuiltinTools  []string      `yaml:"builtin_tools"`
	AgentTools    []string      `yaml:"agent_tools"`

	// Path is the file the spec was loaded from.
	Path string `yaml:"-"`
}

// ToolLookup reports whether a tool name is known.
type ToolLookup interface {
	Has(name string) bool
}

// ParseModel splits a "<provider>:<model>" identifier.
func ParseModel(id string) (llm.ProviderType, string, error) {
	provider, model, ok := strings.Cut(id, ":")
	if !ok {
		return 0, "", configError(fmt.Errorf("%w: model %q has no provider prefix", ErrUnknownProvider, id))
	}
	providerType, err := llm.ParseProviderType(strings.TrimSpace(provider))
	if err != nil {
		return 0, "", configError(fmt.Errorf("model %q: %w", id, err))
	}
	model = strings.TrimSpace(model)
	if model == "" {
		return 0, "", configError(fmt.Errorf("%w: model %q has no model name", ErrInvalidSpec, id))
	}
	return providerType, model, nil
}

// SpecPath returns the spec file for name inside dir. name may also be a
// path to a .yml or .yaml file.
func SpecPath(dir, name string) (string, error) {
	var candidates []string
	if ext := filepath.Ext(name); ext == ".yml" || ext == ".yaml" {
		candidates = []string{name, filepath.Join(dir, name)}
	} else {
		candidates = []string{
			filepath.Join(dir, name+".yml"),
			filepath.Join(dir, name+".yaml"),
		}
	}
	for _, path := range candidates {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", configError(fmt.Errorf("%w: %q in %s", ErrAgentNotFound, name, dir))
}

// LoadSpec finds and parses the spec for name inside dir.
func LoadSpec(dir, name string) (*AgentSpec, error) {
	path, err := SpecPath(dir, name)
	if err != nil {
		return nil, err
	}
	return LoadSpecFile(path)
}

// LoadSpecFile parses the spec at path and applies defaults.
func LoadSpecFile(path string) (*AgentSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, configError(fmt.Errorf("%w: %s", ErrAgentNotFound, path))
		}
		return nil, configError(fmt.Errorf("failed to read spec: %w", err))
	}

	var spec AgentSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, configError(fmt.Errorf("%w: %s: %w", ErrInvalidSpec, path, err))
	}
	spec.Path = path

	if spec.Name == "" {
		spec.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if spec.OutputType == "" {
		spec.OutputType = OutputText
	}
	if spec.Tools == nil {
		spec.Tools = append([]string(nil), DefaultTools...)
	}
	return &spec, nil
}

// Dir returns the directory the spec was loaded from.
func (s *AgentSpec) Dir() string {
	return filepath.Dir(s.Path)
}

// Provider returns the provider and model name of the spec's model.
func (s *AgentSpec) Provider() (llm.ProviderType, string, error) {
	return ParseModel(s.Model)
}

// Builtins returns the parsed builtin tools.
func (s *AgentSpec) Builtins() ([]llm.BuiltinTool, error) {
	builtins := make([]llm.BuiltinTool, 0, len(s.BuiltinTools))
	for _, name := range s.BuiltinTools {
		builtin, ok := llm.ParseBuiltinTool(name)
		if !ok {
			return nil, configError(fmt.Errorf("%w: %q in %s", ErrUnknownBuiltinTool, name, s.Name))
		}
		builtins = append(builtins, builtin)
	}
	return builtins, nil
}

// ToolName is the name under which this agent is exposed to a parent agent.
func (s *AgentSpec) ToolName() string {
	return strings.ReplaceAll(strings.ToLower(s.Name), "-", "_") + "_agent"
}

// toolDescriptionLen is how much of the instructions a parent agent sees.
const toolDescriptionLen = 200

// ToolDescription describes this agent to a parent agent: its name and the
// start of its instructions.
func (s *AgentSpec) ToolDescription() string {
	desc := fmt.Sprintf("Run the %s agent.", s.Name)
	instructions := []rune(strings.TrimSpace(string(s.Instructions)))
	if len(instructions) == 0 {
		return desc
	}
	if len(instructions) > toolDescriptionLen {
		return desc + " " + string(instructions[:toolDescriptionLen]) + "..."
	}
	return desc + " " + string(instructions)
}

// Validate checks everything that can be checked without a network call.
// The google provider's API key is mandatory and checked here.
func (s *AgentSpec) Validate(tools ToolLookup) error {
	if strings.TrimSpace(s.Model) == "" {
		return configError(fmt.Errorf("%w: %s: model is required", ErrInvalidSpec, s.Name))
	}
	if strings.TrimSpace(string(s.Instructions)) == "" {
		return configError(fmt.Errorf("%w: %s: instructions are required", ErrInvalidSpec, s.Name))
	}

	providerType, _, err := s.Provider()
	if err != nil {
		return err
	}
	if providerType == llm.ProviderGemini && providerType.LookupAPIKey() == "" {
		return configError(fmt.Errorf("%w: %s is not set", ErrMissingAPIKey, providerType.EnvVar()))
	}

	switch s.OutputType {
	case OutputText, OutputJSON:
	default:
		return configError(fmt.Errorf("%w: %s: output_type %q is not one of str, json",
			ErrInvalidSpec, s.Name, s.OutputType))
	}

	if s.ModelSettings.Timeout < 0 {
		return configError(fmt.Errorf("%w: %s: timeout must not be negative", ErrInvalidSpec, s.Name))
	}

	if _, err := s.Builtins(); err != nil {
		return err
	}

	for _, name := range s.Tools {
		if tools == nil || !tools.Has(name) {
			return configError(fmt.Errorf("%w: %q in %s", ErrUnknownTool, name, s.Name))
		}
	}

	for _, name := range s.AgentTools {
		if _, err := SpecPath(s.Dir(), name); err != nil {
			return fmt.Errorf("%s: agent_tools: %w", s.Name, err)
		}
	}
	return nil
}

// LoadTree loads the spec for name and, recursively, every spec it names in
// agent_tools, validating each one. Specs are keyed by their file path.
// A cycle in agent_tools is a configuration error.
func LoadTree(dir, name string, tools ToolLookup) (*AgentSpec, map[string]*AgentSpec, error) {
	specs := make(map[string]*AgentSpec)
	root, err := loadTree(dir, name, tools, specs, nil)
	if err != nil {
		return nil, nil, err
	}
	return root, specs, nil
}

func loadTree(dir, name string, tools ToolLookup, specs map[string]*AgentSpec, stack []string) (*AgentSpec, error) {
	path, err := SpecPath(dir, name)
	if err != nil {
		return nil, err
	}
	for _, p := range stack {
		if p == path {
			return nil, configError(fmt.Errorf("%w: agent_tools cycle through %s", ErrInvalidSpec, path))
		}
	}
	if spec, ok := specs[path]; ok {
		return spec, nil
	}

	spec, err := LoadSpecFile(path)
	if err != nil {
		return nil, err
	}
	if err := spec.Validate(tools); err != nil {
		return nil, err
	}

	stack = append(stack, path)
	for _, child := range spec.AgentTools {
		if _, err := loadTree(spec.Dir(), child, tools, specs, stack); err != nil {
			return nil, err
		}
	}
	specs[path] = spec
	return spec, nil
}

// ListSpecs loads every spec file in dir, sorted by name. Files that fail to
// parse are reported in the error map rather than aborting the listing.
func ListSpecs(dir string) ([]*AgentSpec, map[string]error, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, configError(fmt.Errorf("failed to read agents directory: %w", err))
	}

	var specs []*AgentSpec
	failures := make(map[string]error)
	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".yml" && ext != ".yaml") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		spec, err := LoadSpecFile(path)
		if err != nil {
			failures[path] = err
			continue
		}
		specs = append(specs, spec)
	}

	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs, failures, nil
}
