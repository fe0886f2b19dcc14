// Package plan defines the declarative bake plan format consumed by the
// pipeline: a repository, its prompts, one or more targets (including
// regularization targets), and the bake that mixes them.
package plan

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/breadml/bakectl/internal/bakery"
)

// Plan describes a complete bake: repo, prompts, targets, and the bake
// configuration. Plans are stored as JSON files; see examples/.
type Plan struct {
	Repo      string   `json:"repo"`
	BaseModel string   `json:"base_model,omitempty"`
	Prompts   []Prompt `json:"prompts"`
	Targets   []Target `json:"targets"`
	Bake      Bake     `json:"bake"`
}

// Prompt is a named prompt definition. Messages may be given inline or
// loaded from a file (JSON messages array, plain text, or PDF); tools may
// be given inline or loaded from a JSON file.
type Prompt struct {
	Name         string           `json:"name"`
	Messages     []bakery.Message `json:"messages,omitempty"`
	MessagesFile string           `json:"messages_file,omitempty"`
	Tools        json.RawMessage  `json:"tools,omitempty"`
	ToolsFile    string           `json:"tools_file,omitempty"`
}

// Target bundles stimulus generators with a teacher/student prompt pair
// and its weight in the bake's dataset mix. A regularization target sets
// Teacher == Student to anchor existing behavior.
type Target struct {
	Name               string             `json:"name"`
	Template           string             `json:"template,omitempty"`
	Generators         []bakery.Generator `json:"generators"`
	Teacher            string             `json:"teacher_prompt"`
	Student            string             `json:"student_prompt"`
	NumTrajPerStimulus int                `json:"num_traj_per_stimulus,omitempty"`
	Weight             float64            `json:"weight"`
}

// Regularization reports whether the target anchors behavior rather than
// shifting it.
func (t Target) Regularization() bool {
	return t.Teacher == t.Student
}

// Bake names the training job and its hyperparameters.
type Bake struct {
	Name                           string `json:"name"`
	ModelName                      string `json:"model_name"`
	Template                       string `json:"template,omitempty"`
	MaxLength                      int    `json:"max_length,omitempty"`
	MicroBatchSize                 int    `json:"micro_batch_size,omitempty"`
	ActivationCheckpointCPUOffload bool   `json:"activation_checkpoint_cpu_offload,omitempty"`
}

// Load reads a plan file, resolves file references relative to the plan's
// directory, and validates the result.
func Load(path string) (Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Plan{}, fmt.Errorf("reading plan: %w", err)
	}

	var p Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return Plan{}, fmt.Errorf("parsing plan %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	for i := range p.Prompts {
		if err := p.Prompts[i].resolve(dir); err != nil {
			return Plan{}, fmt.Errorf("prompt %s: %w", p.Prompts[i].Name, err)
		}
	}

	if err := p.Validate(); err != nil {
		return Plan{}, fmt.Errorf("invalid plan %s: %w", path, err)
	}
	return p, nil
}

func (pr *Prompt) resolve(dir string) error {
	if pr.MessagesFile != "" {
		if len(pr.Messages) > 0 {
			return fmt.Errorf("both messages and messages_file set")
		}
		msgs, err := LoadMessagesFile(filepath.Join(dir, pr.MessagesFile))
		if err != nil {
			return err
		}
		pr.Messages = msgs
	}
	if pr.ToolsFile != "" {
		if len(pr.Tools) > 0 {
			return fmt.Errorf("both tools and tools_file set")
		}
		tools, err := LoadToolsFile(filepath.Join(dir, pr.ToolsFile))
		if err != nil {
			return err
		}
		pr.Tools = tools
	}
	return nil
}

// Validate checks internal consistency: names present, every target's
// prompt references resolve to declared prompts, and the dataset mix is
// non-empty.
func (p Plan) Validate() error {
	if p.Repo == "" {
		return fmt.Errorf("repo is required")
	}
	if len(p.Prompts) == 0 {
		return fmt.Errorf("at least one prompt is required")
	}
	if len(p.Targets) == 0 {
		return fmt.Errorf("at least one target is required")
	}
	if p.Bake.Name == "" {
		return fmt.Errorf("bake.name is required")
	}
	if p.Bake.ModelName == "" {
		return fmt.Errorf("bake.model_name is required")
	}

	prompts := make(map[string]bool, len(p.Prompts))
	for _, pr := range p.Prompts {
		if pr.Name == "" {
			return fmt.Errorf("prompt name is required")
		}
		if prompts[pr.Name] {
			return fmt.Errorf("duplicate prompt %q", pr.Name)
		}
		if len(pr.Messages) == 0 {
			return fmt.Errorf("prompt %q has no messages", pr.Name)
		}
		prompts[pr.Name] = true
	}

	for _, t := range p.Targets {
		if t.Name == "" {
			return fmt.Errorf("target name is required")
		}
		if len(t.Generators) == 0 {
			return fmt.Errorf("target %q has no generators", t.Name)
		}
		if !prompts[t.Teacher] {
			return fmt.Errorf("target %q references unknown teacher prompt %q", t.Name, t.Teacher)
		}
		if !prompts[t.Student] {
			return fmt.Errorf("target %q references unknown student prompt %q", t.Name, t.Student)
		}
		if t.Weight <= 0 {
			return fmt.Errorf("target %q needs a positive weight", t.Name)
		}
	}

	return nil
}

// Overrides builds the API overrides for a target. The bake's model name
// is attached so the server knows which base model to probe.
func (t Target) Overrides(modelName string) bakery.TargetOverrides {
	return bakery.TargetOverrides{
		Generators:         t.Generators,
		ModelName:          modelName,
		TeacherPrompt:      t.Teacher,
		StudentPrompt:      t.Student,
		NumTrajPerStimulus: t.NumTrajPerStimulus,
	}
}

// BakeOverrides builds the API overrides for the bake: the dataset mix
// from the targets' weights plus training hyperparameters.
func (p Plan) BakeOverrides() bakery.BakeOverrides {
	o := bakery.BakeOverrides{
		MicroBatchSize:                 p.Bake.MicroBatchSize,
		ActivationCheckpointCPUOffload: p.Bake.ActivationCheckpointCPUOffload,
	}
	for _, t := range p.Targets {
		o.Datasets = append(o.Datasets, bakery.Dataset{Target: t.Name, Weight: t.Weight})
	}
	if p.Bake.MaxLength > 0 {
		o.Data = &bakery.BakeDataLimit{MaxLength: p.Bake.MaxLength}
	}
	return o
}

// TemplateOrDefault returns the target's template, defaulting to "default".
func (t Target) TemplateOrDefault() string {
	if t.Template == "" {
		return "default"
	}
	return t.Template
}

// TemplateOrDefault returns the bake's template, defaulting to "default".
func (b Bake) TemplateOrDefault() string {
	if b.Template == "" {
		return "default"
	}
	return b.Template
}
