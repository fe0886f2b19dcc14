package bakery

import "encoding/json"

// Job status values reported by the bakery for stim, rollout, and bake jobs.
const (
	StatusPending  = "pending"
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// JobStatus is the status of a server-side job. Lines is the number of
// produced items, populated once the job is complete.
type JobStatus struct {
	Status string `json:"status"`
	Lines  int    `json:"lines,omitempty"`
}

// Terminal reports whether the status is a terminal state.
func (s JobStatus) Terminal() bool {
	return s.Status == StatusComplete || s.Status == StatusFailed
}

// Repo is a named repository record managed by the bakery.
type Repo struct {
	Name      string `json:"name"`
	BaseModel string `json:"base_model,omitempty"`
}

// RepoList is the response of the repo listing endpoint.
type RepoList struct {
	Items []Repo `json:"items"`
}

// Message is a chat message in the OpenAI messages format. Content is kept
// raw so multi-part and tool-call message bodies pass through untouched.
type Message struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// TextMessage builds a Message with a plain string content.
func TextMessage(role, content string) Message {
	b, _ := json.Marshal(content)
	return Message{Role: role, Content: b}
}

// Generator configures one source of stimuli for a target. Hardcoded
// generators carry explicit questions; oneshot_qs generators ask a model
// to produce NumQ variations.
type Generator struct {
	Type        string   `json:"type"`
	NumQ        int      `json:"numq"`
	Questions   []string `json:"questions,omitempty"`
	Model       string   `json:"model,omitempty"`
	Temperature float64  `json:"temperature,omitempty"`
}

// TargetOverrides configures a target on top of its template: stimulus
// generators plus the teacher/student prompt pair. A regularization target
// uses the same prompt for teacher and student.
type TargetOverrides struct {
	Generators         []Generator `json:"generators,omitempty"`
	ModelName          string      `json:"model_name,omitempty"`
	TeacherPrompt      string      `json:"teacher_prompt,omitempty"`
	StudentPrompt      string      `json:"student_prompt,omitempty"`
	NumTrajPerStimulus int         `json:"num_traj_per_stimulus,omitempty"`
}

// Dataset is one entry of a bake's training mix.
type Dataset struct {
	Target string  `json:"target"`
	Weight float64 `json:"weight"`
}

// BakeOverrides configures a bake on top of its template: the dataset mix
// and training hyperparameters.
type BakeOverrides struct {
	Datasets                       []Dataset      `json:"datasets,omitempty"`
	Data                           *BakeDataLimit `json:"data,omitempty"`
	MicroBatchSize                 int            `json:"micro_batch_size,omitempty"`
	ActivationCheckpointCPUOffload bool           `json:"activation_checkpoint_cpu_offload,omitempty"`
}

// BakeDataLimit bounds the token length of training examples.
type BakeDataLimit struct {
	MaxLength int `json:"max_length,omitempty"`
}

// JobOutput is a sample of items produced by a stim or rollout job.
type JobOutput struct {
	Output []string `json:"output"`
}
