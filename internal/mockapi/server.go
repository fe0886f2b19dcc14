// Package mockapi implements an in-memory bakery server for local
// development and tests. It accepts the same routes as the real service,
// simulates job progress (jobs complete after a fixed number of status
// reads), and streams canned chat completions over SSE.
package mockapi

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/breadml/bakectl/internal/bakery"
)

const maxRequestBodySize = 1 << 20 // 1MB

// DefaultPollsToComplete is how many status reads a started job stays
// "running" before flipping to "complete".
const DefaultPollsToComplete = 2

// Server holds the in-memory bakery state behind the mock routes.
type Server struct {
	token           string
	pollsToComplete int

	mu    sync.Mutex
	repos map[string]*repoState
}

type repoState struct {
	info    bakery.Repo
	prompts map[string]json.RawMessage
	targets map[string]*targetState
	bakes   map[string]*bakeState
}

type targetState struct {
	spec    json.RawMessage
	stim    jobState
	rollout jobState
}

type bakeState struct {
	spec json.RawMessage
	job  jobState
}

// jobState simulates a server-side job: it reports "running" until it has
// been polled pollsToComplete times, then "complete".
type jobState struct {
	started bool
	polls   int
}

func (j *jobState) status(pollsToComplete, lines int) bakery.JobStatus {
	if !j.started {
		return bakery.JobStatus{Status: bakery.StatusPending}
	}
	j.polls++
	if j.polls >= pollsToComplete {
		return bakery.JobStatus{Status: bakery.StatusComplete, Lines: lines}
	}
	return bakery.JobStatus{Status: bakery.StatusRunning}
}

// NewServer creates a mock bakery requiring the given bearer token.
func NewServer(token string) *Server {
	return &Server{
		token:           token,
		pollsToComplete: DefaultPollsToComplete,
		repos:           make(map[string]*repoState),
	}
}

// SetPollsToComplete overrides how many status reads a job needs before
// completing. Used by tests exercising the poller loop.
func (s *Server) SetPollsToComplete(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pollsToComplete = n
}

// Handler returns the mock bakery's HTTP routes. The chat completions
// endpoint lives on the same handler even though the real inference
// service is a separate host; pointing both base URLs at the mock works.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(bearerAuth(s.token))

	r.Get("/v1/repos", s.handleListRepos)
	r.Put("/v1/repos/{repo}", s.handleSetRepo)
	r.Put("/v1/repos/{repo}/prompts/{name}", s.handleSetPrompt)
	r.Put("/v1/repos/{repo}/targets/{name}", s.handleSetTarget)
	r.Post("/v1/repos/{repo}/targets/{name}/stim/run", s.handleRunJob(stimJob))
	r.Get("/v1/repos/{repo}/targets/{name}/stim", s.handleJobStatus(stimJob))
	r.Get("/v1/repos/{repo}/targets/{name}/stim/output", s.handleJobOutput("stimulus"))
	r.Post("/v1/repos/{repo}/targets/{name}/rollout/run", s.handleRunJob(rolloutJob))
	r.Get("/v1/repos/{repo}/targets/{name}/rollout", s.handleJobStatus(rolloutJob))
	r.Get("/v1/repos/{repo}/targets/{name}/rollout/output", s.handleJobOutput("trajectory"))
	r.Put("/v1/repos/{repo}/bakes/{name}", s.handleSetBake)
	r.Get("/v1/repos/{repo}/bakes/{name}", s.handleBakeStatus)
	r.Post("/v1/repos/{repo}/bakes/{name}/run", s.handleRunBake)

	r.Post("/v1/chat/completions", s.handleChatCompletions)

	return r
}

func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(auth, prefix) || subtle.ConstantTimeCompare([]byte(auth[len(prefix):]), []byte(token)) != 1 {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type jobKind int

const (
	stimJob jobKind = iota
	rolloutJob
)

func (s *Server) handleListRepos(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	list := bakery.RepoList{Items: []bakery.Repo{}}
	for _, rs := range s.repos {
		list.Items = append(list.Items, rs.info)
	}
	s.mu.Unlock()

	writeJSON(w, list)
}

func (s *Server) handleSetRepo(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "repo")

	var repo bakery.Repo
	if err := decodeBody(w, r, &repo); err != nil {
		return
	}
	repo.Name = name

	s.mu.Lock()
	if existing, ok := s.repos[name]; ok {
		existing.info = repo
	} else {
		s.repos[name] = &repoState{
			info:    repo,
			prompts: make(map[string]json.RawMessage),
			targets: make(map[string]*targetState),
			bakes:   make(map[string]*bakeState),
		}
	}
	s.mu.Unlock()

	writeJSON(w, repo)
}

func (s *Server) handleSetPrompt(w http.ResponseWriter, r *http.Request) {
	var body json.RawMessage
	if err := decodeBody(w, r, &body); err != nil {
		return
	}

	s.mu.Lock()
	rs, ok := s.repos[chi.URLParam(r, "repo")]
	if ok {
		rs.prompts[chi.URLParam(r, "name")] = body
	}
	s.mu.Unlock()

	if !ok {
		httpError(w, http.StatusNotFound, "not_found", "repo %s does not exist", chi.URLParam(r, "repo"))
		return
	}
	writeJSON(w, map[string]string{"name": chi.URLParam(r, "name")})
}

func (s *Server) handleSetTarget(w http.ResponseWriter, r *http.Request) {
	var body json.RawMessage
	if err := decodeBody(w, r, &body); err != nil {
		return
	}

	s.mu.Lock()
	rs, ok := s.repos[chi.URLParam(r, "repo")]
	if ok {
		name := chi.URLParam(r, "name")
		if t, exists := rs.targets[name]; exists {
			t.spec = body
		} else {
			rs.targets[name] = &targetState{spec: body}
		}
	}
	s.mu.Unlock()

	if !ok {
		httpError(w, http.StatusNotFound, "not_found", "repo %s does not exist", chi.URLParam(r, "repo"))
		return
	}
	writeJSON(w, map[string]string{"name": chi.URLParam(r, "name")})
}

func (s *Server) target(r *http.Request) (*targetState, bool) {
	rs, ok := s.repos[chi.URLParam(r, "repo")]
	if !ok {
		return nil, false
	}
	t, ok := rs.targets[chi.URLParam(r, "name")]
	return t, ok
}

func (s *Server) handleRunJob(kind jobKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		t, ok := s.target(r)
		if ok {
			job := t.job(kind)
			job.started = true
			job.polls = 0
		}
		s.mu.Unlock()

		if !ok {
			httpError(w, http.StatusNotFound, "not_found", "target %s does not exist", chi.URLParam(r, "name"))
			return
		}
		writeJSON(w, map[string]string{"status": bakery.StatusRunning})
	}
}

func (s *Server) handleJobStatus(kind jobKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		t, ok := s.target(r)
		var status bakery.JobStatus
		if ok {
			status = t.job(kind).status(s.pollsToComplete, 12)
		}
		s.mu.Unlock()

		if !ok {
			httpError(w, http.StatusNotFound, "not_found", "target %s does not exist", chi.URLParam(r, "name"))
			return
		}
		writeJSON(w, status)
	}
}

func (t *targetState) job(kind jobKind) *jobState {
	if kind == stimJob {
		return &t.stim
	}
	return &t.rollout
}

func (s *Server) handleJobOutput(label string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 3
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "limit must be a positive integer")
				return
			}
			limit = n
		}

		s.mu.Lock()
		_, ok := s.target(r)
		s.mu.Unlock()
		if !ok {
			httpError(w, http.StatusNotFound, "not_found", "target %s does not exist", chi.URLParam(r, "name"))
			return
		}

		out := bakery.JobOutput{Output: make([]string, 0, limit)}
		for i := 0; i < limit; i++ {
			out.Output = append(out.Output, fmt.Sprintf("sample %s %d for %s", label, i+1, chi.URLParam(r, "name")))
		}
		writeJSON(w, out)
	}
}

func (s *Server) handleSetBake(w http.ResponseWriter, r *http.Request) {
	var body json.RawMessage
	if err := decodeBody(w, r, &body); err != nil {
		return
	}

	s.mu.Lock()
	rs, ok := s.repos[chi.URLParam(r, "repo")]
	if ok {
		name := chi.URLParam(r, "name")
		if b, exists := rs.bakes[name]; exists {
			b.spec = body
		} else {
			rs.bakes[name] = &bakeState{spec: body}
		}
	}
	s.mu.Unlock()

	if !ok {
		httpError(w, http.StatusNotFound, "not_found", "repo %s does not exist", chi.URLParam(r, "repo"))
		return
	}
	writeJSON(w, map[string]string{"name": chi.URLParam(r, "name")})
}

func (s *Server) bake(r *http.Request) (*bakeState, bool) {
	rs, ok := s.repos[chi.URLParam(r, "repo")]
	if !ok {
		return nil, false
	}
	b, ok := rs.bakes[chi.URLParam(r, "name")]
	return b, ok
}

func (s *Server) handleRunBake(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	b, ok := s.bake(r)
	if ok {
		b.job.started = true
		b.job.polls = 0
	}
	s.mu.Unlock()

	if !ok {
		httpError(w, http.StatusNotFound, "not_found", "bake %s does not exist", chi.URLParam(r, "name"))
		return
	}
	writeJSON(w, map[string]string{"status": bakery.StatusRunning})
}

func (s *Server) handleBakeStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	b, ok := s.bake(r)
	var status bakery.JobStatus
	if ok {
		status = b.job.status(s.pollsToComplete, 0)
	}
	s.mu.Unlock()

	if !ok {
		httpError(w, http.StatusNotFound, "not_found", "bake %s does not exist", chi.URLParam(r, "name"))
		return
	}
	writeJSON(w, status)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
