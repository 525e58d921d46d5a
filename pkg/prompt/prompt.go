// Package prompt renders the system prompts that configure study and coding
// sessions.
package prompt

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"slices"
	"strings"
	"text/template"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

// OpeningMessage is the first user turn a client sends after the system prompt.
const OpeningMessage = "Hello! I'm ready to start learning."

var ErrInvalidConfig = errors.New("invalid session config")

var (
	Levels            = []string{"beginner", "intermediate", "advanced", "expert"}
	StudySessionTypes = []string{"lesson", "quiz", "practice", "review"}
	Durations         = []int{10, 15, 30, 45, 60}
	CodeSessionTypes  = []string{"lesson", "debug", "build", "review"}
)

// TechStack describes one stack a coding session can target.
type TechStack struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	Context string `json:"context"`
}

// TechStacks in display order.
var TechStacks = []TechStack{
	{"nextjs-ts", "Next.js + TypeScript", "Next.js 16 with Turbopack, App Router, React 19.2, TypeScript 5.9, Server Actions and Tailwind CSS v4"},
	{"nextjs-js", "Next.js + JavaScript", "Next.js 16 with Turbopack, App Router, React 19.2, modern JavaScript and Tailwind CSS v4"},
	{"react-ts", "React + TypeScript", "React 19.2 with TypeScript 5.9, Hooks, Server Components and modern best practices"},
	{"react-js", "React + JavaScript", "React 19.2 with modern JavaScript, Hooks and functional components"},
	{"python", "Python", "Python 3.12+ with modern syntax, type hints and best practices"},
	{"node-ts", "Node.js + TypeScript", "Node.js with TypeScript 5.9, ES modules and modern async patterns"},
	{"node-js", "Node.js + JavaScript", "Node.js with modern JavaScript, ES modules and async/await"},
}

func findStack(id string) (TechStack, bool) {
	for _, s := range TechStacks {
		if s.ID == id {
			return s, true
		}
	}
	return TechStack{}, false
}

// StudyConfig configures a study session.
type StudyConfig struct {
	Topic       string `json:"topic"`
	Details     string `json:"details,omitempty"`
	Level       string `json:"level"`
	SessionType string `json:"sessionType"`
	Duration    int    `json:"duration"`
}

// WithDefaults fills unset fields the way a new study session starts.
func (c StudyConfig) WithDefaults() StudyConfig {
	if c.Level == "" {
		c.Level = "beginner"
	}
	if c.SessionType == "" {
		c.SessionType = "lesson"
	}
	if c.Duration == 0 {
		c.Duration = 15
	}
	return c
}

func (c StudyConfig) Validate() error {
	switch {
	case strings.TrimSpace(c.Topic) == "":
		return fmt.Errorf("%w: please enter a study topic", ErrInvalidConfig)
	case !slices.Contains(Levels, c.Level):
		return fmt.Errorf("%w: unknown level %q", ErrInvalidConfig, c.Level)
	case !slices.Contains(StudySessionTypes, c.SessionType):
		return fmt.Errorf("%w: unknown session type %q", ErrInvalidConfig, c.SessionType)
	case !slices.Contains(Durations, c.Duration):
		return fmt.Errorf("%w: unsupported duration %d", ErrInvalidConfig, c.Duration)
	}
	return nil
}

// CodeConfig configures a coding session.
type CodeConfig struct {
	Topic       string `json:"topic"`
	SessionType string `json:"sessionType"`
	TechStack   string `json:"techStack"`
}

func (c CodeConfig) WithDefaults() CodeConfig {
	if c.SessionType == "" {
		c.SessionType = "lesson"
	}
	if c.TechStack == "" {
		c.TechStack = "nextjs-ts"
	}
	return c
}

func (c CodeConfig) Validate() error {
	switch {
	case strings.TrimSpace(c.Topic) == "":
		return fmt.Errorf("%w: please enter a coding topic", ErrInvalidConfig)
	case !slices.Contains(CodeSessionTypes, c.SessionType):
		return fmt.Errorf("%w: unknown session type %q", ErrInvalidConfig, c.SessionType)
	}
	if _, ok := findStack(c.TechStack); !ok {
		return fmt.Errorf("%w: unknown tech stack %q", ErrInvalidConfig, c.TechStack)
	}
	return nil
}

// Study renders the opening system prompt for a study session.
func Study(c StudyConfig) (string, error) {
	c = c.WithDefaults()
	if err := c.Validate(); err != nil {
		return "", err
	}
	return render("study.tmpl", c)
}

// StudyFollowUp renders the short system prompt sent with later turns.
func StudyFollowUp(c StudyConfig) (string, error) {
	c = c.WithDefaults()
	if err := c.Validate(); err != nil {
		return "", err
	}
	return render("study_followup.tmpl", c)
}

// Code renders the system prompt for a coding session.
func Code(c CodeConfig) (string, error) {
	c = c.WithDefaults()
	if err := c.Validate(); err != nil {
		return "", err
	}
	stack, _ := findStack(c.TechStack)
	return render("code.tmpl", struct {
		CodeConfig
		Stack TechStack
	}{c, stack})
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}
