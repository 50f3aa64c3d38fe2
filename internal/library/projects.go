package library

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dastaan/dastaan/internal/ttypes"
	"github.com/google/uuid"
	"github.com/mattn/go-runewidth"
	"github.com/sahilm/fuzzy"
)

const (
	projectsKey = "projects"
	draftKey    = "draft"

	// TitleWidth is the display width titles are truncated to.
	TitleWidth = 30
)

// Project is a saved piece of text with the settings it was narrated with.
type Project struct {
	ID        string                    `json:"id"`
	Title     string                    `json:"title"`
	Content   string                    `json:"content"`
	Settings  ttypes.GenerationSettings `json:"settings"`
	Timestamp int64                     `json:"timestamp"`
}

// Time returns the save time.
func (p Project) Time() time.Time {
	return time.UnixMilli(p.Timestamp)
}

// Draft is the auto-saved working text.
type Draft struct {
	Text     string                    `json:"text"`
	Settings ttypes.GenerationSettings `json:"settings"`
}

// Title derives a project title from the first line of content.
func Title(content string, at time.Time) string {
	line := strings.TrimSpace(content)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	if line == "" {
		return "Untitled Project " + at.Format("2006-01-02")
	}
	return runewidth.Truncate(line, TitleWidth, "...")
}

// SaveProject stores content as a new project and returns it.
func (s *Store) SaveProject(ctx context.Context, content string, settings ttypes.GenerationSettings) (Project, error) {
	now := time.Now()
	p := Project{
		ID:        uuid.NewString(),
		Title:     Title(content, now),
		Content:   content,
		Settings:  settings,
		Timestamp: now.UnixMilli(),
	}

	projects, err := s.ListProjects(ctx)
	if err != nil {
		return Project{}, err
	}
	projects = append([]Project{p}, projects...)
	if err := s.putJSON(ctx, projectsKey, projects); err != nil {
		return Project{}, err
	}
	return p, nil
}

// ListProjects returns all projects, newest first.
func (s *Store) ListProjects(ctx context.Context) ([]Project, error) {
	var projects []Project
	err := s.getJSON(ctx, projectsKey, &projects)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sort.SliceStable(projects, func(i, j int) bool {
		return projects[i].Timestamp > projects[j].Timestamp
	})
	return projects, nil
}

// GetProject returns the project with id, accepting any unique id prefix.
func (s *Store) GetProject(ctx context.Context, id string) (Project, error) {
	projects, err := s.ListProjects(ctx)
	if err != nil {
		return Project{}, err
	}
	i, err := findProject(projects, id)
	if err != nil {
		return Project{}, err
	}
	return projects[i], nil
}

// DeleteProject removes the project with id.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	projects, err := s.ListProjects(ctx)
	if err != nil {
		return err
	}
	i, err := findProject(projects, id)
	if err != nil {
		return err
	}
	projects = append(projects[:i], projects[i+1:]...)
	return s.putJSON(ctx, projectsKey, projects)
}

func findProject(projects []Project, id string) (int, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return -1, ErrNotFound
	}
	match := -1
	for i, p := range projects {
		if p.ID == id {
			return i, nil
		}
		if strings.HasPrefix(p.ID, id) {
			if match >= 0 {
				return -1, fmt.Errorf("project id %q is ambiguous", id)
			}
			match = i
		}
	}
	if match < 0 {
		return -1, ErrNotFound
	}
	return match, nil
}

// FindProjects fuzzy-matches query against project titles, best match first.
func (s *Store) FindProjects(ctx context.Context, query string) ([]Project, error) {
	projects, err := s.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return projects, nil
	}

	titles := make([]string, len(projects))
	for i, p := range projects {
		titles[i] = p.Title
	}

	matches := fuzzy.Find(query, titles)
	found := make([]Project, 0, len(matches))
	for _, m := range matches {
		found = append(found, projects[m.Index])
	}
	return found, nil
}

// SaveDraft replaces the auto-saved draft.
func (s *Store) SaveDraft(ctx context.Context, d Draft) error {
	return s.putJSON(ctx, draftKey, d)
}

// LoadDraft returns the auto-saved draft. A missing draft is an empty Draft
// with default settings.
func (s *Store) LoadDraft(ctx context.Context) (Draft, error) {
	d := Draft{Settings: ttypes.DefaultSettings()}
	err := s.getJSON(ctx, draftKey, &d)
	if errors.Is(err, ErrNotFound) {
		return d, nil
	}
	return d, err
}

func (s *Store) putJSON(ctx context.Context, key string, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return s.Set(ctx, key, string(b))
}

func (s *Store) getJSON(ctx context.Context, key string, v interface{}) error {
	value, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(value), v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}
