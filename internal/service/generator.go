package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"dayplanner/internal/model"
)

// Generator produces the first schedule for a user that has no history.
type Generator interface {
	Generate(ctx context.Context, user *model.User, date time.Time, inputs map[string]any) ([]model.Task, error)
}

// TemplateGenerator lays out empty named sections.
type TemplateGenerator struct {
	Sections []string
}

func NewTemplateGenerator(sections []string) *TemplateGenerator {
	return &TemplateGenerator{Sections: sections}
}

func (g *TemplateGenerator) Generate(_ context.Context, _ *model.User, _ time.Time, _ map[string]any) ([]model.Task, error) {
	tasks := make([]model.Task, 0, len(g.Sections))
	for _, name := range g.Sections {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		tasks = append(tasks, model.NewSection(uuid.NewString(), name))
	}
	return tasks, nil
}
