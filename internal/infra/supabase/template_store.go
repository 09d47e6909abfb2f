package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/plantmetrics/mfg-insights-api/internal/domain"
	"github.com/plantmetrics/mfg-insights-api/internal/infra/resilience"
)

// ============================================================
// CSV template store — list, create, update, delete, touch
// ============================================================

const templatesTable = "csv_templates"

// templateRow maps csv_templates columns. Timestamps arrive as strings and
// the header signature is kept raw so a malformed one can still be read.
type templateRow struct {
	ID              string                         `json:"id"`
	UserEmail       string                         `json:"user_email"`
	TemplateName    string                         `json:"template_name"`
	HeaderSignature json.RawMessage                `json:"header_signature"`
	MappingConfig   []domain.MappingEntry          `json:"mapping_config"`
	AnalysisConfig  *domain.TemplateAnalysisConfig `json:"analysis_config"`
	CreatedAt       string                         `json:"created_at"`
	LastUsedAt      *string                        `json:"last_used_at"`
}

func (r *templateRow) toDomain() domain.MappingTemplate {
	t := domain.MappingTemplate{
		ID:              r.ID,
		UserEmail:       r.UserEmail,
		TemplateName:    r.TemplateName,
		HeaderSignature: r.HeaderSignature,
		MappingConfig:   r.MappingConfig,
		AnalysisConfig:  r.AnalysisConfig,
	}
	t.CreatedAt = parseTimestamp(r.CreatedAt)
	if r.LastUsedAt != nil {
		lu := parseTimestamp(*r.LastUsedAt)
		t.LastUsedAt = &lu
	}
	return t
}

func parseTimestamp(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t, _ = time.Parse("2006-01-02T15:04:05", s)
	}
	return t
}

// ListTemplates returns all of one user's templates, most recently used
// first, never-used templates last by creation time. Matching code depends
// on this order: the first signature match wins.
func (c *Client) ListTemplates(ctx context.Context, owner string) ([]domain.MappingTemplate, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListTemplates")
	defer span.End()
	span.SetAttributes(attribute.String("template.owner", owner))

	var templates []domain.MappingTemplate

	err := resilience.Execute(ctx, c.cfg, c.cb, func() error {
		path := fmt.Sprintf("%s?user_email=eq.%s&order=last_used_at.desc.nullslast,created_at.desc",
			templatesTable, url.QueryEscape(owner))
		body, err := c.doRequest(ctx, http.MethodGet, path)
		if err != nil {
			return err
		}

		if body == nil || string(body) == "[]" {
			templates = []domain.MappingTemplate{}
			return nil
		}

		var rows []templateRow
		if err := json.Unmarshal(body, &rows); err != nil {
			return fmt.Errorf("decode csv_templates: %w", err)
		}

		templates = make([]domain.MappingTemplate, 0, len(rows))
		for i := range rows {
			templates = append(templates, rows[i].toDomain())
		}
		return nil
	})

	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/templates", Err: err}
	}

	return templates, nil
}

// CreateTemplate inserts a new template. The caller assigns the ID.
func (c *Client) CreateTemplate(ctx context.Context, t *domain.MappingTemplate) (*domain.MappingTemplate, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateTemplate")
	defer span.End()

	data := map[string]any{
		"id":               t.ID,
		"user_email":       t.UserEmail,
		"template_name":    t.TemplateName,
		"header_signature": t.HeaderSignature,
		"mapping_config":   t.MappingConfig,
		"created_at":       t.CreatedAt.UTC().Format(time.RFC3339),
	}
	if t.AnalysisConfig != nil {
		data["analysis_config"] = t.AnalysisConfig
	}

	body, err := c.doPost(ctx, templatesTable, data)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/templates", Err: err}
	}

	var rows []templateRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode csv_templates insert: %w", err)
	}
	if len(rows) == 0 {
		return t, nil
	}
	created := rows[0].toDomain()
	return &created, nil
}

// UpdateTemplate patches a template matched by id AND owner, so a user can
// only modify their own. Returns ErrNotFound when the filter matched nothing.
func (c *Client) UpdateTemplate(ctx context.Context, id, owner string, patch *domain.TemplatePatch) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateTemplate")
	defer span.End()
	span.SetAttributes(attribute.String("template.id", id))

	data := map[string]any{}
	if patch.TemplateName != nil {
		data["template_name"] = *patch.TemplateName
	}
	if patch.MappingConfig != nil {
		data["mapping_config"] = patch.MappingConfig
	}
	if patch.AnalysisConfig != nil {
		data["analysis_config"] = patch.AnalysisConfig
	}
	if len(data) == 0 {
		return nil
	}

	path := fmt.Sprintf("%s?id=eq.%s&user_email=eq.%s", templatesTable, url.QueryEscape(id), url.QueryEscape(owner))
	body, err := c.doPatch(ctx, path, data)
	if err != nil {
		return &domain.ErrExternalService{Service: "supabase/templates", Err: err}
	}

	if len(body) == 0 || string(body) == "[]" {
		return &domain.ErrNotFound{Resource: "template", ID: id}
	}
	return nil
}

// DeleteTemplate removes a template matched by id AND owner. Deleting a
// template that does not exist (or belongs to someone else) is a no-op.
func (c *Client) DeleteTemplate(ctx context.Context, id, owner string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteTemplate")
	defer span.End()
	span.SetAttributes(attribute.String("template.id", id))

	path := fmt.Sprintf("%s?id=eq.%s&user_email=eq.%s", templatesTable, url.QueryEscape(id), url.QueryEscape(owner))
	if err := c.doDelete(ctx, path); err != nil {
		return &domain.ErrExternalService{Service: "supabase/templates", Err: err}
	}
	return nil
}

// TouchTemplate refreshes last_used_at after a successful match. Best-effort:
// the template may have been deleted between match and touch.
func (c *Client) TouchTemplate(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "Supabase.TouchTemplate")
	defer span.End()
	span.SetAttributes(attribute.String("template.id", id))

	data := map[string]any{
		"last_used_at": time.Now().UTC().Format(time.RFC3339),
	}

	path := fmt.Sprintf("%s?id=eq.%s", templatesTable, url.QueryEscape(id))
	if _, err := c.doPatch(ctx, path, data); err != nil {
		return &domain.ErrExternalService{Service: "supabase/templates", Err: err}
	}
	return nil
}
