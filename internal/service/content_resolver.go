package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/kursadbilgin/community-notify/internal/domain"
	"github.com/kursadbilgin/community-notify/internal/repository"
	"go.uber.org/zap"
)

const defaultLookupTimeout = 10 * time.Second

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+)\s*\}\}`)

// EntitySource fetches the entities whose fields feed dynamic template variables.
type EntitySource interface {
	GatheringByID(ctx context.Context, id string) (*domain.Gathering, error)
	CandidateByID(ctx context.Context, id string) (*domain.Candidate, error)
}

// PreparedContent is a content spec whose template, if any, has been looked up.
type PreparedContent struct {
	spec     domain.ContentSpec
	template *domain.Template
}

// ContentResolver turns a content spec into per-channel text.
type ContentResolver struct {
	templates repository.TemplateRepository
	entities  EntitySource
	timeout   time.Duration
	logger    *zap.Logger
}

func NewContentResolver(
	templates repository.TemplateRepository,
	entities EntitySource,
	timeout time.Duration,
	logger *zap.Logger,
) (*ContentResolver, error) {
	if templates == nil {
		return nil, fmt.Errorf("template repository is required")
	}
	if entities == nil {
		return nil, fmt.Errorf("entity source is required")
	}
	if timeout <= 0 {
		timeout = defaultLookupTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ContentResolver{
		templates: templates,
		entities:  entities,
		timeout:   timeout,
		logger:    logger,
	}, nil
}

// Prepare looks up the template referenced by spec. It fails with
// ErrTemplateNotFound when the key has no exact match.
func (r *ContentResolver) Prepare(ctx context.Context, spec domain.ContentSpec) (*PreparedContent, error) {
	if spec == nil {
		return nil, fmt.Errorf("%w: content is required", domain.ErrInvalidRequest)
	}

	tc, ok := spec.(domain.TemplateContent)
	if !ok {
		return &PreparedContent{spec: spec}, nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	key := strings.TrimSpace(tc.Key)
	tpl, err := r.templates.GetByKey(lookupCtx, key)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: %q", domain.ErrTemplateNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: template %q lookup failed: %v", domain.ErrContentUnavailable, key, err)
	}

	return &PreparedContent{spec: spec, template: tpl}, nil
}

// Render produces the text for both channels. Literal content is passed
// through untouched; template content is filled from defaults, entity data
// and caller variables, in increasing order of precedence.
func (r *ContentResolver) Render(ctx context.Context, prepared *PreparedContent) (domain.Rendered, error) {
	if prepared == nil || prepared.spec == nil {
		return domain.Rendered{}, fmt.Errorf("%w: content is required", domain.ErrInvalidRequest)
	}

	switch spec := prepared.spec.(type) {
	case domain.LiteralContent:
		text := domain.RenderedContent{
			Subject:       spec.Title,
			PrimaryBody:   spec.Body,
			SecondaryBody: spec.Subtitle,
		}
		return domain.Rendered{Push: text, Email: text}, nil
	case domain.TemplateContent:
		if prepared.template == nil {
			return domain.Rendered{}, fmt.Errorf("%w: template %q was not prepared", domain.ErrInvalidRequest, spec.Key)
		}
		entityVars, err := r.entityVariables(ctx, spec)
		if err != nil {
			return domain.Rendered{}, err
		}
		vars := mergeVariables(prepared.template.Defaults, entityVars, spec.Variables)
		rendered := RenderTemplate(prepared.template, vars)
		if missing := unresolvedPlaceholders(rendered); len(missing) > 0 {
			r.logger.Warn("template rendered with unresolved placeholders",
				zap.String("templateKey", spec.Key),
				zap.Strings("placeholders", missing),
			)
		}
		return rendered, nil
	default:
		return domain.Rendered{}, fmt.Errorf("%w: unsupported content kind %q", domain.ErrInvalidRequest, spec.Kind())
	}
}

// Resolve is Prepare followed by Render.
func (r *ContentResolver) Resolve(ctx context.Context, spec domain.ContentSpec) (domain.Rendered, error) {
	prepared, err := r.Prepare(ctx, spec)
	if err != nil {
		return domain.Rendered{}, err
	}
	return r.Render(ctx, prepared)
}

func (r *ContentResolver) entityVariables(ctx context.Context, spec domain.TemplateContent) (map[string]string, error) {
	vars := make(map[string]string)

	if id := strings.TrimSpace(spec.GatheringID); id != "" {
		lookupCtx, cancel := context.WithTimeout(ctx, r.timeout)
		gathering, err := r.entities.GatheringByID(lookupCtx, id)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("%w: gathering %q: %v", domain.ErrContentUnavailable, id, err)
		}
		vars["gatheringTitle"] = gathering.Title
		vars["gatheringLocation"] = gathering.Location
		if !gathering.StartsAt.IsZero() {
			startsAt := gathering.StartsAt.UTC()
			vars["gatheringDate"] = startsAt.Format("2006-01-02")
			vars["gatheringTime"] = startsAt.Format("15:04")
			vars["gatheringStartsAt"] = startsAt.Format(time.RFC3339)
		}
	}

	if id := strings.TrimSpace(spec.CandidateID); id != "" {
		lookupCtx, cancel := context.WithTimeout(ctx, r.timeout)
		candidate, err := r.entities.CandidateByID(lookupCtx, id)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("%w: candidate %q: %v", domain.ErrContentUnavailable, id, err)
		}
		vars["candidateName"] = candidate.Name
		vars["candidatePosition"] = candidate.Position
	}

	return vars, nil
}

// RenderTemplate fills every text field of tpl. Email falls back to the push
// text where the template has no email override.
func RenderTemplate(tpl *domain.Template, vars map[string]string) domain.Rendered {
	push := domain.RenderedContent{
		Subject:       RenderText(tpl.Title, vars),
		PrimaryBody:   RenderText(tpl.Body, vars),
		SecondaryBody: RenderText(tpl.Subtitle, vars),
	}

	email := push
	if tpl.EmailSubject != "" {
		email.Subject = RenderText(tpl.EmailSubject, vars)
	}
	if tpl.EmailBody != "" {
		email.PrimaryBody = RenderText(tpl.EmailBody, vars)
	}

	return domain.Rendered{Push: push, Email: email}
}

// RenderText substitutes {{name}} placeholders. A placeholder with no value
// is left in the output verbatim.
func RenderText(text string, vars map[string]string) string {
	if text == "" || !strings.Contains(text, "{{") {
		return text
	}

	return placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		if value, ok := vars[name]; ok {
			return value
		}
		return match
	})
}

func unresolvedPlaceholders(rendered domain.Rendered) []string {
	var names []string
	seen := make(map[string]struct{})
	for _, text := range []string{
		rendered.Push.Subject, rendered.Push.PrimaryBody, rendered.Push.SecondaryBody,
		rendered.Email.Subject, rendered.Email.PrimaryBody,
	} {
		for _, m := range placeholderPattern.FindAllStringSubmatch(text, -1) {
			if _, ok := seen[m[1]]; ok {
				continue
			}
			seen[m[1]] = struct{}{}
			names = append(names, m[1])
		}
	}
	return names
}

// mergeVariables applies sources in order; later sources win.
func mergeVariables(sources ...map[string]string) map[string]string {
	merged := make(map[string]string)
	for _, source := range sources {
		for k, v := range source {
			merged[k] = v
		}
	}
	return merged
}
