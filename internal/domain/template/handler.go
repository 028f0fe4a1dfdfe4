package template

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	reg *Registry
}

func NewHandler(reg *Registry) *Handler {
	return &Handler{reg: reg}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/templates", h.ListTemplates)
	api.GET("/templates/:specialty/:type/:name", h.GetTemplate)
}

// templateSummary is the list-view projection of a template.
type templateSummary struct {
	Path         string `json:"path"`
	Name         string `json:"name"`
	DocumentType string `json:"document_type"`
	Specialty    string `json:"specialty"`
	Fields       int    `json:"fields"`
	Sections     int    `json:"sections"`
	Rules        int    `json:"rules"`
	SkippedRules int    `json:"skipped_rules,omitempty"`
}

// templateDetail is the single-template projection, including per-field
// metadata but not the compiled expressions.
type templateDetail struct {
	templateSummary
	FieldList   []fieldDetail     `json:"field_list"`
	SectionList []string          `json:"section_list,omitempty"`
	Constraints constraintsDetail `json:"constraints"`
	RuleList    []ruleDetail      `json:"rule_list,omitempty"`
	Skipped     []skippedDetail   `json:"skipped,omitempty"`
}

type fieldDetail struct {
	Path           string `json:"path"`
	Kind           string `json:"kind"`
	Unit           string `json:"unit,omitempty"`
	ReferenceRange string `json:"reference_range,omitempty"`
	Calculated     string `json:"calculated,omitempty"`
}

type constraintsDetail struct {
	Genders            []string `json:"gender,omitempty"`
	AgeRange           *[2]int  `json:"age_range,omitempty"`
	RequiredConditions []string `json:"required_conditions,omitempty"`
	RelevantConditions []string `json:"conditions_relevant,omitempty"`
}

type ruleDetail struct {
	Name     string `json:"name"`
	Severity string `json:"severity"`
	Tier     string `json:"tier"`
	Kind     string `json:"kind"`
	Message  string `json:"message,omitempty"`
}

type skippedDetail struct {
	Rule   string `json:"rule"`
	Reason string `json:"reason"`
}

func summarize(t *Template) templateSummary {
	return templateSummary{
		Path:         t.Path(),
		Name:         t.Name,
		DocumentType: t.DocumentType,
		Specialty:    t.Specialty,
		Fields:       len(t.Fields),
		Sections:     len(t.Sections),
		Rules:        len(t.Rules),
		SkippedRules: len(t.SkippedRules),
	}
}

func (h *Handler) ListTemplates(c echo.Context) error {
	specialty := c.QueryParam("specialty")
	docType := c.QueryParam("document_type")

	var out []templateSummary
	for _, t := range h.reg.List() {
		if specialty != "" && t.Specialty != specialty {
			continue
		}
		if docType != "" && t.DocumentType != docType {
			continue
		}
		out = append(out, summarize(t))
	}
	if out == nil {
		out = []templateSummary{}
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) GetTemplate(c echo.Context) error {
	path := c.Param("specialty") + "/" + c.Param("type") + "/" + c.Param("name")
	t, err := h.reg.Resolve(path)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}

	detail := templateDetail{
		templateSummary: summarize(t),
		Constraints: constraintsDetail{
			Genders:            t.Constraints.Genders,
			AgeRange:           t.Constraints.AgeRange,
			RequiredConditions: t.Constraints.RequiredConditions,
			RelevantConditions: t.Constraints.RelevantConditions,
		},
	}
	for i := range t.Fields {
		f := &t.Fields[i]
		detail.FieldList = append(detail.FieldList, fieldDetail{
			Path:           f.Path,
			Kind:           f.Kind.String(),
			Unit:           f.Unit,
			ReferenceRange: f.ReferenceRange,
			Calculated:     f.CalcSrc,
		})
	}
	for _, s := range t.Sections {
		detail.SectionList = append(detail.SectionList, s.Name)
	}
	for i := range t.Rules {
		r := &t.Rules[i]
		detail.RuleList = append(detail.RuleList, ruleDetail{
			Name:     r.Name,
			Severity: string(r.Severity),
			Tier:     string(r.Tier),
			Kind:     string(r.Kind),
			Message:  r.Message,
		})
	}
	for _, s := range t.SkippedRules {
		detail.Skipped = append(detail.Skipped, skippedDetail{Rule: s.Rule, Reason: s.Reason})
	}
	return c.JSON(http.StatusOK, detail)
}
