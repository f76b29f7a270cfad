package client

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Endpoints maps each call to a "METHOD /path" template. Placeholders:
// {kind} (record kind ID), {id}, {level}.
type Endpoints struct {
	List     string `yaml:"list"`
	Get      string `yaml:"get"`
	Submit   string `yaml:"submit"`
	Stats    string `yaml:"stats"`
	Approve  string `yaml:"approve"`
	Reject   string `yaml:"reject"`
	Bulk     string `yaml:"bulk"`
	MarkPaid string `yaml:"mark_paid"`
	Notes    string `yaml:"notes"`
	Scenario string `yaml:"scenario"`
}

func DefaultEndpoints() Endpoints {
	return Endpoints{
		List:     "GET /api/{kind}s",
		Get:      "GET /api/{kind}s/{id}",
		Submit:   "POST /api/{kind}s",
		Stats:    "GET /api/{kind}s/stats",
		Approve:  "PATCH /api/{kind}s/{id}/{level}-approve",
		Reject:   "PATCH /api/{kind}s/{id}/reject",
		Bulk:     "POST /api/{kind}s/bulk",
		MarkPaid: "PATCH /api/{kind}s/{id}/mark-paid",
		Notes:    "PATCH /api/{kind}s/{id}/notes",
		Scenario: "POST /api/scenarios/load",
	}
}

// LoadEndpoints reads a YAML file over the defaults. Keys left out keep
// their default template.
func LoadEndpoints(path string) (Endpoints, error) {
	e := DefaultEndpoints()
	b, err := os.ReadFile(path)
	if err != nil {
		return e, fmt.Errorf("failed to read endpoints: %w", err)
	}
	if err := yaml.Unmarshal(b, &e); err != nil {
		return e, fmt.Errorf("failed to parse endpoints %s: %w", path, err)
	}
	for name, tmpl := range e.all() {
		if _, _, err := split(tmpl); err != nil {
			return e, fmt.Errorf("endpoint %s: %w", name, err)
		}
	}
	return e, nil
}

func (e Endpoints) all() map[string]string {
	return map[string]string{
		"list": e.List, "get": e.Get, "submit": e.Submit, "stats": e.Stats,
		"approve": e.Approve, "reject": e.Reject, "bulk": e.Bulk,
		"mark_paid": e.MarkPaid, "notes": e.Notes, "scenario": e.Scenario,
	}
}

func split(tmpl string) (method, path string, err error) {
	method, path, ok := strings.Cut(strings.TrimSpace(tmpl), " ")
	path = strings.TrimSpace(path)
	if !ok || method == "" || !strings.HasPrefix(path, "/") {
		return "", "", fmt.Errorf("want \"METHOD /path\", got %q", tmpl)
	}
	return strings.ToUpper(method), path, nil
}

// expand fills the placeholders of tmpl. Values are path-escaped.
func expand(tmpl string, vars map[string]string) (method, path string, err error) {
	method, path, err = split(tmpl)
	if err != nil {
		return "", "", err
	}
	pairs := make([]string, 0, 2*len(vars))
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", url.PathEscape(v))
	}
	path = strings.NewReplacer(pairs...).Replace(path)
	if i := strings.IndexByte(path, '{'); i >= 0 {
		return "", "", fmt.Errorf("unfilled placeholder in %q", path)
	}
	return method, path, nil
}
