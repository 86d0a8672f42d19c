// Package template renders notification titles and bodies with {{name}} placeholders.
package template

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var (
	identifierRe  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	placeholderRe = regexp.MustCompile(`\{\{([A-Za-z_][A-Za-z0-9_]*)\}\}`)
)

// ValidationResult reports template syntax problems in the order they occur.
type ValidationResult struct {
	IsValid bool     `json:"isValid"`
	Errors  []string `json:"errors"`
}

// Rendered is a title/content pair with every placeholder substituted.
type Rendered struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// ExtractVariables returns the sorted, de-duplicated placeholder names in content.
// Malformed placeholders are ignored.
func ExtractVariables(content string) []string {
	seen := map[string]bool{}
	for _, m := range placeholderRe.FindAllStringSubmatch(content, -1) {
		seen[m[1]] = true
	}
	vars := make([]string, 0, len(seen))
	for name := range seen {
		vars = append(vars, name)
	}
	sort.Strings(vars)
	return vars
}

// ValidateTemplate checks placeholder syntax: balanced braces, no nesting,
// non-empty identifier names and no stray closing braces.
func ValidateTemplate(content string) ValidationResult {
	var errs []string
	i := 0
	for i < len(content) {
		switch {
		case strings.HasPrefix(content[i:], "{{"):
			rest := content[i+2:]
			end := strings.Index(rest, "}}")
			if end < 0 {
				errs = append(errs, fmt.Sprintf("unclosed '{{' at position %d", i))
				i = len(content)
				continue
			}
			inner := rest[:end]
			switch {
			case strings.Contains(inner, "{{"):
				errs = append(errs, fmt.Sprintf("nested placeholder at position %d", i))
			case inner == "":
				errs = append(errs, fmt.Sprintf("empty placeholder at position %d", i))
			case !identifierRe.MatchString(inner):
				errs = append(errs, fmt.Sprintf("malformed placeholder %q at position %d", inner, i))
			}
			i += 2 + end + 2
		case strings.HasPrefix(content[i:], "}}"):
			errs = append(errs, fmt.Sprintf("unmatched '}}' at position %d", i))
			i += 2
		default:
			i++
		}
	}
	return ValidationResult{IsValid: len(errs) == 0, Errors: errs}
}

// Render substitutes every placeholder in title and content. It fails closed:
// if any referenced variable is absent the result is a *RenderError naming all
// of them, and a syntactically invalid input yields a *SyntaxError.
func Render(title, content string, variables map[string]any) (Rendered, error) {
	if err := checkSyntax(title, content); err != nil {
		return Rendered{}, err
	}

	missing := map[string]bool{}
	for _, name := range append(ExtractVariables(title), ExtractVariables(content)...) {
		if v, ok := variables[name]; !ok || v == nil {
			missing[name] = true
		}
	}
	if len(missing) > 0 {
		keys := make([]string, 0, len(missing))
		for k := range missing {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return Rendered{}, &RenderError{Missing: keys}
	}

	return Rendered{
		Title:   substitute(title, variables),
		Content: substitute(content, variables),
	}, nil
}

func substitute(s string, variables map[string]any) string {
	return placeholderRe.ReplaceAllStringFunc(s, func(match string) string {
		name := match[2 : len(match)-2]
		return fmt.Sprint(variables[name])
	})
}

func checkSyntax(title, content string) error {
	var problems []string
	if r := ValidateTemplate(title); !r.IsValid {
		for _, e := range r.Errors {
			problems = append(problems, "title: "+e)
		}
	}
	if r := ValidateTemplate(content); !r.IsValid {
		for _, e := range r.Errors {
			problems = append(problems, "content: "+e)
		}
	}
	if len(problems) > 0 {
		return &SyntaxError{Problems: problems}
	}
	return nil
}

// Engine exposes the package functions behind a value that services can hold.
type Engine struct{}

func NewEngine() *Engine { return &Engine{} }

func (Engine) Render(title, content string, variables map[string]any) (Rendered, error) {
	return Render(title, content, variables)
}

func (Engine) Validate(content string) ValidationResult { return ValidateTemplate(content) }

func (Engine) Variables(content string) []string { return ExtractVariables(content) }

// Prepare validates a title/content pair and returns the union of their variables.
func (Engine) Prepare(title, content string) ([]string, error) {
	if err := checkSyntax(title, content); err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	for _, v := range append(ExtractVariables(title), ExtractVariables(content)...) {
		seen[v] = true
	}
	vars := make([]string, 0, len(seen))
	for v := range seen {
		vars = append(vars, v)
	}
	sort.Strings(vars)
	return vars, nil
}
