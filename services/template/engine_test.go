package template

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractVariables(t *testing.T) {
	vars := ExtractVariables("Hi {{customerName}}, order {{confirmationNumber}} for {{customerName}} {{ bad }} {{}}")
	assert.Equal(t, []string{"confirmationNumber", "customerName"}, vars)
	assert.Empty(t, ExtractVariables("no placeholders { here }"))
}

func TestValidateTemplate(t *testing.T) {
	tests := []struct {
		name    string
		content string
		valid   bool
	}{
		{"plain text", "hello", true},
		{"single braces are literal", "a {b} c", true},
		{"valid placeholders", "{{a}} and {{b_2}}", true},
		{"unclosed", "hello {{name", false},
		{"stray close", "hello }} there", false},
		{"empty", "x {{}} y", false},
		{"whitespace in name", "{{ name }}", false},
		{"leading digit", "{{1abc}}", false},
		{"nested", "{{a{{b}}}}", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ValidateTemplate(tt.content)
			assert.Equal(t, tt.valid, res.IsValid, res.Errors)
			if !tt.valid {
				assert.NotEmpty(t, res.Errors)
			}
		})
	}
}

func TestRender(t *testing.T) {
	out, err := Render("Booking {{confirmationNumber}}", "Hi {{customerName}}, total {{totalAmount}}", map[string]any{
		"confirmationNumber": "TRP-1",
		"customerName":       "Ana",
		"totalAmount":        129.5,
	})
	require.NoError(t, err)
	assert.Equal(t, "Booking TRP-1", out.Title)
	assert.Equal(t, "Hi Ana, total 129.5", out.Content)
}

func TestRenderNamesEveryMissingVariable(t *testing.T) {
	_, err := Render("{{b}}", "{{a}} {{c}}", map[string]any{"c": "x"})
	require.Error(t, err)

	var renderErr *RenderError
	require.True(t, errors.As(err, &renderErr))
	assert.Equal(t, []string{"a", "b"}, renderErr.Missing)
}

func TestRenderLeavesNoPlaceholders(t *testing.T) {
	vars := map[string]any{"a": "{{b}}", "b": "x"}
	out, err := Render("", "{{a}}-{{b}}", vars)
	require.NoError(t, err)
	// substituted values are not re-expanded
	assert.Equal(t, "{{b}}-x", out.Content)
}

func TestRenderRejectsBadSyntax(t *testing.T) {
	_, err := Render("ok", "broken {{name", map[string]any{"name": "x"})
	var syntaxErr *SyntaxError
	require.True(t, errors.As(err, &syntaxErr))
	assert.Len(t, syntaxErr.Problems, 1)
}

func TestEnginePrepare(t *testing.T) {
	vars, err := NewEngine().Prepare("{{title}}", "{{body}} {{title}}")
	require.NoError(t, err)
	assert.Equal(t, []string{"body", "title"}, vars)
}
