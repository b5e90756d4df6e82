package browser

import (
	"testing"

	"github.com/formsync/extension-core/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBuildFillScript_EmbedsFields(t *testing.T) {
	script, err := buildFillScript(models.Template{
		Name: "Login",
		Fields: []models.Field{
			{Name: "email", Value: "user@example.com", Placeholder: "E-mail"},
			{Name: "senha", Value: "s3cret"},
		},
	})
	require.NoError(t, err)

	assert.Contains(t, script, `"name":"email"`)
	assert.Contains(t, script, `"value":"user@example.com"`)
	assert.Contains(t, script, `"placeholder":"E-mail"`)
	assert.Contains(t, script, `"name":"senha"`)
}

func TestBuildFillScript_EscapesValues(t *testing.T) {
	script, err := buildFillScript(models.Template{
		Fields: []models.Field{
			{Name: "note", Value: `say "hi" </script>`},
		},
	})
	require.NoError(t, err)

	// json.Marshal must keep the value inside the string literal.
	assert.NotContains(t, script, `</script>`)
	assert.Contains(t, script, `\"hi\"`)
}

func TestBuildFillScript_EmptyTemplate(t *testing.T) {
	script, err := buildFillScript(models.Template{Name: "empty"})
	require.NoError(t, err)
	assert.Contains(t, script, "const fields = []")
}

func TestAutoSubmitEligible_SingleFormOnly(t *testing.T) {
	assert.True(t, autoSubmitEligible(FillReport{FormCount: 1}),
		"one form qualifies even with zero fields written")
	assert.False(t, autoSubmitEligible(FillReport{FormCount: 0, FilledCount: 3}))
	assert.False(t, autoSubmitEligible(FillReport{FormCount: 2, FilledCount: 3}),
		"several forms: never guess which to submit")
	assert.False(t, autoSubmitEligible(FillReport{FormCount: 1, Submitted: true}))
}

func TestScripts_CountAllForms(t *testing.T) {
	// The form tally and the submit gate look at every form on the
	// page, not just forms carrying a submit control. A page with one
	// submit-less form and one submittable form has two forms and must
	// not auto-submit.
	assert.Contains(t, fillScript, "forms: document.forms.length")
	assert.Contains(t, submitScript, "document.forms.length !== 1) return false")
}

func TestFillScript_ReadOnlySkippedSilently(t *testing.T) {
	// Only fields with no matching element land in the unfilled tally;
	// read-only and disabled matches are skipped without being counted.
	assert.Contains(t, fillScript, "if (!el) { unfilled.push(f.name); continue; }")
	assert.Contains(t, fillScript, "if (el.readOnly || el.disabled) { continue; }")
}

func TestNew_Defaults(t *testing.T) {
	f := New(nil)
	assert.NotZero(t, f.SubmitDelay)
	assert.False(t, f.Headless)

	f2 := New(zap.NewNop())
	assert.Equal(t, f.SubmitDelay, f2.SubmitDelay)
}
