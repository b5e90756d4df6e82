package autofill

import (
	"testing"

	"github.com/formsync/extension-core/internal/dom"
	"github.com/formsync/extension-core/internal/matcher"
	"github.com/formsync/extension-core/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, src string) *dom.Page {
	t.Helper()
	p, err := dom.Parse(src)
	require.NoError(t, err)
	return p
}

func zeroDelay(t *testing.T) *Executor {
	t.Helper()
	e := New(nil)
	e.SubmitDelay = 0
	return e
}

func byName(t *testing.T, p *dom.Page, name string) *dom.Element {
	t.Helper()
	for _, el := range p.Elements() {
		if el.Name() == name {
			return el
		}
	}
	t.Fatalf("no element named %q", name)
	return nil
}

func TestFill_EventOrderReachesFrameworkListeners(t *testing.T) {
	p := parse(t, `<input type="text" name="email"><input type="text" name="tel">`)
	e := zeroDelay(t)

	// One framework binds only to input, another only to change. Both
	// must observe the value, which requires the exact dispatch order
	// input, change, blur.
	var seenOnInput, seenOnChange string
	email := byName(t, p, "email")
	email.AddEventListener("input", func(ev dom.Event) { seenOnInput = ev.Target.Value() })
	tel := byName(t, p, "tel")
	tel.AddEventListener("change", func(ev dom.Event) { seenOnChange = ev.Target.Value() })

	var order []string
	for _, typ := range []string{"input", "change", "blur"} {
		typ := typ
		email.AddEventListener(typ, func(dom.Event) { order = append(order, typ) })
	}

	res := e.Fill(p, []Target{
		{Element: email, Value: "a@b.com"},
		{Element: tel, Value: "555"},
	})

	assert.Equal(t, 2, res.FilledCount)
	assert.Equal(t, "a@b.com", seenOnInput)
	assert.Equal(t, "555", seenOnChange)
	assert.Equal(t, []string{"input", "change", "blur"}, order)
}

func TestFill_NativeSetterDefeatsPatchedSetter(t *testing.T) {
	p := parse(t, `<input type="text" name="email">`)
	el := byName(t, p, "email")
	el.PatchValueSetter(func(*dom.Element, string) bool { return false })

	res := zeroDelay(t).Fill(p, []Target{{Element: el, Value: "kept"}})
	assert.Equal(t, 1, res.FilledCount)
	assert.Equal(t, "kept", el.Value(), "patched setter must not swallow the fill")
}

func TestFill_SkipsReadOnlyAndDisabled(t *testing.T) {
	p := parse(t, `
		<input type="text" name="a" readonly>
		<input type="text" name="b" disabled>
		<input type="text" name="c">`)

	res := zeroDelay(t).Fill(p, []Target{
		{Element: byName(t, p, "a"), Value: "x"},
		{Element: byName(t, p, "b"), Value: "x"},
		{Element: byName(t, p, "c"), Value: "x"},
	})
	assert.Equal(t, 1, res.FilledCount)
	assert.Equal(t, "", byName(t, p, "a").Value())
	assert.Equal(t, "x", byName(t, p, "c").Value())
}

func TestFill_AutoSubmitSingleFormOnly(t *testing.T) {
	single := parse(t, `
		<form><input type="text" name="a"><button type="submit">Ok</button></form>`)
	res := zeroDelay(t).Fill(single, []Target{{Element: byName(t, single, "a"), Value: "x"}})
	assert.True(t, res.Submitted)
	assert.True(t, single.Forms()[0].Submitted())

	double := parse(t, `
		<form><input type="text" name="a"><button>Ok</button></form>
		<form><input type="text" name="b"><button>Ok</button></form>`)
	res = zeroDelay(t).Fill(double, []Target{{Element: byName(t, double, "a"), Value: "x"}})
	assert.False(t, res.Submitted, "two forms: never guess which to submit")
	assert.False(t, double.Forms()[0].Submitted())

	none := parse(t, `<input type="text" name="a">`)
	res = zeroDelay(t).Fill(none, []Target{{Element: byName(t, none, "a"), Value: "x"}})
	assert.False(t, res.Submitted)
}

func TestFill_NoSubmitControlNoSubmit(t *testing.T) {
	p := parse(t, `<form><input type="text" name="a"><input type="button" value="nop"></form>`)
	res := zeroDelay(t).Fill(p, []Target{{Element: byName(t, p, "a"), Value: "x"}})
	assert.False(t, res.Submitted)
}

func TestFill_TypelessButtonSubmits(t *testing.T) {
	p := parse(t, `<form><input type="text" name="a"><button>Enviar</button></form>`)
	res := zeroDelay(t).Fill(p, nil)
	assert.True(t, res.Submitted)
}

func TestFill_SelectCheckboxRadio(t *testing.T) {
	p := parse(t, `
		<form>
			<select name="estado">
				<option value="sp">São Paulo</option>
				<option value="rj">Rio de Janeiro</option>
			</select>
			<input type="checkbox" name="aceito">
			<input type="radio" name="plano" value="basico">
			<label><input type="radio" name="plano" value="pro"> Plano Pro</label>
			<button>Ok</button>
		</form>`)
	e := zeroDelay(t)

	res := e.Fill(p, []Target{
		{Element: byName(t, p, "estado"), Value: "Rio de Janeiro"},
		{Element: byName(t, p, "aceito"), Value: "sim"},
		{Element: p.Inputs()[2], Value: "Plano Pro"},
	})
	assert.Equal(t, 3, res.FilledCount)
	assert.Equal(t, "rj", byName(t, p, "estado").Value())
	assert.True(t, byName(t, p, "aceito").Checked)
	assert.False(t, p.Inputs()[2].Checked, "wrong radio in group stays unchecked")
	assert.True(t, p.Inputs()[3].Checked, "radio picked by label text")
}

func TestFill_UnmatchedSelectAndRadioNotCounted(t *testing.T) {
	p := parse(t, `
		<select name="estado">
			<option value="sp">São Paulo</option>
		</select>
		<input type="radio" name="plano" value="basico">
		<input type="text" name="nome">`)
	e := zeroDelay(t)

	events := 0
	byName(t, p, "estado").AddEventListener("input", func(dom.Event) { events++ })
	byName(t, p, "plano").AddEventListener("input", func(dom.Event) { events++ })

	res := e.Fill(p, []Target{
		{Element: byName(t, p, "estado"), Value: "Bahia"},
		{Element: byName(t, p, "plano"), Value: "premium"},
		{Element: byName(t, p, "nome"), Value: "Ana"},
	})

	assert.Equal(t, 1, res.FilledCount, "only the text write changed state")
	assert.Equal(t, "", byName(t, p, "estado").Value())
	assert.False(t, byName(t, p, "plano").Checked)
	assert.Equal(t, 0, events, "no events on elements left untouched")
}

func TestFillTemplate_CountsUnfilled(t *testing.T) {
	p := parse(t, `
		<form>
			<input type="email" name="email">
			<input type="text" name="telefone">
			<button type="submit">Enviar</button>
		</form>`)
	e := zeroDelay(t)
	m := matcher.New(matcher.DefaultRules(), nil)

	tpl := models.Template{
		Name: "Cadastro",
		Fields: []models.Field{
			{Name: "email", Value: "a@b.com", Type: "email"},
			{Name: "telefone", Value: "11 99999-0000", Type: "tel"},
			{Name: "inexistente", Value: "x", Type: "text"},
		},
	}

	res := e.FillTemplate(p, m, tpl)
	assert.Equal(t, 2, res.FilledCount, "filled = fields - unmatched")
	assert.Equal(t, 1, res.Unfilled)
	assert.Equal(t, "a@b.com", byName(t, p, "email").Value())
	assert.True(t, res.Submitted)
}

func TestParseBool_PortugueseSynonyms(t *testing.T) {
	assert.True(t, parseBool("Sim"))
	assert.True(t, parseBool("verdadeiro"))
	assert.False(t, parseBool("não"))
	assert.False(t, parseBool("qualquer coisa"))
}
