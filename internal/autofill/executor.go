// Package autofill writes template values into page form elements and
// fires the event sequence host-page frameworks listen on.
package autofill

import (
	"strings"
	"time"

	"github.com/formsync/extension-core/internal/dom"
	"github.com/formsync/extension-core/internal/matcher"
	"github.com/formsync/extension-core/internal/models"
	"go.uber.org/zap"
)

// DefaultSubmitDelay lets host-page validation listeners settle before
// the form is auto-submitted.
const DefaultSubmitDelay = 500 * time.Millisecond

// Target pairs an element with the value to write into it.
type Target struct {
	Element *dom.Element
	Value   string
}

// Result reports what a fill pass accomplished.
type Result struct {
	// FilledCount is the number of elements actually written. Targets
	// skipped as read-only or disabled do not count.
	FilledCount int
	// Unfilled is the number of template fields with no matching
	// element (only set by FillTemplate).
	Unfilled int
	// Submitted reports whether the single-form auto-submit fired.
	Submitted bool
}

// Executor performs fills. Construct with New.
type Executor struct {
	// SubmitDelay is the pause before auto-submit. Tests set it to
	// zero to run without real timers.
	SubmitDelay time.Duration

	log *zap.Logger
}

// New returns an Executor with the default submit delay.
func New(log *zap.Logger) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{SubmitDelay: DefaultSubmitDelay, log: log}
}

// Fill writes every target and then considers auto-submit.
//
// Per target: skip read-only and disabled elements; focus; write the
// value through the native setter so framework-patched setters cannot
// swallow it; dispatch input, change, blur in that order so frameworks
// bound to any of the three observe the new value.
//
// Auto-submit fires only when the page has exactly one form and that
// form has a submit control. With zero or several forms nothing is
// submitted: guessing the form risks submitting the wrong one.
func (e *Executor) Fill(page *dom.Page, targets []Target) Result {
	var res Result
	for _, t := range targets {
		if t.Element == nil || t.Element.ReadOnly || t.Element.Disabled {
			continue
		}
		if !e.write(page, t.Element, t.Value) {
			continue
		}
		for _, ev := range []string{"input", "change", "blur"} {
			t.Element.Dispatch(ev)
		}
		res.FilledCount++
	}

	if forms := page.Forms(); len(forms) == 1 {
		if btn := forms[0].SubmitControl(); btn != nil {
			time.Sleep(e.SubmitDelay)
			btn.Click()
			res.Submitted = true
			e.log.Debug("auto-submitted single form", zap.String("action", forms[0].Action))
		}
	}
	return res
}

// FillTemplate resolves each template field through the matcher and
// fills the first usable element per field. Fields without a matching
// element are skipped and tallied, never fatal.
func (e *Executor) FillTemplate(page *dom.Page, m *matcher.Matcher, tpl models.Template) Result {
	var targets []Target
	unfilled := 0
	for _, f := range tpl.Fields {
		els := m.Resolve(page, f)
		if len(els) == 0 {
			unfilled++
			e.log.Debug("no element for template field", zap.String("field", f.Name))
			continue
		}
		targets = append(targets, Target{Element: els[0], Value: f.Value})
	}
	res := e.Fill(page, targets)
	res.Unfilled = unfilled
	return res
}

// write dispatches on the element kind and reports whether any state
// changed. Text-like elements take the native-setter path; selects,
// checkboxes and radios have their own state to flip. A select or radio
// with no option matching the value writes nothing.
func (e *Executor) write(page *dom.Page, el *dom.Element, value string) bool {
	el.Focus()
	switch {
	case el.Tag == "select":
		return writeSelect(el, value)
	case el.Type == "checkbox":
		el.Checked = parseBool(value)
		return true
	case el.Type == "radio":
		return writeRadio(page, el, value)
	default:
		el.SetValueNative(value)
		return true
	}
}

// writeSelect picks the option matching value: exact value or text
// first, then substring. Comma-separated values are tried in order.
func writeSelect(el *dom.Element, value string) bool {
	candidates := []string{value}
	if strings.Contains(value, ",") {
		candidates = nil
		for _, v := range strings.Split(value, ",") {
			candidates = append(candidates, strings.TrimSpace(v))
		}
	}
	for _, want := range candidates {
		for _, opt := range el.Options {
			if strings.EqualFold(opt.Value, want) || strings.EqualFold(opt.Text, want) {
				el.SetValueNative(opt.Value)
				return true
			}
		}
	}
	lw := strings.ToLower(value)
	for _, opt := range el.Options {
		if strings.Contains(strings.ToLower(opt.Value), lw) || strings.Contains(strings.ToLower(opt.Text), lw) {
			el.SetValueNative(opt.Value)
			return true
		}
	}
	return false
}

// writeRadio checks the radio in el's group whose value or label
// matches.
func writeRadio(page *dom.Page, el *dom.Element, value string) bool {
	name := el.Name()
	if name == "" {
		return false
	}
	lw := strings.ToLower(value)
	for _, r := range page.Inputs() {
		if r.Type != "radio" || r.Name() != name {
			continue
		}
		if strings.EqualFold(r.Value(), value) ||
			strings.Contains(strings.ToLower(r.Label), lw) ||
			(r.Value() != "" && strings.Contains(lw, strings.ToLower(r.Value()))) {
			r.Checked = true
			return true
		}
	}
	return false
}

// trueWords and falseWords include the Portuguese synonyms users put in
// template values.
var (
	trueWords  = []string{"true", "1", "sim", "yes", "on", "verdadeiro", "check", "checked"}
	falseWords = []string{"false", "0", "não", "no", "off", "falso", "uncheck", "unchecked"}
)

func parseBool(value string) bool {
	v := strings.ToLower(strings.TrimSpace(value))
	for _, w := range trueWords {
		if v == w {
			return true
		}
	}
	for _, w := range falseWords {
		if v == w {
			return false
		}
	}
	return false
}
