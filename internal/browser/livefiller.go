// Package browser drives a real Chrome instance over the DevTools
// protocol and replays the in-page fill behavior against live tabs.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/formsync/extension-core/internal/autofill"
	"github.com/formsync/extension-core/internal/models"
)

// FillReport summarizes one live fill run.
type FillReport struct {
	FilledCount int `json:"filled"`
	// Unfilled names the template fields with no matching element on
	// the page. Read-only and disabled matches are skipped silently.
	Unfilled []string `json:"unfilled"`
	// FormCount is the total number of forms on the page, with or
	// without a submit control.
	FormCount int      `json:"forms"`
	Submitted bool     `json:"submitted"`
}

// LiveFiller fills forms in a real browser tab. Field values must
// already be decoded; the filler writes them as-is.
type LiveFiller struct {
	// SubmitDelay is the pause between the last write and the
	// auto-submit of a lone form.
	SubmitDelay time.Duration
	// Headless runs Chrome without a window. Off by default so the
	// user can watch the fill.
	Headless bool
	// ChromePath overrides the Chrome binary lookup when set.
	ChromePath string

	log *zap.Logger
}

// New constructs a LiveFiller with the standard submit delay.
func New(log *zap.Logger) *LiveFiller {
	if log == nil {
		log = zap.NewNop()
	}
	return &LiveFiller{
		SubmitDelay: autofill.DefaultSubmitDelay,
		log:         log,
	}
}

// Fill opens url in a fresh Chrome context, writes every template field
// into its matching input and auto-submits when the page has exactly
// one form with a submit control.
func (f *LiveFiller) Fill(ctx context.Context, url string, tpl models.Template) (*FillReport, error) {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if !f.Headless {
		opts = append(opts,
			chromedp.Flag("headless", false),
			chromedp.Flag("hide-scrollbars", false),
		)
	}
	if f.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(f.ChromePath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	defer tabCancel()

	script, err := buildFillScript(tpl)
	if err != nil {
		return nil, fmt.Errorf("build fill script: %w", err)
	}

	var report FillReport
	err = chromedp.Run(tabCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		chromedp.Evaluate(script, &report, awaitPromise),
	)
	if err != nil {
		return nil, fmt.Errorf("fill %s: %w", url, err)
	}

	f.log.Info("live fill done",
		zap.String("url", url),
		zap.String("template", tpl.Name),
		zap.Int("filled", report.FilledCount),
		zap.Strings("unfilled", report.Unfilled))

	if autoSubmitEligible(report) {
		select {
		case <-time.After(f.SubmitDelay):
		case <-ctx.Done():
			return &report, ctx.Err()
		}
		var submitted bool
		if err := chromedp.Run(tabCtx, chromedp.Evaluate(submitScript, &submitted)); err != nil {
			return &report, fmt.Errorf("auto-submit: %w", err)
		}
		report.Submitted = submitted
		if submitted {
			f.log.Info("form auto-submitted", zap.String("url", url))
		}
	}

	return &report, nil
}

// autoSubmitEligible applies the same policy as the in-memory executor:
// exactly one form on the page, regardless of how many fields were
// written. With zero or several forms nothing is submitted. Whether the
// lone form actually has a submit control is decided in the page by
// submitScript.
func autoSubmitEligible(r FillReport) bool {
	return r.FormCount == 1 && !r.Submitted
}

func awaitPromise(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithAwaitPromise(true)
}

// buildFillScript embeds the template fields into the in-page fill
// routine. The routine mirrors the content-script behavior: native
// value setter so framework-managed inputs notice the write, then
// input, change and blur events, skipping readonly and disabled
// controls.
func buildFillScript(tpl models.Template) (string, error) {
	type wireField struct {
		Name        string `json:"name"`
		Value       string `json:"value"`
		Placeholder string `json:"placeholder"`
	}
	fields := make([]wireField, 0, len(tpl.Fields))
	for _, fld := range tpl.Fields {
		fields = append(fields, wireField{
			Name:        fld.Name,
			Value:       fld.Value,
			Placeholder: fld.Placeholder,
		})
	}
	payload, err := json.Marshal(fields)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(fillScript, payload), nil
}

const fillScript = `(() => {
	const fields = %s;
	const norm = s => (s || '').toLowerCase().replace(/[^a-z0-9]/g, '');
	const inputs = Array.from(document.querySelectorAll('input, textarea, select'))
		.filter(el => !['hidden', 'submit', 'button', 'image', 'reset'].includes(el.type));

	const labelFor = el => {
		if (el.id) {
			const l = document.querySelector('label[for="' + CSS.escape(el.id) + '"]');
			if (l) return l.textContent;
		}
		const wrap = el.closest('label');
		return wrap ? wrap.textContent : '';
	};

	const find = f => {
		const want = norm(f.name);
		if (!want) return null;
		for (const el of inputs) {
			if ((el.id || '').toLowerCase() === f.name.toLowerCase()) return el;
			if ((el.name || '').toLowerCase() === f.name.toLowerCase()) return el;
		}
		for (const el of inputs) {
			const hints = [el.name, el.id, el.placeholder, labelFor(el)].map(norm);
			if (hints.some(h => h && (h.includes(want) || want.includes(h)))) return el;
		}
		return null;
	};

	const fire = (el, type) => el.dispatchEvent(new Event(type, { bubbles: true }));
	const setNative = (el, value) => {
		const proto = el instanceof HTMLTextAreaElement
			? HTMLTextAreaElement.prototype
			: el instanceof HTMLSelectElement
				? HTMLSelectElement.prototype
				: HTMLInputElement.prototype;
		const desc = Object.getOwnPropertyDescriptor(proto, 'value');
		if (desc && desc.set) { desc.set.call(el, value); } else { el.value = value; }
	};

	let filled = 0;
	const unfilled = [];
	for (const f of fields) {
		const el = find(f);
		if (!el) { unfilled.push(f.name); continue; }
		if (el.readOnly || el.disabled) { continue; }
		el.focus();
		if (el.type === 'checkbox') {
			el.checked = ['true', '1', 'yes', 'sim', 'on', 'verdadeiro'].includes((f.value || '').trim().toLowerCase());
		} else if (el.type === 'radio') {
			const group = document.querySelectorAll('input[type=radio][name="' + CSS.escape(el.name) + '"]');
			let hit = false;
			for (const r of group) {
				if (norm(r.value) === norm(f.value)) { r.checked = true; hit = true; break; }
			}
			if (!hit) { unfilled.push(f.name); continue; }
		} else if (el.tagName === 'SELECT') {
			const want = norm(f.value);
			const opt = Array.from(el.options).find(o => norm(o.value) === want || norm(o.textContent) === want)
				|| Array.from(el.options).find(o => norm(o.textContent).includes(want));
			if (!opt) { unfilled.push(f.name); continue; }
			setNative(el, opt.value);
		} else {
			setNative(el, f.value);
		}
		fire(el, 'input');
		fire(el, 'change');
		fire(el, 'blur');
		filled++;
	}

	return Promise.resolve({ filled, unfilled, forms: document.forms.length, submitted: false });
})()`

const submitScript = `(() => {
	if (document.forms.length !== 1) return false;
	const btn = document.forms[0].querySelector('input[type=submit], button[type=submit], button:not([type])');
	if (!btn) return false;
	btn.click();
	return true;
})()`
