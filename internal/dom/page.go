// Package dom provides an in-memory model of the form-relevant parts
// of a web page: input-like elements, their labels, forms and submit
// controls, event listeners and mutation observation. The field matcher
// and autofill executor operate on this model; internal/browser applies
// the same semantics to a live tab.
package dom

import (
	"fmt"
	"strings"
	"sync"

	"golang.org/x/net/html"
)

// Event is a synthesized DOM event delivered to listeners.
type Event struct {
	// Type is the event name: "input", "change", "blur", "focus",
	// "click", "submit".
	Type string
	// Target is the element the event was dispatched on.
	Target *Element
}

// Listener receives dispatched events.
type Listener func(Event)

// ValueSetter intercepts value writes, the way reactive frameworks
// patch value setters on the host page. Returning false swallows the
// write, which is exactly what naive assignment runs into.
type ValueSetter func(el *Element, v string) bool

// Option is one entry of a select element.
type Option struct {
	Value string
	Text  string
}

// Element is an input-like element: input, textarea, select or button.
type Element struct {
	// Tag is the lowercase tag name.
	Tag string
	// Type is the lowercase value of the type attribute ("" when the
	// attribute is absent).
	Type string
	// Label is the accessible label text resolved at parse time from
	// label[for] association or an enclosing label.
	Label string
	// ReadOnly and Disabled mirror the corresponding attributes.
	ReadOnly bool
	Disabled bool
	// Checked is the state of checkbox and radio inputs.
	Checked bool
	// Options holds the entries of a select element.
	Options []Option
	// Form is the owning form, nil for orphan elements.
	Form *Form

	page      *Page
	attrs     map[string]string
	value     string
	listeners map[string][]Listener
	setter    ValueSetter
}

// Attr returns the value of an attribute, or "" when absent.
func (e *Element) Attr(name string) string { return e.attrs[name] }

// SetAttr sets an attribute. Used for per-element processing markers.
func (e *Element) SetAttr(name, value string) {
	e.attrs[name] = value
}

// ID returns the id attribute.
func (e *Element) ID() string { return e.attrs["id"] }

// Name returns the name attribute.
func (e *Element) Name() string { return e.attrs["name"] }

// Placeholder returns the placeholder attribute.
func (e *Element) Placeholder() string { return e.attrs["placeholder"] }

// Value returns the element's current value.
func (e *Element) Value() string { return e.value }

// PatchValueSetter installs a framework-style setter that intercepts
// SetValue calls. SetValueNative bypasses it.
func (e *Element) PatchValueSetter(s ValueSetter) { e.setter = s }

// SetValue writes through the patched setter when one is installed.
// A patched setter may swallow the write entirely.
func (e *Element) SetValue(v string) {
	if e.setter != nil {
		if !e.setter(e, v) {
			return
		}
	}
	e.value = v
}

// SetValueNative writes the value cell directly, bypassing any patched
// setter. This is the only reliable write path on framework-heavy
// pages.
func (e *Element) SetValueNative(v string) { e.value = v }

// Focus marks the element focused and dispatches a focus event.
func (e *Element) Focus() {
	e.page.focused = e
	e.Dispatch("focus")
}

// AddEventListener registers a listener for the given event type.
func (e *Element) AddEventListener(typ string, fn Listener) {
	e.listeners[typ] = append(e.listeners[typ], fn)
}

// Dispatch delivers a bubbling event: element listeners first, then the
// owning form's, then the page's.
func (e *Element) Dispatch(typ string) {
	ev := Event{Type: typ, Target: e}
	for _, fn := range e.listeners[typ] {
		fn(ev)
	}
	if e.Form != nil {
		for _, fn := range e.Form.listeners[typ] {
			fn(ev)
		}
	}
	for _, fn := range e.page.listeners[typ] {
		fn(ev)
	}
}

// Click dispatches a click event; on a submit control it also submits
// the owning form.
func (e *Element) Click() {
	e.Dispatch("click")
	if e.Form != nil && e.Form.IsSubmitControl(e) {
		e.Form.Submit()
	}
}

// Form groups elements that submit together.
type Form struct {
	// Action and Method mirror the form attributes.
	Action string
	Method string
	// Elements are the input-like elements inside the form, in
	// document order.
	Elements []*Element

	submitted bool
	listeners map[string][]Listener
}

// Submitted reports whether Submit has been called.
func (f *Form) Submitted() bool { return f.submitted }

// Submit marks the form submitted and notifies submit listeners.
func (f *Form) Submit() {
	f.submitted = true
	for _, fn := range f.listeners["submit"] {
		fn(Event{Type: "submit"})
	}
}

// AddEventListener registers a form-level listener; element events
// bubble here.
func (f *Form) AddEventListener(typ string, fn Listener) {
	f.listeners[typ] = append(f.listeners[typ], fn)
}

// IsSubmitControl reports whether el can submit this form: an explicit
// submit input or button, or a plain button with no explicit type.
func (f *Form) IsSubmitControl(el *Element) bool {
	switch el.Tag {
	case "input":
		return el.Type == "submit"
	case "button":
		return el.Type == "submit" || el.Type == ""
	}
	return false
}

// SubmitControl returns the form's first submit control, or nil.
func (f *Form) SubmitControl() *Element {
	for _, el := range f.Elements {
		if f.IsSubmitControl(el) {
			return el
		}
	}
	return nil
}

// Page is the parsed document: every input-like element plus forms.
type Page struct {
	elements  []*Element
	forms     []*Form
	listeners map[string][]Listener
	focused   *Element

	mu        sync.Mutex
	observers map[int]func()
	nextObs   int
}

// Inputs returns every input, textarea and select on the page, in
// document order. Buttons are excluded.
func (p *Page) Inputs() []*Element {
	var out []*Element
	for _, el := range p.elements {
		if el.Tag == "button" {
			continue
		}
		if el.Tag == "input" && (el.Type == "submit" || el.Type == "button") {
			continue
		}
		out = append(out, el)
	}
	return out
}

// Elements returns every parsed element including buttons.
func (p *Page) Elements() []*Element { return p.elements }

// Forms returns the page's forms in document order.
func (p *Page) Forms() []*Form { return p.forms }

// Focused returns the element last given focus, or nil.
func (p *Page) Focused() *Element { return p.focused }

// AddEventListener registers a document-level listener; all element
// events bubble here.
func (p *Page) AddEventListener(typ string, fn Listener) {
	p.listeners[typ] = append(p.listeners[typ], fn)
}

// Observe subscribes to DOM mutations. The returned stop function
// removes the subscription; calling it more than once is harmless.
func (p *Page) Observe(fn func()) (stop func()) {
	p.mu.Lock()
	id := p.nextObs
	p.nextObs++
	p.observers[id] = fn
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.observers, id)
		p.mu.Unlock()
	}
}

func (p *Page) notifyMutation() {
	p.mu.Lock()
	fns := make([]func(), 0, len(p.observers))
	for _, fn := range p.observers {
		fns = append(fns, fn)
	}
	p.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Append parses an HTML fragment, adds its elements to the page and
// notifies mutation observers. It mimics content injected by scripts
// on the host page.
func (p *Page) Append(fragment string) error {
	sub, err := Parse(fragment)
	if err != nil {
		return fmt.Errorf("parse fragment: %w", err)
	}
	for _, el := range sub.elements {
		el.page = p
		p.elements = append(p.elements, el)
	}
	p.forms = append(p.forms, sub.forms...)
	p.notifyMutation()
	return nil
}

// Remove detaches an element from the page and notifies mutation
// observers. Removing an element that is not on the page is a no-op.
func (p *Page) Remove(el *Element) {
	for i, cur := range p.elements {
		if cur == el {
			p.elements = append(p.elements[:i], p.elements[i+1:]...)
			if p.focused == el {
				p.focused = nil
			}
			p.notifyMutation()
			return
		}
	}
}

// Parse builds a Page from an HTML document or fragment.
func Parse(src string) (*Page, error) {
	root, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	p := &Page{
		listeners: map[string][]Listener{},
		observers: map[int]func(){},
	}

	labelFor := map[string]string{}
	collectLabels(root, labelFor)
	walk(root, p, nil, labelFor, "")
	return p, nil
}

// collectLabels gathers label[for] → text associations.
func collectLabels(n *html.Node, out map[string]string) {
	if n.Type == html.ElementNode && n.Data == "label" {
		if forID := attrVal(n, "for"); forID != "" {
			out[forID] = strings.TrimSpace(textContent(n))
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectLabels(c, out)
	}
}

func walk(n *html.Node, p *Page, form *Form, labelFor map[string]string, labelText string) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "form":
			f := &Form{
				Action:    attrVal(n, "action"),
				Method:    attrVal(n, "method"),
				listeners: map[string][]Listener{},
			}
			p.forms = append(p.forms, f)
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				walk(c, p, f, labelFor, labelText)
			}
			return
		case "label":
			text := strings.TrimSpace(textContent(n))
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				walk(c, p, form, labelFor, text)
			}
			return
		case "input", "textarea", "select", "button":
			el := newElement(n, p, form, labelFor, labelText)
			p.elements = append(p.elements, el)
			if form != nil {
				form.Elements = append(form.Elements, el)
			}
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, p, form, labelFor, labelText)
	}
}

func newElement(n *html.Node, p *Page, form *Form, labelFor map[string]string, enclosingLabel string) *Element {
	attrs := map[string]string{}
	for _, a := range n.Attr {
		attrs[strings.ToLower(a.Key)] = a.Val
	}

	el := &Element{
		Tag:       n.Data,
		Type:      strings.ToLower(attrs["type"]),
		Form:      form,
		page:      p,
		attrs:     attrs,
		value:     attrs["value"],
		listeners: map[string][]Listener{},
	}
	if _, ok := attrs["readonly"]; ok {
		el.ReadOnly = true
	}
	if _, ok := attrs["disabled"]; ok {
		el.Disabled = true
	}
	if _, ok := attrs["checked"]; ok {
		el.Checked = true
	}

	switch {
	case labelFor[attrs["id"]] != "":
		el.Label = labelFor[attrs["id"]]
	case enclosingLabel != "":
		el.Label = enclosingLabel
	}

	if n.Data == "select" {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.Data == "option" {
				opt := Option{Value: attrVal(c, "value"), Text: strings.TrimSpace(textContent(c))}
				if opt.Value == "" {
					opt.Value = opt.Text
				}
				el.Options = append(el.Options, opt)
			}
		}
	}
	if n.Data == "button" && el.Label == "" {
		el.Label = strings.TrimSpace(textContent(n))
	}
	return el
}

func attrVal(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var rec func(*html.Node)
	rec = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			rec(c)
		}
	}
	rec(n)
	return sb.String()
}
