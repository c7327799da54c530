package workflow

import (
	"encoding/json"
	"fmt"
)

// Well-known action names.
const (
	ActionFlag             = "flag"
	ActionWaitForLoadState = "waitForLoadState"
	ActionClick            = "click"
	ActionPress            = "press"
	ActionGoto             = "goto"
	ActionScroll           = "scroll"
	ActionScreenshot       = "screenshot"
	ActionScrape           = "scrape"
)

const (
	flagArg        = "generated"
	networkIdleArg = "networkidle"
)

// Action is a single step of a pair's what sequence.
type Action struct {
	Action string `json:"action"`
	Args   []any  `json:"args,omitempty"`
}

// FlagAction returns the synthetic suspension marker.
func FlagAction() Action {
	return Action{Action: ActionFlag, Args: []any{flagArg}}
}

// WaitForIdleAction returns the trailing "wait for network idle" action.
func WaitForIdleAction() Action {
	return Action{Action: ActionWaitForLoadState, Args: []any{networkIdleArg}}
}

// IsFlag reports whether a is the synthetic flag marker.
func (a Action) IsFlag() bool { return a.Action == ActionFlag }

// IsWaitForIdle reports whether a waits for the page to settle.
func (a Action) IsWaitForIdle() bool { return a.Action == ActionWaitForLoadState }

// SingleSelectorArg returns the action's argument when it carries exactly one string.
func (a Action) SingleSelectorArg() (string, bool) {
	if len(a.Args) != 1 {
		return "", false
	}
	s, ok := a.Args[0].(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// StringArg returns args[i] as a string.
func (a Action) StringArg(i int) (string, bool) {
	if i < 0 || i >= len(a.Args) {
		return "", false
	}
	s, ok := a.Args[i].(string)
	return s, ok
}

// Clone copies the args slice.
func (a Action) Clone() Action {
	out := Action{Action: a.Action}
	if a.Args != nil {
		out.Args = append([]any(nil), a.Args...)
	}
	return out
}

// URLMatcher matches the page URL literally or by regular expression.
// It serializes as a plain string or as {"$regex": "..."}.
type URLMatcher struct {
	Literal string
	Regex   string
}

// MarshalJSON implements json.Marshaler.
func (m URLMatcher) MarshalJSON() ([]byte, error) {
	if m.Regex != "" {
		return json.Marshal(map[string]string{"$regex": m.Regex})
	}
	return json.Marshal(m.Literal)
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *URLMatcher) UnmarshalJSON(data []byte) error {
	var literal string
	if err := json.Unmarshal(data, &literal); err == nil {
		*m = URLMatcher{Literal: literal}
		return nil
	}
	var obj map[string]string
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("url matcher: %w", err)
	}
	re, ok := obj["$regex"]
	if !ok {
		return fmt.Errorf("url matcher: expected string or {\"$regex\": ...}")
	}
	*m = URLMatcher{Regex: re}
	return nil
}

// Where is the matching condition of a pair.
type Where struct {
	URL       *URLMatcher       `json:"url,omitempty"`
	Selectors []string          `json:"selectors,omitempty"`
	Cookies   map[string]string `json:"cookies,omitempty"`
	Before    string            `json:"$before,omitempty"`
	After     string            `json:"$after,omitempty"`
	And       []Where           `json:"$and,omitempty"`
	Or        []Where           `json:"$or,omitempty"`
}

// IsExactSelector reports whether the selector set is exactly {selector}.
// Containment is not enough: a pair with more selectors is a different target.
func (w Where) IsExactSelector(selector string) bool {
	return len(w.Selectors) == 1 && w.Selectors[0] == selector
}

// HasSelector reports whether selector is one of w.Selectors.
func (w Where) HasSelector(selector string) bool {
	for _, s := range w.Selectors {
		if s == selector {
			return true
		}
	}
	return false
}

// Clone deep-copies the matcher.
func (w Where) Clone() Where {
	out := Where{Before: w.Before, After: w.After}
	if w.URL != nil {
		u := *w.URL
		out.URL = &u
	}
	if w.Selectors != nil {
		out.Selectors = append([]string(nil), w.Selectors...)
	}
	if w.Cookies != nil {
		out.Cookies = make(map[string]string, len(w.Cookies))
		for k, v := range w.Cookies {
			out.Cookies[k] = v
		}
	}
	for _, sub := range w.And {
		out.And = append(out.And, sub.Clone())
	}
	for _, sub := range w.Or {
		out.Or = append(out.Or, sub.Clone())
	}
	return out
}

// Pair is a WhereWhatPair: a condition and the actions to run when it matches.
type Pair struct {
	ID    string   `json:"id,omitempty"`
	Where Where    `json:"where"`
	What  []Action `json:"what"`
}

// Clone deep-copies the pair.
func (p Pair) Clone() Pair {
	out := Pair{ID: p.ID, Where: p.Where.Clone()}
	if p.What != nil {
		out.What = make([]Action, len(p.What))
		for i, a := range p.What {
			out.What[i] = a.Clone()
		}
	}
	return out
}

// Workflow is an ordered collection of pairs in storage order.
type Workflow []Pair

// Clone deep-copies the workflow.
func (wf Workflow) Clone() Workflow {
	if wf == nil {
		return nil
	}
	out := make(Workflow, len(wf))
	for i, p := range wf {
		out[i] = p.Clone()
	}
	return out
}

// IndexOfID returns the storage position of the pair with the given id, or -1.
func (wf Workflow) IndexOfID(id string) int {
	if id == "" {
		return -1
	}
	for i, p := range wf {
		if p.ID == id {
			return i
		}
	}
	return -1
}
