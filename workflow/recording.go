package workflow

import (
	"errors"
	"fmt"
	"time"
)

// RecordingMeta 是持久化录制文件的元数据。
type RecordingMeta struct {
	Name       string         `json:"name"`
	CreateDate time.Time      `json:"create_date"`
	UpdateDate time.Time      `json:"update_date"`
	Pairs      int            `json:"pairs"`
	Params     []string       `json:"params,omitempty"`
	Extra      map[string]any `json:"extra,omitempty"`
}

// RecordingBody wraps the stored workflow.
type RecordingBody struct {
	Workflow Workflow `json:"workflow"`
}

// Recording is the persisted form of a workflow, flag markers stripped.
type Recording struct {
	Meta      RecordingMeta `json:"recording_meta"`
	Recording RecordingBody `json:"recording"`
}

// Validate checks the persisted invariants.
func (r Recording) Validate() error {
	if r.Meta.Name == "" {
		return errors.New("recording: name is required")
	}
	for i, p := range r.Recording.Workflow {
		if len(p.What) == 0 {
			return fmt.Errorf("recording %q: pair %d has no actions", r.Meta.Name, i)
		}
		if p.What[0].IsFlag() {
			return fmt.Errorf("recording %q: pair %d still carries a flag marker", r.Meta.Name, i)
		}
	}
	return nil
}

// StripFlags returns a copy of wf without leading flag markers.
// Pairs left with no actions are dropped.
func StripFlags(wf Workflow) Workflow {
	out := make(Workflow, 0, len(wf))
	for _, p := range wf {
		c := p.Clone()
		i := 0
		for i < len(c.What) && c.What[i].IsFlag() {
			i++
		}
		c.What = c.What[i:]
		if len(c.What) == 0 {
			continue
		}
		out = append(out, c)
	}
	return out
}

// AddFlags returns a copy of wf with one flag marker at the head of every pair.
func AddFlags(wf Workflow) Workflow {
	out := make(Workflow, len(wf))
	for i, p := range wf {
		c := p.Clone()
		what := make([]Action, 0, len(c.What)+1)
		what = append(what, FlagAction())
		for _, a := range c.What {
			if a.IsFlag() && len(what) == 1 {
				continue
			}
			what = append(what, a)
		}
		c.What = what
		out[i] = c
	}
	return out
}
