package transport

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/BaSui01/browserflow/workflow"
)

// ErrUnknownEvent is returned for event names outside the vocabulary.
var ErrUnknownEvent = errors.New("transport: unknown event")

// ServerEvent is a server→client message.
type ServerEvent interface {
	EventName() string
	serverEvent()
}

// ClientEvent is a client→server message.
type ClientEvent interface {
	EventName() string
	clientEvent()
}

// Envelope 线上格式
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// =============================================================================
// 📤 Server → Client
// =============================================================================

type (
	// Screencast carries one frame as a data URI.
	Screencast struct {
		JPEGDataURI string `json:"jpegDataUri"`
	}
	WorkflowUpdate struct {
		Workflow workflow.Workflow `json:"workflow"`
	}
	URLChanged struct {
		URL string `json:"url"`
	}
	Loaded       struct{}
	ActivePairID struct {
		Index int `json:"index"`
	}
	Log struct {
		Message string `json:"message"`
	}
	DebugMessage struct {
		Message string `json:"message"`
	}
	SerializableCallback struct {
		Data any `json:"data"`
	}
	BinaryCallback struct {
		Data     []byte `json:"data"`
		MimeType string `json:"mimetype"`
	}
	Finished      struct{}
	BreakpointHit struct {
		Index int `json:"index"`
	}
	// InterpretationState reports controller state transitions.
	InterpretationState struct {
		State string `json:"state"`
	}
	// TabsUpdate lists open tab URLs after a tab operation.
	TabsUpdate struct {
		URLs    []string `json:"urls"`
		Current int      `json:"current"`
	}
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
)

func (Screencast) EventName() string           { return "screencast" }
func (WorkflowUpdate) EventName() string       { return "workflow" }
func (URLChanged) EventName() string           { return "urlChanged" }
func (Loaded) EventName() string               { return "loaded" }
func (ActivePairID) EventName() string         { return "activePairId" }
func (Log) EventName() string                  { return "log" }
func (DebugMessage) EventName() string         { return "debugMessage" }
func (SerializableCallback) EventName() string { return "serializableCallback" }
func (BinaryCallback) EventName() string       { return "binaryCallback" }
func (Finished) EventName() string             { return "finished" }
func (BreakpointHit) EventName() string        { return "breakpointHit" }
func (InterpretationState) EventName() string  { return "interpretationState" }
func (TabsUpdate) EventName() string           { return "tabs" }
func (Error) EventName() string                { return "error" }

func (Screencast) serverEvent()           {}
func (WorkflowUpdate) serverEvent()       {}
func (URLChanged) serverEvent()           {}
func (Loaded) serverEvent()               {}
func (ActivePairID) serverEvent()         {}
func (Log) serverEvent()                  {}
func (DebugMessage) serverEvent()         {}
func (SerializableCallback) serverEvent() {}
func (BinaryCallback) serverEvent()       {}
func (Finished) serverEvent()             {}
func (BreakpointHit) serverEvent()        {}
func (InterpretationState) serverEvent()  {}
func (TabsUpdate) serverEvent()           {}
func (Error) serverEvent()                {}

// =============================================================================
// 📥 Client → Server
// =============================================================================

type (
	MouseDown struct {
		X      float64 `json:"x"`
		Y      float64 `json:"y"`
		Button string  `json:"button,omitempty"`
	}
	MouseMove struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}
	Wheel struct {
		DeltaX float64 `json:"deltaX"`
		DeltaY float64 `json:"deltaY"`
	}
	KeyDown struct {
		Key string  `json:"key"`
		X   float64 `json:"x"`
		Y   float64 `json:"y"`
	}
	KeyUp struct {
		Key string `json:"key"`
	}
	AddTab   struct{}
	CloseTab struct {
		Index     int  `json:"index"`
		IsCurrent bool `json:"isCurrent"`
	}
	ChangeTab struct {
		Index int `json:"index"`
	}
	Rerender struct{}
	// ActionRequest asks the generator to record a non-pointer action
	// (scroll, screenshot, scrape).
	ActionRequest struct {
		Action   string          `json:"action"`
		Settings json.RawMessage `json:"settings,omitempty"`
	}
	Save struct {
		FileName string `json:"fileName"`
	}
	NewRecording struct{}
	UpdatePair   struct {
		Index int           `json:"index"`
		Pair  workflow.Pair `json:"pair"`
	}
	Pause       struct{}
	Resume      struct{}
	Step        struct{}
	Breakpoints struct {
		List []bool `json:"list"`
	}
	// Interpret starts replay of the session's in-memory workflow.
	Interpret struct {
		MaxRepeats  int            `json:"maxRepeats,omitempty"`
		Params      map[string]any `json:"params,omitempty"`
		Concurrency int            `json:"maxConcurrency,omitempty"`
	}
	StopInterpret struct{}
)

func (MouseDown) EventName() string     { return "input:mousedown" }
func (MouseMove) EventName() string     { return "input:mousemove" }
func (Wheel) EventName() string         { return "input:wheel" }
func (KeyDown) EventName() string       { return "input:keydown" }
func (KeyUp) EventName() string         { return "input:keyup" }
func (AddTab) EventName() string        { return "addTab" }
func (CloseTab) EventName() string      { return "closeTab" }
func (ChangeTab) EventName() string     { return "changeTab" }
func (Rerender) EventName() string      { return "rerender" }
func (ActionRequest) EventName() string { return "action" }
func (Save) EventName() string          { return "save" }
func (NewRecording) EventName() string  { return "new-recording" }
func (UpdatePair) EventName() string    { return "updatePair" }
func (Pause) EventName() string         { return "pause" }
func (Resume) EventName() string        { return "resume" }
func (Step) EventName() string          { return "step" }
func (Breakpoints) EventName() string   { return "breakpoints" }
func (Interpret) EventName() string     { return "interpret" }
func (StopInterpret) EventName() string { return "stopInterpret" }

func (MouseDown) clientEvent()     {}
func (MouseMove) clientEvent()     {}
func (Wheel) clientEvent()         {}
func (KeyDown) clientEvent()       {}
func (KeyUp) clientEvent()         {}
func (AddTab) clientEvent()        {}
func (CloseTab) clientEvent()      {}
func (ChangeTab) clientEvent()     {}
func (Rerender) clientEvent()      {}
func (ActionRequest) clientEvent() {}
func (Save) clientEvent()          {}
func (NewRecording) clientEvent()  {}
func (UpdatePair) clientEvent()    {}
func (Pause) clientEvent()         {}
func (Resume) clientEvent()        {}
func (Step) clientEvent()          {}
func (Breakpoints) clientEvent()   {}
func (Interpret) clientEvent()     {}
func (StopInterpret) clientEvent() {}

// =============================================================================
// 🔄 Codec
// =============================================================================

type clientDecoder func(json.RawMessage) (ClientEvent, error)

func decodeAs[T ClientEvent](raw json.RawMessage) (ClientEvent, error) {
	var ev T
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, err
		}
	}
	return ev, nil
}

var clientDecoders = map[string]clientDecoder{
	MouseDown{}.EventName():     decodeAs[MouseDown],
	MouseMove{}.EventName():     decodeAs[MouseMove],
	Wheel{}.EventName():         decodeAs[Wheel],
	KeyDown{}.EventName():       decodeAs[KeyDown],
	KeyUp{}.EventName():         decodeAs[KeyUp],
	AddTab{}.EventName():        decodeAs[AddTab],
	CloseTab{}.EventName():      decodeAs[CloseTab],
	ChangeTab{}.EventName():     decodeAs[ChangeTab],
	Rerender{}.EventName():      decodeAs[Rerender],
	ActionRequest{}.EventName(): decodeAs[ActionRequest],
	Save{}.EventName():          decodeAs[Save],
	NewRecording{}.EventName():  decodeAs[NewRecording],
	UpdatePair{}.EventName():    decodeAs[UpdatePair],
	Pause{}.EventName():         decodeAs[Pause],
	Resume{}.EventName():        decodeAs[Resume],
	Step{}.EventName():          decodeAs[Step],
	Breakpoints{}.EventName():   decodeAs[Breakpoints],
	Interpret{}.EventName():     decodeAs[Interpret],
	StopInterpret{}.EventName(): decodeAs[StopInterpret],
}

// DecodeClientEvent parses one wire message.
func DecodeClientEvent(data []byte) (ClientEvent, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	dec, ok := clientDecoders[env.Event]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
	ev, err := dec(env.Data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Event, err)
	}
	return ev, nil
}

func encode(name string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", name, err)
	}
	return json.Marshal(Envelope{Event: name, Data: raw})
}

// EncodeServerEvent renders ev as a wire message.
func EncodeServerEvent(ev ServerEvent) ([]byte, error) {
	return encode(ev.EventName(), ev)
}

// EncodeClientEvent renders ev as a wire message.
func EncodeClientEvent(ev ClientEvent) ([]byte, error) {
	return encode(ev.EventName(), ev)
}
