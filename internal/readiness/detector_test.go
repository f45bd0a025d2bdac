package readiness

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		snap Snapshot
		want State
	}{
		{
			name: "usable input alone",
			snap: Snapshot{HasUsableInput: true},
			want: StateUsable,
		},
		{
			name: "login button without input",
			snap: Snapshot{HasLoginButton: true},
			want: StateLoginRequired,
		},
		{
			name: "email input without usable input",
			snap: Snapshot{HasEmailInput: true},
			want: StateLoginRequired,
		},
		{
			name: "modal without input",
			snap: Snapshot{HasModal: true},
			want: StateLoginRequired,
		},
		{
			name: "usable input behind modal",
			snap: Snapshot{HasUsableInput: true, HasModal: true},
			want: StateIndeterminate,
		},
		{
			name: "usable input with login button",
			snap: Snapshot{HasUsableInput: true, HasLoginButton: true},
			want: StateIndeterminate,
		},
		{
			name: "nothing rendered yet",
			snap: Snapshot{},
			want: StateIndeterminate,
		},
		{
			name: "everything at once",
			snap: Snapshot{HasUsableInput: true, HasLoginButton: true, HasEmailInput: true, HasModal: true},
			want: StateIndeterminate,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.snap); got != tc.want {
				t.Errorf("Classify(%+v) = %q, want %q", tc.snap, got, tc.want)
			}
		})
	}
}

// fakeEvaluator replies to Eval with a scripted object and records the call.
type fakeEvaluator struct {
	value  map[string]interface{}
	err    error
	js     string
	params []interface{}
}

func (f *fakeEvaluator) Eval(js string, params ...interface{}) (*proto.RuntimeRemoteObject, error) {
	f.js = js
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	return &proto.RuntimeRemoteObject{Value: gson.New(f.value)}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSnapshotReadsFlags(t *testing.T) {
	eval := &fakeEvaluator{value: map[string]interface{}{
		"hasLoginButton": false,
		"hasEmailInput":  false,
		"hasUsableInput": true,
		"hasModal":       false,
		"url":            "https://chatgpt.com/",
	}}

	snap, err := NewDetector(discardLogger()).Snapshot(eval)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if !snap.HasUsableInput || snap.HasLoginButton || snap.HasEmailInput || snap.HasModal {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.URL != "https://chatgpt.com/" {
		t.Errorf("URL = %q", snap.URL)
	}
}

// The DOM read receives the prompt selector as its argument, so the element
// set the classifier accepts is exactly the set callers can submit into.
func TestSnapshotPassesPromptSelector(t *testing.T) {
	eval := &fakeEvaluator{value: map[string]interface{}{}}
	if _, err := NewDetector(discardLogger()).Snapshot(eval); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(eval.params) != 1 || eval.params[0] != PromptInputSelector {
		t.Fatalf("Eval params = %v, want [PromptInputSelector]", eval.params)
	}
	if !strings.Contains(eval.js, "querySelector(inputSelector)") {
		t.Error("DOM read does not use the injected selector")
	}
	for _, sel := range []string{"#prompt-textarea", "form textarea", `div[contenteditable="true"]`} {
		if !strings.Contains(PromptInputSelector, sel) {
			t.Errorf("PromptInputSelector missing %q", sel)
		}
	}
}

func TestCheckClassifiesSnapshot(t *testing.T) {
	d := NewDetector(discardLogger())

	usable := &fakeEvaluator{value: map[string]interface{}{"hasUsableInput": true}}
	if got := d.Check(usable); got != StateUsable {
		t.Errorf("Check(usable page) = %q", got)
	}

	login := &fakeEvaluator{value: map[string]interface{}{"hasLoginButton": true}}
	if got := d.Check(login); got != StateLoginRequired {
		t.Errorf("Check(login page) = %q", got)
	}
}

// Transient evaluation faults must not escalate to a login classification.
func TestCheckSnapshotFailureIsIndeterminate(t *testing.T) {
	eval := &fakeEvaluator{err: errors.New("context deadline exceeded")}
	if got := NewDetector(discardLogger()).Check(eval); got != StateIndeterminate {
		t.Errorf("Check = %q, want indeterminate", got)
	}
}

// Usable requires the input present AND both blocking conditions absent; no
// combination with a login affordance or modal may classify as Usable.
func TestClassifyNeverUsableWithLoginAffordance(t *testing.T) {
	for _, login := range []bool{false, true} {
		for _, email := range []bool{false, true} {
			for _, modal := range []bool{false, true} {
				if !login && !email && !modal {
					continue
				}
				snap := Snapshot{
					HasLoginButton: login,
					HasEmailInput:  email,
					HasUsableInput: true,
					HasModal:       modal,
				}
				if got := Classify(snap); got == StateUsable {
					t.Errorf("Classify(%+v) = usable, want not usable", snap)
				}
			}
		}
	}
}
