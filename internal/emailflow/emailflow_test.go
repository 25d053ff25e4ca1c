package emailflow

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/advisorbot/internal/classify"
	"github.com/dohr-michael/advisorbot/internal/collaborators"
	"github.com/dohr-michael/advisorbot/internal/flow"
	"github.com/dohr-michael/advisorbot/internal/handlers"
)

type fakeModel struct {
	response string
	err      error
}

func (f *fakeModel) Generate(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &schema.Message{Role: schema.Assistant, Content: f.response}, nil
}

func (f *fakeModel) Stream(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	panic("not used in emailflow tests")
}

func (f *fakeModel) WithTools(_ []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return f, nil
}

const draftResponse = "SUBJECT: Request for Attendance Certificate\nBODY:\nI am writing to request an attendance certificate for my scholarship application.\n\nCould you please issue this at your earliest convenience?\n\nThank you for your time."

func newTestFlow(t *testing.T, modelResponse string) *Flow {
	t.Helper()
	faculty, err := collaborators.NewFacultyDirectory(filepath.Join(t.TempDir(), "faculty.db"))
	if err != nil {
		t.Fatalf("NewFacultyDirectory: %v", err)
	}
	t.Cleanup(func() { faculty.Close() })

	return &Flow{
		Model:   &fakeModel{response: modelResponse},
		Faculty: faculty,
		FlowDB:  flow.NewStore(30 * time.Minute),
	}
}

func TestFlow_StartWithEmailEntity_GoesDirectToCollectPurpose(t *testing.T) {
	f := newTestFlow(t, draftResponse)
	out, err := f.Handle(context.Background(), handlers.Input{
		SessionID: "s1",
		Message:   "email registrar@college.edu",
		Entities:  classify.Entities{EmailAddress: "registrar@college.edu"},
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if out.Status != handlers.StatusNeedsInput {
		t.Fatalf("expected needs_input, got %v: %s", out.Status, out.Message)
	}
	if !strings.Contains(out.Message, "registrar@college.edu") {
		t.Errorf("expected recipient echoed in prompt, got %q", out.Message)
	}
}

func TestFlow_StartWithEmailAndPurpose_GoesDirectToPreview(t *testing.T) {
	f := newTestFlow(t, draftResponse)
	out, err := f.Handle(context.Background(), handlers.Input{
		SessionID: "s1",
		Message:   "email registrar@college.edu about my attendance certificate",
		Entities:  classify.Entities{EmailAddress: "registrar@college.edu", Purpose: "attendance certificate"},
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if out.Status != handlers.StatusNeedsConfirmation {
		t.Fatalf("expected needs_confirmation, got %v: %s", out.Status, out.Message)
	}
	if !strings.Contains(out.Message, "registrar@college.edu") {
		t.Errorf("expected recipient in preview, got %q", out.Message)
	}
}

func TestFlow_FullHappyPath_ByFacultyName(t *testing.T) {
	f := newTestFlow(t, draftResponse)
	ctx := context.Background()
	session := "s2"

	out, err := f.Handle(ctx, handlers.Input{
		SessionID: session,
		Message:   "I want to email Dr. Rajesh Kumar",
		Entities:  classify.Entities{FacultyName: "Rajesh Kumar"},
	})
	if err != nil {
		t.Fatalf("Handle (start): %v", err)
	}
	if out.Status != handlers.StatusNeedsInput {
		t.Fatalf("expected needs_input after recipient resolved, got %v: %s", out.Status, out.Message)
	}

	out, err = f.Handle(ctx, handlers.Input{SessionID: session, Message: "I need an attendance certificate"})
	if err != nil {
		t.Fatalf("Handle (purpose): %v", err)
	}
	if out.Status != handlers.StatusNeedsConfirmation {
		t.Fatalf("expected needs_confirmation after purpose, got %v: %s", out.Status, out.Message)
	}
	if !strings.Contains(out.Message, "rajesh.kumar@college.edu") {
		t.Errorf("expected faculty email in preview, got %q", out.Message)
	}

	out, err = f.Handle(ctx, handlers.Input{SessionID: session, Message: "yes send it"})
	if err != nil {
		t.Fatalf("Handle (confirm): %v", err)
	}
	if out.Status != handlers.StatusNeedsConfirmation {
		t.Fatalf("expected needs_confirmation carrying send action, got %v", out.Status)
	}
	if out.ConfirmationData["to"] != "rajesh.kumar@college.edu" {
		t.Errorf("expected confirmation data to carry recipient, got %v", out.ConfirmationData)
	}
	if out.ConfirmationData["action"] != "send_email" {
		t.Errorf("expected send_email action, got %v", out.ConfirmationData)
	}

	if f.FlowDB.Has(session, flowKey) {
		t.Error("expected flow state cleared after confirmation")
	}
}

func TestFlow_AmbiguousFacultyName_AsksToDisambiguate(t *testing.T) {
	f := newTestFlow(t, draftResponse)
	ctx := context.Background()
	session := "s3"

	out, err := f.Handle(ctx, handlers.Input{SessionID: session, Message: "email Kumar", Entities: classify.Entities{FacultyName: "Kumar"}})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if out.Status != handlers.StatusNeedsInput {
		t.Fatalf("expected needs_input for ambiguous match, got %v: %s", out.Status, out.Message)
	}
	if !strings.Contains(out.Message, "1.") {
		t.Errorf("expected numbered candidate list, got %q", out.Message)
	}

	out, err = f.Handle(ctx, handlers.Input{SessionID: session, Message: "1"})
	if err != nil {
		t.Fatalf("Handle (selection): %v", err)
	}
	if out.Status != handlers.StatusNeedsInput {
		t.Fatalf("expected needs_input asking purpose after selection, got %v: %s", out.Status, out.Message)
	}
}

func TestFlow_CancelAtAnyStep_ClearsState(t *testing.T) {
	f := newTestFlow(t, draftResponse)
	ctx := context.Background()
	session := "s4"

	f.Handle(ctx, handlers.Input{SessionID: session, Message: "email registrar@college.edu", Entities: classify.Entities{EmailAddress: "registrar@college.edu"}})
	out, err := f.Handle(ctx, handlers.Input{SessionID: session, Message: "never mind"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if out.Status != handlers.StatusSuccess {
		t.Fatalf("expected success on cancel, got %v", out.Status)
	}
	if f.FlowDB.Has(session, flowKey) {
		t.Error("expected flow state cleared after cancel")
	}
}

func TestFlow_EditAtPreview_RegeneratesDraft(t *testing.T) {
	f := newTestFlow(t, draftResponse)
	ctx := context.Background()
	session := "s5"

	f.Handle(ctx, handlers.Input{SessionID: session, Message: "email registrar@college.edu about attendance certificate", Entities: classify.Entities{EmailAddress: "registrar@college.edu", Purpose: "attendance certificate"}})

	out, err := f.Handle(ctx, handlers.Input{SessionID: session, Message: "edit it, make it shorter"})
	if err != nil {
		t.Fatalf("Handle (edit): %v", err)
	}
	if out.Status != handlers.StatusNeedsConfirmation {
		t.Fatalf("expected needs_confirmation after regenerate, got %v: %s", out.Status, out.Message)
	}
	if !f.FlowDB.Has(session, flowKey) {
		t.Error("expected flow still paused awaiting confirmation after edit")
	}
}

func TestFlow_PreviewRecipientMatchesSendRecipient(t *testing.T) {
	f := newTestFlow(t, draftResponse)
	ctx := context.Background()
	session := "s6"

	preview, err := f.Handle(ctx, handlers.Input{SessionID: session, Message: "email registrar@college.edu about fee receipt", Entities: classify.Entities{EmailAddress: "registrar@college.edu", Purpose: "fee receipt"}})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	send, err := f.Handle(ctx, handlers.Input{SessionID: session, Message: "confirm"})
	if err != nil {
		t.Fatalf("Handle (confirm): %v", err)
	}
	if !strings.Contains(preview.Message, send.ConfirmationData["to"].(string)) {
		t.Errorf("preview recipient must equal send recipient: preview=%q send_to=%v", preview.Message, send.ConfirmationData["to"])
	}
}

func TestFlow_NoRecipientGuessing_AsksExplicitly(t *testing.T) {
	f := newTestFlow(t, draftResponse)
	out, err := f.Handle(context.Background(), handlers.Input{SessionID: "s7", Message: "I need to send an email"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if out.Status != handlers.StatusNeedsInput {
		t.Fatalf("expected needs_input, got %v", out.Status)
	}
	if out.RequiredSlots != nil {
		t.Error("unexpected required slots set")
	}
	if !strings.Contains(strings.ToLower(out.Message), "who") {
		t.Errorf("expected explicit recipient prompt, got %q", out.Message)
	}
}

func TestFlow_ModelErrorFallsBackToTemplateDraft(t *testing.T) {
	f := newTestFlow(t, "")
	f.Model = &fakeModel{err: errEmailBoom}

	out, err := f.Handle(context.Background(), handlers.Input{
		SessionID: "s8",
		Message:   "email registrar@college.edu about my hostel fee",
		Entities:  classify.Entities{EmailAddress: "registrar@college.edu", Purpose: "my hostel fee"},
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if out.Status != handlers.StatusNeedsConfirmation {
		t.Fatalf("expected needs_confirmation via fallback draft, got %v: %s", out.Status, out.Message)
	}
}

var errEmailBoom = &emailTestError{"boom"}

type emailTestError struct{ msg string }

func (e *emailTestError) Error() string { return e.msg }
