package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/daybook/backend/internal/config"
	"github.com/zhouzirui/daybook/backend/internal/model/coach"
)

type fakeChatModel struct {
	reply  string
	chunks []string
	err    error
	got    []*schema.Message
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.got = input
	if f.err != nil {
		return nil, f.err
	}
	msg := schema.AssistantMessage(f.reply, nil)
	msg.ResponseMeta = &schema.ResponseMeta{Usage: &schema.TokenUsage{PromptTokens: 12, CompletionTokens: 5, TotalTokens: 17}}
	return msg, nil
}

func (f *fakeChatModel) Stream(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	f.got = input
	if f.err != nil {
		return nil, f.err
	}
	msgs := make([]*schema.Message, len(f.chunks))
	for i, c := range f.chunks {
		msgs[i] = schema.AssistantMessage(c, nil)
	}
	return schema.StreamReaderFromArray(msgs), nil
}

func (f *fakeChatModel) BindTools([]*schema.ToolInfo) error { return nil }

func newTestService(t *testing.T, fake *fakeChatModel, cfg config.AIConfig) *Service {
	t.Helper()
	svc, err := NewServiceWithModel(context.Background(), fake, cfg, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestCompletePrependsSystemPrompt(t *testing.T) {
	fake := &fakeChatModel{reply: "hello"}
	svc := newTestService(t, fake, config.AIConfig{})

	reply, err := svc.Complete(context.Background(), "be kind", []*schema.Message{schema.UserMessage("hi")})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if reply.Content != "hello" || reply.Role != "assistant" {
		t.Fatalf("unexpected reply %+v", reply)
	}
	if reply.Usage.TotalTokens != 17 || reply.Usage.PromptTokens != 12 {
		t.Fatalf("usage = %+v", reply.Usage)
	}
	if len(fake.got) != 2 || fake.got[0].Role != schema.System || fake.got[0].Content != "be kind" {
		t.Fatalf("unexpected model input %+v", fake.got)
	}
}

func TestCompleteWithoutSystemPrompt(t *testing.T) {
	fake := &fakeChatModel{reply: "ok"}
	svc := newTestService(t, fake, config.AIConfig{})

	if _, err := svc.Complete(context.Background(), "", []*schema.Message{schema.UserMessage("hi")}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if len(fake.got) != 1 || fake.got[0].Role != schema.User {
		t.Fatalf("system message should be omitted, got %+v", fake.got)
	}
}

func TestCompleteWrapsModelError(t *testing.T) {
	boom := errors.New("quota exceeded")
	svc := newTestService(t, &fakeChatModel{err: boom}, config.AIConfig{})

	_, err := svc.Complete(context.Background(), "", nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped model error, got %v", err)
	}
}

func TestReplyBuildsPromptFromTurn(t *testing.T) {
	fake := &fakeChatModel{reply: "tell me more"}
	svc := newTestService(t, fake, config.AIConfig{HistoryLimit: 2})

	history := []coach.Message{
		{Role: coach.RoleUser, Content: "old"},
		{Role: coach.RoleSystem, Content: "ignored"},
		{Role: coach.RoleAssistant, Content: "a1"},
		{Role: coach.RoleUser, Content: "u2"},
	}
	reply, err := svc.Reply(context.Background(), Turn{System: "coach", History: history, Query: "today was long"})
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if reply.Content != "tell me more" {
		t.Fatalf("content = %q", reply.Content)
	}

	var got []string
	for _, m := range fake.got {
		got = append(got, fmt.Sprintf("%s:%s", m.Role, m.Content))
	}
	want := "system:coach|assistant:a1|user:u2|user:today was long"
	if strings.Join(got, "|") != want {
		t.Fatalf("prompt = %s, want %s", strings.Join(got, "|"), want)
	}
}

func TestStreamReplyRespectsConfig(t *testing.T) {
	svc := newTestService(t, &fakeChatModel{}, config.AIConfig{StreamResponse: false})

	if _, err := svc.StreamReply(context.Background(), Turn{Query: "hi"}); !errors.Is(err, ErrStreamingDisabled) {
		t.Fatalf("expected ErrStreamingDisabled, got %v", err)
	}
}

func TestStreamReplyAndCollect(t *testing.T) {
	fake := &fakeChatModel{chunks: []string{"Good ", "morning", "!"}}
	svc := newTestService(t, fake, config.AIConfig{StreamResponse: true})

	stream, err := svc.StreamReply(context.Background(), Turn{System: "coach", Query: "hi"})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	reply, err := Collect(stream)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if reply.Content != "Good morning!" {
		t.Fatalf("content = %q", reply.Content)
	}
}

func TestToSchemaMessages(t *testing.T) {
	msgs, err := ToSchemaMessages([]ChatMessage{{Role: "user", Content: "a"}, {Role: "assistant", Content: "b"}})
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if len(msgs) != 2 || msgs[1].Role != schema.Assistant {
		t.Fatalf("unexpected messages %+v", msgs)
	}

	if _, err := ToSchemaMessages([]ChatMessage{{Role: "tool"}}); err == nil {
		t.Fatal("expected error for unknown role")
	}
}
