package commands

import (
	"context"
	"testing"
)

func TestDispatcher_MatchBangCommand(t *testing.T) {
	called := false
	defs := []Definition{
		{
			Name: "help",
			Handler: func(context.Context, Request) error {
				called = true
				return nil
			},
		},
	}
	d := NewDispatcher(NewRegistry(defs))

	res := d.Dispatch(context.Background(), Request{
		Channel: "discord",
		Text:    "!help",
	})
	if !res.Matched || !called || res.Err != nil {
		t.Fatalf("dispatch result = %+v, called=%v", res, called)
	}
}

func TestDispatcher_DoesNotMatchWithoutPrefix(t *testing.T) {
	d := NewDispatcher(NewRegistry([]Definition{{Name: "help"}}))

	for _, text := range []string{"help", "/help", "", "!"} {
		res := d.Dispatch(context.Background(), Request{Channel: "discord", Text: text})
		if res.Matched {
			t.Fatalf("expected unmatched for %q, got %+v", text, res)
		}
	}
}

func TestDispatcher_AliasesAndCase(t *testing.T) {
	var got []string
	d := NewDispatcher(NewRegistry([]Definition{
		{
			Name:    "chemicals",
			Aliases: []string{"chem"},
			Handler: func(_ context.Context, req Request) error {
				got = append(got, req.Text)
				return nil
			},
		},
	}))

	for _, text := range []string{"!chem", "!CHEMICALS now"} {
		res := d.Dispatch(context.Background(), Request{Channel: "discord", Text: text})
		if !res.Matched || !res.Handled || res.Command != "chemicals" {
			t.Fatalf("dispatch(%q) = %+v", text, res)
		}
	}
	if len(got) != 2 {
		t.Fatalf("handler calls = %d, want 2", len(got))
	}
}

func TestDispatcher_UnknownCommandPassesThrough(t *testing.T) {
	d := NewDispatcher(NewRegistry([]Definition{{Name: "age", Handler: func(context.Context, Request) error { return nil }}}))
	res := d.Dispatch(context.Background(), Request{Channel: "discord", Text: "!dance"})
	if res.Matched || res.Command != "dance" {
		t.Fatalf("expected unmatched dance, got %+v", res)
	}
}

func TestDispatcher_PassThroughDefinitionWithoutHandler(t *testing.T) {
	d := NewDispatcher(NewRegistry([]Definition{
		{Name: "menu"},
	}))

	res := d.Dispatch(context.Background(), Request{
		Channel: "discord",
		Text:    "!menu list",
	})
	if res.Matched {
		t.Fatalf("expected pass-through unmatched result, got %+v", res)
	}
}

func TestRequestArgs(t *testing.T) {
	req := Request{Text: "!expand  tree-1   node-2 "}
	args := req.Args()
	if len(args) != 2 || args[0] != "tree-1" || args[1] != "node-2" {
		t.Fatalf("Args() = %v", args)
	}
	if got := (Request{Text: "!think why am I here?"}).ArgText(); got != "why am I here?" {
		t.Fatalf("ArgText() = %q", got)
	}
	if (Request{Text: "!age"}).Args() != nil {
		t.Fatal("Args() for bare command should be nil")
	}
}
