package patch

import (
	"strings"
	"testing"
)

func block(meta string, body ...string) string {
	parts := append([]string{"```" + FenceTag, meta}, body...)
	parts = append(parts, "```")
	return strings.Join(parts, "\n")
}

func TestParseBlocks_Replace(t *testing.T) {
	text := "Here is the fix:\n" + block("@@ operation:replace line:5 delete:2 @@", `\section{Results}`, "We present our results.") + "\nDone."
	recs, diags := ParseBlocks(text)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	if len(recs) != 1 {
		t.Fatalf("len(recs) = %d, want 1", len(recs))
	}
	r := recs[0]
	if r.Op != OpReplace {
		t.Errorf("Op = %q, want %q", r.Op, OpReplace)
	}
	if r.Line != 5 {
		t.Errorf("Line = %d, want 5", r.Line)
	}
	if r.DeleteCount != 2 {
		t.Errorf("DeleteCount = %d, want 2", r.DeleteCount)
	}
	want := []string{`\section{Results}`, "We present our results."}
	if len(r.Insert) != len(want) || r.Insert[0] != want[0] || r.Insert[1] != want[1] {
		t.Errorf("Insert = %q, want %q", r.Insert, want)
	}
	if !strings.Contains(r.Raw, "operation:replace") {
		t.Errorf("Raw should retain the matched span, got %q", r.Raw)
	}
}

func TestParseBlocks_DeleteDefaultsToOne(t *testing.T) {
	// Scenario E: a delete block with no delete: token.
	recs, diags := ParseBlocks(block("@@ operation:delete line:5 @@"))
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	if len(recs) != 1 {
		t.Fatalf("len(recs) = %d, want 1", len(recs))
	}
	if recs[0].DeleteCount != 1 {
		t.Errorf("DeleteCount = %d, want 1", recs[0].DeleteCount)
	}
	if len(recs[0].Insert) != 0 {
		t.Errorf("delete records must have empty Insert, got %q", recs[0].Insert)
	}
}

func TestParseBlocks_DeleteDropsStrayBody(t *testing.T) {
	recs, _ := ParseBlocks(block("@@ operation:delete line:3 delete:2 @@", "stray line"))
	if len(recs) != 1 {
		t.Fatalf("len(recs) = %d, want 1", len(recs))
	}
	if len(recs[0].Insert) != 0 {
		t.Errorf("delete records must have empty Insert, got %q", recs[0].Insert)
	}
}

func TestParseBlocks_ReplaceDefaultsDeleteToOne(t *testing.T) {
	recs, _ := ParseBlocks(block("@@ operation:replace line:2 @@", "new line"))
	if len(recs) != 1 {
		t.Fatalf("len(recs) = %d, want 1", len(recs))
	}
	if recs[0].DeleteCount != 1 {
		t.Errorf("DeleteCount = %d, want 1", recs[0].DeleteCount)
	}
}

func TestParseBlocks_MultipleInOrder(t *testing.T) {
	text := block("@@ operation:add line:2 @@", "A") + "\nand then\n" + block("@@ operation:delete line:7 @@")
	recs, diags := ParseBlocks(text)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	if len(recs) != 2 {
		t.Fatalf("len(recs) = %d, want 2", len(recs))
	}
	if recs[0].Op != OpAdd || recs[0].Line != 2 {
		t.Errorf("recs[0] = %+v, want add at line 2", recs[0])
	}
	if recs[1].Op != OpDelete || recs[1].Line != 7 {
		t.Errorf("recs[1] = %+v, want delete at line 7", recs[1])
	}
}

func TestParseBlocks_MalformedBlockSkipped(t *testing.T) {
	text := block("@@ operation:replace @@", "body") + "\n" + block("@@ operation:add line:3 @@", "kept")
	recs, diags := ParseBlocks(text)
	if len(diags) != 1 {
		t.Fatalf("len(diags) = %d, want 1 (%v)", len(diags), diags)
	}
	if !strings.Contains(diags[0], "missing line") {
		t.Errorf("diagnostic = %q, want mention of missing line", diags[0])
	}
	if len(recs) != 1 || recs[0].Line != 3 {
		t.Fatalf("the well-formed block must still parse, got %+v", recs)
	}
}

func TestParseBlocks_MissingOperation(t *testing.T) {
	recs, diags := ParseBlocks(block("@@ line:3 @@", "body"))
	if len(recs) != 0 {
		t.Fatalf("expected no records, got %+v", recs)
	}
	if len(diags) != 1 || !strings.Contains(diags[0], "missing operation") {
		t.Errorf("diags = %v, want missing-operation diagnostic", diags)
	}
}

func TestParseBlocks_UnknownOperation(t *testing.T) {
	_, diags := ParseBlocks(block("@@ operation:merge line:3 @@", "body"))
	if len(diags) != 1 || !strings.Contains(diags[0], "unknown operation") {
		t.Errorf("diags = %v, want unknown-operation diagnostic", diags)
	}
}

func TestParseBlocks_UnknownKeysPreserved(t *testing.T) {
	recs, _ := ParseBlocks(block("@@ operation:add line:2 priority:3 reason:typo @@", "X"))
	if len(recs) != 1 {
		t.Fatalf("len(recs) = %d, want 1", len(recs))
	}
	meta := recs[0].Meta
	if got, ok := meta["priority"].(int); !ok || got != 3 {
		t.Errorf("Meta[priority] = %v, want int 3", meta["priority"])
	}
	if got, ok := meta["reason"].(string); !ok || got != "typo" {
		t.Errorf("Meta[reason] = %v, want %q", meta["reason"], "typo")
	}
}

func TestParseBlocks_UnclosedTrailingBlockIgnored(t *testing.T) {
	text := "Let me edit that.\n```" + FenceTag + "\n@@ operation:add line:2 @@\nX"
	recs, diags := ParseBlocks(text)
	if len(recs) != 0 {
		t.Fatalf("unclosed trailing block must be ignored, got %+v", recs)
	}
	if len(diags) != 0 {
		t.Fatalf("unclosed trailing block is not an error, got %v", diags)
	}
}

func TestParseBlocks_EmptyAddBody(t *testing.T) {
	recs, _ := ParseBlocks(block("@@ operation:add line:1 @@"))
	if len(recs) != 1 {
		t.Fatalf("len(recs) = %d, want 1", len(recs))
	}
	if len(recs[0].Insert) != 0 {
		t.Errorf("Insert = %q, want empty", recs[0].Insert)
	}
}

func TestHasPatchMarker(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{name: "plain prose", text: "I can help with that section.", want: false},
		{name: "complete block", text: block("@@ operation:add line:2 @@", "X"), want: true},
		{name: "fence plus partial metadata", text: "```" + FenceTag + "\n@@ operation:add", want: true},
		{name: "bare fence just streamed", text: "Sure:\n```" + FenceTag, want: true},
		{name: "other fence", text: "```latex\n\\documentclass{article}\n```", want: false},
		{name: "fence tag mid-line", text: "use ```latex-diff blocks", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasPatchMarker(tt.text); got != tt.want {
				t.Errorf("HasPatchMarker(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestStreamingPredicateVsCompleteParser(t *testing.T) {
	// A fence with incomplete metadata: the predicate fires, the
	// complete-block parser finds nothing.
	text := "```" + FenceTag + "\n@@ operation:add"
	if !HasPatchMarker(text) {
		t.Error("HasPatchMarker = false, want true")
	}
	recs, _ := ParseBlocks(text)
	if len(recs) != 0 {
		t.Errorf("ParseBlocks returned %d records for incomplete text, want 0", len(recs))
	}
}

func TestStreamingPreviews(t *testing.T) {
	t.Run("open block with body so far", func(t *testing.T) {
		text := "Editing now:\n```" + FenceTag + "\n@@ operation:replace line:4 delete:1 @@\npartial new li"
		previews := StreamingPreviews(text)
		if len(previews) != 1 {
			t.Fatalf("len(previews) = %d, want 1", len(previews))
		}
		p := previews[0]
		if !p.Streaming {
			t.Error("Streaming = false, want true")
		}
		if p.Op != OpReplace || p.Line != 4 {
			t.Errorf("got %+v, want replace at line 4", p)
		}
		if len(p.Insert) != 1 || p.Insert[0] != "partial new li" {
			t.Errorf("Insert = %q, want body so far", p.Insert)
		}
	})

	t.Run("metadata not yet complete", func(t *testing.T) {
		previews := StreamingPreviews("```" + FenceTag + "\n@@ operation:rep")
		if len(previews) != 0 {
			t.Fatalf("len(previews) = %d, want 0", len(previews))
		}
	})

	t.Run("complete blocks are not previewed", func(t *testing.T) {
		previews := StreamingPreviews(block("@@ operation:add line:2 @@", "X"))
		if len(previews) != 0 {
			t.Fatalf("len(previews) = %d, want 0", len(previews))
		}
	})
}

func TestExtractFullDocument(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		text := "Here is the full rewrite:\n```latex\n\\documentclass{article}\n\\begin{document}\nHi.\n\\end{document}\n```\nEnjoy."
		body, ok := ExtractFullDocument(text, "latex")
		if !ok {
			t.Fatal("ok = false, want true")
		}
		want := "\\documentclass{article}\n\\begin{document}\nHi.\n\\end{document}\n"
		if body != want {
			t.Errorf("body = %q, want %q", body, want)
		}
	})

	t.Run("latex-diff fence is not a latex fence", func(t *testing.T) {
		if _, ok := ExtractFullDocument(block("@@ operation:add line:1 @@", "X"), "latex"); ok {
			t.Error("a latex-diff block must not match the latex language tag")
		}
	})

	t.Run("unclosed", func(t *testing.T) {
		if _, ok := ExtractFullDocument("```latex\n\\documentclass{article}", "latex"); ok {
			t.Error("unclosed full-document block must not match")
		}
	})
}

func TestSplitJoinLines(t *testing.T) {
	t.Run("trailing newline", func(t *testing.T) {
		lines := SplitLines("a\nb\n")
		if len(lines) != 2 {
			t.Fatalf("len(lines) = %d, want 2", len(lines))
		}
		if got := JoinLines(lines); got != "a\nb\n" {
			t.Errorf("round trip = %q, want %q", got, "a\nb\n")
		}
	})

	t.Run("crlf normalized", func(t *testing.T) {
		lines := SplitLines("a\r\nb\r\n")
		if len(lines) != 2 || lines[0] != "a" || lines[1] != "b" {
			t.Fatalf("lines = %q, want [a b]", lines)
		}
	})

	t.Run("empty", func(t *testing.T) {
		if lines := SplitLines(""); lines != nil {
			t.Errorf("SplitLines(\"\") = %q, want nil", lines)
		}
		if got := JoinLines(nil); got != "" {
			t.Errorf("JoinLines(nil) = %q, want \"\"", got)
		}
	})
}
