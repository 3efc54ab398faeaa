package jsonrepair

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRepair(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		want   string
		wantOK bool
	}{
		{
			name:   "balanced object untouched",
			in:     `{"a":"1","b":"2"}`,
			want:   `{"a":"1","b":"2"}`,
			wantOK: true,
		},
		{
			name:   "markdown fences stripped",
			in:     "```json\n{\"a\":\"1\"}\n```",
			want:   `{"a":"1"}`,
			wantOK: true,
		},
		{
			name:   "preamble before object discarded",
			in:     `Here is the result: {"a":"1"}`,
			want:   `{"a":"1"}`,
			wantOK: true,
		},
		{
			name:   "trailing garbage after object ignored",
			in:     `{"a":"1"} hope this helps!`,
			want:   `{"a":"1"}`,
			wantOK: true,
		},
		{
			name:   "braces inside string values do not count",
			in:     `{"a":"{not a brace}"}`,
			want:   `{"a":"{not a brace}"}`,
			wantOK: true,
		},
		{
			name:   "escaped quotes inside values",
			in:     `{"a":"say \"hi\"","b":"2"}`,
			want:   `{"a":"say \"hi\"","b":"2"}`,
			wantOK: true,
		},
		{
			name:   "truncated object salvaged line by line",
			in:     "{\n\"a\": \"1\",\n\"b\": \"2\",\n\"c\": \"tru",
			want:   "{\n\"a\": \"1\",\n\"b\": \"2\"\n}",
			wantOK: true,
		},
		{
			name:   "trailing comma stripped on salvage",
			in:     "{\n\"a\": \"1\",\n\"b\": \"partial",
			want:   "{\n\"a\": \"1\"\n}",
			wantOK: true,
		},
		{
			name:   "no object at all",
			in:     "sorry, I cannot do that",
			wantOK: false,
		},
		{
			name:   "empty input",
			in:     "",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Repair(tt.in)
			if ok != tt.wantOK {
				t.Fatalf("Repair ok = %v, want %v (got %q)", ok, tt.wantOK, got)
			}
			if !ok {
				return
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Repair mismatch (-want +got):\n%s", diff)
			}
			if !json.Valid([]byte(got)) {
				t.Errorf("Repair produced invalid JSON: %q", got)
			}
		})
	}
}

func TestSafeUnmarshal(t *testing.T) {
	t.Run("fenced object", func(t *testing.T) {
		var got map[string]string
		in := "```json\n{\"a\":\"1\",\"b\":\"2\"}\n```"
		if err := SafeUnmarshal(in, &got); err != nil {
			t.Fatalf("SafeUnmarshal: %v", err)
		}
		want := map[string]string{"a": "1", "b": "2"}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("truncated object keeps complete pairs", func(t *testing.T) {
		var got map[string]string
		in := "{\n\"a\": \"1\",\n\"b\": \"2"
		if err := SafeUnmarshal(in, &got); err != nil {
			t.Fatalf("SafeUnmarshal: %v", err)
		}
		if got["a"] != "1" {
			t.Errorf(`got["a"] = %q, want "1"`, got["a"])
		}
	})

	t.Run("irrecoverable input returns original error", func(t *testing.T) {
		var got map[string]string
		if err := SafeUnmarshal("no json here", &got); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("single-line truncation fails cleanly", func(t *testing.T) {
		// Everything on one line: the truncated tail poisons the only line,
		// so repair must fail rather than emit invalid JSON.
		var got map[string]string
		if err := SafeUnmarshal(`{"a":"1","b":"tru`, &got); err == nil {
			t.Fatal("expected error")
		}
	})
}
