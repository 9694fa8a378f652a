package main

import (
	"reflect"
	"testing"
)

func TestRewriteBoardShortcutArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{
			name: "no args",
			in:   []string{"kanchat"},
			want: []string{"kanchat"},
		},
		{
			name: "bare board id",
			in:   []string{"kanchat", "12"},
			want: []string{"kanchat", "--board", "12"},
		},
		{
			name: "hash board id",
			in:   []string{"kanchat", "#12"},
			want: []string{"kanchat", "--board", "12"},
		},
		{
			name: "board id after value flag",
			in:   []string{"kanchat", "--api", "http://localhost:9000", "12"},
			want: []string{"kanchat", "--api", "http://localhost:9000", "--board", "12"},
		},
		{
			name: "board id after equals flag",
			in:   []string{"kanchat", "--api=http://localhost:9000", "12"},
			want: []string{"kanchat", "--api=http://localhost:9000", "--board", "12"},
		},
		{
			name: "board id after bool flag",
			in:   []string{"kanchat", "--pretty", "12"},
			want: []string{"kanchat", "--pretty", "--board", "12"},
		},
		{
			name: "board id after double dash",
			in:   []string{"kanchat", "--", "12"},
			want: []string{"kanchat", "--board", "12"},
		},
		{
			name: "numeric flag value is not a board",
			in:   []string{"kanchat", "--board", "12"},
			want: []string{"kanchat", "--board", "12"},
		},
		{
			name: "subcommand argument not rewritten",
			in:   []string{"kanchat", "tasks", "move", "7", "done"},
			want: []string{"kanchat", "tasks", "move", "7", "done"},
		},
		{
			name: "unknown command not rewritten",
			in:   []string{"kanchat", "wat"},
			want: []string{"kanchat", "wat"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := rewriteBoardShortcutArgs(append([]string(nil), tt.in...))
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}
