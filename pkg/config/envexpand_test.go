package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandEnv(t *testing.T) {
	tests := []struct {
		name  string
		input string
		env   map[string]string
		want  string
	}{
		{
			name:  "simple substitution",
			input: "max_global_concurrent: {{.MAX_SESSIONS}}",
			env:   map[string]string{"MAX_SESSIONS": "8"},
			want:  "max_global_concurrent: 8",
		},
		{
			name:  "shell syntax is left alone",
			input: "runbook_url: https://example.com/${RUNBOOK}",
			env:   map[string]string{"RUNBOOK": "x"},
			want:  "runbook_url: https://example.com/${RUNBOOK}",
		},
		{
			name:  "missing variable expands to empty",
			input: "cleanup_schedule: {{.MISSING_VAR}}",
			want:  "cleanup_schedule: ",
		},
		{
			name:  "several variables in one value",
			input: "runbook_url: {{.SCHEME}}://{{.HOST}}/rb",
			env:   map[string]string{"SCHEME": "https", "HOST": "runbooks.local"},
			want:  "runbook_url: https://runbooks.local/rb",
		},
		{
			name:  "value with equals sign",
			input: "token: {{.TOKEN}}",
			env:   map[string]string{"TOKEN": "a=b=c"},
			want:  "token: a=b=c",
		},
		{
			name:  "malformed template passes through",
			input: "broken: {{.UNCLOSED",
			want:  "broken: {{.UNCLOSED",
		},
		{
			name:  "empty input",
			input: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			assert.Equal(t, tt.want, string(ExpandEnv([]byte(tt.input))))
		})
	}
}
