package app

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want Command
	}{
		{"引数なしはserve", nil, CommandServe},
		{"serve", []string{"serve"}, CommandServe},
		{"worker", []string{"worker"}, CommandWorker},
		{"migrate", []string{"migrate"}, CommandMigrate},
		{"healthcheck", []string{"healthcheck"}, CommandHealthcheck},
		{"help", []string{"help"}, CommandHelp},
		{"--help", []string{"--help"}, CommandHelp},
		{"-h", []string{"-h"}, CommandHelp},
		{"余分な引数は無視", []string{"worker", "--flag", "value"}, CommandWorker},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCommand(tt.args)
			if err != nil {
				t.Fatalf("ParseCommand(%v) error = %v", tt.args, err)
			}
			if got != tt.want {
				t.Errorf("ParseCommand(%v) = %q, want %q", tt.args, got, tt.want)
			}
		})
	}
}

func TestParseCommand_Unknown(t *testing.T) {
	_, err := ParseCommand([]string{"fetch"})
	if err == nil {
		t.Fatal("unknown command should be rejected")
	}
	if !strings.Contains(err.Error(), `"fetch"`) || !strings.Contains(err.Error(), "serve, worker") {
		t.Errorf("error = %v, want the command name and the available list", err)
	}
}

func TestUsage_ListsEveryCommand(t *testing.T) {
	var buf bytes.Buffer
	Usage(&buf)

	for _, name := range commandNames() {
		if !strings.Contains(buf.String(), "  "+name) {
			t.Errorf("usage should list %q:\n%s", name, buf.String())
		}
	}
}
