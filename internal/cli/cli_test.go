package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.HasPrefix(out, "pulsemetric "+Version+" (") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestMigrateCommand(t *testing.T) {
	t.Setenv("PULSEMETRIC_DEVAPI_DATABASE_URL", "file:"+filepath.Join(t.TempDir(), "devapi.db"))
	t.Setenv("PULSEMETRIC_LOG_LEVEL", "error")

	tests := []struct {
		args []string
		want string
	}{
		{[]string{"migrate"}, "Schema version: 1"},
		{[]string{"migrate", "0"}, "Schema version: 0"},
		{[]string{"migrate", "1"}, "Schema version: 1"},
	}
	for _, tt := range tests {
		out, err := runCLI(t, tt.args...)
		if err != nil {
			t.Fatalf("%v error = %v", tt.args, err)
		}
		if !strings.Contains(out, tt.want) {
			t.Errorf("%v output = %q, want %q", tt.args, out, tt.want)
		}
	}

	if _, err := runCLI(t, "migrate", "latest"); err == nil {
		t.Error("expected an error for a non-numeric version")
	}
}

func TestLocalAddr(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{":8081", "localhost:8081"},
		{"0.0.0.0:9000", "localhost:9000"},
		{"127.0.0.1:8081", "127.0.0.1:8081"},
		{"[::]:8081", "localhost:8081"},
		{"bogus", "bogus"},
	}
	for _, tt := range tests {
		if got := localAddr(tt.in); got != tt.want {
			t.Errorf("localAddr(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
