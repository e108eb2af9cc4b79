package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// withConfigFile points the package-level --config flag value at a temp
// file for the duration of the test.
func withConfigFile(t *testing.T, content string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".regdelta.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	prev := cfgFile
	cfgFile = path
	t.Cleanup(func() { cfgFile = prev })
}

func TestLoadConfigRejectsInvalidSettings(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad reviewer identity", "reviewer:\n  identity: ldap\n", "reviewer.identity"},
		{"negative retries", "ingest:\n  max_retries: -1\n", "max_retries"},
		{"inverted thresholds", "mapping:\n  threshold_high: 0.4\n", "thresholds"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			withConfigFile(t, tc.content)
			_, err := loadConfig()
			if err == nil {
				t.Fatal("loadConfig accepted an invalid config")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error = %v, want mention of %q", err, tc.wantErr)
			}
		})
	}
}

func TestLoadConfigAcceptsDefaults(t *testing.T) {
	withConfigFile(t, "")
	if _, err := loadConfig(); err != nil {
		t.Errorf("loadConfig on defaults: %v", err)
	}
}
