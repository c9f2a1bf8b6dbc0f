package pathutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveAbsolutePath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		in   string
		want string
	}{
		{"", wd},
		{"~", home},
		{"~/MiSeq_Backup/run1", filepath.Join(home, "MiSeq_Backup", "run1")},
		{"run1", filepath.Join(wd, "run1")},
		{"/mnt/nas/MiSeq_Backup/../run1", filepath.Clean("/mnt/nas/run1")},
		{"~user/run1", filepath.Join(wd, "~user", "run1")},
	}

	for _, tt := range tests {
		got, err := ResolveAbsolutePath(tt.in)
		if err != nil {
			t.Errorf("ResolveAbsolutePath(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ResolveAbsolutePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
