package backup

import (
	"errors"
	"os"
	"testing"
)

func TestSaveLoad(t *testing.T) {
	s := New(t.TempDir())
	if err := s.Save("sess-1", "hello world"); err != nil {
		t.Fatal(err)
	}
	e, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if e.Text != "hello world" || e.SessionID != "sess-1" {
		t.Errorf("Load = %+v", e)
	}
	if e.SavedAt.IsZero() {
		t.Error("SavedAt not set")
	}
}

func TestSaveOverwrites(t *testing.T) {
	s := New(t.TempDir())
	s.Save("a", "first")
	if err := s.Save("b", "second transcript"); err != nil {
		t.Fatal(err)
	}
	e, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if e.Text != "second transcript" {
		t.Errorf("Text = %q", e.Text)
	}
}

func TestLoadStates(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(s *Store)
		wantErr error
	}{
		{"empty dir", func(*Store) {}, ErrNoBackup},
		{"text without marker", func(s *Store) {
			os.WriteFile(s.TextPath(), []byte("partial"), 0o600)
		}, ErrIncomplete},
		{"truncated text", func(s *Store) {
			s.Save("x", "complete text")
			os.WriteFile(s.TextPath(), []byte("complete"), 0o600)
		}, ErrIncomplete},
		{"same length different text", func(s *Store) {
			s.Save("x", "abc")
			os.WriteFile(s.TextPath(), []byte("xyz"), 0o600)
		}, ErrIncomplete},
		{"marker without text", func(s *Store) {
			s.Save("x", "abc")
			os.Remove(s.TextPath())
		}, ErrIncomplete},
		{"corrupt marker", func(s *Store) {
			s.Save("x", "abc")
			os.WriteFile(s.OKPath(), []byte("nope"), 0o600)
		}, ErrIncomplete},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(t.TempDir())
			tt.setup(s)
			if _, err := s.Load(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Load err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
