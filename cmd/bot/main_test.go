package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"studybot/internal/domain"
	"studybot/internal/lessons"
	"studybot/internal/storage"
	"studybot/pkg/logx"
)

func seed(t *testing.T) (cfgPath, dir string) {
	t.Helper()
	t.Setenv("LESSONS_PATH", "")
	t.Setenv("BOT_TIMEZONE", "")
	dir = t.TempDir()
	lessonsPath := filepath.Join(dir, "lessons.json")
	prefsPath := filepath.Join(dir, "users.json")

	st, err := storage.Open(storage.Config{Path: lessonsPath, PreferencesPath: prefsPath}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	repo, err := lessons.Open(context.Background(), st, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	at := time.Now().Add(48 * time.Hour)
	repo.Add(context.Background(), domain.Lesson{Text: "irregular verbs", At: at, TopicID: 3, GroupChatID: -100})
	repo.Add(context.Background(), domain.Lesson{Text: "reading", At: at.Add(time.Hour)})
	if err := st.Close(); err != nil {
		t.Fatal(err)
	}

	cfgPath = filepath.Join(dir, "config.json")
	body := `{"storage": {"path": "` + filepath.ToSlash(lessonsPath) + `", "preferences_path": "` + filepath.ToSlash(prefsPath) + `"}}`
	if err := os.WriteFile(cfgPath, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return cfgPath, dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestLessonsList(t *testing.T) {
	cfgPath, _ := seed(t)
	out, err := execute(t, "--config", cfgPath, "lessons", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("want header + 2 rows, got:\n%s", out)
	}
	if !strings.Contains(lines[1], "irregular verbs") || !strings.Contains(lines[1], "-100") {
		t.Fatalf("first row = %q", lines[1])
	}
	if !strings.Contains(lines[2], "default") {
		t.Fatalf("second row = %q", lines[2])
	}
}

func TestLessonsExportAndDelete(t *testing.T) {
	cfgPath, dir := seed(t)
	target := filepath.Join(dir, "backup.json")
	if _, err := execute(t, "--config", cfgPath, "lessons", "export", "-o", target); err != nil {
		t.Fatalf("export: %v", err)
	}
	b, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	got, _, err := storage.DecodeExport(b)
	if err != nil || len(got) != 2 {
		t.Fatalf("export holds %d lessons, err=%v", len(got), err)
	}

	if _, err := execute(t, "--config", cfgPath, "lessons", "delete", "1", "99"); !errors.Is(err, domain.ErrNotFound) || !strings.Contains(err.Error(), "99") {
		t.Fatalf("delete err = %v", err)
	}
	out, err := execute(t, "--config", cfgPath, "lessons", "list")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "irregular verbs") {
		t.Fatalf("lesson 1 still listed:\n%s", out)
	}
}

func TestLessonsDeleteRefusedWhileBotHoldsStore(t *testing.T) {
	cfgPath, dir := seed(t)
	held, err := storage.Open(storage.Config{
		Path:            filepath.Join(dir, "lessons.json"),
		PreferencesPath: filepath.Join(dir, "users.json"),
	}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer held.Close()

	if _, err := execute(t, "--config", cfgPath, "lessons", "delete", "1"); !errors.Is(err, storage.ErrLocked) {
		t.Fatalf("delete err = %v, want ErrLocked", err)
	}
	out, err := execute(t, "--config", cfgPath, "lessons", "list")
	if err != nil {
		t.Fatalf("list while held: %v", err)
	}
	if !strings.Contains(out, "irregular verbs") {
		t.Fatalf("lesson 1 missing:\n%s", out)
	}
}
