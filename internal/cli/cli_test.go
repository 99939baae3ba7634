package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"resumechat/internal/bootstrap"
	"resumechat/internal/domain"
	"resumechat/internal/logger"
)

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	chdir(t, t.TempDir())
}

func quietBuild(opts bootstrap.Options) (bootstrap.Services, error) {
	opts.Logger = logger.Nop()
	return bootstrap.Build(opts)
}

func run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var stdout, stderr bytes.Buffer
	root := NewRootCommand(quietBuild)
	root.SetArgs(args)
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	err := root.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

type chatBackend struct {
	mu       sync.Mutex
	sessions []string
	deleted  []string
}

func newChatBackend(t *testing.T) *chatBackend {
	t.Helper()
	cb := &chatBackend{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cb.mu.Lock()
		defer cb.mu.Unlock()
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/resume/latest":
			_, _ = io.WriteString(w, `{"id":"r1","user_id":"s1","metadata":{"fileName":"cv.pdf","fileSize":42}}`)
		case r.Method == http.MethodPost && r.URL.Path == "/session/chat":
			var body struct {
				Question  string `json:"question"`
				SessionID string `json:"sessionId"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			cb.sessions = append(cb.sessions, body.SessionID)
			_ = json.NewEncoder(w).Encode(map[string]string{"answer": "You asked: " + body.Question})
		case r.Method == http.MethodDelete:
			cb.deleted = append(cb.deleted, strings.TrimPrefix(r.URL.Path, "/resume/"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	t.Setenv("RESUMECHAT_BACKEND_URL", server.URL)
	return cb
}

func TestVersionCommand(t *testing.T) {
	stdout, _, err := run(t, "", "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(stdout, "resumechat version dev") {
		t.Fatalf("unexpected version output: %q", stdout)
	}
}

func TestResumeLatestCommand(t *testing.T) {
	isolate(t)
	newChatBackend(t)

	stdout, _, err := run(t, "", "resume", "latest")
	if err != nil {
		t.Fatalf("resume latest failed: %v", err)
	}
	if !strings.Contains(stdout, "id:      r1") || !strings.Contains(stdout, "cv.pdf (42 bytes)") {
		t.Fatalf("unexpected output: %q", stdout)
	}
}

func TestResumeDeleteDefaultsToLatest(t *testing.T) {
	isolate(t)
	cb := newChatBackend(t)

	if _, _, err := run(t, "", "resume", "delete"); err != nil {
		t.Fatalf("resume delete failed: %v", err)
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if len(cb.deleted) != 1 || cb.deleted[0] != "r1" {
		t.Fatalf("unexpected deletes: %v", cb.deleted)
	}
}

func TestChatUsesLatestSession(t *testing.T) {
	isolate(t)
	cb := newChatBackend(t)

	stdout, _, err := run(t, "", "chat", "How", "much", "Go?")
	if err != nil {
		t.Fatalf("chat failed: %v", err)
	}
	if strings.TrimSpace(stdout) != "You asked: How much Go?" {
		t.Fatalf("unexpected answer: %q", stdout)
	}

	if _, _, err := run(t, "", "chat", "--session", "s9", "Again?"); err != nil {
		t.Fatalf("chat failed: %v", err)
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if strings.Join(cb.sessions, ",") != "s1,s9" {
		t.Fatalf("unexpected sessions: %v", cb.sessions)
	}
}

func TestChatRequiresQuestion(t *testing.T) {
	isolate(t)
	newChatBackend(t)

	if _, _, err := run(t, "", "chat"); err == nil || !strings.Contains(err.Error(), "question is required") {
		t.Fatalf("expected missing question error, got %v", err)
	}
}

func TestChatWithoutBackend(t *testing.T) {
	isolate(t)
	t.Setenv("RESUMECHAT_BACKEND_URL", "")

	if _, _, err := run(t, "", "chat", "hello"); !errors.Is(err, bootstrap.ErrBackendNotConfigured) {
		t.Fatalf("expected ErrBackendNotConfigured, got %v", err)
	}
}

func TestDictateWithoutRecorder(t *testing.T) {
	isolate(t)
	t.Setenv("RESUMECHAT_AUDIO_RECORDERCOMMAND", "/nonexistent/ffmpeg")
	t.Setenv("DEEPGRAM_API_KEY", "test-key")

	_, stderr, err := run(t, "\n", "dictate")
	if err == nil || err.Error() != domain.ErrorMessage(domain.ErrorCodeUnsupported, "") {
		t.Fatalf("expected unsupported error, got %v", err)
	}
	if strings.Contains(stderr, "[") {
		t.Fatalf("refusal must not print a session status line: %q", stderr)
	}
}

func TestStartErrorMessages(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "classified",
			err:  &domain.StartError{Code: domain.ErrorCodePermissionDenied, Err: errors.New("denied")},
			want: domain.ErrorMessage(domain.ErrorCodePermissionDenied, "denied"),
		},
		{
			name: "start failed keeps detail",
			err:  &domain.StartError{Code: domain.ErrorCodeStartFailed, Err: errors.New("boom")},
			want: "Voice input failed to start: boom",
		},
		{
			name: "unknown",
			err:  errors.New("other"),
			want: "other",
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := startError(tc.err).Error(); got != tc.want {
				t.Fatalf("unexpected message: %q", got)
			}
		})
	}
}

func TestConsoleEventsPrintsOnlyDuringSession(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	next := &countingEvents{}
	events := &consoleEvents{out: &out, next: next}

	events.SessionError(domain.ErrorCodeUnsupported, "")
	events.SessionStateChanged(domain.SessionStateListening, domain.SessionReasonListeningStarted)
	events.SessionError(domain.ErrorCodeRecognition, "socket closed")
	events.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonSessionCleared)

	got := out.String()
	if strings.Contains(got, domain.ErrorMessage(domain.ErrorCodeUnsupported, "")) {
		t.Fatalf("refusal printed: %q", got)
	}
	if !strings.Contains(got, "[Listening (auto-stops after silence)]") || !strings.Contains(got, "[Speech recognition error]") {
		t.Fatalf("unexpected output: %q", got)
	}
	if strings.Contains(got, "[Ready]") {
		t.Fatalf("session cleared must stay quiet: %q", got)
	}
	if next.states != 2 || next.errors != 2 {
		t.Fatalf("expected every event forwarded, got %+v", next)
	}
}

type countingEvents struct {
	states int
	errors int
}

func (c *countingEvents) SessionStateChanged(domain.SessionState, domain.SessionStateReason) {
	c.states++
}

func (c *countingEvents) SessionError(domain.ErrorCode, string) {
	c.errors++
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir from Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(wd); err != nil {
			t.Fatalf("restore working directory: %v", err)
		}
	})
}
