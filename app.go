package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"resumechat/internal/backend"
	"resumechat/internal/bootstrap"
	"resumechat/internal/config"
	"resumechat/internal/domain"
	"resumechat/internal/usecase"
)

const (
	eventTranscript = "resumechat:transcript"
	eventSession    = "resumechat:session"
	eventError      = "resumechat:error"
)

// App is the Wails application root. It is the transcript and event sink of
// the dictation controller, so every update is forwarded to the web view.
type App struct {
	ctx  context.Context
	emit func(ctx context.Context, name string, data ...interface{})

	controller *usecase.DictationController
	backend    *backend.Client
	cfg        config.Config
	bootErr    error
	stopRules  context.CancelFunc
}

func NewApp() *App {
	return &App{emit: runtime.EventsEmit}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(bootstrap.Options{Transcripts: a, Events: a})
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.cfg = services.Config
	a.controller = services.Controller
	a.backend = services.Backend

	rulesCtx, cancel := context.WithCancel(ctx)
	a.stopRules = cancel
	go func() {
		if err := services.WatchRules(rulesCtx); err != nil {
			services.Logger.WithError(err).Warn("corrections will not be reloaded")
		}
	}()

	a.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonReady)
}

func (a *App) shutdown(_ context.Context) {
	if a.stopRules != nil {
		a.stopRules()
	}
	if a.controller != nil {
		_ = a.controller.Close()
	}
}

// ToggleDictation starts dictation on top of currentText, or stops it.
func (a *App) ToggleDictation(currentText string) (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.controller.Toggle(a.ctx, currentText); err != nil {
		return a.controller.Status(), err
	}
	return a.controller.Status(), nil
}

// StopDictation ends an active session. It is a no-op when idle.
func (a *App) StopDictation() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	if err := a.controller.Stop(); err != nil && !errors.Is(err, usecase.ErrNotListening) {
		return err
	}
	return nil
}

// GetStatus returns the current session status.
func (a *App) GetStatus() domain.Status {
	if a.controller == nil {
		if a.bootErr != nil {
			return domain.Status{State: domain.SessionStateError, Message: a.bootErr.Error()}
		}
		return domain.Status{State: domain.SessionStateIdle}
	}
	return a.controller.Status()
}

// GetCapability tells the UI whether the voice button can be offered.
func (a *App) GetCapability() domain.Capability {
	if a.controller == nil {
		reason := "application is not initialized"
		if a.bootErr != nil {
			reason = a.bootErr.Error()
		}
		return domain.Capability{Reason: reason}
	}
	return a.controller.Capability()
}

// ChooseResume opens a file dialog and uploads the selected resume.
func (a *App) ChooseResume() (*backend.Resume, error) {
	if _, err := a.requireBackend(); err != nil {
		return nil, err
	}
	path, err := runtime.OpenFileDialog(a.ctx, runtime.OpenDialogOptions{
		Title: "Upload resume",
		Filters: []runtime.FileFilter{
			{DisplayName: "Resumes (*.pdf;*.doc;*.docx;*.txt)", Pattern: "*.pdf;*.doc;*.docx;*.txt"},
		},
	})
	if err != nil || path == "" {
		return nil, err
	}
	return a.UploadResume(path)
}

// UploadResume uploads the resume at path and returns it once processed.
func (a *App) UploadResume(path string) (*backend.Resume, error) {
	client, err := a.requireBackend()
	if err != nil {
		return nil, err
	}
	resume, err := client.UploadResume(a.ctx, path)
	return resume, a.backendError(err)
}

// LatestResume returns the latest processed resume or nil.
func (a *App) LatestResume() (*backend.Resume, error) {
	client, err := a.requireBackend()
	if err != nil {
		return nil, err
	}
	resume, err := client.LatestResume(a.ctx)
	return resume, a.backendError(err)
}

// DeleteResume removes a resume and its chat session.
func (a *App) DeleteResume(id string) error {
	client, err := a.requireBackend()
	if err != nil {
		return err
	}
	return a.backendError(client.DeleteResume(a.ctx, id))
}

// Ask sends a chat question about the resume bound to sessionID.
func (a *App) Ask(sessionID string, question string) (string, error) {
	client, err := a.requireBackend()
	if err != nil {
		return "", err
	}
	answer, err := client.Ask(a.ctx, sessionID, question)
	return answer, a.backendError(err)
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	return map[string]string{
		"provider":   "Deepgram",
		"model":      a.cfg.Deepgram.Model,
		"language":   a.cfg.Deepgram.Language,
		"rulesFile":  a.cfg.Rules.Path,
		"audioInput": a.cfg.Audio.InputDevice,
		"backend":    a.cfg.Backend.BaseURL,
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.controller == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

func (a *App) requireBackend() (*backend.Client, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	if a.backend == nil {
		return nil, bootstrap.ErrBackendNotConfigured
	}
	return a.backend, nil
}

// backendError reports a failed backend call to the UI and returns err.
func (a *App) backendError(err error) error {
	if err != nil {
		a.SessionError(domain.ErrorCodeBackend, err.Error())
	}
	return err
}

// OnTranscript emits composed text for the question box.
func (a *App) OnTranscript(text string) {
	if a.ctx == nil {
		return
	}
	a.emit(a.ctx, eventTranscript, map[string]string{"text": text})
}

// SessionStateChanged emits session lifecycle updates to the frontend.
func (a *App) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason) {
	if a.ctx == nil {
		return
	}
	a.emit(a.ctx, eventSession, map[string]string{
		"state":   string(state),
		"reason":  string(reason),
		"message": domain.SessionReasonMessage(reason),
	})
}

// SessionError emits user-visible errors to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	if a.ctx == nil {
		return
	}
	a.emit(a.ctx, eventError, map[string]string{
		"code":    string(code),
		"message": domain.ErrorMessage(code, detail),
		"detail":  detail,
	})
}
