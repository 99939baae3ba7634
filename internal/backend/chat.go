package backend

import (
	"context"
	"errors"
	"strings"
)

type chatRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"sessionId"`
}

type chatResponse struct {
	Answer string `json:"answer"`
}

// Ask sends a question about the resume bound to sessionID and returns the answer.
func (c *Client) Ask(ctx context.Context, sessionID string, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", errors.New("question is empty")
	}
	if sessionID == "" {
		return "", ErrNoResume
	}

	var out chatResponse
	if err := c.postJSON(ctx, "chat", c.endpoint("/session/chat"), chatRequest{Question: question, SessionID: sessionID}, &out); err != nil {
		return "", err
	}
	return out.Answer, nil
}
