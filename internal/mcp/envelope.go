// Package mcp exposes the knowledge base over JSON-RPC 2.0: one method per
// endpoint, every response wrapped in the uniform envelope with a token
// budget and continuation support.
package mcp

import (
	"context"
	"encoding/json"
	"errors"

	"foldermcp/internal/chunker"
	"foldermcp/internal/model"
)

const (
	codeSuccess        = "success"
	codePartialSuccess = "partial_success"
	codeError          = "error"
)

// Canonical machine-readable message tokens.
const (
	msgTokenLimitExceeded = "TOKEN_LIMIT_EXCEEDED_BUT_INCLUDED"
	msgInvalidArgument    = "INVALID_ARGUMENT"
	msgNotFound           = "NOT_FOUND"
	msgParseFailed        = "PARSE_FAILED"
	msgStoreUnavailable   = "STORE_UNAVAILABLE"
	msgModelUnavailable   = "MODEL_UNAVAILABLE"
	msgPatternTooCostly   = "PATTERN_TOO_EXPENSIVE"
	msgCancelled          = "CANCELLED"
	msgInternal           = "INTERNAL"
)

// Remediation action ids.
const (
	actionIncreaseLimit = "INCREASE_LIMIT"
	actionContinue      = "CONTINUE"
	actionRetry         = "RETRY"
)

type Status struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

type Continuation struct {
	HasMore bool   `json:"has_more"`
	Token   string `json:"token,omitempty"`
}

type Action struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// Envelope is the uniform response shape of every endpoint.
type Envelope struct {
	Data         map[string]any `json:"data"`
	Status       Status         `json:"status"`
	Continuation Continuation   `json:"continuation"`
	Actions      []Action       `json:"actions,omitempty"`
}

func successEnvelope(data map[string]any) Envelope {
	return Envelope{Data: data, Status: Status{Code: codeSuccess}}
}

func errorEnvelope(message string) Envelope {
	return Envelope{Data: map[string]any{}, Status: Status{Code: codeError, Message: message}}
}

// errorFor maps domain errors onto the canonical message tokens.
func errorFor(err error) Envelope {
	switch {
	case errors.Is(err, model.ErrInvalidInput), errors.Is(err, model.ErrUnsupportedType):
		return errorEnvelope(msgInvalidArgument)
	case errors.Is(err, model.ErrNotFound):
		return errorEnvelope(msgNotFound)
	case errors.Is(err, model.ErrParseFailed):
		return errorEnvelope(msgParseFailed)
	case errors.Is(err, model.ErrPatternTooExpensive):
		return errorEnvelope(msgPatternTooCostly)
	case errors.Is(err, model.ErrStoreBusy), errors.Is(err, model.ErrStoreUnavailable):
		env := errorEnvelope(msgStoreUnavailable)
		env.Actions = append(env.Actions, Action{ID: actionRetry, Description: "retry the request"})
		return env
	case errors.Is(err, model.ErrModelUnavailable):
		return errorEnvelope(msgModelUnavailable)
	case errors.Is(err, model.ErrCancelled),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return errorEnvelope(msgCancelled)
	default:
		return errorEnvelope(msgInternal)
	}
}

// tokenCount estimates the token footprint of any JSON-serializable value.
func tokenCount(v any) int {
	raw, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return chunker.EstimateTokens(string(raw))
}

// finalize stamps the data's token_count and wires the standard actions for
// partial responses and continuations.
func finalize(env Envelope) Envelope {
	if env.Data == nil {
		env.Data = map[string]any{}
	}
	env.Data["token_count"] = 0
	env.Data["token_count"] = tokenCount(env.Data)

	if env.Status.Message == msgTokenLimitExceeded {
		env.Actions = append(env.Actions, Action{
			ID:          actionIncreaseLimit,
			Description: "retry with a larger max_tokens",
		})
	}
	if env.Continuation.HasMore {
		env.Actions = append(env.Actions, Action{
			ID:          actionContinue,
			Description: "pass continuation.token to fetch the next page",
		})
	}
	return env
}
