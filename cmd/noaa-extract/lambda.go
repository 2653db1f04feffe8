package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/godhahn/data-project/internal/extract"
	"github.com/godhahn/data-project/internal/runner"
)

// lambdaResponse mirrors an API Gateway proxy response.
type lambdaResponse struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

type runTrigger interface {
	Run(ctx context.Context) (extract.Summary, error)
}

// newLambdaHandler runs one extract per invocation. The event payload is ignored.
func newLambdaHandler(r runTrigger, log *slog.Logger) func(context.Context, json.RawMessage) (lambdaResponse, error) {
	return func(ctx context.Context, _ json.RawMessage) (lambdaResponse, error) {
		sum, err := r.Run(ctx)
		if err != nil {
			if errors.Is(err, runner.ErrRunInProgress) {
				return errorResponse(http.StatusConflict, err), nil
			}
			return errorResponse(http.StatusInternalServerError, err), nil
		}

		body, err := json.Marshal(sum)
		if err != nil {
			log.Error("failed to encode summary", "error", err)
			return errorResponse(http.StatusInternalServerError, err), nil
		}

		code := http.StatusOK
		if sum.Status == extract.StatusFailed {
			code = http.StatusInternalServerError
		}
		return lambdaResponse{StatusCode: code, Body: string(body)}, nil
	}
}

func errorResponse(code int, err error) lambdaResponse {
	body, _ := json.Marshal(map[string]string{"error": err.Error()})
	return lambdaResponse{StatusCode: code, Body: string(body)}
}
