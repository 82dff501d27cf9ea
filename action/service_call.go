package action

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/chorusflow/chorus/logger"
	"github.com/chorusflow/chorus/model"
	"go.uber.org/zap"
)

// ServiceCallExecutor performs an HTTP request described by the action
// config: url, method, headers, body.
type ServiceCallExecutor struct {
	client *http.Client
}

var _ Executor = new(ServiceCallExecutor)

func NewServiceCallExecutor(client *http.Client) *ServiceCallExecutor {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &ServiceCallExecutor{client: client}
}

func (e *ServiceCallExecutor) Type() model.ActionType {
	return model.ACTION_TYPE_SERVICE_CALL
}

func (e *ServiceCallExecutor) Execute(ctx context.Context, config map[string]any, ec Context) (map[string]any, error) {
	url := configString(config, "url")
	if url == "" {
		return nil, fmt.Errorf("service-call action requires a url")
	}
	method := strings.ToUpper(configString(config, "method"))
	if method == "" {
		method = http.MethodGet
	}
	var bodyReader io.Reader
	if body, ok := config["body"]; ok && body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, err
	}
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if headers, ok := config["headers"].(map[string]any); ok {
		for k, v := range headers {
			req.Header.Set(k, fmt.Sprintf("%v", v))
		}
	}
	logger.Debug("calling service", zap.String("url", url), zap.String("method", method), zap.String("execution", ec.ExecutionId))
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	output := map[string]any{"status_code": resp.StatusCode}
	var parsed any
	if json.Unmarshal(data, &parsed) == nil {
		output["body"] = parsed
	} else {
		output["body"] = string(data)
	}
	if resp.StatusCode >= 400 {
		return output, fmt.Errorf("service returned status %d", resp.StatusCode)
	}
	return output, nil
}
