package service

import (
	"github.com/chorusflow/chorus/model"
)

// Built-in workflow templates for create-from-template. Each call returns a
// fresh request so callers can mutate it freely.
var templates = map[string]func() *model.WorkflowRequest{
	"service-healthcheck": serviceHealthcheckTemplate,
	"fetch-transform":     fetchTransformTemplate,
	"notify-on-input":     notifyOnInputTemplate,
}

func TemplateNames() []string {
	names := make([]string, 0, len(templates))
	for name := range templates {
		names = append(names, name)
	}
	return names
}

func Template(name string) (*model.WorkflowRequest, error) {
	builder, ok := templates[name]
	if !ok {
		return nil, model.NotFoundError{Kind: "template", Id: name}
	}
	return builder(), nil
}

func serviceHealthcheckTemplate() *model.WorkflowRequest {
	return &model.WorkflowRequest{
		Name:        "service-healthcheck",
		Description: "Calls a service health endpoint and notifies on the result",
		Tags:        []string{"template", "monitoring"},
		Parameters: []model.WorkflowParameter{
			{Name: "endpoint", Type: model.PARAM_TYPE_STRING, Required: true},
			{Name: "channel", Type: model.PARAM_TYPE_STRING, Required: false, DefaultValue: "log"},
		},
		Actions: []model.WorkflowAction{
			{
				Id:   "check",
				Type: model.ACTION_TYPE_SERVICE_CALL,
				Name: "check endpoint",
				Config: map[string]any{
					"url":    "{{endpoint}}",
					"method": "GET",
				},
				RetryCount:        2,
				RetryDelaySeconds: 1,
				TimeoutSeconds:    10,
			},
			{
				Id:        "report",
				Type:      model.ACTION_TYPE_NOTIFICATION,
				Name:      "report status",
				DependsOn: []string{"check"},
				Config: map[string]any{
					"channel": "{{channel}}",
					"message": "health check returned {{check.status_code}}",
				},
			},
		},
		TimeoutSeconds: 60,
	}
}

func fetchTransformTemplate() *model.WorkflowRequest {
	return &model.WorkflowRequest{
		Name:        "fetch-transform",
		Description: "Fetches a JSON document and reshapes it",
		Tags:        []string{"template", "data"},
		Parameters: []model.WorkflowParameter{
			{Name: "source_url", Type: model.PARAM_TYPE_STRING, Required: true},
		},
		Actions: []model.WorkflowAction{
			{
				Id:   "fetch",
				Type: model.ACTION_TYPE_SERVICE_CALL,
				Name: "fetch document",
				Config: map[string]any{
					"url":    "{{source_url}}",
					"method": "GET",
				},
				TimeoutSeconds: 30,
			},
			{
				Id:        "reshape",
				Type:      model.ACTION_TYPE_TRANSFORM,
				Name:      "reshape document",
				DependsOn: []string{"fetch"},
				Config: map[string]any{
					"expression": "$ = { body: $.fetch.body, fetched: true };",
				},
			},
		},
		TimeoutSeconds: 120,
	}
}

func notifyOnInputTemplate() *model.WorkflowRequest {
	return &model.WorkflowRequest{
		Name:        "notify-on-input",
		Description: "Waits a configurable delay, then sends a message",
		Tags:        []string{"template"},
		Parameters: []model.WorkflowParameter{
			{Name: "message", Type: model.PARAM_TYPE_STRING, Required: true,
				ValidationRules: map[string]any{"min_length": 1, "max_length": 500}},
			{Name: "delay_seconds", Type: model.PARAM_TYPE_FLOAT, Required: false, DefaultValue: 0},
		},
		Actions: []model.WorkflowAction{
			{
				Id:   "hold",
				Type: model.ACTION_TYPE_WAIT,
				Name: "hold",
				Config: map[string]any{
					"duration_seconds": "{{delay_seconds}}",
				},
			},
			{
				Id:        "send",
				Type:      model.ACTION_TYPE_NOTIFICATION,
				Name:      "send message",
				DependsOn: []string{"hold"},
				Config: map[string]any{
					"message": "{{message}}",
				},
			},
		},
	}
}
