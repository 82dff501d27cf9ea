package planner

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/chorusflow/chorus/model"
)

var templateRefPattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// Validate checks a workflow definition before it is saved: non-empty name and
// action set, unique action ids, known action types, resolvable depends_on
// references, resolvable template references, and an acyclic dependency graph.
func Validate(wf *model.WorkflowDefinition) error {
	if strings.TrimSpace(wf.Name) == "" {
		return model.ValidationError{Message: "workflow name can not be empty"}
	}
	if len(wf.Actions) == 0 {
		return model.ValidationError{Message: "workflow must declare at least one action"}
	}
	actionIds := make(map[string]bool)
	for _, act := range wf.Actions {
		if strings.TrimSpace(act.Id) == "" {
			return model.ValidationError{Message: "action id can not be empty"}
		}
		if actionIds[act.Id] {
			return model.ValidationError{Message: fmt.Sprintf("action id %s is duplicate", act.Id)}
		}
		actionIds[act.Id] = true
		if !model.ValidActionType(act.Type) {
			return model.ValidationError{Message: fmt.Sprintf("action %s has unknown type %s", act.Id, act.Type)}
		}
	}
	for _, act := range wf.Actions {
		for _, dep := range act.DependsOn {
			if !actionIds[dep] {
				return model.DependencyError{Message: fmt.Sprintf("action %s depends on unknown action %s", act.Id, dep)}
			}
		}
		if err := validateTemplateRefs(wf, &act, actionIds); err != nil {
			return err
		}
	}
	if cycle := findCycle(wf.Actions); cycle != "" {
		return model.DependencyError{Message: fmt.Sprintf("dependency graph contains a cycle through action %s", cycle)}
	}
	return nil
}

// validateTemplateRefs walks the action config collecting {{ref}} markers.
// A dotted ref must name a declared action; a bare ref must name a declared
// parameter. Refs starting with $ are jsonpath lookups resolved at runtime.
func validateTemplateRefs(wf *model.WorkflowDefinition, act *model.WorkflowAction, actionIds map[string]bool) error {
	for _, ref := range collectRefs(act.Config) {
		if strings.HasPrefix(ref, "$") || strings.HasPrefix(ref, "workflow.") {
			continue
		}
		if i := strings.Index(ref, "."); i > 0 {
			actionId := ref[:i]
			if !actionIds[actionId] {
				return model.ValidationError{
					Message: fmt.Sprintf("action %s references result of unknown action %s", act.Id, actionId),
				}
			}
			continue
		}
		if wf.ParameterByName(ref) == nil {
			return model.ValidationError{
				Message: fmt.Sprintf("action %s references undeclared parameter %s", act.Id, ref),
			}
		}
	}
	return nil
}

func collectRefs(value any) []string {
	var refs []string
	switch v := value.(type) {
	case string:
		for _, m := range templateRefPattern.FindAllStringSubmatch(v, -1) {
			refs = append(refs, m[1])
		}
	case map[string]any:
		for _, item := range v {
			refs = append(refs, collectRefs(item)...)
		}
	case []any:
		for _, item := range v {
			refs = append(refs, collectRefs(item)...)
		}
	}
	return refs
}

// findCycle runs a depth-first traversal with a recursion-stack set and
// returns the id of an action on a cycle, or "".
func findCycle(actions []model.WorkflowAction) string {
	deps := make(map[string][]string, len(actions))
	for _, act := range actions {
		deps[act.Id] = act.DependsOn
	}
	visited := make(map[string]bool)
	onStack := make(map[string]bool)

	var visit func(id string) string
	visit = func(id string) string {
		visited[id] = true
		onStack[id] = true
		for _, dep := range deps[id] {
			if onStack[dep] {
				return dep
			}
			if !visited[dep] {
				if c := visit(dep); c != "" {
					return c
				}
			}
		}
		onStack[id] = false
		return ""
	}
	for _, act := range actions {
		if !visited[act.Id] {
			if c := visit(act.Id); c != "" {
				return c
			}
		}
	}
	return ""
}

// ComputeExecutionPlan partitions the action ids into topological levels:
// every action's dependencies lie in strictly earlier levels. An empty next
// level with actions remaining signals a cycle, which Validate should have
// rejected already.
func ComputeExecutionPlan(wf *model.WorkflowDefinition) ([][]string, error) {
	scheduled := make(map[string]bool)
	var levels [][]string
	for len(scheduled) < len(wf.Actions) {
		var level []string
		for _, act := range wf.Actions {
			if scheduled[act.Id] {
				continue
			}
			ready := true
			for _, dep := range act.DependsOn {
				if !scheduled[dep] {
					ready = false
					break
				}
			}
			if ready {
				level = append(level, act.Id)
			}
		}
		if len(level) == 0 {
			return nil, model.DependencyError{Message: "dependency graph contains a cycle"}
		}
		for _, id := range level {
			scheduled[id] = true
		}
		levels = append(levels, level)
	}
	return levels, nil
}

// ValidateParameters checks the caller input against the declared parameter
// set and returns the normalized map. Missing optional parameters are filled
// with their defaults; undeclared keys are rejected (strict schema).
// Identical (definition, input) pairs always yield identical results.
func ValidateParameters(wf *model.WorkflowDefinition, input map[string]any) (map[string]any, []string) {
	normalized := make(map[string]any)
	var errs []string
	for _, param := range wf.Parameters {
		value, present := input[param.Name]
		if !present {
			if param.Required {
				errs = append(errs, fmt.Sprintf("required parameter %s is missing", param.Name))
			} else if param.DefaultValue != nil {
				normalized[param.Name] = param.DefaultValue
			}
			continue
		}
		if err := checkType(param, value); err != "" {
			errs = append(errs, err)
			continue
		}
		if err := checkAllowed(param, value); err != "" {
			errs = append(errs, err)
			continue
		}
		if err := checkRules(param, value); err != "" {
			errs = append(errs, err)
			continue
		}
		normalized[param.Name] = value
	}
	for key := range input {
		if wf.ParameterByName(key) == nil {
			errs = append(errs, fmt.Sprintf("parameter %s is not declared on the workflow", key))
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return normalized, nil
}

func checkType(param model.WorkflowParameter, value any) string {
	ok := false
	switch param.Type {
	case model.PARAM_TYPE_STRING, model.PARAM_TYPE_FILE:
		_, ok = value.(string)
	case model.PARAM_TYPE_INT:
		switch v := value.(type) {
		case int, int32, int64:
			ok = true
		case float64:
			ok = v == float64(int64(v))
		}
	case model.PARAM_TYPE_FLOAT:
		switch value.(type) {
		case int, int32, int64, float32, float64:
			ok = true
		}
	case model.PARAM_TYPE_BOOL:
		_, ok = value.(bool)
	case model.PARAM_TYPE_ARRAY:
		_, ok = value.([]any)
	case model.PARAM_TYPE_OBJECT:
		_, ok = value.(map[string]any)
	}
	if !ok {
		return fmt.Sprintf("parameter %s must be of type %s", param.Name, param.Type)
	}
	return ""
}

func checkAllowed(param model.WorkflowParameter, value any) string {
	if len(param.AllowedValues) == 0 {
		return ""
	}
	for _, allowed := range param.AllowedValues {
		if fmt.Sprintf("%v", allowed) == fmt.Sprintf("%v", value) {
			return ""
		}
	}
	return fmt.Sprintf("parameter %s value is not in the allowed set", param.Name)
}

func checkRules(param model.WorkflowParameter, value any) string {
	if len(param.ValidationRules) == 0 {
		return ""
	}
	str, isStr := value.(string)
	if min, ok := ruleInt(param.ValidationRules, "min_length"); ok && isStr && len(str) < min {
		return fmt.Sprintf("parameter %s is shorter than %d characters", param.Name, min)
	}
	if max, ok := ruleInt(param.ValidationRules, "max_length"); ok && isStr && len(str) > max {
		return fmt.Sprintf("parameter %s is longer than %d characters", param.Name, max)
	}
	if pattern, ok := param.ValidationRules["pattern"].(string); ok && isStr {
		re, err := regexp.Compile(pattern)
		if err != nil || !re.MatchString(str) {
			return fmt.Sprintf("parameter %s does not match pattern %s", param.Name, pattern)
		}
	}
	return ""
}

func ruleInt(rules map[string]any, key string) (int, bool) {
	switch v := rules[key].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	}
	return 0, false
}
