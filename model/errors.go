package model

import (
	"fmt"
	"strings"
)

// ValidationError signals malformed workflow metadata or parameter input.
// It is always raised synchronously, before any record is persisted.
type ValidationError struct {
	Message string
	Fields  []string
}

func (e ValidationError) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("%s: %s", e.Message, strings.Join(e.Fields, ", "))
	}
	return e.Message
}

type NotFoundError struct {
	Kind string
	Id   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.Id)
}

// DependencyError signals a cyclic or unresolvable action graph.
type DependencyError struct {
	Message string
}

func (e DependencyError) Error() string {
	return e.Message
}

// ActionExecutionError captures a dispatched action reporting failure.
type ActionExecutionError struct {
	ActionId string
	Reason   string
}

func (e ActionExecutionError) Error() string {
	return fmt.Sprintf("action %s failed: %s", e.ActionId, e.Reason)
}

type StorageError struct {
	Op  string
	Err error
}

func (e StorageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("storage error in %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage error in %s", e.Op)
}

func (e StorageError) Unwrap() error {
	return e.Err
}

type CorrelationRuleError struct {
	Rule    string
	Message string
}

func (e CorrelationRuleError) Error() string {
	return fmt.Sprintf("correlation rule %s: %s", e.Rule, e.Message)
}
