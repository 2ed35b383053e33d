package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaskStatus_Transitions(t *testing.T) {
	assert.True(t, TaskQueued.CanTransitionTo(TaskRunning))
	assert.False(t, TaskQueued.CanTransitionTo(TaskSucceeded))
	assert.False(t, TaskQueued.CanTransitionTo(TaskFailed))

	assert.True(t, TaskRunning.CanTransitionTo(TaskSucceeded))
	assert.True(t, TaskRunning.CanTransitionTo(TaskFailed))
	assert.False(t, TaskRunning.CanTransitionTo(TaskQueued))

	for _, terminal := range []TaskStatus{TaskSucceeded, TaskFailed} {
		assert.True(t, terminal.IsTerminal())
		for _, next := range []TaskStatus{TaskQueued, TaskRunning, TaskSucceeded, TaskFailed} {
			assert.False(t, terminal.CanTransitionTo(next), "%s -> %s", terminal, next)
		}
	}
	assert.False(t, TaskRunning.IsTerminal())
}

func TestMessage_Constructors(t *testing.T) {
	msg := ToolMessage("call_1", "Subquery Answer: 42")
	assert.Equal(t, RoleTool, msg.Role)
	assert.Equal(t, "call_1", msg.ToolCallID)

	assert.Equal(t, RoleUser, UserMessage("hi").Role)
	assert.Equal(t, RoleSystem, SystemMessage("sys").Role)
	assert.Equal(t, RoleAssistant, AssistantMessage("ok").Role)
}

func TestDocumentID(t *testing.T) {
	assert.Equal(t, DocumentID("/a/b.json"), DocumentID("/a/b.json"))
	assert.NotEqual(t, DocumentID("/a/b.json"), DocumentID("/a/c.json"))
	assert.Len(t, DocumentID("/a"), 16)
}

func TestCleanupPlan_Empty(t *testing.T) {
	var nilPlan *CleanupPlan
	assert.True(t, nilPlan.Empty())
	assert.True(t, (&CleanupPlan{}).Empty())
	assert.False(t, (&CleanupPlan{Targets: []string{"a.xlsx"}}).Empty())
}
