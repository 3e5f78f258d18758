package server

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetToolDefinitions(t *testing.T) {
	tools := GetToolDefinitions()
	require.NotEmpty(t, tools)

	seen := make(map[string]bool)
	for _, tool := range tools {
		t.Run(tool.Name, func(t *testing.T) {
			assert.False(t, seen[tool.Name], "duplicate tool")
			seen[tool.Name] = true
			assert.True(t, strings.HasPrefix(tool.Name, "omr_"))
			assert.NotEmpty(t, tool.Description)
			assert.Equal(t, "object", tool.InputSchema["type"])

			props, ok := tool.InputSchema["properties"].(map[string]interface{})
			require.True(t, ok)
			required, _ := tool.InputSchema["required"].([]string)
			for _, name := range required {
				assert.Contains(t, props, name)
			}
		})
	}
}

func TestToolsAreDispatched(t *testing.T) {
	s := newTestServer(t)
	for _, tool := range GetToolDefinitions() {
		_, err := s.executeTool(tool.Name, nil)
		if err != nil {
			assert.NotContains(t, err.Error(), "unknown tool", tool.Name)
		}
	}
}
