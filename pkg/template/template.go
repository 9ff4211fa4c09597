// Package template provides templating functionality for dynamic node configuration.
package template

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/dukex/flowline/pkg/models"
)

// RenderWithContext renders input against the node's input payload and run metadata.
// The payload is available as both .input and .json.
func RenderWithContext(input string, exec models.ExecutionContext, payload any) (any, error) {
	data := map[string]any{
		"input":        payload,
		"json":         payload,
		"trigger_data": exec.TriggerData,
		"credentials":  exec.Credentials,
		"env":          getEnvVars(),
		"execution": map[string]any{
			"id":          exec.RunID,
			"workflow_id": exec.WorkflowID,
			"node_id":     exec.NodeID,
		},
	}

	return Render(input, data)
}

// Parse checks that templateStr is a valid template.
func Parse(templateStr string) (*template.Template, error) {
	return newTemplate().Parse(templateStr)
}

func newTemplate() *template.Template {
	return template.
		New("transform").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"toJSON": func(v any) (string, error) {
				b, err := json.Marshal(v)

				return string(b), err
			},
			"rand": func(max int) int {
				if max <= 0 {
					return 0
				}
				num := make([]byte, 1)
				_, err := rand.Read(num)
				if err != nil {
					return 0
				}

				return int(num[0]) % max
			},
		})
}

// Render executes templateStr and coerces the output into JSON, a number, a bool or a string.
func Render(templateStr string, data any) (any, error) {
	tmpl, err := Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return nil, fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	result := strings.TrimSpace(buf.String())

	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		err := json.Unmarshal([]byte(result), &jsonResult)
		if err == nil {
			return jsonResult, nil
		}

		return jsonResult, fmt.Errorf("failed to parse json '%s': %w", templateStr, err)
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}

// getEnvVars returns environment variables as a map.
func getEnvVars() map[string]any {
	envMap := make(map[string]any)

	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) == 2 {
			envMap[parts[0]] = parts[1]
		}
	}

	return envMap
}
