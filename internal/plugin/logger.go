package plugin

import (
	"fmt"
	"log"
)

// LoggerPlugin is a builtin plugin that records scenario annotations
// to the service log. It doubles as the reference implementation of
// the Plugin contract.
type LoggerPlugin struct{}

// Name identifies the plugin in scenario documents
func (p *LoggerPlugin) Name() string { return "logger" }

// Initialize prepares the plugin for use
func (p *LoggerPlugin) Initialize() error {
	log.Printf("plugin: logger plugin initialized")
	return nil
}

// Cleanup releases plugin resources
func (p *LoggerPlugin) Cleanup() {
	log.Printf("plugin: logger plugin cleaned up")
}

// ExecuteAction handles the plugin's actions
func (p *LoggerPlugin) ExecuteAction(action string, params map[string]any) (any, error) {
	switch action {
	case "log":
		message, _ := params["message"].(string)
		if message == "" {
			message = "(empty annotation)"
		}
		log.Printf("plugin: scenario annotation: %s", message)
		return map[string]any{"logged": message}, nil
	case "actions":
		return []string{"log", "actions"}, nil
	default:
		return nil, fmt.Errorf("unknown action %s for plugin %s", action, p.Name())
	}
}
