package admin

var serviceDescriptions = map[string]string{
	"ai-kernel":      "Central AI orchestration and reasoning engine",
	"identity":       "Authentication and user management",
	"cv-engine":      "Extended CV and portfolio generation",
	"conversational": "AI Copilot and chat functionality",
	"analytics":      "Data processing and insights",
	"automation":     "Workflow and network automation",
	"vision":         "Computer vision and media processing",
	"plugin":         "Plugin management and extensibility",
}

func serviceDescription(name string) string {
	if d, ok := serviceDescriptions[name]; ok {
		return d
	}
	return "AI Fusion Core microservice"
}
