package e2e

import (
	"bytes"
	"fmt"
	"os"
	"text/template"

	"github.com/ptgott/envelope/userconfig"
)

// appConfigOptions is used to fill in a config template with details unique to
// a specific test environment. Keep this as small as possible so the input
// remains as close to a "real" YAML document as we can make it. Also using
// YAML/JSON-compatible types only here.
//
// Fields are exported so we can use them in templates.
type appConfigOptions struct {
	Driver      string
	Hostname    string
	Port        string
	Encryption  string
	Username    string
	Password    string
	APIBase     string
	Concurrency int
}

const configTemplate = `---
email:
    driver: {{ .Driver }}
    options:
{{- if .Hostname }}
        hostname: {{ .Hostname }}
        port: {{ .Port }}
        timeout: 5s
        insecure_skip_verify: true
{{- end }}
{{- if .Encryption }}
        encryption: {{ .Encryption }}
{{- end }}
{{- if .Username }}
        username: {{ .Username }}
        password: {{ .Password }}
{{- end }}
{{- if .APIBase }}
        domain: mg.example.com
        api_key: key-123456
        api_base: {{ .APIBase }}
{{- end }}
defaults:
    from:
        mynewsletter@example.com: My Newsletter
    reply_to: help@example.com
batch:
    concurrency: {{ .Concurrency }}
`

// createAppConfig writes a configuration YAML doc to the given path.
// Use this configuration to start the e2e test environment
func createAppConfig(path string, opts appConfigOptions) error {
	tmpl, err := template.New("conf").Parse(configTemplate)

	// This means the config template string was written incorrectly. Not
	// an issue with the application itself.
	if err != nil {
		return fmt.Errorf("couldn't parse the application config template: %v", err)
	}

	var config bytes.Buffer

	err = tmpl.Execute(&config, opts)

	// This is an issue with the test environment, not the application
	if err != nil {
		return fmt.Errorf("couldn't populate the application config template: %v", err)
	}

	if err := os.WriteFile(path, config.Bytes(), 0o600); err != nil {
		return fmt.Errorf("couldn't write the config file: %v", err)
	}

	return nil
}

// loadAppConfig reads the config at path the way the application does.
func loadAppConfig(path string) (userconfig.Meta, error) {
	f, err := os.Open(path)
	if err != nil {
		return userconfig.Meta{}, err
	}
	defer f.Close()

	m, err := userconfig.Parse(f)
	if err != nil {
		return userconfig.Meta{}, err
	}
	return m.CheckAndSetDefaults()
}
