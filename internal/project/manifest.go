package project

import (
	"encoding/json"
	"sort"
)

// Manifest is the dependency/script descriptor for a project.
type Manifest struct {
	Name            string            `json:"name"`
	Type            string            `json:"type,omitempty"`
	Scripts         map[string]string `json:"scripts"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

// viteDevScript is the only dev-server family the runtime supports. Any
// SSR framework's native script is replaced with it.
const viteDevScript = "vite --host"

// blockedDependencies never survive synthesis: SSR frameworks the runtime
// cannot host and native database drivers that fail to build in it.
var blockedDependencies = []string{
	"next",
	"nuxt",
	"sqlite3",
	"better-sqlite3",
	"pg",
	"mysql2",
	"mongoose",
}

// templateDefaults holds per-template default manifests. Merged, never
// overwriting caller-supplied values, except for the forced dev script.
var templateDefaults = map[Template]Manifest{
	TemplateVite: {
		Name: "preview-app",
		Type: "module",
		Scripts: map[string]string{
			"dev":     viteDevScript,
			"build":   "vite build",
			"preview": "vite preview",
		},
		Dependencies: map[string]string{
			"react":     "^18.3.1",
			"react-dom": "^18.3.1",
		},
		DevDependencies: map[string]string{
			"vite":                 "^5.4.0",
			"@vitejs/plugin-react": "^4.3.1",
		},
	},
	TemplateNext: {
		// Coerced into the vite shape: the runtime never runs SSR natively.
		Name: "preview-app",
		Type: "module",
		Scripts: map[string]string{
			"dev":   viteDevScript,
			"build": "vite build",
		},
		Dependencies: map[string]string{
			"react":     "^18.3.1",
			"react-dom": "^18.3.1",
		},
		DevDependencies: map[string]string{
			"vite":                 "^5.4.0",
			"@vitejs/plugin-react": "^4.3.1",
		},
	},
	TemplateExpress: {
		Name: "preview-server",
		Scripts: map[string]string{
			"dev":   "node index.js",
			"start": "node index.js",
		},
		Dependencies: map[string]string{
			"express": "^4.19.0",
		},
	},
	TemplateStatic: {
		Name: "preview-static",
		Scripts: map[string]string{
			"dev": "vite --host",
		},
		DevDependencies: map[string]string{
			"vite": "^5.4.0",
		},
	},
}

// ParseManifest decodes a manifest defensively. Callers treat any error as
// "use the template default"; the raw text is never trusted as-is.
func ParseManifest(raw string) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, err
	}
	if m.Scripts == nil {
		m.Scripts = map[string]string{}
	}
	if m.Dependencies == nil {
		m.Dependencies = map[string]string{}
	}
	if m.DevDependencies == nil {
		m.DevDependencies = map[string]string{}
	}
	return &m, nil
}

// Synthesize produces the manifest actually written into the runtime for the
// detected template. A missing or unparseable manifest yields the template
// default. An existing manifest keeps its values and gains any missing
// template scripts/dependencies, but the dev script is unconditionally
// forced and blocked dependencies are stripped regardless of input.
func Synthesize(tpl Template, raw string) *Manifest {
	def := templateDefaults[tpl]

	m, err := ParseManifest(raw)
	if raw == "" || err != nil {
		m = cloneManifest(&def)
	} else {
		mergeMissing(m.Scripts, def.Scripts)
		mergeMissing(m.Dependencies, def.Dependencies)
		mergeMissing(m.DevDependencies, def.DevDependencies)
		if m.Name == "" {
			m.Name = def.Name
		}
		if m.Type == "" {
			m.Type = def.Type
		}
	}

	if tpl == TemplateVite || tpl == TemplateNext || tpl == TemplateStatic {
		m.Scripts["dev"] = viteDevScript
	}
	for _, dep := range blockedDependencies {
		delete(m.Dependencies, dep)
		delete(m.DevDependencies, dep)
	}
	return m
}

// Encode renders the manifest as indented JSON with stable ordering.
func (m *Manifest) Encode() string {
	out, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(out)
}

// DependencyNames returns the sorted union of dependency names, used for
// logging what the install step is about to pull.
func (m *Manifest) DependencyNames() []string {
	names := make([]string, 0, len(m.Dependencies)+len(m.DevDependencies))
	for name := range m.Dependencies {
		names = append(names, name)
	}
	for name := range m.DevDependencies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func mergeMissing(dst, src map[string]string) {
	for k, v := range src {
		if _, ok := dst[k]; !ok {
			dst[k] = v
		}
	}
}

func cloneManifest(src *Manifest) *Manifest {
	m := &Manifest{
		Name:            src.Name,
		Type:            src.Type,
		Scripts:         map[string]string{},
		Dependencies:    map[string]string{},
		DevDependencies: map[string]string{},
	}
	mergeMissing(m.Scripts, src.Scripts)
	mergeMissing(m.Dependencies, src.Dependencies)
	mergeMissing(m.DevDependencies, src.DevDependencies)
	return m
}
