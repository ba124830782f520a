// Package project classifies AI-generated file maps, synthesizes package
// manifests, and normalizes virtual paths before they reach the runtime.
package project

import "strings"

// Template identifies one of the project shapes the runtime knows how to run.
type Template string

const (
	// TemplateVite is the bundler-based SPA shape. It is the only template
	// the dev-server runtime actually starts; everything else is coerced
	// into it or served statically.
	TemplateVite    Template = "vite"
	TemplateNext    Template = "next"
	TemplateExpress Template = "express"
	TemplateStatic  Template = "static"
)

// ManifestFileName is the manifest path looked up in the file map.
const ManifestFileName = "package.json"

// Detect classifies a file map into a template. It inspects the manifest's
// declared dependencies in priority order; with no manifest it falls back to
// the presence of a static entry page, then to the default template. Total:
// unknown input always maps to TemplateVite.
func Detect(files map[string]string) Template {
	manifest, ok := files[ManifestFileName]
	if !ok {
		if _, ok := files["index.html"]; ok && !hasScriptEntry(files) {
			return TemplateStatic
		}
		return TemplateVite
	}

	m, err := ParseManifest(manifest)
	if err != nil {
		return TemplateVite
	}

	if m.hasDependency("next") {
		return TemplateNext
	}
	if m.hasDependency("vite") {
		return TemplateVite
	}
	if m.hasDependency("express") {
		return TemplateExpress
	}
	return TemplateVite
}

// hasScriptEntry reports whether the file map contains any JS/TS module that
// would need a bundler, which disqualifies the plain static template.
func hasScriptEntry(files map[string]string) bool {
	for path := range files {
		switch {
		case strings.HasSuffix(path, ".jsx"), strings.HasSuffix(path, ".tsx"),
			strings.HasSuffix(path, ".ts"):
			return true
		}
	}
	return false
}

func (m *Manifest) hasDependency(name string) bool {
	if _, ok := m.Dependencies[name]; ok {
		return true
	}
	_, ok := m.DevDependencies[name]
	return ok
}
