package project

import (
	"fmt"
	"path"
	"sort"
	"strings"
)

const indexHTML = `<!doctype html>
<html lang="en">
  <head>
    <meta charset="UTF-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1.0" />
    <title>Preview</title>
  </head>
  <body>
    <div id="root"></div>
    <script type="module" src="/src/main.jsx"></script>
  </body>
</html>
`

const mainJSX = `import React from 'react'
import ReactDOM from 'react-dom/client'
import App from './App.jsx'

ReactDOM.createRoot(document.getElementById('root')).render(
  <React.StrictMode>
    <App />
  </React.StrictMode>
)
`

const viteConfig = `import { defineConfig } from 'vite'
import react from '@vitejs/plugin-react'

export default defineConfig({
  plugins: [react()],
  server: {
    host: true,
    port: 5173,
  },
})
`

// InjectBootstrap adds the framework bootstrap files (entry HTML, module
// entry point, bundler config) to the file map when the template requires
// them and they are absent, and synthesizes an application root when none
// exists. It mutates and returns the same map.
func InjectBootstrap(tpl Template, files map[string]string) map[string]string {
	if tpl == TemplateExpress {
		return files
	}

	if _, ok := files["index.html"]; !ok {
		files["index.html"] = indexHTML
	}
	if tpl == TemplateStatic {
		return files
	}

	if _, ok := files["vite.config.js"]; !ok {
		if _, ok := files["vite.config.ts"]; !ok {
			files["vite.config.js"] = viteConfig
		}
	}
	if !hasEntryPoint(files) {
		files["src/main.jsx"] = mainJSX
	}
	if !hasAppRoot(files) {
		files["src/App.jsx"] = synthesizeAppRoot(files)
	}
	return files
}

func hasEntryPoint(files map[string]string) bool {
	for _, p := range []string{"src/main.jsx", "src/main.tsx", "src/main.js", "src/index.jsx", "src/index.tsx"} {
		if _, ok := files[p]; ok {
			return true
		}
	}
	return false
}

func hasAppRoot(files map[string]string) bool {
	for _, p := range []string{"src/App.jsx", "src/App.tsx", "src/App.js", "App.jsx", "App.tsx"} {
		if _, ok := files[p]; ok {
			return true
		}
	}
	return false
}

// synthesizeAppRoot builds a best-effort single entry point that imports and
// renders every top-level component file found in the map.
func synthesizeAppRoot(files map[string]string) string {
	var components []string
	for p := range files {
		ext := path.Ext(p)
		if ext != ".jsx" && ext != ".tsx" {
			continue
		}
		dir := path.Dir(p)
		if dir != "." && dir != "src" && dir != "src/components" && dir != "components" {
			continue
		}
		base := strings.TrimSuffix(path.Base(p), ext)
		if base == "main" || base == "index" || base == "App" {
			continue
		}
		// Component names start upper-case by React convention.
		if base == "" || base[0] < 'A' || base[0] > 'Z' {
			continue
		}
		components = append(components, p)
	}
	sort.Strings(components)

	var imports, renders strings.Builder
	for _, p := range components {
		name := strings.TrimSuffix(path.Base(p), path.Ext(p))
		rel := importPath(p)
		fmt.Fprintf(&imports, "import %s from '%s'\n", name, rel)
		fmt.Fprintf(&renders, "      <%s />\n", name)
	}

	if imports.Len() == 0 {
		return `export default function App() {
  return <div id="app">Preview ready</div>
}
`
	}

	return fmt.Sprintf(`%s
export default function App() {
  return (
    <div id="app">
%s    </div>
  )
}
`, imports.String(), renders.String())
}

// importPath converts a file-map path into an import specifier relative to
// src/App.jsx.
func importPath(p string) string {
	trimmed := strings.TrimSuffix(p, path.Ext(p))
	if rest, ok := strings.CutPrefix(trimmed, "src/"); ok {
		return "./" + rest
	}
	return "../" + trimmed
}
