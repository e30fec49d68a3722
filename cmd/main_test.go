package main

import (
	"html/template"
	"strings"
	"testing"
)

func TestTemplates_Parse(t *testing.T) {
	templates, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		t.Fatalf("parse templates: %v", err)
	}
	if templates.Lookup("display.html") == nil {
		t.Fatal("display.html is not embedded")
	}
}

func TestTemplates_DisplayKeyBindings(t *testing.T) {
	raw, err := templateFS.ReadFile("templates/display.html")
	if err != nil {
		t.Fatalf("read display.html: %v", err)
	}
	page := string(raw)

	bindings := map[string]string{
		`e.code === "Space"`:  `fetch("/draw/toggle"`,
		`e.code === "Escape"`: `fetch("/draw/cancel"`,
	}
	for key, action := range bindings {
		i := strings.Index(page, key)
		if i < 0 {
			t.Errorf("no handler for %s", key)
			continue
		}
		// the action must follow its key before the next branch
		rest := page[i:]
		if next := strings.Index(rest[len(key):], "e.code"); next >= 0 {
			rest = rest[:len(key)+next]
		}
		if !strings.Contains(rest, action) {
			t.Errorf("%s does not trigger %s", key, action)
		}
	}
}
