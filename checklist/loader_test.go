package checklist

import (
	"os"
	"path/filepath"
	"testing"

	"qckiosk/config"
)

func testConfig(t *testing.T) *config.ChecklistConfig {
	t.Helper()
	dir := t.TempDir()
	write := func(name, body string) {
		if err := os.WriteFile(filepath.Join(dir, name+".json"), []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
	}
	write("foam", `[{"category":"Foam","items":[{"item":"Density","spec":"30kg/m3","tool":"scale"}]}]`)
	write("structure", `[{"category":"Frame","items":[{"item":"Welds","spec":"no cracks","tool":"visual"},{"item":"Bolts","spec":"torqued","tool":"wrench"}]}]`)
	write("electrical", `not json`)

	return &config.ChecklistConfig{
		TemplateDir: dir,
		FamilyMap: map[string][]string{
			"SP":     {"foam"},
			"CUST_J": {"all"},
			"PUR":    {"structure", "electrical"},
			"FEES":   {},
		},
		AllTemplates: []string{"structure", "foam"},
	}
}

func TestTemplatesFor(t *testing.T) {
	l := NewLoader(testConfig(t))

	if got := l.TemplatesFor("SP"); len(got) != 1 || got[0] != "foam" {
		t.Fatalf("SP: %v", got)
	}
	if got := l.TemplatesFor("cust_j "); len(got) != 2 {
		t.Fatalf("CUST_J (all expansion): %v", got)
	}
	if got := l.TemplatesFor("FEES"); len(got) != 0 {
		t.Fatalf("FEES: %v", got)
	}
	if got := l.TemplatesFor("UNKNOWN"); got != nil {
		t.Fatalf("UNKNOWN: %v", got)
	}
}

func TestLoadSections(t *testing.T) {
	l := NewLoader(testConfig(t))

	sections, err := l.LoadSections("CUST_J")
	if err != nil {
		t.Fatal(err)
	}
	if len(sections) != 2 {
		t.Fatalf("sections = %d", len(sections))
	}
	if sections[0].Category != "Frame" || len(sections[0].Items) != 2 {
		t.Fatalf("first section = %+v", sections[0])
	}
	if sections[1].Items[0].Tool != "scale" {
		t.Fatalf("foam row = %+v", sections[1].Items[0])
	}
}

func TestLoadSectionsPartialFailure(t *testing.T) {
	l := NewLoader(testConfig(t))

	sections, err := l.LoadSections("PUR")
	if err == nil {
		t.Fatal("want aggregated error for unparsable template")
	}
	if len(sections) != 1 || sections[0].Category != "Frame" {
		t.Fatalf("surviving sections = %+v", sections)
	}
}

func TestLoaderCache(t *testing.T) {
	cfg := testConfig(t)
	l := NewLoader(cfg)
	if _, err := l.LoadSections("SP"); err != nil {
		t.Fatal(err)
	}

	// Remove the file; the cached parse must still serve.
	if err := os.Remove(filepath.Join(cfg.TemplateDir, "foam.json")); err != nil {
		t.Fatal(err)
	}
	sections, err := l.LoadSections("SP")
	if err != nil {
		t.Fatal(err)
	}
	if len(sections) != 1 {
		t.Fatalf("cached sections = %d", len(sections))
	}

	l.Invalidate("foam")
	if _, err := l.LoadSections("SP"); err == nil {
		t.Fatal("want error after cache invalidation with file gone")
	}
}
