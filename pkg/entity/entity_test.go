package entity

import "testing"

func TestExtractKnownEntities(t *testing.T) {
	e := NewRuleExtractor()
	found := e.Extract("Artem configured Docker on his Mac Studio using Python scripts")
	names := map[string]bool{}
	for _, ent := range found {
		names[ent.Surface] = true
	}
	if !names["Docker"] {
		t.Errorf("expected Docker to be extracted, got %+v", found)
	}
	if !names["Python"] {
		t.Errorf("expected Python to be extracted, got %+v", found)
	}
}

func TestExtractDeduplicates(t *testing.T) {
	e := NewRuleExtractor()
	found := e.Extract("Docker and docker and DOCKER")
	count := 0
	for _, ent := range found {
		if ent.Surface == "Docker" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected Docker exactly once, got %d", count)
	}
}

func TestShortKeyRequiresWordBoundary(t *testing.T) {
	e := NewRuleExtractor()
	found := e.Extract("gone going goose")
	for _, ent := range found {
		if ent.Surface == "Go" {
			t.Errorf("short key 'go' matched inside unrelated word: %+v", found)
		}
	}
}

func TestDetectLanguage(t *testing.T) {
	if got := DetectLanguage("Привет, как дела сегодня"); got != "ru" {
		t.Errorf("DetectLanguage(ru text) = %q, want ru", got)
	}
	if got := DetectLanguage("Hello, how are you today"); got != "en" {
		t.Errorf("DetectLanguage(en text) = %q, want en", got)
	}
}

func TestIsValidEntityFilters(t *testing.T) {
	cases := map[string]bool{
		"Docker":                   true,
		"a":                        false,
		"x":                        false,
		"123":                      false,
		"today":                    false,
		"one two three four five": false,
	}
	for in, want := range cases {
		if got := IsValidEntity(in); got != want {
			t.Errorf("IsValidEntity(%q) = %v, want %v", in, got, want)
		}
	}
}
