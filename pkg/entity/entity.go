// Package entity extracts named entities from note text. The shipped
// implementation is rule-based (a curated dictionary match); the package
// also defines the Extractor interface so a pretrained-NER or zero-shot
// transformer strategy can be plugged in without touching callers — when
// none is configured, extraction degrades to the rule-based strategy and
// the caller is expected to log the missing-capability path once.
package entity

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// MinEntityLength is the shortest entity surface form kept.
const MinEntityLength = 2

// Entity is one extracted mention.
type Entity struct {
	Surface    string
	Type       string
	Confidence float64
}

// Extractor is the pluggable entity-extraction strategy.
type Extractor interface {
	Extract(text string) []Entity
}

// knownEntities maps a lowercase surface key to its canonical display form
// and type. Ground truth is the curated dictionary used by every strategy
// as the high-confidence floor.
var knownEntities = map[string][2]string{
	"python": {"Python", "tech"}, "javascript": {"JavaScript", "tech"},
	"typescript": {"TypeScript", "tech"}, "rust": {"Rust", "tech"},
	"java": {"Java", "tech"}, "cpp": {"C++", "tech"}, "c++": {"C++", "tech"},
	"go lang": {"Go", "tech"}, "golang": {"Go", "tech"}, "ruby": {"Ruby", "tech"},
	"php": {"PHP", "tech"}, "swift": {"Swift", "tech"}, "kotlin": {"Kotlin", "tech"},
	"docker": {"Docker", "tech"}, "kubernetes": {"Kubernetes", "tech"},
	"flask": {"Flask", "tech"}, "fastapi": {"FastAPI", "tech"}, "django": {"Django", "tech"},
	"react": {"React", "tech"}, "vue": {"Vue", "tech"}, "angular": {"Angular", "tech"},
	"pytorch": {"PyTorch", "tech"}, "tensorflow": {"TensorFlow", "tech"},
	"transformers": {"Transformers", "tech"}, "huggingface": {"Hugging Face", "tech"},
	"faiss": {"FAISS", "tech"}, "numpy": {"NumPy", "tech"}, "pandas": {"Pandas", "tech"},
	"spacy": {"spaCy", "tech"},
	"sqlite": {"SQLite", "tech"}, "postgresql": {"PostgreSQL", "tech"},
	"postgres": {"PostgreSQL", "tech"}, "mysql": {"MySQL", "tech"},
	"mongodb": {"MongoDB", "tech"}, "redis": {"Redis", "tech"},
	"mcp": {"MCP", "tech"}, "http": {"HTTP", "tech"}, "rest": {"REST", "tech"},
	"graphql": {"GraphQL", "tech"}, "grpc": {"gRPC", "tech"},
	"llm": {"LLM", "concept"}, "ann": {"ANN", "tech"},
	"embedding": {"embedding", "concept"}, "embeddings": {"embeddings", "concept"},
	"transformer": {"transformer", "concept"}, "attention": {"attention", "concept"},
	"rag": {"RAG", "concept"}, "neural network": {"neural network", "concept"},
	"memory": {"memory", "concept"}, "graph": {"graph", "concept"},
	"knowledge": {"knowledge", "concept"}, "semantic": {"semantic", "concept"},
	"activation": {"activation", "concept"}, "spreading activation": {"spreading activation", "concept"},
	"entity": {"entity", "concept"}, "consciousness": {"consciousness", "concept"},
	"github": {"GitHub", "tech"}, "gitlab": {"GitLab", "tech"}, "vscode": {"VS Code", "tech"},
	"vim": {"Vim", "tech"}, "ngrok": {"ngrok", "tech"}, "claude": {"Claude", "tech"},
	"openai": {"OpenAI", "organization"}, "anthropic": {"Anthropic", "organization"},
	"hippomem": {"HippoMem", "project"}, "scotiabank": {"Scotiabank", "organization"},
	"santiago": {"Santiago", "location"}, "chile": {"Chile", "location"},
}

// genericStopwords are surface forms too common to carry meaning on their
// own, in both supported languages.
var genericStopwords = map[string]bool{
	"first": true, "second": true, "third": true, "fourth": true, "fifth": true,
	"last": true, "next": true, "previous": true,
	"one": true, "two": true, "three": true, "four": true, "five": true,
	"six": true, "seven": true, "eight": true, "nine": true, "ten": true,
	"thing": true, "stuff": true, "issue": true, "problem": true, "solution": true,
	"way": true, "time": true, "day": true,
	"today": true, "yesterday": true, "tomorrow": true, "now": true, "then": true,
	"this": true, "that": true, "these": true, "those": true,
	"первый": true, "второй": true, "третий": true, "четвёртый": true, "пятый": true,
	"последний": true, "следующий": true, "предыдущий": true,
	"один": true, "два": true, "три": true, "четыре": true, "пять": true,
	"шесть": true, "семь": true, "восемь": true, "девять": true, "десять": true,
	"вещь": true, "штука": true, "проблема": true, "решение": true, "способ": true,
	"время": true, "день": true, "дело": true,
	"сегодня": true, "вчера": true, "завтра": true, "сейчас": true, "тогда": true, "потом": true,
	"это": true, "этот": true, "эта": true, "эти": true, "тот": true, "та": true, "те": true, "того": true,
	"что": true, "как": true, "где": true, "когда": true, "потому": true, "поэтому": true,
	"также": true, "тоже": true, "или": true, "либо": true, "если": true, "хотя": true,
	"пока": true, "уже": true, "ещё": true, "еще": true,
	"не": true, "но": true, "да": true, "нет": true, "вот": true, "так": true,
	"все": true, "всё": true, "мне": true, "мой": true, "моя": true, "моё": true,
}

// DetectLanguage returns "ru" when more than 30% of letter characters are
// Cyrillic, "en" otherwise.
func DetectLanguage(text string) string {
	var cyrillic, latin int
	for _, r := range text {
		switch {
		case r >= 'Ѐ' && r <= 'ӿ', r >= 'Ԁ' && r <= 'ԯ':
			cyrillic++
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z':
			latin++
		}
	}
	total := cyrillic + latin
	if total == 0 {
		return "en"
	}
	if float64(cyrillic)/float64(total) > 0.3 {
		return "ru"
	}
	return "en"
}

// IsValidEntity filters out noise: too short, digit-only, stopwords, or
// implausibly long phrases.
func IsValidEntity(text string) bool {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if len(normalized) < MinEntityLength {
		return false
	}
	if _, err := strconv.Atoi(normalized); err == nil {
		return false
	}
	if genericStopwords[normalized] {
		return false
	}
	if len([]rune(normalized)) == 1 && normalized != "i" && normalized != "a" {
		return false
	}
	if len(strings.Fields(normalized)) > 4 {
		return false
	}
	return true
}

var punctTrim = " .,!?;:'\"()[]{}"

// NormalizeEntity collapses whitespace, trims punctuation, lowercases —
// used purely for deduplication, never stored.
func NormalizeEntity(text string) string {
	collapsed := strings.Join(strings.Fields(text), " ")
	return strings.ToLower(strings.Trim(collapsed, punctTrim))
}

// RuleExtractor matches the curated knownEntities dictionary against
// lowercased text, using word-boundary matching for short (<=3 char) keys
// to avoid matching inside unrelated words (e.g. "go" inside "going").
type RuleExtractor struct {
	boundaryRe map[string]*regexp.Regexp
}

// NewRuleExtractor builds the dictionary-matching strategy.
func NewRuleExtractor() *RuleExtractor {
	re := &RuleExtractor{boundaryRe: make(map[string]*regexp.Regexp)}
	for key := range knownEntities {
		if len(key) <= 3 {
			re.boundaryRe[key] = regexp.MustCompile(`\b` + regexp.QuoteMeta(key) + `\b`)
		}
	}
	return re
}

// Extract implements Extractor.
func (r *RuleExtractor) Extract(text string) []Entity {
	lower := strings.ToLower(text)

	keys := make([]string, 0, len(knownEntities))
	for k := range knownEntities {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var found []Entity
	for _, key := range keys {
		nameType := knownEntities[key]
		var matched bool
		if boundary, ok := r.boundaryRe[key]; ok {
			matched = boundary.MatchString(lower)
		} else {
			matched = strings.Contains(lower, key)
		}
		if matched && IsValidEntity(nameType[0]) {
			found = append(found, Entity{Surface: nameType[0], Type: nameType[1], Confidence: 1.0})
		}
	}

	seen := make(map[string]bool, len(found))
	var unique []Entity
	for _, e := range found {
		norm := NormalizeEntity(e.Surface)
		if seen[norm] {
			continue
		}
		seen[norm] = true
		unique = append(unique, e)
	}
	return unique
}
