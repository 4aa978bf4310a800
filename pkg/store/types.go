package store

import "time"

// Importance is the closed set of note priority levels.
type Importance string

const (
	ImportanceCritical Importance = "critical"
	ImportanceNormal   Importance = "normal"
	ImportanceLow      Importance = "low"
)

// EdgeType is the closed set of relation kinds between two notes.
type EdgeType string

const (
	EdgeSemantic      EdgeType = "semantic"
	EdgeEntity        EdgeType = "entity"
	EdgeConsolidation EdgeType = "consolidation"
	EdgeTemporalChain EdgeType = "temporal_chain"
)

// EntityType is the closed set of entity categories.
type EntityType string

const (
	EntityPerson       EntityType = "person"
	EntityOrganization EntityType = "organization"
	EntityLocation     EntityType = "location"
	EntityTech         EntityType = "tech"
	EntityConcept      EntityType = "concept"
	EntityProduct      EntityType = "product"
	EntityProject      EntityType = "project"
	EntityEvent        EntityType = "event"
	EntityTemporal     EntityType = "temporal"
	EntityCreativeWork EntityType = "creative_work"
)

// ProtectedCategories are immune to edge decay and periodically promoted
// to critical importance during sleep-compute.
var ProtectedCategories = map[string]bool{
	"anchor":              true,
	"self-reflection":     true,
	"relational-context":  true,
	"gratitude":           true,
	"milestone":           true,
	"protocol":            true,
	"security":            true,
	"breakthrough":        true,
}

// TemporalExpression is one resolved temporal mention inside a note's text.
type TemporalExpression struct {
	Literal string    `json:"literal"`
	Kind    string    `json:"kind"` // explicit | relative
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
}

// Note is the primary knowledge unit.
type Note struct {
	ID                  int64
	Content             string
	Category             string
	CreatedAt           time.Time
	LastAccessed         time.Time
	AccessCount         int
	Importance          Importance
	Embedding           []float32
	EmotionalTone       string
	EmotionalIntensity  float64
	EmotionalReflection string
	EventStart          *time.Time
	EventEnd            *time.Time
	TemporalExpressions []TemporalExpression
}

// Edge is a directed typed relation between two notes.
type Edge struct {
	SourceID  int64
	TargetID  int64
	Weight    float32
	Type      EdgeType
	CreatedAt time.Time
}

// Entity is a named thing notes can be linked to.
type Entity struct {
	ID   int64
	Name string
	Type EntityType
}

// NoteVersion is one snapshot of a note's prior content.
type NoteVersion struct {
	NoteID        int64
	VersionNumber int
	Content       string
	Category      string
	Importance    Importance
	CreatedAt     time.Time
}

// EdgeHistoryEntry records a conflicting relation assertion found during
// deep-sleep relation extraction; it never overwrites a live edge.
type EdgeHistoryEntry struct {
	ID        int64
	SourceID  int64
	TargetID  int64
	OldType   EdgeType
	NewType   EdgeType
	Kind      string
	CreatedAt time.Time
}

// Stats summarizes the store's current size.
type Stats struct {
	NoteCount       int
	EdgeCount       int
	EntityCount     int
	NodesByCategory map[string]int
	EdgesByType     map[EdgeType]int
	OldestNote      time.Time
	NewestNote      time.Time
	LastSleepAt     time.Time
}
