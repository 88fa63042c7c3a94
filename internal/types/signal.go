// Package types defines the shared domain types for the wellness companion core.
package types

import "time"

// SignalKind identifies the source stream a raw signal came from.
type SignalKind string

const (
	// SignalKindMessage is a single conversational turn.
	SignalKindMessage SignalKind = "message"
	// SignalKindJournal is a free-form journal entry.
	SignalKindJournal SignalKind = "journal"
	// SignalKindMood is a structured mood rating.
	SignalKindMood SignalKind = "mood"
)

// Valid reports whether the kind is one of the known signal kinds.
func (k SignalKind) Valid() bool {
	switch k {
	case SignalKindMessage, SignalKindJournal, SignalKindMood:
		return true
	}
	return false
}

// RawSignal is an immutable unit of user-generated data. Signals are written
// once on ingestion and never mutated afterwards.
type RawSignal struct {
	ID      string     `json:"id"`
	UserID  string     `json:"user_id"`
	Kind    SignalKind `json:"kind"`
	// Role tags conversational turns ("user" or "assistant"); empty for
	// journal and mood signals.
	Role    string `json:"role,omitempty"`
	Content string `json:"content"`
	// Mood is the self-reported mood label for mood signals.
	Mood string `json:"mood,omitempty"`
	// Intensity is a 1-10 self-rating; 0 means unset.
	Intensity int       `json:"intensity,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// MemoryStrength classifies how much signal history backs a snapshot.
type MemoryStrength string

const (
	StrengthWeak     MemoryStrength = "weak"
	StrengthModerate MemoryStrength = "moderate"
	StrengthStrong   MemoryStrength = "strong"
)

// MemorySnapshot is the bounded, cached aggregation of a user's recent
// signals. It is derived entirely from RawSignal records and is always
// reconstructable; it is never a source of truth.
type MemorySnapshot struct {
	UserID           string         `json:"user_id"`
	AssembledContext string         `json:"assembled_context"`
	// MessageWindow holds the merged recent signals, most recent first,
	// size-capped.
	MessageWindow []RawSignal    `json:"message_window"`
	Strength      MemoryStrength `json:"strength"`
	// SignalCount is the total number of merged records before the window cap.
	SignalCount  int       `json:"signal_count"`
	JournalCount int       `json:"journal_count"`
	MoodCount    int       `json:"mood_count"`
	BuiltAt      time.Time `json:"built_at"`
}
