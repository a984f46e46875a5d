// Package statestore reads and writes the versioned on-disk state file that
// publishes the most recently generated image per template, including the
// v1-to-v2 schema migration.
package statestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/moyuren/calendarsvc/internal/apperr"
)

// DefaultTemplateName is the implicit template a v1 state file is migrated
// under.
const DefaultTemplateName = "moyuren"

// TemplateEntry is one template's published artifact.
type TemplateEntry struct {
	Filename    string `json:"filename"`
	Updated     string `json:"updated"`
	UpdatedAtMs int64  `json:"updated_at_ms"`
}

// Public carries the fields shared across all templates.
type Public struct {
	Date            string `json:"date"`
	Updated         string `json:"updated"`
	UpdatedAtMs     int64  `json:"updated_at_ms"`
	Weekday         string `json:"weekday"`
	LunarDate       string `json:"lunar_date"`
	FunContent      any    `json:"fun_content,omitempty"`
	IsCrazyThursday bool   `json:"is_crazy_thursday"`
	KfcContent      string `json:"kfc_content,omitempty"`
}

// State is the canonical in-memory v2 representation.
type State struct {
	Version      int                       `json:"version"`
	Public       Public                    `json:"public"`
	Templates    map[string]TemplateEntry  `json:"templates"`
	TemplateData map[string]map[string]any `json:"template_data"`
}

// wireState is the on-disk shape: the v2 fields plus a flattened
// backward-compatible copy of public ∪ templates[active] at the root.
type wireState struct {
	Version      int                       `json:"version"`
	Public       Public                    `json:"public"`
	Templates    map[string]TemplateEntry  `json:"templates"`
	TemplateData map[string]map[string]any `json:"template_data"`

	// Flattened compatibility fields (root level): the full Public union
	// plus the active template's entry, so readers that predate the
	// versioned layout keep seeing every field they depend on.
	Date            string `json:"date,omitempty"`
	Updated         string `json:"updated,omitempty"`
	UpdatedAtMs     int64  `json:"updated_at_ms,omitempty"`
	Weekday         string `json:"weekday,omitempty"`
	LunarDate       string `json:"lunar_date,omitempty"`
	FunContent      any    `json:"fun_content,omitempty"`
	IsCrazyThursday bool   `json:"is_crazy_thursday"`
	KfcContent      string `json:"kfc_content,omitempty"`
	Filename        string `json:"filename,omitempty"`
	Timestamp       string `json:"timestamp,omitempty"`
}

// Store reads and writes the versioned state file at path.
type Store struct {
	path string
}

// New constructs a Store for the state file at path.
func New(path string) *Store {
	return &Store{path: path}
}

// Load reads the state file, migrating a v1 document to v2 transparently.
// A missing file returns (nil, false, nil).
func (s *Store) Load() (*State, bool, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, apperr.Wrap(apperr.CodeStorageReadFailed, "failed to read state file", err)
	}

	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, false, apperr.Wrap(apperr.CodeStorageReadFailed, "state file is not valid JSON", err)
	}

	version, _ := generic["version"].(float64)

	switch int(version) {
	case 0, 1:
		state, err := migrateV1(raw)
		if err != nil {
			return nil, false, err
		}
		return state, true, nil
	case 2:
		var ws wireState
		if err := json.Unmarshal(raw, &ws); err != nil {
			return nil, false, apperr.Wrap(apperr.CodeStorageReadFailed, "failed to parse v2 state file", err)
		}
		return &State{
			Version:      2,
			Public:       ws.Public,
			Templates:    ws.Templates,
			TemplateData: ws.TemplateData,
		}, true, nil
	default:
		return nil, false, apperr.New(apperr.CodeStorageReadFailed, fmt.Sprintf("unknown state file version %d", int(version)))
	}
}

// migrateV1 maps a legacy flat state document into v2 under
// DefaultTemplateName, preserving every original field verbatim in
// TemplateData[DefaultTemplateName]. The file on disk is not rewritten.
func migrateV1(raw []byte) (*State, error) {
	var v1 struct {
		Date      string `json:"date"`
		Timestamp string `json:"timestamp"`
		Filename  string `json:"filename"`
		Weekday   string `json:"weekday"`
		LunarDate string `json:"lunar_date"`
	}
	if err := json.Unmarshal(raw, &v1); err != nil {
		return nil, apperr.Wrap(apperr.CodeStorageReadFailed, "failed to parse v1 state file", err)
	}

	var rest map[string]any
	_ = json.Unmarshal(raw, &rest)

	public := Public{
		Date:      v1.Date,
		Updated:   v1.Timestamp,
		Weekday:   v1.Weekday,
		LunarDate: v1.LunarDate,
	}

	return &State{
		Version: 2,
		Public:  public,
		Templates: map[string]TemplateEntry{
			DefaultTemplateName: {Filename: v1.Filename, Updated: v1.Timestamp},
		},
		TemplateData: map[string]map[string]any{
			DefaultTemplateName: rest,
		},
	}, nil
}

// Update overwrites templateName's entry (and template-specific data) while
// leaving every other template's entries intact, then atomically persists
// the result. It must only be called while the caller holds the generation
// lock.
func (s *Store) Update(templateName string, entry TemplateEntry, templateData map[string]any, public Public) error {
	existing, _, err := s.Load()
	if err != nil {
		// A corrupt or unreadable prior state file must not block a write;
		// start from a clean slate instead.
		existing = nil
	}

	state := &State{
		Version:      2,
		Public:       public,
		Templates:    map[string]TemplateEntry{},
		TemplateData: map[string]map[string]any{},
	}
	if existing != nil {
		for name, e := range existing.Templates {
			state.Templates[name] = e
		}
		for name, d := range existing.TemplateData {
			state.TemplateData[name] = d
		}
	}
	state.Templates[templateName] = entry
	state.TemplateData[templateName] = templateData

	return s.save(state, templateName)
}

func (s *Store) save(state *State, activeTemplate string) error {
	active := state.Templates[activeTemplate]

	ws := wireState{
		Version:         2,
		Public:          state.Public,
		Templates:       state.Templates,
		TemplateData:    state.TemplateData,
		Date:            state.Public.Date,
		Updated:         state.Public.Updated,
		UpdatedAtMs:     state.Public.UpdatedAtMs,
		Weekday:         state.Public.Weekday,
		LunarDate:       state.Public.LunarDate,
		FunContent:      state.Public.FunContent,
		IsCrazyThursday: state.Public.IsCrazyThursday,
		KfcContent:      state.Public.KfcContent,
		Filename:        active.Filename,
		Timestamp:       active.Updated,
	}

	raw, err := json.MarshalIndent(ws, "", "  ")
	if err != nil {
		return apperr.Wrap(apperr.CodeStorageWriteFailed, "failed to marshal state file", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperr.Wrap(apperr.CodeStorageWriteFailed, "failed to create state directory", err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*.tmp")
	if err != nil {
		return apperr.Wrap(apperr.CodeStorageWriteFailed, "failed to create temp state file", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return apperr.Wrap(apperr.CodeStorageWriteFailed, "failed to write temp state file", err)
	}
	if err := tmp.Close(); err != nil {
		return apperr.Wrap(apperr.CodeStorageWriteFailed, "failed to close temp state file", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return apperr.Wrap(apperr.CodeStorageWriteFailed, "failed to publish state file", err)
	}
	return nil
}
