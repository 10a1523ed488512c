package models

import "time"

// CharacterSchemaVersion identifies the Sheet layout new rows are written with.
const CharacterSchemaVersion = 1

// Character status values. Transitions are driven by the client.
const (
	StatusDraft     = "draft"
	StatusEditing   = "editing"
	StatusValidated = "validated"
)

// Character is a sheet owned by exactly one user.
type Character struct {
	ID            string `json:"id"`
	Owner         string `json:"owner"`
	SchemaVersion int    `json:"schemaVersion"`
	Sheet
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Sheet is the client-editable body of a character. It is stored as a JSON
// document and validated against the schema reflected from these tags.
// Keys outside this struct are dropped, and numbers may be fractional.
type Sheet struct {
	Player     string   `json:"player"`
	Name       string   `json:"name"`
	Age        *float64 `json:"age,omitempty" jsonschema:"minimum=0"`
	Profession string   `json:"profession"`

	Meta Meta `json:"meta"`

	Stats          []Stat  `json:"stats"`
	StatMode       string  `json:"statMode" jsonschema:"enum=3d6,enum=point-buy"`
	StatPointsPool float64 `json:"statPointsPool"`

	SkillMode          string              `json:"skillMode" jsonschema:"enum=ready,enum=custom"`
	Competences        []Competence        `json:"competences"`
	SpecialCompetences []SpecialCompetence `json:"specialCompetences"`

	Inventory []InventoryItem `json:"inventory"`
	Weapons   []Weapon        `json:"weapons"`
	PurseFer  float64         `json:"purseFer"`

	XP             float64 `json:"xp"`
	IsCreationDone bool    `json:"isCreationDone"`

	IsAlchemist    bool            `json:"isAlchemist"`
	AlchemyPotions []AlchemyPotion `json:"alchemyPotions"`

	PhraseGenial  string `json:"phraseGenial"`
	PhraseSociete string `json:"phraseSociete"`

	// Portrait is a base64 encoded image.
	Portrait string `json:"portrait"`
}

type Meta struct {
	Status    string `json:"status" jsonschema:"enum=draft,enum=editing,enum=validated"`
	SheetMode string `json:"sheetMode" jsonschema:"enum=create,enum=edit,enum=validated"`
}

type Stat struct {
	ID    string  `json:"id"`
	Label string  `json:"label"`
	Value float64 `json:"value"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

type Competence struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Score    float64 `json:"score"`
	FromStat string  `json:"fromStat"`
	Locked   bool    `json:"locked"`
}

type SpecialCompetence struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Score  float64 `json:"score"`
	Locked bool    `json:"locked"`
}

type InventoryItem struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	FromKit  bool    `json:"fromKit"`
	Category string  `json:"category"`
	Icon     string  `json:"icon"`
}

type Weapon struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Damage    string `json:"damage"`
	Icon      string `json:"icon"`
	Validated bool   `json:"validated"`
}

type AlchemyPotion struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Effect     string  `json:"effect"`
	Difficulty string  `json:"difficulty"`
	Quantity   float64 `json:"quantity"`
}

// DefaultSheet returns a sheet with every default applied, the starting point
// for a new character.
func DefaultSheet() Sheet {
	var s Sheet
	s.ApplyDefaults()
	return s
}

// ApplyDefaults fills enum fields left empty and replaces nil collections with
// empty ones so documents always serialise the same shape.
func (s *Sheet) ApplyDefaults() {
	if s.Meta.Status == "" {
		s.Meta.Status = StatusDraft
	}
	if s.Meta.SheetMode == "" {
		s.Meta.SheetMode = "create"
	}
	if s.StatMode == "" {
		s.StatMode = "3d6"
	}
	if s.SkillMode == "" {
		s.SkillMode = "ready"
	}
	if s.Stats == nil {
		s.Stats = []Stat{}
	}
	if s.Competences == nil {
		s.Competences = []Competence{}
	}
	if s.SpecialCompetences == nil {
		s.SpecialCompetences = []SpecialCompetence{}
	}
	if s.Inventory == nil {
		s.Inventory = []InventoryItem{}
	}
	if s.Weapons == nil {
		s.Weapons = []Weapon{}
	}
	if s.AlchemyPotions == nil {
		s.AlchemyPotions = []AlchemyPotion{}
	}
}
