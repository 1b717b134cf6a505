package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// Scoring modes for a question list.
const (
	ScoringModeSimple = "simple"
	ScoringModeGroups = "groups"
)

// QuestionList is a scored collection of questions with a grading configuration.
type QuestionList struct {
	ID                 uint           `gorm:"primaryKey" json:"id"`
	Title              string         `gorm:"size:255" json:"title"`
	ScoringMode        string         `gorm:"size:16;not null;default:simple" json:"scoring_mode"`
	MaxScore           int            `gorm:"not null;default:100" json:"max_score"`
	MinQuestionsForMax *int           `json:"min_questions_for_max,omitempty"`
	QuestionIDs        datatypes.JSON `json:"question_ids,omitempty"`

	Groups    []ListGroup `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"groups,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// ListGroup is a weighted group of questions inside a grouped-scoring list.
type ListGroup struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	QuestionListID uint           `gorm:"not null;index" json:"question_list_id"`
	Weight         float64        `gorm:"not null;default:1" json:"weight"`
	QuestionIDs    datatypes.JSON `json:"question_ids"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// DecodeQuestionIDs returns the group's question ids from its JSON column.
func (g ListGroup) DecodeQuestionIDs() ([]uint, error) {
	return decodeIDs(g.QuestionIDs)
}

// DecodeQuestionIDs returns the list's own question ids (simple mode).
func (l QuestionList) DecodeQuestionIDs() ([]uint, error) {
	return decodeIDs(l.QuestionIDs)
}

// AllQuestionIDs returns every question id the list covers, across both
// scoring modes, without duplicates.
func (l QuestionList) AllQuestionIDs() ([]uint, error) {
	seen := make(map[uint]struct{})
	var out []uint

	add := func(ids []uint) {
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}

	direct, err := l.DecodeQuestionIDs()
	if err != nil {
		return nil, fmt.Errorf("list %d question ids: %w", l.ID, err)
	}
	add(direct)

	for _, group := range l.Groups {
		ids, err := group.DecodeQuestionIDs()
		if err != nil {
			return nil, fmt.Errorf("group %d question ids: %w", group.ID, err)
		}
		add(ids)
	}

	return out, nil
}

// ContainsQuestion reports whether the list covers the given question.
func (l QuestionList) ContainsQuestion(questionID uint) bool {
	ids, err := l.AllQuestionIDs()
	if err != nil {
		return false
	}
	for _, id := range ids {
		if id == questionID {
			return true
		}
	}
	return false
}

// EncodeQuestionIDs serialises question ids for a JSON column.
func EncodeQuestionIDs(ids []uint) datatypes.JSON {
	raw, err := json.Marshal(ids)
	if err != nil {
		return datatypes.JSON("[]")
	}
	return datatypes.JSON(raw)
}

func decodeIDs(raw datatypes.JSON) ([]uint, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var ids []uint
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}
