package models

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestAllQuestionIDsMergesListAndGroups(t *testing.T) {
	list := QuestionList{
		QuestionIDs: EncodeQuestionIDs([]uint{1, 2}),
		Groups: []ListGroup{
			{QuestionIDs: EncodeQuestionIDs([]uint{2, 3})},
			{QuestionIDs: EncodeQuestionIDs([]uint{4})},
		},
	}

	ids, err := list.AllQuestionIDs()
	require.NoError(t, err)
	require.Equal(t, []uint{1, 2, 3, 4}, ids)
}

func TestAllQuestionIDsEmptyColumns(t *testing.T) {
	list := QuestionList{}
	ids, err := list.AllQuestionIDs()
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestAllQuestionIDsRejectsMalformedJSON(t *testing.T) {
	list := QuestionList{QuestionIDs: datatypes.JSON(`{"not":"an array"}`)}
	_, err := list.AllQuestionIDs()
	require.Error(t, err)
}

func TestContainsQuestion(t *testing.T) {
	list := QuestionList{
		Groups: []ListGroup{{QuestionIDs: EncodeQuestionIDs([]uint{7, 8})}},
	}

	require.True(t, list.ContainsQuestion(8))
	require.False(t, list.ContainsQuestion(9))
}
