package ingestion

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qbank-server/models"
)

const header = "chapter,question_type,statement,points,answers\n"

func TestParseQuestionsCSV(t *testing.T) {
	csvData := header +
		"Algebra,single,What is 2+2?,1.5,3|*4|5\n" +
		",open,Define a group.,2,\"A set with an associative operation, identity and inverses\"\n" +
		"Geometry,multi,Which are polygons?,\"0,5\",*Square|Circle|*Triangle\n"

	questions, err := ParseQuestionsCSV(strings.NewReader(csvData), []string{"Algebra", "Geometry"})
	require.NoError(t, err)
	require.Len(t, questions, 3)

	assert.Equal(t, 2, questions[0].Line)
	assert.Equal(t, "Algebra", questions[0].Chapter)
	assert.Equal(t, 1.5, questions[0].Points)
	assert.Equal(t, []models.Answer{{Text: "3"}, {Text: "4", IsCorrect: true}, {Text: "5"}}, questions[0].Answers)

	assert.Equal(t, "", questions[1].Chapter)
	assert.Equal(t, "open", questions[1].QuestionType)
	require.Len(t, questions[1].Answers, 1)
	assert.True(t, questions[1].Answers[0].IsCorrect)

	assert.Equal(t, 0.5, questions[2].Points)
	assert.Equal(t, "multi", questions[2].QuestionType)
}

func TestParseQuestionsCSVRowErrors(t *testing.T) {
	cases := map[string]struct {
		csv   string
		line  int
		field string
	}{
		"bad points":        {header + "Algebra,open,Q1,abc,\n", 2, "points"},
		"negative points":   {header + "Algebra,open,Q1,-2,\n", 2, "points"},
		"NaN points":        {header + "Algebra,open,Q1,NaN,\n", 2, "points"},
		"three decimals":    {header + "Algebra,open,Q1,0.125,\n", 2, "points"},
		"too large":         {header + "Algebra,open,Q1,10000,\n", 2, "points"},
		"unknown chapter":   {header + "Topology,open,Q1,1,\n", 2, "chapter"},
		"missing statement": {header + "Algebra,open,,1,\n", 2, "statement"},
		"duplicate":         {header + "Algebra,open,Q1,1,\nAlgebra,open,Q1,2,\n", 3, "statement"},
		"no correct choice": {header + "Algebra,single,Q1,1,a|b\n", 2, "answers"},
		"no choices":        {header + "Algebra,multi,Q1,1,\n", 2, "answers"},
		"unknown type":      {header + "Algebra,essay,Q1,1,\n", 2, "question_type"},
		"column count":      {header + "Algebra,open,Q1\n", 2, ""},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseQuestionsCSV(strings.NewReader(tc.csv), []string{"Algebra"})
			var rowErr *RowError
			require.True(t, errors.As(err, &rowErr), "got %v", err)
			assert.Equal(t, tc.line, rowErr.Line)
			assert.Equal(t, tc.field, rowErr.Field)
		})
	}
}

func TestParseQuestionsCSVHeader(t *testing.T) {
	_, err := ParseQuestionsCSV(strings.NewReader("a,b,c,d,e\nx,open,Q,1,\n"), nil)
	var rowErr *RowError
	require.ErrorAs(t, err, &rowErr)
	assert.Equal(t, 1, rowErr.Line)

	_, err = ParseQuestionsCSV(strings.NewReader(header), nil)
	require.ErrorAs(t, err, &rowErr)
}

func TestParseSubjectYAML(t *testing.T) {
	data := []byte("code: MATH101\nname: Mathematics\nchapters:\n  - Algebra\n  - Geometry\n")
	meta, err := ParseSubjectYAML(data, "MATH101")
	require.NoError(t, err)
	assert.Equal(t, "Mathematics", meta.Name)
	assert.Equal(t, []string{"Algebra", "Geometry"}, meta.Chapters)

	_, err = ParseSubjectYAML(data, "PHYS101")
	assert.Error(t, err)

	_, err = ParseSubjectYAML([]byte("code: MATH101\n"), "MATH101")
	assert.Error(t, err)

	_, err = ParseSubjectYAML([]byte("code: [oops"), "MATH101")
	assert.Error(t, err)
}

func TestListSubjectCodes(t *testing.T) {
	dir := t.TempDir()
	for _, code := range []string{"PHYS101", "MATH101"} {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "subjects", code), 0o755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "subjects", "README.md"), []byte("banks"), 0o600))

	codes, err := ListSubjectCodes(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"MATH101", "PHYS101"}, codes)

	_, err = ListSubjectCodes(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
