package experts

import (
	"fmt"
	"regexp"

	"github.com/garnizeh/experts/pkg/warehouse"
)

// TopicParam is the name the topic is bound to in every generated query.
const TopicParam = "topic"

// Relations names the questions and answers tables on a backend.
type Relations struct {
	Questions string `yaml:"questions_table"`
	Answers   string `yaml:"answers_table"`
}

// DefaultRelations are the table names of the local SQLite mirror.
var DefaultRelations = Relations{Questions: "posts_questions", Answers: "posts_answers"}

// PublicDatasetRelations are the Stack Overflow tables of the BigQuery
// public dataset.
var PublicDatasetRelations = Relations{
	Questions: "bigquery-public-data.stackoverflow.posts_questions",
	Answers:   "bigquery-public-data.stackoverflow.posts_answers",
}

var relationName = regexp.MustCompile(`^[A-Za-z0-9_-]+(\.[A-Za-z0-9_-]+)*$`)

// Validate rejects relation names that could not be quoted safely.
func (r Relations) Validate() error {
	for _, n := range []string{r.Questions, r.Answers} {
		if !relationName.MatchString(n) {
			return fmt.Errorf("%w: invalid relation name %q", warehouse.ErrInvalidInput, n)
		}
	}
	return nil
}

const expertsQuery = `SELECT a.owner_user_id AS user_id, COUNT(1) AS number_of_answers
FROM %s AS a
INNER JOIN %s AS q
    ON a.parent_id = q.id
WHERE %s
GROUP BY a.owner_user_id`

// BuildQuery renders the topic lookup for dialect d. The topic is never
// interpolated into the SQL text; it travels as the @topic parameter.
func BuildQuery(d warehouse.Dialect, rel Relations, topic string) (warehouse.Query, error) {
	if err := rel.Validate(); err != nil {
		return warehouse.Query{}, err
	}
	if err := ValidateTopic(topic); err != nil {
		return warehouse.Query{}, err
	}

	sql := fmt.Sprintf(expertsQuery,
		d.QuoteTable(rel.Answers),
		d.QuoteTable(rel.Questions),
		d.Contains("q.tags", TopicParam),
	)

	return warehouse.Query{
		SQL:    sql,
		Params: []warehouse.Param{{Name: TopicParam, Value: topic}},
		Scans: []warehouse.Scan{
			{Table: rel.Questions, Columns: []string{"id", "tags"}},
			{Table: rel.Answers, Columns: []string{"parent_id", "owner_user_id"}},
		},
	}, nil
}
