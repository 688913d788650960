package models

// Domain models matching the database schema in db/migrations.

// Question mirrors a row of posts_questions. Tags is free text and is never
// split; topic matching is substring containment.
type Question struct {
	ID          int64  `json:"id" db:"id"`
	Title       string `json:"title" db:"title"`
	OwnerUserID *int64 `json:"owner_user_id,omitempty" db:"owner_user_id"`
	Tags        string `json:"tags" db:"tags"`
}

// Answer mirrors a row of posts_answers.
type Answer struct {
	ID          int64  `json:"id" db:"id"`
	Body        string `json:"body" db:"body"`
	OwnerUserID *int64 `json:"owner_user_id,omitempty" db:"owner_user_id"`
	ParentID    int64  `json:"parent_id" db:"parent_id"`
}

// ExpertRecord is one aggregated row of a topic lookup. UserID is nil for the
// group of answers whose owner account no longer exists.
type ExpertRecord struct {
	UserID          *int64 `json:"user_id"`
	NumberOfAnswers int64  `json:"number_of_answers"`
}

type APIClient struct {
	ClientID   string `json:"client_id" db:"client_id"`
	SecretHash string `json:"-" db:"secret_hash"`
	Created    int64  `json:"created" db:"created"`
}
