package relstore

import "time"

// UsernameModel is a global username reservation. The primary key is the
// uniqueness constraint: the insert either lands or reports a duplicate,
// and that signal is the only trustworthy "username taken" check.
type UsernameModel struct {
	Username  string `gorm:"primaryKey;size:64"`
	CreatedAt time.Time
}

func (UsernameModel) TableName() string { return "usernames" }

// IDCounterModel is the per-kind monotonic id counter. Counters are seeded
// by the migrations at 9999999 so the first allocation yields an 8-digit id.
type IDCounterModel struct {
	Kind  string `gorm:"primaryKey;size:16"`
	Value int64  `gorm:"not null"`
}

func (IDCounterModel) TableName() string { return "id_counters" }

// RelationModel is one directed, typed edge in the join table. The triple
// carries no uniqueness constraint; duplicate rows are allowed. The
// surrogate id breaks ordering ties between rows sharing an object id.
type RelationModel struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	SubjectID    int64  `gorm:"not null;index:idx_relations_subject"`
	ObjectID     int64  `gorm:"not null"`
	RelationType string `gorm:"not null;size:32"`
}

func (RelationModel) TableName() string { return "relations" }
