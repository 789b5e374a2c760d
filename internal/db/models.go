package db

// Journal statuses. A row starts pending and becomes sent or failed once the
// collect request finishes.
const (
	JournalPending = "pending"
	JournalSent    = "sent"
	JournalFailed  = "failed"
)

type ActionJournal struct {
	ID         int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Deployment string `gorm:"column:deployment;not null;default:''"`
	ItemID     string `gorm:"column:item_id;not null;default:''"`
	Name       string `gorm:"column:name;not null;default:''"`
	ActionType string `gorm:"column:action_type;not null;default:''"`
	Status     string `gorm:"column:status;not null;default:'pending'"`
	LastError  string `gorm:"column:last_error;not null;default:''"`
	CreatedAt  int64  `gorm:"column:created_at;not null;default:0"`
	UpdatedAt  int64  `gorm:"column:updated_at;not null;default:0"`
}

func (ActionJournal) TableName() string { return "action_journal" }
