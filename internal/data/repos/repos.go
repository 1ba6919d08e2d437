package repos

import (
	"errors"

	"gorm.io/gorm"

	"github.com/yungbote/notebook-backend/internal/platform/logger"
)

// ErrNotFound is returned when a lookup matches nothing.
var ErrNotFound = errors.New("not found")

// Repos bundles all repositories over one database handle.
type Repos struct {
	Sessions  SessionRepo
	Documents DocumentRepo
	Messages  ChatMessageRepo
	Summaries SummaryRepo
	Memories  MemoryRepo
}

func New(db *gorm.DB, log *logger.Logger) Repos {
	return Repos{
		Sessions:  NewSessionRepo(db, log),
		Documents: NewDocumentRepo(db, log),
		Messages:  NewChatMessageRepo(db, log),
		Summaries: NewSummaryRepo(db, log),
		Memories:  NewMemoryRepo(db, log),
	}
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
