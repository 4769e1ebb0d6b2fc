package app

import (
	"fmt"

	"github.com/philtim/figured/cards"
)

// Level is the severity of a Notice.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notice is a short message for the user describing what a request did.
type Notice struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

func (n Notice) String() string { return n.Message }

// IsZero reports whether n carries no message.
func (n Notice) IsZero() bool { return n.Message == "" }

func info(format string, args ...any) Notice {
	return Notice{Level: LevelInfo, Message: fmt.Sprintf(format, args...)}
}

func success(format string, args ...any) Notice {
	return Notice{Level: LevelSuccess, Message: fmt.Sprintf(format, args...)}
}

func warning(format string, args ...any) Notice {
	return Notice{Level: LevelWarning, Message: fmt.Sprintf(format, args...)}
}

func failure(format string, args ...any) Notice {
	return Notice{Level: LevelError, Message: fmt.Sprintf(format, args...)}
}

var (
	noticeReferenceUnavailable = failure("Could not load city data. Some features may not work.")
	noticeCapacity             = failure("Maximum of %d timezones reached.", cards.MaxCards)
	noticeRemoveHome           = failure("Cannot remove your home timezone. Set a different home timezone first.")
	noticeCardGone             = warning("That timezone is no longer in your list.")
	noticeUnsaved              = warning("Your changes could not be saved. They are kept until figured exits.")
	noticeStateUnreadable      = warning("Could not read your saved timezones. Starting with an empty list.")
)

func noticeNotFound(query string) Notice {
	return warning("Location %q not found. Try the nearest major city.", query)
}
