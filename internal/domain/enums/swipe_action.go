package enums

import (
	"errors"
	"strings"
)

type SwipeAction string

const (
	SwipeActionLike      SwipeAction = "LIKE"
	SwipeActionSuperLike SwipeAction = "SUPERLIKE"
	SwipeActionDislike   SwipeAction = "DISLIKE"
)

var ErrUnsupportedAction = errors.New("unsupported action")

// ParseSwipeAction accepts case and underscore variants ("super_like").
func ParseSwipeAction(input string) (SwipeAction, error) {
	value := strings.ToUpper(strings.TrimSpace(input))
	value = strings.ReplaceAll(value, "_", "")
	switch SwipeAction(value) {
	case SwipeActionLike, SwipeActionSuperLike, SwipeActionDislike:
		return SwipeAction(value), nil
	default:
		return "", ErrUnsupportedAction
	}
}
