package monitors

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hamed0406/dashwatch/internal/domain"
	"github.com/hamed0406/dashwatch/internal/watchdog"
)

const RemindersSignal = "reminders"

// TodoSource is implemented by upstream.TodoClient.
type TodoSource interface {
	Todos(ctx context.Context) ([]domain.TodoItem, error)
}

func DefaultRemindersConfig() watchdog.Config {
	return watchdog.Config{
		Interval:         60 * time.Second,
		ConfirmThreshold: 1,
		SleepGap:         150 * time.Second,
	}
}

// NewReminders builds the watchdog of due to-do items. Each item is announced
// at most once per local calendar day.
func NewReminders(src TodoSource, cfg watchdog.Config, deps watchdog.Deps) (*watchdog.Controller[domain.DueSet], error) {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	a := watchdog.Adapter[domain.DueSet]{
		Poll: func(ctx context.Context) (domain.DueSet, error) {
			todos, err := src.Todos(ctx)
			if err != nil {
				return domain.DueSet{}, err
			}
			return domain.NewDueSet(todos, now()), nil
		},
		Equal:    func(a, b domain.DueSet) bool { return a.Equal(b) },
		Keys:     func(d domain.DueSet) []string { return d.IDs },
		Format:   reminderMessage,
		Describe: domain.DueSet.String,
	}
	return watchdog.New(RemindersSignal, cfg, a, deps)
}

func reminderMessage(tr watchdog.Transition[domain.DueSet]) (watchdog.Message, bool) {
	if len(tr.Keys) == 0 {
		return watchdog.Message{}, false
	}
	if len(tr.Keys) == 1 {
		id := tr.Keys[0]
		return watchdog.Message{
			Title: "⏰ Reminder",
			Body:  tr.To.Titles[id],
			Link:  "/todos#" + id,
		}, true
	}
	titles := make([]string, 0, len(tr.Keys))
	for _, id := range tr.Keys {
		titles = append(titles, tr.To.Titles[id])
	}
	return watchdog.Message{
		Title: fmt.Sprintf("⏰ %d reminders due", len(tr.Keys)),
		Body:  strings.Join(titles, "; "),
		Link:  "/todos",
	}, true
}
