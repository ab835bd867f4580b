// Package clock даёт сервису единое представление о "сейчас" и "сегодня"
// в заданном часовом поясе. Календарный день квиза определяется здесь и только здесь.
package clock

import (
	"time"

	"github.com/jonboulle/clockwork"
	"gorm.io/datatypes"
)

// Clock возвращает текущее время и календарную дату в опорном часовом поясе
type Clock struct {
	base clockwork.Clock
	loc  *time.Location
}

// New создает Clock поверх clockwork.Clock. Если loc == nil, используется UTC.
func New(base clockwork.Clock, loc *time.Location) *Clock {
	if base == nil {
		base = clockwork.NewRealClock()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Clock{base: base, loc: loc}
}

// NewReal создает Clock на реальном времени
func NewReal(loc *time.Location) *Clock {
	return New(clockwork.NewRealClock(), loc)
}

// Now возвращает текущий момент в опорном часовом поясе
func (c *Clock) Now() time.Time {
	return c.base.Now().In(c.loc)
}

// Today возвращает календарную дату текущего момента в опорном часовом поясе
func (c *Clock) Today() datatypes.Date {
	return DateOf(c.Now())
}

// Location возвращает опорный часовой пояс
func (c *Clock) Location() *time.Location {
	return c.loc
}

// DateOf обрезает момент до полуночи в его собственном часовом поясе
// и приводит к UTC, чтобы даты сравнивались без учёта зоны.
func DateOf(t time.Time) datatypes.Date {
	y, m, d := t.Date()
	return datatypes.Date(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
}

// SameDay сравнивает две даты
func SameDay(a, b datatypes.Date) bool {
	return time.Time(a).Equal(time.Time(b))
}

// FormatDate возвращает дату в формате YYYY-MM-DD
func FormatDate(d datatypes.Date) string {
	return time.Time(d).Format(time.DateOnly)
}
