package domain

import (
	"fmt"
	"time"
)

// SessionWindow es una sesión de mercado en minutos del día (zona local).
// El final es exclusivo; si End <= Start la ventana cruza medianoche.
type SessionWindow struct {
	Name  string
	Start int // minutos desde 00:00
	End   int
}

// ParseHM convierte "HH:MM" en minutos desde medianoche.
func ParseHM(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("domain.ParseHM: %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Contains reports whether minute-of-day m falls inside the window.
func (w SessionWindow) Contains(m int) bool {
	if w.Start == w.End {
		return false
	}
	if w.Start < w.End {
		return m >= w.Start && m < w.End
	}
	return m >= w.Start || m < w.End
}

// MinuteOfDay devuelve los minutos desde medianoche de t en loc.
func MinuteOfDay(t time.Time, loc *time.Location) int {
	lt := t.In(loc)
	return lt.Hour()*60 + lt.Minute()
}

// ActiveSessions devuelve las sesiones activas en t, en el orden configurado.
func ActiveSessions(t time.Time, windows []SessionWindow, loc *time.Location) []SessionWindow {
	m := MinuteOfDay(t, loc)
	var out []SessionWindow
	for _, w := range windows {
		if w.Contains(m) {
			out = append(out, w)
		}
	}
	return out
}

// SessionBonus suma bonus si hay alguna sesión activa y overlap extra si
// se solapan dos o más.
func SessionBonus(active int, bonus, overlap float64) float64 {
	if active == 0 {
		return 0
	}
	b := bonus
	if active > 1 {
		b += overlap
	}
	return b
}

// DayKey es la fecha de trading (YYYY-MM-DD) del instante serverMs en loc.
func DayKey(serverMs int64, loc *time.Location) string {
	return time.UnixMilli(serverMs).In(loc).Format("2006-01-02")
}

// DayStartMs es la medianoche local del día de serverMs, en ms epoch.
func DayStartMs(serverMs int64, loc *time.Location) int64 {
	t := time.UnixMilli(serverMs).In(loc)
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, loc).UnixMilli()
}
