package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/desertthunder/rankwatch/internal/models"
)

var styles = NewPalette("#7D56F4", "#04B575", "#FF3B30", "#FFA500", "#626262")

// struct Palette is a simple stylesheet built with named [lipgloss.Style] fields
type Palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	help  lipgloss.Style
}

func NewPalette(t, s, e, w, h string) *Palette {
	return &Palette{
		title: NewBold(t).MarginBottom(1),
		ok:    NewBold(s),
		err:   NewBold(e),
		warn:  NewStyle(w),
		help:  NewEm(h),
	}
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}

// rankStyle colors positions green, CAPTCHA and ERROR red, and the remaining sentinels amber.
func (p *Palette) rankStyle(r models.Rank) lipgloss.Style {
	if r.IsPosition() {
		return p.ok
	}
	switch s, _ := r.Sentinel(); s {
	case models.SentinelCaptcha, models.SentinelError:
		return p.err
	default:
		return p.warn
	}
}
