package notify

import (
	"strings"
	"time"
)

const (
	DefaultProductName = "Arte AI Bot"
	// TimestampLayout matches the pt-BR short date-time rendering (dd/mm/yyyy, hh:mm:ss).
	TimestampLayout = "02/01/2006, 15:04:05"
)

// Formatter renders a Payload into WhatsApp-flavored plain text.
//
// The footer timestamp is taken when Format runs, not from the payload.
type Formatter struct {
	product string
	loc     *time.Location
	now     func() time.Time
}

type FormatterOption func(*Formatter)

// WithProductName sets the name shown in the footer.
func WithProductName(name string) FormatterOption {
	return func(f *Formatter) {
		if strings.TrimSpace(name) != "" {
			f.product = name
		}
	}
}

// WithLocation renders the footer timestamp in loc.
func WithLocation(loc *time.Location) FormatterOption {
	return func(f *Formatter) {
		if loc != nil {
			f.loc = loc
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) FormatterOption {
	return func(f *Formatter) {
		if now != nil {
			f.now = now
		}
	}
}

func NewFormatter(opts ...FormatterOption) *Formatter {
	f := &Formatter{product: DefaultProductName, loc: time.Local, now: time.Now}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Format produces:
//
//	<marker> *<title>*
//
//	<message>
//
//	---
//	_<product> • <timestamp>_
func (f *Formatter) Format(p Payload) string {
	ts := f.now().In(f.loc).Format(TimestampLayout)

	var b strings.Builder
	b.Grow(len(p.Title) + len(p.Message) + len(f.product) + 48)
	b.WriteString(p.Type.Marker())
	b.WriteString(" *")
	b.WriteString(p.Title)
	b.WriteString("*\n\n")
	b.WriteString(p.Message)
	b.WriteString("\n\n---\n_")
	b.WriteString(f.product)
	b.WriteString(" • ")
	b.WriteString(ts)
	b.WriteString("_")
	return b.String()
}
