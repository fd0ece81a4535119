package notify

import (
	"strings"
	"testing"
	"time"
)

func fixedClock() func() time.Time {
	at := time.Date(2024, time.March, 5, 14, 7, 9, 0, time.UTC)
	return func() time.Time { return at }
}

func TestFormatLayout(t *testing.T) {
	t.Parallel()

	f := NewFormatter(WithClock(fixedClock()), WithLocation(time.UTC))
	got := f.Format(Payload{Type: TypePostPublished, Title: "Post Publicado!", Message: "ok"})
	want := "✅ *Post Publicado!*\n\nok\n\n---\n_Arte AI Bot • 05/03/2024, 14:07:09_"
	if got != want {
		t.Fatalf("Format:\n%q\nwant\n%q", got, want)
	}
}

func TestFormatMarkers(t *testing.T) {
	t.Parallel()

	f := NewFormatter(WithClock(fixedClock()))
	for _, typ := range AllTypes {
		if !typ.Known() {
			t.Fatalf("%s has no marker", typ)
		}
		got := f.Format(Payload{Type: typ, Title: "t"})
		if !strings.HasPrefix(got, typ.Marker()+" *t*") {
			t.Fatalf("Format(%s) = %q, want marker %q first", typ, got, typ.Marker())
		}
	}

	got := f.Format(Payload{Type: Type("mystery"), Title: "t"})
	if !strings.HasPrefix(got, DefaultMarker+" ") {
		t.Fatalf("unknown type should use the default marker, got %q", got)
	}
}

func TestFormatEmptyFieldsAndOptions(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("BRT", -3*3600)
	f := NewFormatter(WithClock(fixedClock()), WithLocation(loc), WithProductName("Acme"), WithProductName("  "))
	got := f.Format(Payload{Type: TypeQuotaWarning})
	want := "⚠️ **\n\n\n\n---\n_Acme • 05/03/2024, 11:07:09_"
	if got != want {
		t.Fatalf("Format:\n%q\nwant\n%q", got, want)
	}
}

func TestFormatTwiceDiffersOnlyInTimestamp(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, time.March, 5, 14, 7, 9, 0, time.UTC)
	clock := func() time.Time {
		at = at.Add(3 * time.Second)
		return at
	}
	f := NewFormatter(WithClock(clock), WithLocation(time.UTC))
	p := Payload{Type: TypePostFailed, Title: "Falha", Message: "erro x"}

	first, second := f.Format(p), f.Format(p)
	if first == second {
		t.Fatalf("advancing clock produced identical texts %q", first)
	}
	cut := func(s string) (string, string) {
		i := strings.LastIndex(s, " • ")
		if i < 0 {
			t.Fatalf("no footer separator in %q", s)
		}
		return s[:i], s[i:]
	}
	body1, foot1 := cut(first)
	body2, foot2 := cut(second)
	if body1 != body2 {
		t.Fatalf("bodies differ:\n%q\n%q", body1, body2)
	}
	if foot1 != " • 05/03/2024, 14:07:12_" || foot2 != " • 05/03/2024, 14:07:15_" {
		t.Fatalf("footers %q %q", foot1, foot2)
	}
}
