package tgui

import "testing"

func TestDataRoundTrip(t *testing.T) {
	t.Parallel()
	cases := []struct {
		prefix, action, payload string
		want                    string
	}{
		{"lang", "set", "ar", "lang:set:ar"},
		{"intake", "confirm", "", "intake:confirm"},
		{" lang ", "set", "en:x", "lang:set:en:x"},
	}
	for _, c := range cases {
		got := Data(c.prefix, c.action, c.payload)
		if got != c.want {
			t.Fatalf("Data(%q,%q,%q)=%q want %q", c.prefix, c.action, c.payload, got, c.want)
		}
		p, a, pl, ok := ParseData("\f" + got)
		if !ok || p != "lang" && p != "intake" || a != c.action || pl != c.payload {
			t.Fatalf("ParseData(%q)=%q,%q,%q,%v", got, p, a, pl, ok)
		}
	}
}

func TestParseDataRejectsIncomplete(t *testing.T) {
	t.Parallel()
	for _, s := range []string{"", "lang", "lang:", ":set"} {
		if _, _, _, ok := ParseData(s); ok {
			t.Fatalf("ParseData(%q) ok, want rejected", s)
		}
	}
}

func TestInlineRows(t *testing.T) {
	t.Parallel()
	in := NewInline().Row(Btn("a", "x:a")).Row().Row(Btn("b", "x:b"), Btn("c", "x:c"))
	if in.Rows() != 2 {
		t.Fatalf("rows=%d want 2", in.Rows())
	}
	if rm := in.Markup(); rm == nil || len(rm.InlineKeyboard) != 2 || len(rm.InlineKeyboard[1]) != 2 {
		t.Fatalf("unexpected markup: %+v", rm)
	}
	if (*Inline)(nil).Markup() != nil {
		t.Fatal("nil Inline must yield nil markup")
	}
}

func TestGrid2(t *testing.T) {
	t.Parallel()
	g := Grid2([]Button{Btn("1", "g:1"), Btn("2", "g:2"), Btn("3", "g:3")})
	if g.Rows() != 2 {
		t.Fatalf("rows=%d want 2", g.Rows())
	}
}
