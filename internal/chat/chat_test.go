package chat

import (
	"encoding/json"
	"testing"
)

func TestParseCommand(t *testing.T) {
	cases := []struct {
		in   string
		name string
		args string
		ok   bool
	}{
		{"/start", "start", "", true},
		{"/CZ@exchange_bot  12345 ", "cz", "12345", true},
		{"/redeem spring sale", "redeem", "spring sale", true},
		{"hello", "", "", false},
		{"/", "", "", false},
		{"/@bot", "", "", false},
	}
	for _, tc := range cases {
		name, args, ok := ParseCommand(tc.in)
		if name != tc.name || args != tc.args || ok != tc.ok {
			t.Fatalf("ParseCommand(%q) = %q %q %v", tc.in, name, args, ok)
		}
	}
}

func TestItemsPreserveOrderAndVariants(t *testing.T) {
	in := Items{
		Text{Body: "welcome"},
		Photo{FileID: "p1", Caption: "cover"},
		Document{FileID: "d1", FileName: "pack.zip", MIME: "application/zip"},
		Forwarded{FromChatID: -100, MessageID: 7},
		Sticker{FileID: "s1"},
	}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out Items
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("len = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("item %d = %#v, want %#v", i, out[i], in[i])
		}
	}
}

func TestItemsRejectUnknownKind(t *testing.T) {
	var out Items
	if err := json.Unmarshal([]byte(`[{"kind":"poll"}]`), &out); err == nil {
		t.Fatal("expected error for unknown kind")
	}
	if _, err := json.Marshal(Items{nil}); err == nil {
		t.Fatal("expected error for nil item")
	}
}

func TestIsImage(t *testing.T) {
	if !IsImage(Photo{FileID: "x"}) {
		t.Fatal("photo should be an image")
	}
	if !IsImage(Document{FileID: "x", MIME: "image/png"}) {
		t.Fatal("png document should be an image")
	}
	if IsImage(Document{FileID: "x", MIME: "application/pdf"}) || IsImage(Text{Body: "x"}) {
		t.Fatal("non-image reported as image")
	}
}
