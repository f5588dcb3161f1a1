package store

import "testing"

func TestSanitizeFTS(t *testing.T) {
	cases := []struct{ in, want string }{
		{"fix auth", `"fix" OR "auth"`},
		{`  "quoted"  `, `"quoted"`},
		{`a"b`, `"a""b"`},
		{"", ""},
		{`""`, ""},
	}
	for _, c := range cases {
		if got := sanitizeFTS(c.in); got != c.want {
			t.Errorf("sanitizeFTS(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestSearchText(t *testing.T) {
	db := testDB(t)
	a := addFile(t, db, "notes/auth.md", "auth", "jwt tokens rotate hourly, jwt is signed")
	addFile(t, db, "notes/db.md", "db", "sqlite uses wal mode")
	c := addFile(t, db, "archive/auth-old.md", "auth old", "jwt was introduced")

	hits, err := db.View().SearchText("jwt", "", 0)
	if err != nil {
		t.Fatalf("SearchText: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	ids := map[int64]bool{hits[0].FileID: true, hits[1].FileID: true}
	if !ids[a.ID] || !ids[c.ID] {
		t.Errorf("hits = %v", hits)
	}
	for _, h := range hits {
		if h.Score <= 0 {
			t.Errorf("score %f should be positive", h.Score)
		}
	}
	if hits[0].Score < hits[1].Score {
		t.Error("hits not ordered best first")
	}

	scoped, err := db.View().SearchText("jwt", "notes", 0)
	if err != nil {
		t.Fatalf("SearchText folder: %v", err)
	}
	if len(scoped) != 1 || scoped[0].FileID != a.ID {
		t.Errorf("scoped hits = %v", scoped)
	}
}

func TestSearchTextFollowsUpdates(t *testing.T) {
	db := testDB(t)
	addFile(t, db, "a.md", "a", "original words")

	f := &MemoryFile{URI: "memory://a", Path: "a.md", Title: "a", Slug: "a", Content: "replacement text", Checksum: "2"}
	if err := db.UpsertFile(f); err != nil {
		t.Fatalf("UpsertFile: %v", err)
	}

	if hits, _ := db.View().SearchText("original", "", 0); len(hits) != 0 {
		t.Errorf("stale content still matches: %v", hits)
	}
	if hits, _ := db.View().SearchText("replacement", "", 0); len(hits) != 1 {
		t.Errorf("new content hits = %v, want 1", hits)
	}

	db.DeleteFile(f.ID)
	if hits, _ := db.View().SearchText("replacement", "", 0); len(hits) != 0 {
		t.Errorf("deleted file still matches: %v", hits)
	}
}

func TestSearchTextPunctuation(t *testing.T) {
	db := testDB(t)
	addFile(t, db, "a.md", "a", "use c++ carefully")

	if _, err := db.View().SearchText(`c++ AND (NOT`, "", 0); err != nil {
		t.Errorf("punctuation query failed: %v", err)
	}
	hits, err := db.View().SearchText("   ", "", 0)
	if err != nil || hits != nil {
		t.Errorf("blank query = %v, %v", hits, err)
	}
}
