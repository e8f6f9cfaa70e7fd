package models

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseProvider(t *testing.T) {
	tc := []struct {
		in      string
		want    Provider
		wantErr bool
	}{
		{in: "directory", want: ProviderDirectory},
		{in: "normal", want: ProviderDirectory},
		{in: "special", want: ProviderFeaturePage},
		{in: "GOOGLE", want: ProviderMapPack},
		{in: " seo ", want: ProviderWebSearch},
		{in: "web_search", want: ProviderWebSearch},
		{in: "bing", wantErr: true},
	}

	for _, tt := range tc {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseProvider(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseProvider() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseProvider() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRankJSON(t *testing.T) {
	t.Run("encodes positions as numbers and sentinels as strings", func(t *testing.T) {
		data, err := json.Marshal([]Rank{Position(3), NotFound, NoPanel, Captcha, Failed})
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		want := `[3,"NOT_FOUND","NO_PANEL","CAPTCHA","ERROR"]`
		if string(data) != want {
			t.Errorf("got %s, want %s", data, want)
		}
	})

	decode := []struct {
		in   string
		want Rank
	}{
		{in: `12`, want: Position(12)},
		{in: `"7"`, want: Position(7)},
		{in: `"NOT_FOUND"`, want: NotFound},
		{in: `"圏外"`, want: NotFound},
		{in: `"枠無"`, want: NoPanel},
		{in: `"エラー"`, want: Failed},
		{in: `"captcha"`, want: Captcha},
	}
	for _, tt := range decode {
		t.Run("decodes "+tt.in, func(t *testing.T) {
			var got Rank
			if err := json.Unmarshal([]byte(tt.in), &got); err != nil {
				t.Fatalf("unmarshal failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	for _, bad := range []string{`0`, `-4`, `"somewhere"`, `true`} {
		t.Run("rejects "+bad, func(t *testing.T) {
			var got Rank
			if err := json.Unmarshal([]byte(bad), &got); err == nil {
				t.Errorf("expected error, got %v", got)
			}
		})
	}
}

func TestTaskValidate(t *testing.T) {
	tc := []struct {
		name    string
		task    Task
		wantErr bool
	}{
		{name: "directory ok", task: Task{ID: "a", Provider: ProviderDirectory, Keyword: "nail", TargetName: "Salon"}},
		{name: "directory missing target", task: Task{ID: "a", Provider: ProviderDirectory, Keyword: "nail"}, wantErr: true},
		{name: "feature page ok", task: Task{ID: "b", Provider: ProviderFeaturePage, URL: "https://x/", TargetName: "S"}},
		{name: "map pack missing location", task: Task{ID: "c", Provider: ProviderMapPack, Keyword: "k", TargetName: "S"}, wantErr: true},
		{name: "web search ok", task: Task{ID: "d", Provider: ProviderWebSearch, Keyword: "k", URL: "https://x/"}},
		{name: "missing id", task: Task{Provider: ProviderWebSearch, Keyword: "k", URL: "u"}, wantErr: true},
		{name: "unknown provider", task: Task{ID: "e", Provider: "bing"}, wantErr: true},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.task.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			var verr *ValidationError
			if err != nil && !errors.As(err, &verr) {
				t.Errorf("expected *ValidationError, got %T", err)
			}
		})
	}
}

func TestTaskUnmarshalLegacy(t *testing.T) {
	legacy := `[
		{"id":"n1","type":"normal","serviceKeyword":"ネイル","salonName":"Salon A","areaCodes":{"serviceAreaCd":"SA","areaName":"渋谷"}},
		{"id":"s1","type":"special","featurePageUrl":"https://beauty.example/feature/PN2/","salonName":"Salon B","featurePageName":"特集"},
		{"id":"g1","type":"google","keyword":"ネイル","searchLocation":"渋谷駅","salonName":"Salon C"},
		{"id":"w1","type":"seo","keyword":"ネイル 渋谷","url":"https://salon.example/"},
		{"id":"x1","serviceKeyword":"まつげ","salonName":"Salon D"}
	]`

	var tasks []Task
	if err := json.Unmarshal([]byte(legacy), &tasks); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	want := []Provider{ProviderDirectory, ProviderFeaturePage, ProviderMapPack, ProviderWebSearch, ProviderDirectory}
	for i, task := range tasks {
		if task.Provider != want[i] {
			t.Errorf("task %s provider = %s, want %s", task.ID, task.Provider, want[i])
		}
		if err := task.Validate(); err != nil {
			t.Errorf("legacy task %s should validate: %v", task.ID, err)
		}
	}

	if tasks[0].AreaName != "渋谷" || tasks[0].Keyword != "ネイル" {
		t.Errorf("directory fields not mapped: %+v", tasks[0])
	}
	if tasks[1].Title != "特集" || tasks[1].URL == "" {
		t.Errorf("feature page fields not mapped: %+v", tasks[1])
	}
	if tasks[2].Location != "渋谷駅" {
		t.Errorf("map pack location not mapped: %+v", tasks[2])
	}

	t.Run("round trip uses current schema", func(t *testing.T) {
		data, err := json.Marshal(tasks[2])
		if err != nil {
			t.Fatal(err)
		}
		var back Task
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatal(err)
		}
		if back.Location != tasks[2].Location || back.Provider != ProviderMapPack {
			t.Errorf("round trip lost fields: %+v", back)
		}
	})
}

func TestDisplayName(t *testing.T) {
	tc := []struct {
		task Task
		want string
	}{
		{task: Task{Provider: ProviderDirectory, AreaName: "渋谷", Keyword: "ネイル"}, want: "[渋谷] ネイル"},
		{task: Task{Provider: ProviderFeaturePage, TargetName: "A", URL: "https://x/"}, want: "[A] https://x/"},
		{task: Task{Provider: ProviderFeaturePage, TargetName: "A", URL: "https://x/", Title: "特集"}, want: "[A] 特集"},
		{task: Task{Provider: ProviderMapPack, TargetName: "A", Location: "渋谷駅", Keyword: "ネイル"}, want: "[A] [渋谷駅] ネイル"},
		{task: Task{Provider: ProviderWebSearch, URL: "https://x/", Keyword: "k"}, want: "[https://x/] k"},
	}
	for _, tt := range tc {
		if got := tt.task.DisplayName(); got != tt.want {
			t.Errorf("DisplayName() = %q, want %q", got, tt.want)
		}
	}
}

func TestNormalizePageURL(t *testing.T) {
	tc := map[string]string{
		"https://b.example/feature/":      "https://b.example/feature/",
		"https://b.example/feature":       "https://b.example/feature/",
		"https://b.example/feature/PN3/":  "https://b.example/feature/",
		"https://b.example/feature/PN12":  "https://b.example/feature/",
		" https://b.example/feature/PN2/": "https://b.example/feature/",
	}
	for in, want := range tc {
		if got := NormalizePageURL(in); got != want {
			t.Errorf("NormalizePageURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHistoryUpsert(t *testing.T) {
	t.Run("same date replaces and second call wins", func(t *testing.T) {
		r := &HistoryRecord{ID: "a"}
		if !r.Upsert(HistoryEntry{Date: "2024/05/01", Rank: Position(4)}) {
			t.Error("first upsert should add")
		}
		if r.Upsert(HistoryEntry{Date: "2024/05/01", Rank: NotFound, Screenshot: "s.jpg"}) {
			t.Error("second upsert should replace")
		}
		if len(r.Log) != 1 || r.Log[0].Rank != NotFound || r.Log[0].Screenshot != "s.jpg" {
			t.Errorf("unexpected log %+v", r.Log)
		}
	})

	t.Run("log stays date ascending", func(t *testing.T) {
		r := &HistoryRecord{ID: "a"}
		for _, d := range []string{"2024/05/03", "2023/12/31", "2024/05/01", "2024/05/02", "2024/01/10"} {
			r.Upsert(HistoryEntry{Date: d, Rank: Position(1)})
		}
		want := []string{"2023/12/31", "2024/01/10", "2024/05/01", "2024/05/02", "2024/05/03"}
		for i, e := range r.Log {
			if e.Date != want[i] {
				t.Fatalf("log[%d] = %s, want %s", i, e.Date, want[i])
			}
		}
		latest, ok := r.Latest()
		if !ok || latest.Date != "2024/05/03" {
			t.Errorf("Latest() = %+v", latest)
		}
	})
}

func TestResolveTarget(t *testing.T) {
	result := &ExtractionResult{
		Rank: NotFound,
		Listings: []Listing{
			{Rank: 1, Label: "Nail Salon ALPHA Shibuya"},
			{Rank: 2, Label: "beta nails"},
			{Rank: 3, Label: "Alpha Second"},
		},
	}

	tc := []struct {
		target string
		want   Rank
	}{
		{target: "alpha", want: Position(1)},
		{target: "BETA", want: Position(2)},
		{target: "gamma", want: NotFound},
		{target: "  ", want: NotFound},
	}
	for _, tt := range tc {
		if got := result.ResolveTarget(tt.target); got != tt.want {
			t.Errorf("ResolveTarget(%q) = %v, want %v", tt.target, got, tt.want)
		}
	}

	blocked := &ExtractionResult{Rank: Captcha, Listings: result.Listings}
	if got := blocked.ResolveTarget("alpha"); got != Captcha {
		t.Errorf("sentinel should apply to every member, got %v", got)
	}
}

func TestNormalizeURL(t *testing.T) {
	tc := map[string]string{
		"https://www.Example.com/":     "example.com",
		"http://example.com/path/":     "example.com/path",
		"example.com/path":             "example.com/path",
		"https://sub.example.com/a/b/": "sub.example.com/a/b",
	}
	for in, want := range tc {
		if got := NormalizeURL(in); got != want {
			t.Errorf("NormalizeURL(%q) = %q, want %q", in, got, want)
		}
	}
}
