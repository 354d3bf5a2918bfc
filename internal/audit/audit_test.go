package audit

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"
)

func TestMemorySinkChain(t *testing.T) {
	sink := NewMemorySink()
	ctx := context.Background()
	base := time.Now()

	for i, tool := range []string{"retrieve_study", "get_report", "schedule_appointment"} {
		r := &Record{
			CorrelationID: "corr-1",
			SubjectID:     "dr-chen",
			Role:          "radiologist",
			Tool:          tool,
			Status:        "succeeded",
			StartedAt:     base.Add(time.Duration(i) * time.Second),
			FinishedAt:    base.Add(time.Duration(i)*time.Second + 100*time.Millisecond),
		}
		if err := sink.Append(ctx, r); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
		if r.ID == "" || r.Hash == "" {
			t.Fatalf("record %d not sealed: id=%q hash=%q", i, r.ID, r.Hash)
		}
	}

	records := sink.All()
	if err := ValidateChain(records); err != nil {
		t.Fatalf("ValidateChain: %v", err)
	}

	// 篡改中间记录必须破坏链
	records[1].Status = "failed"
	if err := ValidateChain(records); err == nil {
		t.Fatal("tampered chain must fail validation")
	}
}

func TestMemorySinkConcurrentAppend(t *testing.T) {
	sink := NewMemorySink()
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = sink.Append(ctx, &Record{
				SubjectID:  "svc",
				Role:       "system",
				Tool:       "list_reports",
				Status:     "succeeded",
				StartedAt:  time.Now(),
				FinishedAt: time.Now(),
			})
		}()
	}
	wg.Wait()

	if err := ValidateChain(sink.All()); err != nil {
		t.Fatalf("chain broken under concurrency: %v", err)
	}
}

func TestMemorySinkQueryFilters(t *testing.T) {
	sink := NewMemorySink()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	seed := []Record{
		{SubjectID: "dr-chen", Tool: "retrieve_study", CorrelationID: "c1", Regulated: true, StartedAt: base},
		{SubjectID: "dr-chen", Tool: "get_report", CorrelationID: "c2", StartedAt: base.Add(time.Hour)},
		{SubjectID: "scheduler-bot", Tool: "schedule_appointment", CorrelationID: "c3", Regulated: true, StartedAt: base.Add(2 * time.Hour)},
	}
	for i := range seed {
		seed[i].Status = "succeeded"
		seed[i].FinishedAt = seed[i].StartedAt.Add(time.Second)
		r := seed[i]
		if err := sink.Append(ctx, &r); err != nil {
			t.Fatal(err)
		}
	}

	got, err := sink.Query(ctx, Filter{SubjectID: "dr-chen"})
	if err != nil || len(got) != 2 {
		t.Fatalf("by subject: %d records, err=%v", len(got), err)
	}

	regulated := true
	got, _ = sink.Query(ctx, Filter{Regulated: &regulated})
	if len(got) != 2 {
		t.Fatalf("regulated filter: %d records", len(got))
	}

	got, _ = sink.Query(ctx, Filter{From: base.Add(30 * time.Minute), To: base.Add(90 * time.Minute)})
	if len(got) != 1 || got[0].Tool != "get_report" {
		t.Fatalf("time window: %+v", got)
	}

	got, _ = sink.Query(ctx, Filter{Limit: 1, Offset: 1})
	if len(got) != 1 || got[0].CorrelationID != "c2" {
		t.Fatalf("pagination: %+v", got)
	}
}

func TestRedactorSensitiveFields(t *testing.T) {
	r := NewRedactor([]string{"ssn"}, 2048)
	out := r.Redact(map[string]any{
		"patient_id":   "P001",
		"patient_name": "张伟",
		"ssn":          "123-45-6789",
		"nested": map[string]any{
			"notes": "chest pain since Monday",
			"slot":  "2026-03-05T09:00:00Z",
		},
	})

	if out["patient_id"] != "P001" {
		t.Error("non-sensitive field must pass through")
	}
	if out["patient_name"] != redactedPlaceholder || out["ssn"] != redactedPlaceholder {
		t.Error("sensitive fields must be redacted")
	}
	nested := out["nested"].(map[string]any)
	if nested["notes"] != redactedPlaceholder {
		t.Error("nested sensitive field must be redacted")
	}
	if nested["slot"] != "2026-03-05T09:00:00Z" {
		t.Error("nested plain field must pass through")
	}
}

func TestRedactorTruncation(t *testing.T) {
	r := NewRedactor(nil, 10)
	out := r.Redact(map[string]any{"free_text": strings.Repeat("a", 100)})
	s := out["free_text"].(string)
	if !strings.HasPrefix(s, strings.Repeat("a", 10)) || !strings.Contains(s, "truncated") {
		t.Fatalf("truncation: %q", s)
	}

	if got := r.RedactString("short"); got != "short" {
		t.Fatalf("short string must pass: %q", got)
	}
}

// 截断不能把多字节字符切成非法 UTF-8
func TestRedactorTruncationOnRuneBoundary(t *testing.T) {
	r := NewRedactor(nil, 10)
	// 每个汉字 3 字节，10 字节上限落在第四个字符中间
	in := strings.Repeat("胸痛三天咳", 4)

	out := r.Redact(map[string]any{"free_text": in})
	s := out["free_text"].(string)
	if !utf8.ValidString(s) {
		t.Fatalf("truncated value is not valid UTF-8: %q", s)
	}
	if !strings.HasPrefix(s, "胸痛三") {
		t.Fatalf("truncation point: %q", s)
	}

	if got := r.RedactString(in); !utf8.ValidString(got) {
		t.Fatalf("RedactString produced invalid UTF-8: %q", got)
	}
}

func TestRedactorDoesNotMutateInput(t *testing.T) {
	r := NewRedactor(nil, 2048)
	in := map[string]any{"patient_name": "李娜"}
	_ = r.Redact(in)
	if in["patient_name"] != "李娜" {
		t.Fatal("input map must not be mutated")
	}
}
