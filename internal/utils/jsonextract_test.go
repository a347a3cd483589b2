package utils

import "testing"

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestExtractJSONObjectDirect(t *testing.T) {
	var got sample
	if err := ExtractJSONObject(`{"name":"小雨","count":3}`, &got); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.Name != "小雨" || got.Count != 3 {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestExtractJSONObjectFenced(t *testing.T) {
	raw := "好的，这是数据：\n```json\n{\"name\":\"E001\",\"count\":1}\n```\n希望有帮助。"
	var got sample
	if err := ExtractJSONObject(raw, &got); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.Name != "E001" {
		t.Fatalf("unexpected name: %s", got.Name)
	}
}

func TestExtractJSONObjectWithProse(t *testing.T) {
	raw := `分析结果如下 {"name":"里面有}括号","count":2} over`
	var got sample
	if err := ExtractJSONObject(raw, &got); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.Count != 2 {
		t.Fatalf("unexpected count: %d", got.Count)
	}
}

func TestExtractJSONObjectRepairsTrailingComma(t *testing.T) {
	var got sample
	if err := ExtractJSONObject(`{"name":"a","count":5,}`, &got); err != nil {
		t.Fatalf("expected repair to succeed, got %v", err)
	}
	if got.Count != 5 {
		t.Fatalf("unexpected count: %d", got.Count)
	}
}

func TestExtractJSONObjectRepairsControlChars(t *testing.T) {
	raw := "{\"name\":\"第一行\n第二行\",\"count\":1}"
	var got sample
	if err := ExtractJSONObject(raw, &got); err != nil {
		t.Fatalf("expected repair to succeed, got %v", err)
	}
	if got.Name != "第一行\n第二行" {
		t.Fatalf("unexpected name: %q", got.Name)
	}
}

func TestExtractJSONObjectTruncated(t *testing.T) {
	var got sample
	if err := ExtractJSONObject(`{"name":"cut off`, &got); err != nil {
		t.Fatalf("expected truncated input to repair, got %v", err)
	}
	if got.Name != "cut off" {
		t.Fatalf("unexpected name: %q", got.Name)
	}
}

func TestExtractJSONArray(t *testing.T) {
	var got []sample
	raw := "```\n[{\"name\":\"a\",\"count\":1},{\"name\":\"b\",\"count\":2}]\n```"
	if err := ExtractJSONArray(raw, &got); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(got) != 2 || got[1].Name != "b" {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestExtractJSONObjectNoJSON(t *testing.T) {
	var got sample
	if err := ExtractJSONObject("对不起，我无法生成。", &got); err == nil {
		t.Fatalf("expected error for output without JSON")
	}
}
