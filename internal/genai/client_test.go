package genai

import (
	"testing"
	"time"
)

func newTestPool(keys ...string) *Client {
	c := &Client{multiKey: true}
	for _, k := range keys {
		c.pool = append(c.pool, &pooledClient{keyState: keyState{key: k}})
	}
	return c
}

func TestSelectEligible_RoundRobinFairness(t *testing.T) {
	c := newTestPool("a", "b", "c")
	seen := map[string]int{}
	for i := 0; i < 100; i++ {
		idx, pc, err := c.selectEligible()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		seen[pc.key]++
		c.advance(idx)
	}
	for _, k := range []string{"a", "b", "c"} {
		if seen[k] == 0 {
			t.Fatalf("key %q was never selected across 100 rotations", k)
		}
	}
}

func TestSelectEligible_SkipsCooldown(t *testing.T) {
	c := newTestPool("a", "b")
	c.markCooldown(0)

	idx, pc, err := c.selectEligible()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pc.key != "b" {
		t.Fatalf("expected rotation to skip cooled-down key, got %q", pc.key)
	}
	if idx != 1 {
		t.Fatalf("expected index 1, got %d", idx)
	}
}

func TestSelectEligible_AllKeysExhausted(t *testing.T) {
	c := newTestPool("a", "b")
	c.markCooldown(0)
	c.markCooldown(1)

	_, _, err := c.selectEligible()
	if err == nil {
		t.Fatal("expected error when every key is in cooldown")
	}
}

func TestKeyState_CooldownExpires(t *testing.T) {
	ks := &keyState{key: "a", lastQuotaFailureAt: time.Now().Add(-101 * time.Second)}
	if ks.inCooldown(time.Now(), quotaCooldown) {
		t.Fatal("expected cooldown to have expired after 100s")
	}

	ks2 := &keyState{key: "b", lastQuotaFailureAt: time.Now()}
	if !ks2.inCooldown(time.Now(), quotaCooldown) {
		t.Fatal("expected key just marked to still be in cooldown")
	}
}

func TestBuildThinkingConfig_Gemini3UsesLevel(t *testing.T) {
	cfg := buildThinkingConfig("gemini-3-pro-preview", nil)
	if cfg == nil || cfg.ThinkingLevel == "" {
		t.Fatalf("expected a thinking level for a gemini-3 model, got %+v", cfg)
	}
}

func TestBuildThinkingConfig_Gemini25UsesBudget(t *testing.T) {
	cfg := buildThinkingConfig("gemini-2.5-flash", nil)
	if cfg == nil || cfg.ThinkingBudget == nil {
		t.Fatalf("expected a thinking budget for a gemini-2.5 model, got %+v", cfg)
	}
	if *cfg.ThinkingBudget != -1 {
		t.Fatalf("expected default budget -1, got %d", *cfg.ThinkingBudget)
	}
}

func TestBuildThinkingConfig_ExplicitBudgetWins(t *testing.T) {
	explicit := int32(512)
	cfg := buildThinkingConfig("gemini-2.5-pro", &explicit)
	if cfg == nil || cfg.ThinkingBudget == nil || *cfg.ThinkingBudget != 512 {
		t.Fatalf("expected explicit budget to take precedence, got %+v", cfg)
	}
}

func TestBuildThinkingConfig_OtherModelsNil(t *testing.T) {
	if cfg := buildThinkingConfig("gemini-2.0-flash", nil); cfg != nil {
		t.Fatalf("expected nil thinking config for gemini-2.0-flash, got %+v", cfg)
	}
}

func TestStripJSONFence(t *testing.T) {
	cases := map[string]string{
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```\n{\"a\":1}\n```":     `{"a":1}`,
		`{"a":1}`:                 `{"a":1}`,
	}
	for in, want := range cases {
		if got := stripJSONFence(in, true); got != want {
			t.Errorf("stripJSONFence(%q) = %q, want %q", in, got, want)
		}
	}
	if got := stripJSONFence("```json\nplain\n```", false); got != "```json\nplain\n```" {
		t.Errorf("expected no-op when jsonMode is false, got %q", got)
	}
}

func TestParseJSON_FencedObject(t *testing.T) {
	var out struct {
		Terms []string `json:"terms"`
	}
	err := ParseJSON("```json\n{\"terms\":[\"a\",\"b\"]}\n```", &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Terms) != 2 {
		t.Fatalf("expected 2 terms, got %+v", out.Terms)
	}
}
