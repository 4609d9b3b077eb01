package seed

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"newsfinder/contexts/experimentation/abtest-engine/domain/entities"
)

func TestParseAppliesDefaults(t *testing.T) {
	raw := []byte(`
campaigns:
  - campaign_id: home_layout
    variants:
      - variant_id: a
        template: home_a.html
      - variant_id: b
        seed_successes: 8
        seed_failures: 2
`)
	campaigns, err := Parse(raw, Defaults{
		Prior:  entities.BetaModel{Alpha: 2, Beta: 3},
		Policy: entities.PolicyUniformRandom,
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(campaigns) != 1 {
		t.Fatalf("expected one campaign, got %d", len(campaigns))
	}
	campaign := campaigns[0]
	if campaign.Policy != entities.PolicyUniformRandom {
		t.Fatalf("expected default policy, got %q", campaign.Policy)
	}
	if campaign.Prior != (entities.BetaModel{Alpha: 2, Beta: 3}) {
		t.Fatalf("expected default prior, got %+v", campaign.Prior)
	}
	if campaign.Variants[1].SeedSuccesses != 8 || campaign.Variants[1].SeedFailures != 2 {
		t.Fatalf("unexpected seed counts: %+v", campaign.Variants[1])
	}
}

func TestParseResolvesPolicyAliases(t *testing.T) {
	raw := []byte(`
campaigns:
  - campaign_id: c1
    policy: e_greedy
    variants:
      - variant_id: a
      - variant_id: b
`)
	campaigns, err := Parse(raw, Defaults{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if campaigns[0].Policy != entities.PolicyEpsilonGreedy {
		t.Fatalf("expected egreedy, got %q", campaigns[0].Policy)
	}
	if campaigns[0].Prior != entities.UniformPrior {
		t.Fatalf("expected uniform prior fallback, got %+v", campaigns[0].Prior)
	}
}

func TestParseRejectsInvalidDocuments(t *testing.T) {
	cases := map[string]string{
		"duplicate variant": `
campaigns:
  - campaign_id: c1
    variants:
      - variant_id: a
      - variant_id: a
`,
		"duplicate campaign": `
campaigns:
  - campaign_id: c1
    variants: [{variant_id: a}, {variant_id: b}]
  - campaign_id: c1
    variants: [{variant_id: a}, {variant_id: b}]
`,
		"non-positive prior": `
campaigns:
  - campaign_id: c1
    prior: {alpha: 0, beta: 1}
    variants: [{variant_id: a}, {variant_id: b}]
`,
		"negative seed": `
campaigns:
  - campaign_id: c1
    variants: [{variant_id: a, seed_failures: -1}, {variant_id: b}]
`,
		"unknown policy": `
campaigns:
  - campaign_id: c1
    policy: softmax
    variants: [{variant_id: a}, {variant_id: b}]
`,
		"unknown field": `
campaigns:
  - campaign_id: c1
    variant: [{variant_id: a}]
`,
		"empty": `campaigns: []`,
	}
	for name, raw := range cases {
		if _, err := Parse([]byte(raw), Defaults{}); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadFileReadsShippedCampaigns(t *testing.T) {
	campaigns, err := LoadFile(filepath.Join("..", "..", "..", "config", "campaigns.yaml"), Defaults{})
	if err != nil {
		t.Fatalf("load shipped campaigns: %v", err)
	}
	if len(campaigns) == 0 || campaigns[0].CampaignID != "home_layout" {
		t.Fatalf("unexpected campaigns: %+v", campaigns)
	}
	if len(campaigns[0].Variants) != 2 {
		t.Fatalf("expected two variants, got %d", len(campaigns[0].Variants))
	}
}

func TestLoadFileWrapsPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "campaigns.yaml")
	if err := os.WriteFile(path, []byte("campaigns: ["), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	_, err := LoadFile(path, Defaults{})
	if err == nil || !strings.Contains(err.Error(), path) {
		t.Fatalf("expected error naming %s, got %v", path, err)
	}
}
