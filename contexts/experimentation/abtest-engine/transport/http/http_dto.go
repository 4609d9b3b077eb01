package http

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type VariantDefinition struct {
	VariantID     string `json:"variant_id"`
	Name          string `json:"name,omitempty"`
	Template      string `json:"template,omitempty"`
	SeedSuccesses int64  `json:"seed_successes"`
	SeedFailures  int64  `json:"seed_failures"`
}

type CampaignDefinition struct {
	CampaignID  string              `json:"campaign_id"`
	Name        string              `json:"name,omitempty"`
	Description string              `json:"description,omitempty"`
	Policy      string              `json:"policy"`
	PriorAlpha  float64             `json:"prior_alpha"`
	PriorBeta   float64             `json:"prior_beta"`
	Variants    []VariantDefinition `json:"variants"`
}

type CampaignListResponse struct {
	Items []CampaignDefinition `json:"items"`
}

type AssignRequest struct {
	UserID string `json:"user_id"`
}

type AssignmentResponse struct {
	CampaignID string `json:"campaign_id"`
	UserID     string `json:"user_id"`
	VariantID  string `json:"variant_id"`
	Template   string `json:"template,omitempty"`
	Created    bool   `json:"created"`
	Fallback   bool   `json:"fallback"`
}

type RecordOutcomeRequest struct {
	UserID  string `json:"user_id"`
	Success *bool  `json:"success"`
}

type OutcomeResponse struct {
	CampaignID string  `json:"campaign_id"`
	UserID     string  `json:"user_id"`
	VariantID  string  `json:"variant_id"`
	Alpha      float64 `json:"alpha"`
	Beta       float64 `json:"beta"`
	Replayed   bool    `json:"replayed"`
}

type VariantEstimateResponse struct {
	VariantID     string  `json:"variant_id"`
	Alpha         float64 `json:"alpha"`
	Beta          float64 `json:"beta"`
	Mean          float64 `json:"mean"`
	Observations  float64 `json:"observations"`
	CredibleLow   float64 `json:"credible_low"`
	CredibleHigh  float64 `json:"credible_high"`
	CredibleLevel float64 `json:"credible_level"`
}

type ComparisonResponse struct {
	VariantA          string  `json:"variant_a"`
	VariantB          string  `json:"variant_b"`
	ProbabilityABeatB float64 `json:"probability_a_beats_b"`
	ProbabilityBBeatA float64 `json:"probability_b_beats_a"`
	ExpectedLossA     float64 `json:"expected_loss_a"`
	ExpectedLossB     float64 `json:"expected_loss_b"`
	LiftOfB           float64 `json:"lift_of_b"`
}

type EstimateResponse struct {
	CampaignID string                    `json:"campaign_id"`
	Variants   []VariantEstimateResponse `json:"variants"`
	Comparison *ComparisonResponse       `json:"comparison,omitempty"`
}
