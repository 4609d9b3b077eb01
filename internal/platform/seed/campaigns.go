// Package seed loads the static experiment campaign definitions that are
// handed to the registry at startup.
package seed

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"newsfinder/contexts/experimentation/abtest-engine/application/policy"
	"newsfinder/contexts/experimentation/abtest-engine/domain/entities"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type campaignFile struct {
	Campaigns []campaignSpec `yaml:"campaigns" validate:"required,min=1,unique=CampaignID,dive"`
}

type campaignSpec struct {
	CampaignID  string        `yaml:"campaign_id" validate:"required,max=128"`
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Policy      string        `yaml:"policy"`
	Prior       *priorSpec    `yaml:"prior" validate:"omitempty"`
	Variants    []variantSpec `yaml:"variants" validate:"required,min=1,unique=VariantID,dive"`
}

type priorSpec struct {
	Alpha float64 `yaml:"alpha" validate:"gt=0"`
	Beta  float64 `yaml:"beta" validate:"gt=0"`
}

type variantSpec struct {
	VariantID     string `yaml:"variant_id" validate:"required,max=64"`
	Name          string `yaml:"name"`
	Template      string `yaml:"template"`
	SeedSuccesses int64  `yaml:"seed_successes" validate:"gte=0"`
	SeedFailures  int64  `yaml:"seed_failures" validate:"gte=0"`
}

// Defaults fill fields a campaign leaves out.
type Defaults struct {
	Prior  entities.BetaModel
	Policy entities.PolicyName
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func LoadFile(path string, defaults Defaults) ([]entities.Campaign, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read campaigns file %s: %w", path, err)
	}
	campaigns, err := Parse(raw, defaults)
	if err != nil {
		return nil, fmt.Errorf("campaigns file %s: %w", path, err)
	}
	return campaigns, nil
}

// Parse decodes and validates a campaign document. Unknown keys are
// rejected so a misspelled field does not silently fall back to a default.
func Parse(raw []byte, defaults Defaults) ([]entities.Campaign, error) {
	if !defaults.Prior.Valid() {
		defaults.Prior = entities.UniformPrior
	}
	decoder := yaml.NewDecoder(bytes.NewReader(raw))
	decoder.KnownFields(true)
	var file campaignFile
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if err := validate.Struct(file); err != nil {
		return nil, describeValidation(err)
	}

	campaigns := make([]entities.Campaign, 0, len(file.Campaigns))
	for _, entry := range file.Campaigns {
		policyName := defaults.Policy
		if strings.TrimSpace(entry.Policy) != "" {
			parsed, err := policy.ParseName(entry.Policy)
			if err != nil {
				return nil, fmt.Errorf("campaign %q: policy %q: %w", entry.CampaignID, entry.Policy, err)
			}
			policyName = parsed
		}
		prior := defaults.Prior
		if entry.Prior != nil {
			prior = entities.BetaModel{Alpha: entry.Prior.Alpha, Beta: entry.Prior.Beta}
		}
		campaign := entities.Campaign{
			CampaignID:  strings.TrimSpace(entry.CampaignID),
			Name:        entry.Name,
			Description: entry.Description,
			Policy:      policyName,
			Prior:       prior,
			Variants:    make([]entities.Variant, 0, len(entry.Variants)),
		}
		for _, variant := range entry.Variants {
			campaign.Variants = append(campaign.Variants, entities.Variant{
				VariantID:     strings.TrimSpace(variant.VariantID),
				Name:          variant.Name,
				Template:      variant.Template,
				SeedSuccesses: variant.SeedSuccesses,
				SeedFailures:  variant.SeedFailures,
			})
		}
		campaigns = append(campaigns, campaign)
	}
	return campaigns, nil
}

func describeValidation(err error) error {
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return err
	}
	messages := make([]string, 0, len(fieldErrors))
	for _, fieldErr := range fieldErrors {
		messages = append(messages, fmt.Sprintf("%s failed %q", fieldErr.Namespace(), fieldErr.Tag()))
	}
	return fmt.Errorf("invalid campaigns: %s", strings.Join(messages, "; "))
}
