package oracle

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/JakeFAU/artist-crawler/internal/crawler"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type decisionPayload struct {
	Action string `json:"action" validate:"required,oneof=NAVIGATE EXTRACT DONE"`
	URL    string `json:"url" validate:"required_if=Action NAVIGATE"`
}

type candidatePayload struct {
	Name            string   `json:"name" validate:"required,max=200"`
	Styles          []string `json:"styles"`
	Email           string   `json:"email" validate:"omitempty,email"`
	Phone           string   `json:"phone" validate:"omitempty,max=64"`
	SocialLinks     string   `json:"social_links"`
	YearsExperience *float64 `json:"years_experience" validate:"omitempty,gte=0,lte=100"`
}

// stripFence removes surrounding whitespace and at most one Markdown code
// fence.
func stripFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	nl := strings.IndexByte(text, '\n')
	if nl < 0 {
		return text
	}
	body := strings.TrimSpace(text[nl+1:])
	body = strings.TrimSuffix(body, "```")
	return strings.TrimSpace(body)
}

func decodeStrict(text string, dst any) error {
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data after JSON value")
	}
	return nil
}

func parseDecision(text string) (crawler.Action, error) {
	var p decisionPayload
	if err := decodeStrict(stripFence(text), &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if err := validate.Struct(p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	switch p.Action {
	case "NAVIGATE":
		return crawler.Navigate{URL: strings.TrimSpace(p.URL)}, nil
	case "EXTRACT":
		return crawler.Extract{}, nil
	default:
		return crawler.Done{}, nil
	}
}

// parseCandidates decodes the extraction array. Entries without a name are
// dropped and counted; invalid optional fields are cleared.
func parseCandidates(text string) ([]crawler.Candidate, int, error) {
	body := stripFence(text)
	var raw []candidatePayload
	if err := decodeStrict(body, &raw); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	out := make([]crawler.Candidate, 0, len(raw))
	dropped := 0
	for _, p := range raw {
		p.Name = strings.TrimSpace(p.Name)
		p.Email = strings.TrimSpace(p.Email)
		if !sanitize(&p) {
			dropped++
			continue
		}
		c := crawler.Candidate{
			Name:        p.Name,
			Styles:      p.Styles,
			Email:       p.Email,
			Phone:       strings.TrimSpace(p.Phone),
			SocialLinks: strings.TrimSpace(p.SocialLinks),
		}
		if p.YearsExperience != nil {
			c.YearsExperience = int(*p.YearsExperience)
		}
		out = append(out, c)
	}
	return out, dropped, nil
}

// sanitize reports whether the candidate is usable.
func sanitize(p *candidatePayload) bool {
	err := validate.Struct(p)
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return false
	}
	for _, fe := range verrs {
		switch fe.StructField() {
		case "Name":
			return false
		case "Email":
			p.Email = ""
		case "Phone":
			p.Phone = ""
		case "YearsExperience":
			p.YearsExperience = nil
		}
	}
	return true
}
