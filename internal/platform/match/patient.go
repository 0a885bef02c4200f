package match

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strings"
)

// Identity is the part of a patient record that takes part in matching.
type Identity struct {
	Name      string
	Sex       string
	BirthDate string // YYYY-MM-DD
	CNS       string
}

// Weights configures how much each field contributes to a patient score.
type Weights struct {
	Name      float64
	BirthDate float64
	Sex       float64
	CNS       float64
}

func DefaultWeights() Weights {
	return Weights{Name: 0.40, BirthDate: 0.25, Sex: 0.05, CNS: 0.30}
}

// Tier grades, strongest first.
const (
	TierStrong   = "strong"
	TierWeak     = "weak"
	TierPossible = "possible"
)

// Score compares two identities and returns a weighted score in [0, 1].
func (w Weights) Score(a, b Identity) float64 {
	score := 0.0
	if a.Name != "" && b.Name != "" {
		score += w.Name * JaroWinkler(a.Name, b.Name)
	}
	if a.BirthDate != "" && a.BirthDate == b.BirthDate {
		score += w.BirthDate
	}
	if a.Sex != "" && strings.EqualFold(a.Sex, b.Sex) {
		score += w.Sex
	}
	if ca := Digits(a.CNS); ca != "" && ca == Digits(b.CNS) {
		score += w.CNS
	}
	return math.Round(score*1000) / 1000
}

// Grade maps a score to a tier. An empty result means the candidate is not
// worth showing.
func Grade(score float64) string {
	switch {
	case score >= 0.90:
		return TierStrong
	case score >= 0.70:
		return TierWeak
	case score >= 0.55:
		return TierPossible
	default:
		return ""
	}
}

// Fingerprint is a stable digest of the folded name, birth date and sex. Two
// records with equal fingerprints describe the same person as far as the
// registry can tell.
func Fingerprint(id Identity) string {
	sum := sha256.Sum256([]byte(Fold(id.Name) + "|" + id.BirthDate + "|" + strings.ToLower(id.Sex)))
	return hex.EncodeToString(sum[:])
}
